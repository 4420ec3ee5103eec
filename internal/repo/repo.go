package repo

import (
	"context"
	"database/sql"
	"errors"

	"formflow/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// InsertSubmissionTx records an archived submission inside the caller's
// transaction.
func (r Repo) InsertSubmissionTx(ctx context.Context, tx *sql.Tx, s domain.Submission) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO submissions(id,form_name,file_path,answers_json,created_at) VALUES (?,?,?,?,?)`,
		s.ID, s.FormName, s.FilePath, s.Answers, s.CreatedAt)
	return err
}

func (r Repo) GetSubmission(ctx context.Context, id string) (domain.Submission, error) {
	var s domain.Submission
	err := r.DB.QueryRowContext(ctx, `SELECT id,form_name,file_path,answers_json,created_at FROM submissions WHERE id=?`, id).
		Scan(&s.ID, &s.FormName, &s.FilePath, &s.Answers, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

// ListSubmissions returns submissions newest first, optionally filtered by
// form name. A non-positive limit means no limit.
func (r Repo) ListSubmissions(ctx context.Context, formName string, limit int) ([]domain.Submission, error) {
	query := `SELECT id,form_name,file_path,answers_json,created_at FROM submissions`
	args := []any{}
	if formName != "" {
		query += ` WHERE form_name=?`
		args = append(args, formName)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Submission
	for rows.Next() {
		var s domain.Submission
		if err := rows.Scan(&s.ID, &s.FormName, &s.FilePath, &s.Answers, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) CountSubmissions(ctx context.Context, formName string) (int, error) {
	query := `SELECT count(*) FROM submissions`
	args := []any{}
	if formName != "" {
		query += ` WHERE form_name=?`
		args = append(args, formName)
	}
	var n int
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// LatestEvents returns up to n events, newest first, optionally filtered.
func (r Repo) LatestEvents(ctx context.Context, n int, formName, evtType string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(form_name,'') AS form_name,entity_kind,COALESCE(entity_id,'') AS entity_id,payload_json FROM events`
	var conds []string
	args := []any{}
	if formName != "" {
		conds = append(conds, `form_name=?`)
		args = append(args, formName)
	}
	if evtType != "" {
		conds = append(conds, `type=?`)
		args = append(args, evtType)
	}
	for i, c := range conds {
		if i == 0 {
			query += ` WHERE ` + c
		} else {
			query += ` AND ` + c
		}
	}
	query += ` ORDER BY id DESC`
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.FormName, &e.EntityKind, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
