package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"formflow/internal/app"
	"formflow/internal/catalog"
	"formflow/internal/config"
	"formflow/internal/db"
	"formflow/internal/domain"
	"formflow/internal/events"
	"formflow/internal/logging"
	"formflow/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ff",
	Short: "Formflow CLI",
	Long: `Formflow serves conversational form filling over HTTP.
Core concepts:
- Forms: named, ordered question sequences loaded from a forms directory (one JSON document per form).
- Sessions: server-side progress records; a session walks a private snapshot of its form one question at a time.
- Submissions: completed answer sets, archived as timestamped JSON artifacts and indexed in the workspace database.
- Mappings: flat field descriptors converted into storable form definitions.
- Event log: a diary of session and catalog activity, view with 'ff log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FORMFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("verbose", false, "debug logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(formCmd())
	rootCmd.AddCommand(mappingCmd())
	rootCmd.AddCommand(submissionCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				if basePath == "" {
					basePath = a.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					Repo:     a.Repo,
					Events:   a.Engine.Events,
					App:      a.Config,
					BasePath: basePath,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}

				sweep := time.Duration(a.Config.Sessions.SweepSeconds) * time.Second
				go func() {
					ticker := time.NewTicker(sweep)
					defer ticker.Stop()
					for {
						select {
						case <-ctx.Done():
							return
						case <-ticker.C:
							if n := a.Sessions.Sweep(); n > 0 {
								a.Log.Info("expired sessions removed", "count", n)
							}
						}
					}
				}()
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Formflow API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

func formCmd() *cobra.Command {
	form := &cobra.Command{Use: "form", Short: "Manage form definitions"}
	form.AddCommand(formListCmd())
	form.AddCommand(formShowCmd())
	form.AddCommand(formUploadCmd())
	return form
}

func formListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded forms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				names := a.Catalog.Names()
				if viper.GetBool("json") {
					return printJSON(names)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Form", "Questions"})
				for _, name := range names {
					questions, _ := a.Catalog.Get(name)
					tw.AppendRow(table.Row{name, len(questions)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func formShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a form definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				questions, ok := a.Catalog.Get(args[0])
				if !ok {
					return fmt.Errorf("form %q not found", args[0])
				}
				return printJSONOrTable(questions)
			})
		},
	}
	return cmd
}

func formUploadCmd() *cobra.Command {
	var name, file string
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a form definition from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || file == "" {
				return fmt.Errorf("--name and --file are required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				var questions []domain.Question
				if err := json.Unmarshal(data, &questions); err != nil {
					return fmt.Errorf("invalid form file: %w", err)
				}
				if err := a.Catalog.SaveForm(name, questions); err != nil {
					return err
				}
				_ = a.Engine.Events.Append(ctx, "form.saved", name, "form", name, events.EventPayload{"questions": len(questions)})
				fmt.Printf("Form %q uploaded with %d questions\n", name, len(questions))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "form name")
	cmd.Flags().StringVar(&file, "file", "", "path to the form JSON document")
	return cmd
}

func mappingCmd() *cobra.Command {
	mapping := &cobra.Command{Use: "mapping", Short: "Manage field mappings"}
	mapping.AddCommand(mappingImportCmd())
	return mapping
}

func mappingImportCmd() *cobra.Command {
	var formID, file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Build a form from a flat field-mapping file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if formID == "" || file == "" {
				return fmt.Errorf("--form-id and --file are required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				var fields []catalog.FieldMapping
				if err := json.Unmarshal(data, &fields); err != nil {
					return fmt.Errorf("invalid mapping file: %w", err)
				}
				questions, err := catalog.BuildMapping(formID, fields)
				if err != nil {
					return err
				}
				if err := a.Catalog.SaveForm(formID, questions); err != nil {
					return err
				}
				_ = a.Engine.Events.Append(ctx, "form.saved", formID, "form", formID, events.EventPayload{"questions": len(questions)})
				fmt.Printf("Form %q created with %d questions\n", formID, len(questions))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&formID, "form-id", "", "form id")
	cmd.Flags().StringVar(&file, "file", "", "path to the mapping JSON document")
	return cmd
}

func submissionCmd() *cobra.Command {
	sub := &cobra.Command{Use: "submission", Short: "Inspect archived submissions"}
	sub.AddCommand(submissionListCmd())
	sub.AddCommand(submissionShowCmd())
	return sub
}

func submissionListCmd() *cobra.Command {
	var formName string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Repo.ListSubmissions(ctx, formName, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Form", "Created", "File"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.FormName, s.CreatedAt, s.FilePath})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&formName, "form", "", "form name filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func submissionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one archived submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Repo.GetSubmission(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Inspect the activity log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, formName string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Repo.LatestEvents(ctx, n, formName, evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&formName, "form", "", "form name filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default formflow.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	a, err := app.Bootstrap(viper.GetString("workspace"), logging.New(level))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
