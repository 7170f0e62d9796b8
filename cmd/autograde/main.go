package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/autograde/internal/auth"
	"github.com/pavelanni/autograde/internal/authoring"
	"github.com/pavelanni/autograde/internal/export"
	"github.com/pavelanni/autograde/internal/grading"
	"github.com/pavelanni/autograde/internal/handler"
	appI18n "github.com/pavelanni/autograde/internal/i18n"
	"github.com/pavelanni/autograde/internal/importer"
	"github.com/pavelanni/autograde/internal/llm"
	"github.com/pavelanni/autograde/internal/llm/prompts"
	"github.com/pavelanni/autograde/internal/metrics"
	"github.com/pavelanni/autograde/internal/model"
	"github.com/pavelanni/autograde/internal/review"
	"github.com/pavelanni/autograde/internal/session"
	"github.com/pavelanni/autograde/internal/store"
	"github.com/pavelanni/autograde/internal/validate"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "autograde",
		Short: "Timed exams with automatic grading",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), importCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `autograde --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "autograde.db", "SQLite database path")
	f.StringSliceP("exams", "e", nil, "Exam files to import and publish at startup (repeatable)")
	f.String("exam-owner", "admin", "Username that owns exams imported at startup")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty = keyword grading)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptStandard), "Short-answer grading prompt variant (strict, standard, lenient)")
	f.StringP("lang", "l", "en", "Default UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /ru)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.Duration("submit-wait", model.DefaultSubmitWait, "How long a submit request waits for grading")
	f.String("admin-password", "", "Initial admin password (or set AUTOGRADE_ADMIN_PASSWORD)")
	addLogFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an exam's submissions as JSON, CSV or XLSX",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "autograde.db", "SQLite database path")
	f.String("exam-id", "", "Exam to export (required)")
	f.StringP("format", "f", "json", "Output format (json, csv, xlsx)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("exam-id")

	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import exam files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("db", "autograde.db", "SQLite database path")
	f.String("owner", "admin", "Username of the teacher who owns the imported exams")
	f.Bool("publish", true, "Publish imported exams immediately")
	addLogFlags(f)
	return cmd
}

type flagAdder interface {
	String(name, value, usage string) *string
}

func addLogFlags(f flagAdder) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("AUTOGRADE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("autograde")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/autograde")
	v.AddConfigPath("/etc/autograde")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	val := validate.New()
	authn := auth.New(db, val)
	if err := authn.SeedAdmin(ctx, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	authorSvc := authoring.New(db, val)
	im, err := importer.New(authorSvc, db, slog.Default())
	if err != nil {
		return fmt.Errorf("create importer: %w", err)
	}
	if paths := v.GetStringSlice("exams"); len(paths) > 0 {
		if err := importFiles(ctx, db, im, v.GetString("exam-owner"), paths, true); err != nil {
			return fmt.Errorf("import exams: %w", err)
		}
	}

	short, err := shortAnswerGrader(ctx, v)
	if err != nil {
		return err
	}

	metrics.Register()
	manager := session.NewManager(db, grading.New(db, short), db)
	defer manager.Close()

	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	h, err := handler.New(handler.Deps{
		Auth:      authn,
		Authoring: authorSvc,
		Sessions:  manager,
		Review:    review.New(db, slog.Default()),
		Importer:  im,
	}, model.ServerConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		SubmitWait:    v.GetDuration("submit-wait"),
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	go cleanupAuthSessions(ctx, db, time.Hour)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"base_path", basePath,
		"llm_url", v.GetString("llm-url"),
		"prompt_variant", v.GetString("prompt-variant"),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down", "active_sessions", manager.Active())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// shortAnswerGrader returns the LLM grader when an endpoint is configured and
// the keyword grader otherwise.
func shortAnswerGrader(ctx context.Context, v *viper.Viper) (grading.ShortAnswerGrader, error) {
	url := v.GetString("llm-url")
	if url == "" {
		slog.Info("no LLM endpoint configured, grading short answers by keywords")
		return grading.KeywordGrader{}, nil
	}

	variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", variant)
		variant = string(prompts.PromptStandard)
	}
	client, err := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), variant)
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"), "variant", variant)
	return client, nil
}

func cleanupAuthSessions(ctx context.Context, db *store.Store, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := db.CleanupExpiredSessions(ctx)
			if err != nil {
				slog.Warn("cleanup expired auth sessions", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("removed expired auth sessions", "count", n)
			}
		}
	}
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	format, err := export.ParseFormat(v.GetString("format"))
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	e, err := db.ExportExam(ctx, v.GetString("exam-id"))
	if err != nil {
		return fmt.Errorf("export exam: %w", err)
	}

	outPath := v.GetString("output")
	if outPath == "" || outPath == "-" {
		return export.Write(os.Stdout, format, e)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := export.Write(f, format, e); err != nil {
		f.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	slog.Info("exported exam", "exam_id", e.ExamID, "submissions", len(e.Submissions), "path", outPath)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	im, err := importer.New(authoring.New(db, validate.New()), db, slog.Default())
	if err != nil {
		return fmt.Errorf("create importer: %w", err)
	}
	return importFiles(ctx, db, im, v.GetString("owner"), args, v.GetBool("publish"))
}

func importFiles(ctx context.Context, db *store.Store, im *importer.Importer, ownerName string, paths []string, publish bool) error {
	owner, err := db.GetUserByUsername(ctx, ownerName)
	if err != nil {
		return fmt.Errorf("exam owner %q: %w", ownerName, err)
	}
	if owner.Role == model.UserRoleStudent {
		return fmt.Errorf("exam owner %q is a student", ownerName)
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		report, err := im.Import(ctx, owner, filepath.Clean(path), data, publish)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		if !report.Skipped {
			slog.Info("imported exam file", "path", path, "exams", len(report.ExamIDs))
		}
	}
	return nil
}
