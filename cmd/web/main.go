package main

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/coocood/freecache"
	"github.com/myrjola/planfit/internal/envstruct"
	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/flightrecorder"
	"github.com/myrjola/planfit/internal/logging"
	"github.com/myrjola/planfit/internal/metrics"
	"github.com/myrjola/planfit/internal/sqlite"
	"github.com/myrjola/planfit/internal/tracker"
	"github.com/myrjola/planfit/internal/webauthnhandler"
	"github.com/yuin/goldmark"
	"gopkg.in/natefinch/lumberjack.v2"
)

type application struct {
	logger          *slog.Logger
	webAuthnHandler *webauthnhandler.WebAuthnHandler
	sessionManager  *scs.SessionManager
	templateFS      fs.FS
	tracker         *tracker.Service
	metrics         *metrics.Metrics
	markdown        goldmark.Markdown
	markdownCache   *freecache.Cache
	exportDir       string
	// flightRecorder is nil unless PLANFIT_TRACES_DIR is set.
	flightRecorder *flightrecorder.Recorder
}

type config struct {
	// Addr is the address to listen on. It's possible to choose the address dynamically with localhost:0.
	Addr string `env:"PLANFIT_ADDR" envDefault:"localhost:8081"`
	// FQDN is the fully qualified domain name of the server used for WebAuthn Relying Party configuration.
	FQDN string `env:"PLANFIT_FQDN" envDefault:"localhost"`
	// FlyAppName is the name of the Fly application. It's used to override the FQDN.
	FlyAppName string `env:"FLY_APP_NAME" envDefault:""`
	// SqliteURL is the URL to the SQLite database. You can use ":memory:" for an ethereal in-memory database.
	SqliteURL string `env:"PLANFIT_SQLITE_URL" envDefault:"./planfit.sqlite3"`
	// TemplatePath is the path to the directory containing the HTML templates.
	TemplatePath string `env:"PLANFIT_TEMPLATE_PATH" envDefault:""`
	// MetricsAddr is the optional address of the Prometheus /metrics listener.
	MetricsAddr string `env:"PLANFIT_METRICS_ADDR" envDefault:""`
	// LogFile additionally writes logs to a size rotated file.
	LogFile string `env:"PLANFIT_LOG_FILE" envDefault:""`
	// OpenAIAPIKey enables generated exercise descriptions.
	OpenAIAPIKey string `env:"OPENAI_API_KEY" envDefault:""`
	// ExportDir holds the temporary personal data exports. Empty means the OS temp directory.
	ExportDir string `env:"PLANFIT_EXPORT_DIR" envDefault:""`
	// SessionLifetime is how long a sign-in lasts.
	SessionLifetime time.Duration `env:"PLANFIT_SESSION_LIFETIME" envDefault:"12h"`
	// TracesDir enables the flight recorder, which dumps an execution trace there when a request times out.
	TracesDir string `env:"PLANFIT_TRACES_DIR" envDefault:""`
}

// markdownCacheSize is the freecache size in bytes for rendered exercise descriptions.
const markdownCacheSize = 4 * 1024 * 1024

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	var (
		cancel context.CancelFunc
		err    error
	)

	ctx, cancel = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err = envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config")
	}

	var htmlTemplatePath string
	if htmlTemplatePath, err = resolveAndVerifyTemplatePath(cfg.TemplatePath); err != nil {
		return errors.Wrap(err, "resolve template path")
	}

	db, err := sqlite.NewDatabase(ctx, cfg.SqliteURL, logger)
	if err != nil {
		return errors.Wrap(err, "open db", slog.String("url", cfg.SqliteURL))
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "failed to close db", errors.SlogError(closeErr))
		}
	}()
	logger.LogAttrs(ctx, slog.LevelInfo, "connected to db")

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		if err = m.Launch(ctx, cfg.MetricsAddr, logger); err != nil {
			return errors.Wrap(err, "launch metrics server", slog.String("metrics_addr", cfg.MetricsAddr))
		}
	}

	sessionManager := initializeSessionManager(db, cfg.SessionLifetime)

	fqdn := cfg.FQDN
	if cfg.FlyAppName != "" {
		fqdn = cfg.FlyAppName + ".fly.dev"
	}
	var webAuthnHandler *webauthnhandler.WebAuthnHandler
	if webAuthnHandler, err = webauthnhandler.New(cfg.Addr, fqdn, logger, sessionManager, db); err != nil {
		return errors.Wrap(err, "new webauthn handler")
	}

	exportDir := cfg.ExportDir
	if exportDir == "" {
		exportDir = os.TempDir()
	}

	var recorder *flightrecorder.Recorder
	if cfg.TracesDir != "" {
		if recorder, err = flightrecorder.New(logger, flightrecorder.Config{Dir: cfg.TracesDir}); err != nil {
			return errors.Wrap(err, "new flight recorder")
		}
		if err = recorder.Start(ctx); err != nil {
			return errors.Wrap(err, "start flight recorder")
		}
		defer recorder.Stop()
	}

	app := application{
		logger:          logger,
		webAuthnHandler: webAuthnHandler,
		sessionManager:  sessionManager,
		templateFS:      os.DirFS(htmlTemplatePath),
		tracker:         tracker.NewService(db, logger, cfg.OpenAIAPIKey),
		metrics:         m,
		markdown:        goldmark.New(),
		markdownCache:   freecache.NewCache(markdownCacheSize),
		exportDir:       exportDir,
		flightRecorder:  recorder,
	}

	var handler http.Handler
	if handler, err = app.routes(); err != nil {
		return errors.Wrap(err, "routes")
	}
	if err = app.configureAndStartServer(ctx, cfg.Addr, handler); err != nil {
		return errors.Wrap(err, "start server")
	}
	return nil
}

func initializeSessionManager(dbs *sqlite.Database, lifetime time.Duration) *scs.SessionManager {
	sessionManager := scs.New()
	sessionManager.Store = sqlite3store.NewWithCleanupInterval(dbs.ReadWrite, 24*time.Hour) //nolint:mnd // day
	sessionManager.Lifetime = lifetime
	sessionManager.Cookie.Persist = true
	sessionManager.Cookie.Secure = true
	sessionManager.Cookie.HttpOnly = true
	sessionManager.Cookie.SameSite = http.SameSiteStrictMode
	return sessionManager
}

// logSink returns stdout, teed into a rotated log file when logFile is set.
func logSink(logFile string) io.Writer {
	if logFile == "" {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{ //nolint:exhaustruct // defaults for the rest.
		Filename:   logFile,
		MaxSize:    50, //nolint:mnd // megabytes
		MaxBackups: 5,  //nolint:mnd // files
		MaxAge:     28, //nolint:mnd // days
		Compress:   true,
	})
}

func main() {
	ctx := context.Background()
	logFile, _ := os.LookupEnv("PLANFIT_LOG_FILE")
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(logSink(logFile), &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure starting application", errors.SlogError(err))
		os.Exit(1)
	}
}
