package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/docshelf/backend/internal/api"
	"github.com/docshelf/backend/internal/auth"
	"github.com/docshelf/backend/internal/config"
	"github.com/docshelf/backend/internal/events"
	"github.com/docshelf/backend/internal/logging"
	"github.com/docshelf/backend/internal/metrics"
	"github.com/docshelf/backend/internal/session"
	"github.com/docshelf/backend/internal/storage"
	"github.com/docshelf/backend/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to docshelf.config (default: next to the executable)")
	flag.Parse()

	if *configPath == "" {
		exePath, err := os.Executable()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(exePath), "docshelf.config")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.Advanced.LogLevel,
		Format: cfg.Advanced.LogFormat,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if err := run(cfg, *configPath); err != nil {
		logging.Error("server stopped", zap.Error(err))
		logging.Sync()
		os.Exit(1)
	}
}

func newBlobStore(ctx context.Context, cfg *config.AppConfig) (storage.BlobStore, error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case "", "local":
		return storage.NewLocalBlobStore(cfg.Storage.DocumentsDirectory)
	case "s3":
		s3cfg := cfg.Storage.S3
		return storage.NewS3BlobStore(ctx, storage.S3Config{
			Endpoint:  s3cfg.Endpoint,
			Bucket:    s3cfg.Bucket,
			Region:    s3cfg.Region,
			AccessKey: s3cfg.AccessKey,
			SecretKey: s3cfg.SecretKey,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func run(cfg *config.AppConfig, configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing blob storage: %w", err)
	}
	docStore, err := storage.NewLocalStore(
		filepath.Join(cfg.Storage.DataDirectory, "metadata"),
		blobs,
		splitList(cfg.Upload.AllowedExtensions),
	)
	if err != nil {
		return fmt.Errorf("initializing document storage: %w", err)
	}
	users, err := storage.NewYAMLUserStore(cfg.Storage.UsersFile)
	if err != nil {
		return fmt.Errorf("initializing user storage: %w", err)
	}

	sessionMgr := session.NewManager()
	tokens := auth.New(cfg.Security.JWTSecretKey, cfg.TokenTTL(), sessionMgr)
	broadcaster := events.NewBroadcaster()

	// Background session cleanup
	go func() {
		ticker := time.NewTicker(cfg.SessionCleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sessionMgr.CleanupOldSessions()
			}
		}
	}()

	embeddedMode := web.HasEmbeddedFiles()
	origins := splitList(cfg.Server.AllowOrigins)
	api.ExposeErrorDetails = cfg.Advanced.LogLevel == "debug"

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = api.ErrorHandler

	e.Use(logging.Middleware(func(c echo.Context) bool {
		if !cfg.Advanced.EnableRequestLogging {
			return true
		}
		path := c.Request().URL.Path
		return path == "/api/health" || path == "/metrics"
	}))

	if cfg.Advanced.EnableMetrics {
		e.Use(metrics.Middleware())
	}

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 * 1024,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logging.FromEcho(c).Error("panic recovered", zap.Error(err), zap.ByteString("stack", stack))
			return err
		},
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/upload") ||
				strings.HasSuffix(path, "/ws") ||
				strings.HasPrefix(path, "/ui/api/documents/") && c.Request().Method == http.MethodGet
		},
		ErrorMessage: "Request timeout",
	}))

	if cfg.Advanced.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Advanced.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return strings.HasSuffix(c.Request().URL.Path, "/ws")
			},
		}))
	}

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	var allowOrigin func(r *http.Request) bool
	if cfg.Server.EnableCORS {
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     origins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			AllowCredentials: origins[0] != "*",
		}))
		allowOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			for _, o := range origins {
				if o == "*" || o == origin {
					return true
				}
			}
			return origin == ""
		}
	}

	deps := &api.Dependencies{
		Store:    docStore,
		Users:    users,
		Sessions: sessionMgr,
		Auth:     tokens,
		Events:   broadcaster,
		AuthOptions: api.AuthOptions{
			CreateFirstUser:  cfg.Security.CreateFirstUser,
			RegistrationOpen: cfg.Security.RegistrationOpen,
			SecureCookie:     cfg.Security.HTTPSCookie,
		},
		AllowDeletion: cfg.Security.AllowDocumentDeletion,
		AllowOrigin:   allowOrigin,
		UploadTimeout: cfg.UploadTimeout(),
		Backend:       blobs.Type(),
		Version:       Version,
	}
	api.RegisterRoutes(e, api.NewHandlers(deps), deps)

	if cfg.Advanced.EnableMetrics {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logging.Warn("failed to register static routes", zap.Error(err))
		}
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	logging.Info("docshelf server starting",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("config", configPath),
		zap.String("listen", cfg.GetServerAddr()),
		zap.String("data_dir", cfg.Storage.DataDirectory),
		zap.String("storage", blobs.Type()),
		zap.Bool("embedded_ui", embeddedMode),
		zap.Bool("create_first_user", cfg.Security.CreateFirstUser))

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.StartServer(s)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
