// Command lamoeditor runs the editor core.
//
// Usage:
//
//	lamoeditor [command] [flags]
//
// Commands:
//
//	serve     Run the local API for the UI shell (default)
//	render    Export a saved project
//	plan      Print the render plan of a project
//	edl       Write an edit decision list for a project
//	doctor    Show ffmpeg capabilities
//	version   Print version information
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lamoeditor/lamoeditor/internal/api"
	"github.com/lamoeditor/lamoeditor/internal/catalog"
	"github.com/lamoeditor/lamoeditor/internal/config"
	"github.com/lamoeditor/lamoeditor/internal/db"
	"github.com/lamoeditor/lamoeditor/internal/export"
	"github.com/lamoeditor/lamoeditor/internal/ffmpeg"
	"github.com/lamoeditor/lamoeditor/internal/logging"
	"github.com/lamoeditor/lamoeditor/internal/session"
)

func main() {
	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "render":
		err = runRender(args)
	case "plan":
		err = runPlan(args)
	case "edl":
		err = runEDL(args)
	case "doctor":
		err = runDoctor(args)
	case "version":
		fmt.Printf("lamoeditor v%s (commit: %s, built: %s)\n", config.Version, config.GitCommit, config.BuildTime)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`lamoeditor: timeline editor core

Usage:
  lamoeditor [command] [flags]

Commands:
  serve      Run the local API for the UI shell (default)
  render     Export a saved project
  plan       Print the render plan of a project
  edl        Write an edit decision list for a project
  doctor     Show ffmpeg capabilities
  version    Print version information

Run 'lamoeditor <command> -h' for details on each command.`)
}

// app is the wired editor: storage, media engine, catalog, exports and the
// editing session on top.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	database *db.DB
	repo     *catalog.SQLiteRepository
	sources  *catalog.Service
	engine   *ffmpeg.Engine
	doctor   *ffmpeg.CachedDoctor
	exports  *export.Orchestrator
	session  *session.Session
}

func ffmpegConfig(cfg config.Config, logger *slog.Logger) ffmpeg.Config {
	return ffmpeg.Config{
		FFmpegPath:    cfg.FFmpegPath(),
		FFprobePath:   cfg.FFprobePath(),
		WorkDir:       cfg.WorkDir(),
		ProbeTimeout:  cfg.ProbeTimeout(),
		DoctorTimeout: cfg.DoctorTimeout(),
		Logger:        logger,
	}
}

func newApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	for _, dir := range []string{cfg.DataDir(), cfg.WorkDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	ffCfg := ffmpegConfig(cfg, logger)
	prober, err := ffmpeg.NewProber(ffCfg)
	if err != nil {
		return nil, fmt.Errorf("ffprobe unavailable (set LAMO_FFPROBE): %w", err)
	}
	eng, err := ffmpeg.NewEngine(ffCfg, prober)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg unavailable (set LAMO_FFMPEG): %w", err)
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	repo := catalog.NewRepository(database.Conn())
	sources := catalog.NewService(repo, prober, logger)
	exports := export.NewOrchestrator(eng, repo, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		database: database,
		repo:     repo,
		sources:  sources,
		engine:   eng,
		doctor:   ffmpeg.NewCachedDoctor(eng, logger).WithTTL(cfg.DoctorTTL()),
		exports:  exports,
		session: session.New(sources, exports, session.Options{
			HistoryLimit: cfg.HistoryLimit(),
			Export: session.ExportDefaults{
				Format:  cfg.ExportFormat(),
				Bitrate: cfg.ExportBitrate(),
				Threads: cfg.ExportThreads(),
			},
			Logger: logger,
		}),
	}, nil
}

// Close stops a running export and releases the database.
func (a *app) Close(ctx context.Context) {
	if err := a.exports.Shutdown(ctx); err != nil {
		a.logger.Warn("export did not stop in time", "error", err)
	}
	a.database.Close()
}

func runServe(args []string) error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting lamoeditor", "version", config.Version, "data_dir", logging.SanitizePath(cfg.DataDir()))

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	authToken, err := ensureAuthToken(a.repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	ffmpegVersion := "unknown"
	if caps, err := a.doctor.Refresh(context.Background()); err != nil {
		logger.Warn("initial ffmpeg probe failed", "error", err)
	} else {
		ffmpegVersion = caps.Version
		if len(caps.Missing) > 0 {
			logger.Warn("ffmpeg lacks encoders for some export formats", "missing", caps.Missing)
		}
	}

	fmt.Println(banner("LAMOEDITOR v"+config.Version,
		field("API URL", fmt.Sprintf("http://127.0.0.1:%d", cfg.Port())),
		field("Auth Token", authToken),
		field("Data Dir", cfg.DataDir()),
		field("FFmpeg", ffmpegVersion),
	))

	apiServer := api.NewServer(api.ServerConfig{
		Port:       cfg.Port(),
		Session:    a.session,
		Exports:    a.exports,
		Repository: a.repo,
		Catalog:    a.sources,
		Doctor:     a.doctor,
		Logger:     logger,
		StartTime:  startTime,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("HTTP server error", "error", serveErr)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	a.Close(shutdownCtx)

	logger.Info("shutdown complete")
	return serveErr
}

func ensureAuthToken(repo catalog.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}

	return token, nil
}
