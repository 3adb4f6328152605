package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"colonytrack/internal/config"
	"colonytrack/internal/logging"
	"colonytrack/internal/observability"
	"colonytrack/internal/reconcile"
	"colonytrack/internal/service"
	"colonytrack/internal/storage"
	"colonytrack/internal/storage/memory"
	pgstore "colonytrack/internal/storage/postgres"
	"colonytrack/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	mode := flag.String("mode", "watch", "Run mode: watch, scan, or stats")
	journalDir := flag.String("journal-dir", "", "Journal directory (overrides config)")
	backend := flag.String("store", "", "Store backend: sqlite, postgres, or memory (overrides config)")
	sqlitePath := flag.String("sqlite-path", "", "SQLite database file (overrides config)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides config)")
	externalURL := flag.String("external-url", "", "External site API base URL (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides config)")
	pollInterval := flag.Duration("poll-interval", 2*time.Second, "Journal directory poll interval in watch mode")

	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}
	applyOverrides(&cfg, *journalDir, *backend, *sqlitePath, *postgresDSN, *externalURL, *metricsAddr)

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		MaxAge: cfg.Log.MaxAge,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logging: %v\n", err)
		os.Exit(1)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.WithField("addr", cfg.MetricsAddr).Info("starting metrics server")
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("metrics server error")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("initiating graceful shutdown")
		cancel()

		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Warn("forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, logger, cfg, *mode, *pollInterval)

	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.WithError(err).Fatal("exiting")
	}
	logger.Info("shutdown complete")
}

// applyOverrides lets command-line flags win over config file values.
func applyOverrides(cfg *config.Config, journalDir, backend, sqlitePath, postgresDSN, externalURL, metricsAddr string) {
	if journalDir != "" {
		cfg.JournalDir = journalDir
	}
	if backend != "" {
		cfg.Store.Backend = backend
	}
	if sqlitePath != "" {
		cfg.Store.Path = sqlitePath
	}
	if postgresDSN != "" {
		cfg.Store.DSN = postgresDSN
	}
	if externalURL != "" {
		cfg.External.BaseURL = externalURL
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
}

func run(ctx context.Context, logger *logrus.Logger, cfg config.Config, mode string, pollInterval time.Duration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var store storage.SiteStore
	switch cfg.Store.Backend {
	case "memory":
		store = memory.NewSiteStore(logger)
	case "sqlite":
		st, err := sqlite.Open(cfg.Store.Path, logger)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		defer st.Close()
		store = st
	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		st, err := pgstore.NewSiteStore(ctx, pool, logger)
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		store = st
	}

	var source reconcile.Source
	if cfg.External.BaseURL != "" {
		source = reconcile.NewHTTPSource(cfg.External.BaseURL, cfg.External.Timeout)
	}

	svc := service.New(store, source, logger)

	switch mode {
	case "scan":
		return runScan(ctx, logger, svc, cfg.JournalDir)
	case "watch":
		return runWatch(ctx, logger, svc, cfg.JournalDir, pollInterval)
	case "stats":
		return runStats(ctx, svc)
	default:
		return fmt.Errorf("unknown mode '%s'", mode)
	}
}

// runScan ingests every journal file once, oldest first, then exits.
func runScan(ctx context.Context, logger *logrus.Logger, svc *service.Service, dir string) error {
	if dir == "" {
		return fmt.Errorf("journal directory is required for scan mode")
	}
	files, err := journalFiles(dir)
	if err != nil {
		return err
	}
	logger.WithField("files", len(files)).Info("scanning journal directory")

	for _, path := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		data, err := os.ReadFile(path)
		if err != nil {
			logger.WithError(err).WithField("file", path).Warn("skipping unreadable journal file")
			continue
		}
		systems := svc.IngestLines(ctx, filepath.Base(path), data)
		if len(systems) > 0 {
			logger.WithFields(logrus.Fields{"file": filepath.Base(path), "systems": systems}).
				Info("journal file applied")
		}
	}
	return runStats(ctx, svc)
}

// fileChunk is a batch of complete new lines from one journal file,
// queued between the directory watcher and the ingestion loop.
type fileChunk struct {
	name string
	data []byte
}

// runWatch tails the journal directory. The watcher goroutine polls for
// appended bytes and queues them as chunks; this loop ingests one chunk
// at a time, so store access never runs in parallel with itself.
func runWatch(ctx context.Context, logger *logrus.Logger, svc *service.Service, dir string, interval time.Duration) error {
	if dir == "" {
		return fmt.Errorf("journal directory is required for watch mode")
	}

	chunks := make(chan fileChunk, 16)
	go watchDir(ctx, logger, dir, interval, chunks)

	logger.WithField("dir", dir).Info("watching journal directory")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk := <-chunks:
			systems := svc.IngestLines(ctx, chunk.name, chunk.data)
			if len(systems) > 0 {
				logger.WithFields(logrus.Fields{"file": chunk.name, "systems": systems}).
					Info("journal changes applied")
			}
		}
	}
}

// watchDir polls the journal directory and queues appended bytes of
// changed files. A file that shrank was rotated and is re-read from the
// start. Only complete lines are queued; a partially written trailing
// line stays for the next poll.
func watchDir(ctx context.Context, logger *logrus.Logger, dir string, interval time.Duration, chunks chan<- fileChunk) {
	offsets := make(map[string]int64)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		files, err := journalFiles(dir)
		if err != nil {
			logger.WithError(err).Warn("journal poll failed")
		}
		for _, path := range files {
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			offset := offsets[path]
			if info.Size() == offset {
				continue
			}
			if info.Size() < offset {
				offset = 0
			}

			data, err := readFrom(path, offset)
			if err != nil {
				logger.WithError(err).WithField("file", path).Warn("read journal file")
				continue
			}

			idx := bytes.LastIndexByte(data, '\n')
			if idx < 0 {
				offsets[path] = offset
				continue
			}
			select {
			case chunks <- fileChunk{name: filepath.Base(path), data: data[:idx+1]}:
				offsets[path] = offset + int64(idx+1)
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}

// journalFiles lists the journal files of a directory, oldest first.
func journalFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read journal directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// runStats prints aggregate tracking numbers and exits.
func runStats(ctx context.Context, svc *service.Service) error {
	stats, err := svc.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}
	fmt.Printf("systems: %d  sites: %d  in progress: %d  completed: %d\n",
		stats.Systems, stats.Sites, stats.InProgress, stats.Completed)
	return nil
}
