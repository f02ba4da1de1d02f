package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/yourorg/evidencelog/internal/audit"
	"github.com/yourorg/evidencelog/internal/auth"
	"github.com/yourorg/evidencelog/internal/clock"
	"github.com/yourorg/evidencelog/internal/config"
	"github.com/yourorg/evidencelog/internal/export"
	"github.com/yourorg/evidencelog/internal/httpapi"
	"github.com/yourorg/evidencelog/internal/logbook"
	"github.com/yourorg/evidencelog/internal/report"
	"github.com/yourorg/evidencelog/internal/store"
)

func main() {
	createKey := flag.String("create-key", "", "issue an access key for this profile, print it and exit")
	keyName := flag.String("key-name", "cli", "name of the issued key")
	keyScopes := flag.String("key-scopes", auth.ScopeAll, "comma-separated scopes of the issued key")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := run(logger, *createKey, *keyName, *keyScopes); err != nil {
		logger.Error("evidence api stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, createKey, keyName, keyScopes string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	c := clock.System{}
	trail := audit.NewTrail(audit.NewStoreRecorder(s), c, logger)
	keys := auth.NewStoreKeys(s, cfg.Auth, c)

	if createKey != "" {
		_, raw, err := keys.Create(ctx, createKey, keyName, strings.Split(keyScopes, ","), nil)
		if err != nil {
			return err
		}
		fmt.Println(raw)
		return nil
	}

	book := logbook.New(s, c, trail, logbook.Options{
		MinGapDays:         cfg.MinGapDays,
		RetroThresholdDays: cfg.RetroThresholdDays,
		Location:           loc,
	}, logger)

	opts := httpapi.Options{
		ExportLimiter: auth.NewRateLimiter(cfg.ExportsPerMinute, time.Minute),
		MaxBodyBytes:  cfg.MaxBodyBytes,
	}
	exportOpts := export.Options{}
	if cfg.PDFEnabled {
		pdf := report.NewPDFRenderer(report.PDFOptions{ChromiumPath: cfg.PDFChromiumPath, Timeout: cfg.PDFTimeout})
		opts.PDF = pdf
		exportOpts.PDF = pdf
	}
	if cfg.Auth.Enabled {
		opts.Keys = keys
		opts.KeyLimiter = auth.NewRateLimiter(cfg.Auth.RatePerMinute, time.Minute)
	}
	exporter := export.New(book, c, trail, exportOpts, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.New(book, exporter, opts, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("evidence api listening", "addr", cfg.HTTPAddr, "auth", cfg.Auth.Enabled, "pdf", cfg.PDFEnabled, "db", cfg.DBPath != "")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdown)
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	var (
		s       store.Store = store.NewMemory()
		closeFn             = func() {}
	)
	if cfg.DBPath != "" {
		db, err := store.OpenSQLite(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		s = db
		closeFn = func() { _ = db.Close() }
	}
	if cfg.Passphrase != "" {
		sealed, err := store.NewSealed(s, cfg.Passphrase, store.DefaultSealParams)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		s = sealed
	}
	return s, closeFn, nil
}
