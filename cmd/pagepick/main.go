package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	cfgpkg "github.com/anatolykoptev/go-pagepick/internal/config"
	logpkg "github.com/anatolykoptev/go-pagepick/internal/logger"
	"github.com/anatolykoptev/go-pagepick/internal/metrics"
	"github.com/anatolykoptev/go-pagepick/internal/server"
)

func main() {
	app := &cli.App{
		Name:  "pagepick",
		Usage: "select, group and lay out product page images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				EnvVars: []string{"PAGEPICK_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP selection service",
				Action: serveAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "listen address (overrides config)"},
				},
			},
			{
				Name:      "select",
				Usage:     "run one selection request from a JSON file",
				Action:    selectAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Usage: "request JSON file (- for stdin)", Value: "-"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "report JSON file (default stdout)"},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "pagepick: %v\n", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load(c.String("config"))
	if err != nil {
		return cfgpkg.Config{}, err
	}
	if err := logpkg.Init(logpkg.Options{
		Level:      cfg.Logging.Level,
		Pretty:     cfg.Logging.Pretty,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
		Stdout:     os.Stderr,
	}); err != nil {
		return cfgpkg.Config{}, err
	}
	return cfg, nil
}

func serveAction(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	defer logpkg.Close()
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	ctx := c.Context
	pp, closeDeps, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDeps()

	metrics.Init()
	metrics.Instrument(pp)

	api := server.New(pp, server.Options{Defaults: cfg.Selection.Options(), MaxBodyBytes: cfg.Server.MaxBodyBytes})
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("HTTP server listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-stop:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("shutdown complete")
	return nil
}

func selectAction(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	defer logpkg.Close()

	var in io.Reader = os.Stdin
	if p := c.String("in"); p != "-" {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("open request: %w", err)
		}
		defer f.Close()
		in = f
	}
	req, err := server.DecodeRequest(in, cfg.Selection.Options())
	if err != nil {
		return err
	}

	ctx := c.Context
	pp, closeDeps, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDeps()

	start := time.Now()
	report, err := pp.Select(ctx, req)
	if err != nil {
		return err
	}
	log.Info().Dur("duration", time.Since(start)).Int("diagnostics", len(report.Diagnostics)).Msg("selection done")

	var out io.Writer = os.Stdout
	if p := c.String("out"); p != "" {
		f, err := os.Create(p)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
