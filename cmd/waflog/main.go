package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/crimson-sun/waflog/internal/config"
	"github.com/crimson-sun/waflog/internal/generator"
	"github.com/crimson-sun/waflog/internal/logging"
	"github.com/crimson-sun/waflog/internal/server"
	"github.com/crimson-sun/waflog/internal/sink"
	"github.com/crimson-sun/waflog/internal/sink/async"
	"github.com/crimson-sun/waflog/internal/sink/multi"
	"github.com/crimson-sun/waflog/internal/store"

	// Register sink implementations.
	_ "github.com/crimson-sun/waflog/internal/sink/amqp"
	_ "github.com/crimson-sun/waflog/internal/sink/file"
	_ "github.com/crimson-sun/waflog/internal/sink/influx"
	_ "github.com/crimson-sun/waflog/internal/sink/stdout"
	_ "github.com/crimson-sun/waflog/internal/sink/webhook"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("waflog failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	if f.showVersion {
		fmt.Println("waflog " + config.Version)
		return nil
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	f.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	logging.Init(cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))

	format, _ := store.ParseFormat(cfg.Store.Format)
	opts := []store.Option{store.WithFormat(format)}
	if len(cfg.Sinks) > 0 {
		snk, err := buildSinks(cfg)
		if err != nil {
			return err
		}
		opts = append(opts, store.WithSink(snk))
	}

	st, err := store.Open(cfg.Store.Path, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("closing store", "error", err)
		}
	}()

	gen := generator.New(generator.WithSeed(cfg.Generator.Seed))
	srv := &http.Server{
		Addr:         net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		Handler:      server.New(st, gen, server.WithCORSOrigins(cfg.Server.CORSOrigins)).Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if cfg.Generator.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := generator.Run(ctx, gen, st, cfg.Generator.Interval); err != nil {
				slog.Error("generator exited", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("waflog listening", "addr", srv.Addr, "version", config.Version,
			"store", cfg.Store.Path, "format", format, "generator", cfg.Generator.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serveErr:
		stop()
		wg.Wait()
		return fmt.Errorf("server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown incomplete", "error", err)
	}
	wg.Wait()
	return nil
}

// buildSinks constructs the configured sinks behind one async buffer so slow
// destinations never hold the store's writer lock for long. Each sink only
// receives the entries its classes and blocked_only settings accept.
func buildSinks(cfg config.Config) (sink.Sink, error) {
	routes := make([]multi.Route, len(cfg.Sinks))
	for i, c := range cfg.Sinks {
		accept, err := sink.FilterFromConfig(c)
		if err != nil {
			return nil, fmt.Errorf("sink %q: %w", c.Name, err)
		}
		routes[i] = multi.Route{Name: c.Name, Accept: accept}
	}
	sinks, err := sink.Build(cfg.Sinks)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(sinks))
	for i, s := range sinks {
		routes[i].Sink = s
		names[i] = routes[i].Name
	}
	slog.Info("sinks enabled", "sinks", names)

	return async.New(multi.NewRouted(routes...),
		async.WithBufferSize(cfg.SinkBuffer),
		async.WithDropOnFull(),
		async.WithDrainTimeout(cfg.ShutdownTimeout),
		async.WithOnError(func(err error) {
			slog.Warn("sink delivery failed", "error", err)
		}),
	), nil
}
