package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/pflag"

	"github.com/crimson-sun/tipwatch/internal/clock"
	"github.com/crimson-sun/tipwatch/internal/config"
	"github.com/crimson-sun/tipwatch/internal/connector"
	"github.com/crimson-sun/tipwatch/internal/console"
	"github.com/crimson-sun/tipwatch/internal/engine"
	"github.com/crimson-sun/tipwatch/internal/i18n"
	"github.com/crimson-sun/tipwatch/internal/logging"
	"github.com/crimson-sun/tipwatch/internal/output"
	"github.com/crimson-sun/tipwatch/internal/output/async"
	"github.com/crimson-sun/tipwatch/internal/output/file"
	"github.com/crimson-sun/tipwatch/internal/output/multi"
	"github.com/crimson-sun/tipwatch/internal/output/stdout"
	"github.com/crimson-sun/tipwatch/internal/output/webhook"
	"github.com/crimson-sun/tipwatch/internal/pipeline"
	"github.com/crimson-sun/tipwatch/internal/settings"
	"github.com/crimson-sun/tipwatch/internal/subscription"

	// Register channel providers.
	_ "github.com/crimson-sun/tipwatch/internal/connector/sse"
	_ "github.com/crimson-sun/tipwatch/internal/connector/websocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		printHelp()
		return nil
	}
	if err != nil {
		return err
	}
	if cfg.ShowVersion {
		fmt.Println("tipwatch " + config.Version)
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config:\n%w", err)
	}

	// JSON logs keep stderr parseable when stdout carries rendered views.
	logging.Init(slices.Contains(cfg.OutputTargets(), "stdout"), logging.ParseLevel(cfg.LogLevel))

	ctor, err := connector.Get(cfg.Connector.Provider)
	if err != nil {
		return fmt.Errorf("%w (available: %v)", err, connector.Providers())
	}
	source := ctor(connector.Config{
		Provider: cfg.Connector.Provider,
		Endpoint: cfg.Connector.Endpoint,
		Timeout:  cfg.Connector.Timeout.Std(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openSettings(ctx, cfg.Engine.SettingsPath)
	if err != nil {
		return err
	}
	defer store.Close()

	out, err := buildOutput(cfg)
	if err != nil {
		return err
	}
	clk := clock.Real()
	buf := pipeline.NewRenderBuffer(out, cfg.Output.RenderWindow.Std(), clk)

	printer := i18n.Printer(i18n.ParseTag(cfg.Engine.Language))
	eng := engine.New(
		engine.WithSettings(store),
		engine.WithRenderer(buf),
		engine.WithPrinter(printer),
		engine.WithIOTimeout(cfg.Engine.IOTimeout.Std()),
	)
	if err := eng.Load(ctx); err != nil {
		slog.Warn("settings partially loaded", "error", err)
	}

	mgr := subscription.New(source, eng, eng,
		subscription.WithMaxErrors(cfg.Session.MaxErrors),
		subscription.WithRetryPolicy(backoff.NewConstantBackOff(cfg.Session.RetryDelay.Std())),
		subscription.WithPrinter(printer),
	)

	p := pipeline.New(eng, mgr, buf,
		pipeline.WithClock(clk),
		pipeline.WithTickInterval(cfg.Engine.TickInterval.Std()),
		pipeline.WithExitOnIdle(cfg.Session.ExitOnIdle),
		pipeline.WithShutdownTimeout(cfg.ShutdownTimeout.Std()),
	)
	defer p.Close()

	if cfg.Console {
		go func() {
			if err := console.New(p, os.Stderr).Run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("console stopped", "error", err)
			}
		}()
	}

	slog.Info("starting",
		"provider", cfg.Connector.Provider,
		"endpoint", cfg.Connector.Endpoint,
		"url", cfg.Session.URL,
		"outputs", cfg.OutputTargets(),
	)
	if err := p.Run(ctx, cfg.Session.URL); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}

func openSettings(ctx context.Context, path string) (settings.Store, error) {
	if path == "" || path == ":memory:" {
		return settings.NewMemory(), nil
	}
	store, err := settings.OpenSQLite(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}
	return store, nil
}

func buildOutput(cfg config.Config) (output.Output, error) {
	var outs []output.Output
	for _, target := range cfg.OutputTargets() {
		switch target {
		case "stdout":
			outs = append(outs, stdout.New(stdout.Mode(cfg.Output.Mode),
				stdout.WithWidth(cfg.Output.Width),
				stdout.WithPretty(cfg.Output.Pretty),
				stdout.WithClear(cfg.Output.Clear),
			))
		case "file":
			opts := []file.Option{file.WithWidth(cfg.Output.Width)}
			if cfg.Output.FileMaxSize > 0 {
				opts = append(opts, file.WithMaxSize(cfg.Output.FileMaxSize))
			}
			f, err := file.New(cfg.Output.FilePath, opts...)
			if err != nil {
				return nil, fmt.Errorf("file output: %w", err)
			}
			outs = append(outs, f)
		case "webhook":
			outs = append(outs, webhook.New(cfg.Output.WebhookURL, webhook.WithWidth(cfg.Output.Width)))
		}
	}

	var out output.Output = multi.New(outs...)
	if len(outs) == 1 {
		out = outs[0]
	}
	if cfg.Output.Async {
		out = async.New(out, async.WithDropOnFull())
	}
	return out, nil
}

func printHelp() {
	cfg := config.Default()
	fs := config.NewFlagSet(&cfg, os.Stderr)
	fmt.Fprintf(os.Stderr, "Usage: tipwatch [flags] [url]\n\nFlags:\n")
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEvery flag can also be set as %s<SECTION>_<NAME> or in a --config file.\n", config.EnvPrefix)
}
