package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Version is the current tipwatch version.
var Version = "0.3.0"

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "TIPWATCH_"

// Duration is a time.Duration that decodes from "5s"-style strings in YAML,
// JSON and environment variables.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all tipwatch configuration.
type Config struct {
	Connector ConnectorConfig `yaml:"connector" json:"connector" envPrefix:"CONNECTOR_"`
	Session   SessionConfig   `yaml:"session" json:"session" envPrefix:"SESSION_"`
	Engine    EngineConfig    `yaml:"engine" json:"engine" envPrefix:"ENGINE_"`
	Output    OutputConfig    `yaml:"output" json:"output" envPrefix:"OUTPUT_"`

	LogLevel        string   `yaml:"log_level" json:"log_level" env:"LOG_LEVEL"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// Set from flags only.
	ConfigPath  string `yaml:"-" json:"-"`
	ShowVersion bool   `yaml:"-" json:"-"`
	Console     bool   `yaml:"-" json:"-"`
}

// ConnectorConfig selects the channel provider and the monitoring backend.
type ConnectorConfig struct {
	Provider string   `yaml:"provider" json:"provider" env:"PROVIDER"`
	Endpoint string   `yaml:"endpoint" json:"endpoint" env:"ENDPOINT"`
	Timeout  Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
}

// SessionConfig holds the monitored page and the reconnect policy.
type SessionConfig struct {
	URL        string   `yaml:"url" json:"url" env:"URL"`
	MaxErrors  int      `yaml:"max_errors" json:"max_errors" env:"MAX_ERRORS"`
	RetryDelay Duration `yaml:"retry_delay" json:"retry_delay" env:"RETRY_DELAY"`
	ExitOnIdle bool     `yaml:"exit_on_idle" json:"exit_on_idle" env:"EXIT_ON_IDLE"`
}

// EngineConfig holds state, language and timing settings.
type EngineConfig struct {
	SettingsPath string   `yaml:"settings_path" json:"settings_path" env:"SETTINGS_PATH"`
	Language     string   `yaml:"language" json:"language" env:"LANGUAGE"`
	TickInterval Duration `yaml:"tick_interval" json:"tick_interval" env:"TICK_INTERVAL"`
	IOTimeout    Duration `yaml:"io_timeout" json:"io_timeout" env:"IO_TIMEOUT"`
}

// OutputConfig holds output destination settings.
type OutputConfig struct {
	Targets      string   `yaml:"targets" json:"targets" env:"TARGETS"` // comma-separated: stdout, file, webhook
	Mode         string   `yaml:"mode" json:"mode" env:"MODE"`          // "text" or "json"
	Width        int      `yaml:"width" json:"width" env:"WIDTH"`
	Pretty       bool     `yaml:"pretty" json:"pretty" env:"PRETTY"`
	Clear        bool     `yaml:"clear" json:"clear" env:"CLEAR"`
	FilePath     string   `yaml:"file_path" json:"file_path" env:"FILE_PATH"`
	FileMaxSize  int64    `yaml:"file_max_size" json:"file_max_size" env:"FILE_MAX_SIZE"`
	WebhookURL   string   `yaml:"webhook_url" json:"webhook_url" env:"WEBHOOK_URL"`
	RenderWindow Duration `yaml:"render_window" json:"render_window" env:"RENDER_WINDOW"`
	Async        bool     `yaml:"async" json:"async" env:"ASYNC"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Connector: ConnectorConfig{
			Provider: "sse",
			Endpoint: "http://localhost:8000",
			Timeout:  Duration(10 * time.Second),
		},
		Session: SessionConfig{
			MaxErrors:  3,
			RetryDelay: Duration(5 * time.Second),
		},
		Engine: EngineConfig{
			SettingsPath: "tipwatch.db",
			Language:     "ja",
			TickInterval: Duration(5 * time.Second),
			IOTimeout:    Duration(5 * time.Second),
		},
		Output: OutputConfig{
			Targets:      "stdout",
			Mode:         "text",
			RenderWindow: Duration(100 * time.Millisecond),
		},
		LogLevel:        "info",
		ShutdownTimeout: Duration(10 * time.Second),
	}
}

// Load builds the configuration from defaults, the optional --config file,
// TIPWATCH_* environment variables and finally the command line flags in
// args (without the program name). Later layers win.
func Load(args []string) (Config, error) {
	var scratch Config
	fs := NewFlagSet(&scratch, io.Discard)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if scratch.ConfigPath != "" {
		if err := LoadFile(scratch.ConfigPath, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	final := NewFlagSet(&cfg, io.Discard)
	var setErr error
	fs.Visit(func(f *pflag.Flag) {
		if err := final.Set(f.Name, f.Value.String()); err != nil {
			setErr = errors.Join(setErr, err)
		}
	})
	if setErr != nil {
		return Config{}, setErr
	}
	if args := fs.Args(); len(args) > 0 && cfg.Session.URL == "" {
		cfg.Session.URL = args[0]
	}
	return cfg, nil
}

// NewFlagSet defines every command line flag bound to cfg.
func NewFlagSet(cfg *Config, output io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("tipwatch", pflag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVarP(&cfg.ConfigPath, "config", "c", "", "YAML or JSONC config file")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "print version and exit")
	fs.BoolVar(&cfg.Console, "console", false, "read commands from stdin")

	fs.StringVar(&cfg.Connector.Provider, "provider", cfg.Connector.Provider, "channel provider (sse, websocket)")
	fs.StringVar(&cfg.Connector.Endpoint, "endpoint", cfg.Connector.Endpoint, "monitoring backend base URL")
	fs.DurationVar((*time.Duration)(&cfg.Connector.Timeout), "timeout", cfg.Connector.Timeout.Std(), "backend request timeout")

	fs.StringVarP(&cfg.Session.URL, "url", "u", cfg.Session.URL, "page URL to monitor")
	fs.IntVar(&cfg.Session.MaxErrors, "max-errors", cfg.Session.MaxErrors, "consecutive channel errors before giving up")
	fs.DurationVar((*time.Duration)(&cfg.Session.RetryDelay), "retry-delay", cfg.Session.RetryDelay.Std(), "delay before reconnecting")
	fs.BoolVar(&cfg.Session.ExitOnIdle, "exit-on-idle", cfg.Session.ExitOnIdle, "exit once the session stops")

	fs.StringVar(&cfg.Engine.SettingsPath, "settings", cfg.Engine.SettingsPath, "SQLite settings file (empty for in-memory)")
	fs.StringVar(&cfg.Engine.Language, "lang", cfg.Engine.Language, "display language (ja, en)")
	fs.DurationVar((*time.Duration)(&cfg.Engine.TickInterval), "tick", cfg.Engine.TickInterval.Std(), "liveness tick interval")
	fs.DurationVar((*time.Duration)(&cfg.Engine.IOTimeout), "io-timeout", cfg.Engine.IOTimeout.Std(), "settings write and render timeout")

	fs.StringVarP(&cfg.Output.Targets, "output", "o", cfg.Output.Targets, "comma-separated outputs (stdout, file, webhook)")
	fs.StringVar(&cfg.Output.Mode, "mode", cfg.Output.Mode, "stdout mode (text, json)")
	fs.IntVar(&cfg.Output.Width, "width", cfg.Output.Width, "truncate texts to this display width (0 disables)")
	fs.BoolVar(&cfg.Output.Pretty, "pretty", cfg.Output.Pretty, "indent JSON output")
	fs.BoolVar(&cfg.Output.Clear, "clear", cfg.Output.Clear, "clear the terminal before each text render")
	fs.StringVar(&cfg.Output.FilePath, "file", cfg.Output.FilePath, "NDJSON snapshot file")
	fs.Int64Var(&cfg.Output.FileMaxSize, "file-max-size", cfg.Output.FileMaxSize, "rotate the snapshot file at this size (0 disables)")
	fs.StringVar(&cfg.Output.WebhookURL, "webhook", cfg.Output.WebhookURL, "webhook URL receiving view JSON")
	fs.DurationVar((*time.Duration)(&cfg.Output.RenderWindow), "render-window", cfg.Output.RenderWindow.Std(), "coalesce renders within this window")
	fs.BoolVar(&cfg.Output.Async, "async", cfg.Output.Async, "render on a background goroutine")

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.DurationVar((*time.Duration)(&cfg.ShutdownTimeout), "shutdown-timeout", cfg.ShutdownTimeout.Std(), "bound on the final stop and persist")
	return fs
}

// LoadFile overlays the file at path onto cfg. Files ending in .json or
// .jsonc are read as JSON with comments; anything else as YAML.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// OutputTargets returns the configured output names, trimmed and lowercased.
func (c Config) OutputTargets() []string {
	var out []string
	for _, t := range strings.Split(c.Output.Targets, ",") {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks the configuration for errors. Returns all problems joined.
func (c Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.Connector.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("endpoint must be an absolute URL, got %q", c.Connector.Endpoint))
	}
	if c.Connector.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must be non-negative, got %s", c.Connector.Timeout.Std()))
	}
	if c.Session.MaxErrors < 1 {
		errs = append(errs, fmt.Errorf("max errors must be at least 1, got %d", c.Session.MaxErrors))
	}
	if c.Session.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry delay must be non-negative, got %s", c.Session.RetryDelay.Std()))
	}
	switch c.Engine.Language {
	case "ja", "en":
	default:
		errs = append(errs, fmt.Errorf("language must be ja or en, got %q", c.Engine.Language))
	}
	if c.Engine.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick interval must be positive, got %s", c.Engine.TickInterval.Std()))
	}
	if c.Output.RenderWindow < 0 {
		errs = append(errs, fmt.Errorf("render window must be non-negative, got %s", c.Output.RenderWindow.Std()))
	}
	if c.Output.Width < 0 {
		errs = append(errs, fmt.Errorf("width must be non-negative, got %d", c.Output.Width))
	}
	switch c.Output.Mode {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("output mode must be text or json, got %q", c.Output.Mode))
	}

	targets := c.OutputTargets()
	if len(targets) == 0 {
		errs = append(errs, errors.New("at least one output target is required"))
	}
	for _, t := range targets {
		switch t {
		case "stdout":
		case "file":
			if c.Output.FilePath == "" {
				errs = append(errs, errors.New("file output requires TIPWATCH_OUTPUT_FILE_PATH or --file"))
			}
		case "webhook":
			if c.Output.WebhookURL == "" {
				errs = append(errs, errors.New("webhook output requires TIPWATCH_OUTPUT_WEBHOOK_URL or --webhook"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown output target %q", t))
		}
	}

	return errors.Join(errs...)
}
