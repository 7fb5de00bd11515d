package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"calevents/internal/config"
	"calevents/internal/entry"
	"calevents/internal/flow"
	"calevents/internal/issues"
	appLog "calevents/internal/log"
	"calevents/internal/source"
	"calevents/internal/source/google"
	"calevents/internal/source/ics"
	"calevents/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values; environment variables fill in the ones
// left unset.
type flagConfig struct {
	configPath string
	listen     string
	logLevel   string
	envFile    string
	once       bool

	// configSet records an explicit --config, which wins over the env.
	configSet bool
}

func main() {
	flags, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}
	if err := run(flags); err != nil {
		appLog.Error("calevents failed", err)
		os.Exit(1)
	}
}

func run(flags flagConfig) error {
	if err := loadEnvFile(flags.envFile); err != nil {
		return err
	}
	applyEnv(&flags)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", flags.configPath, err)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	if err := conf.Validate(); err != nil {
		return err
	}

	level, ok := appLog.ParseLevel(conf.LogLevel)
	if !ok {
		appLog.Warn("unknown log level, using info", "log_level", conf.LogLevel)
		level = appLog.LevelInfo
	}
	appLog.SetLevel(level)
	appLog.Info("calevents starting", "version", version)

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", conf.Timezone, err)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"language", conf.Language,
		"refresh", conf.RefreshCron,
		"data_dir", conf.DataDir,
		"source_count", len(conf.Sources),
		"entry_count", len(conf.Entries),
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(conf.DataDir, 0o755); err != nil {
		return err
	}

	registry := buildRegistry(ctx, conf, loc)

	issueStore, err := issues.Open(filepath.Join(conf.DataDir, "issues.db"))
	if err != nil {
		return err
	}
	defer issueStore.Close()

	store := config.NewStore(flags.configPath, conf)
	entries := entry.NewManager(entry.Deps{
		Registry: registry,
		Store:    store,
		Issues:   issueStore,
		Location: loc,
		Language: conf.Language,
		Schedule: conf.RefreshCron,
	})
	defer entries.Stop()

	if err := entries.Start(ctx); err != nil {
		return err
	}

	if flags.once {
		return dumpSensors(os.Stdout, entries)
	}

	srv := web.NewServer(web.Options{
		Config:   store.Config(),
		Entries:  entries,
		Flows:    flow.NewManager(entries),
		Issues:   issueStore,
		Registry: registry,
		Location: loc,
	})
	if err := srv.Serve(ctx); err != nil {
		return err
	}
	appLog.Info("calevents exiting")
	return nil
}

// buildRegistry registers every configured source. A Google source that
// cannot be set up is skipped; entries selecting it report it as missing.
func buildRegistry(ctx context.Context, conf *config.Config, loc *time.Location) *source.Registry {
	registry := source.NewRegistry()
	fetcher := ics.NewFetcher(filepath.Join(conf.DataDir, "ics-cache"), &http.Client{Timeout: 15 * time.Second})

	for _, sc := range conf.Sources {
		switch sc.Kind {
		case config.SourceICS:
			registry.Register(ics.NewCalendar(sc.ID, sc.URL, fetcher, loc))
		case config.SourceGoogle:
			cal, err := google.NewCalendar(ctx, sc.ID, sc.CalendarID, sc.CredentialsFile, sc.TokenFile, loc)
			if err != nil {
				appLog.Error("google source setup failed", err, "source", sc.ID)
				continue
			}
			registry.Register(cal)
		}
		appLog.Debug("source registered", "source", sc.ID, "kind", string(sc.Kind))
	}
	return registry
}

type sensorDump struct {
	Entry     string         `json:"entry"`
	UniqueID  string         `json:"unique_id"`
	Name      string         `json:"name"`
	State     any            `json:"state"`
	Available bool           `json:"available"`
	Attrs     map[string]any `json:"attributes,omitempty"`
}

func dumpSensors(w io.Writer, entries *entry.Manager) error {
	out := []sensorDump{}
	for _, e := range entries.List() {
		for _, s := range e.Sensors() {
			out = append(out, sensorDump{
				Entry:     e.Title(),
				UniqueID:  s.UniqueID(),
				Name:      s.Name(),
				State:     s.State(),
				Available: s.Available(),
				Attrs:     s.Attributes(),
			})
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// loadEnvFile reads a dotenv file into the environment. A missing file is
// not an error; variables already set are kept.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// applyEnv fills in flags that were not given on the command line.
func applyEnv(flags *flagConfig) {
	if v := os.Getenv("CALEVENTS_CONFIG"); v != "" && !flags.configSet {
		flags.configPath = v
	}
	if v := os.Getenv("CALEVENTS_LISTEN"); v != "" && flags.listen == "" {
		flags.listen = v
	}
	if v := os.Getenv("CALEVENTS_LOG_LEVEL"); v != "" && flags.logLevel == "" {
		flags.logLevel = v
	}
}

func parseFlags(args []string) (flagConfig, error) {
	var cfg flagConfig

	set := flag.NewFlagSet("calevents", flag.ContinueOnError)
	set.StringVarP(&cfg.configPath, "config", "c", "/etc/calevents/config.yaml", "Path to config file")
	set.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	set.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	set.StringVar(&cfg.envFile, "env-file", ".env", "Optional dotenv file read before flags are applied")
	set.BoolVar(&cfg.once, "once", false, "Refresh every entry once, print its sensors and exit")

	if err := set.Parse(args); err != nil {
		return cfg, err
	}
	cfg.configSet = set.Changed("config")
	return cfg, nil
}
