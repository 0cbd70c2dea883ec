// Package commands wires the recall CLI.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"recall/internal/calendar"
	"recall/internal/config"
	"recall/internal/daycache"
	appLog "recall/internal/log"
	"recall/internal/model"
	"recall/internal/refresh"
	"recall/internal/store"
	"recall/internal/web"
)

// Version is stamped at build time with -ldflags.
var Version = "0.1.0-dev"

type rootOptions struct {
	configPath string
	logLevel   string
	ephemeral  bool
}

func New() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "recall",
		Short:         "Lay out a day of recalled events on an hourly grid.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "./recall.yaml", "Path to config file (created on first run)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	cmd.PersistentFlags().BoolVar(&opts.ephemeral, "ephemeral", false, "Keep events in memory only")

	addCommands(cmd, opts)
	return cmd
}

func addCommands(topLevel *cobra.Command, opts *rootOptions) {
	addServe(topLevel, opts)
	addLayout(topLevel, opts)
	addAdd(topLevel, opts)
	addImport(topLevel, opts)
	addExport(topLevel, opts)
	addRefresh(topLevel, opts)
	addPurge(topLevel, opts)
	addCapture(topLevel, opts)
	addVersion(topLevel)
}

// app is the wired object graph shared by subcommands.
type app struct {
	cfg     *config.Config
	repo    store.Repository
	cache   *daycache.Cache
	metrics *web.Metrics
	svc     *calendar.Service
}

// loadConfig loads the config file and applies the log level.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", o.configPath, err)
	}

	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	lvl, err := appLog.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	appLog.SetLevel(lvl)
	return cfg, nil
}

func (o *rootOptions) load(ctx context.Context) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	var repo store.Repository
	if o.ephemeral {
		repo = store.NewMemory()
	} else {
		disk, err := store.OpenDisk(cfg.EventsDir())
		if err != nil {
			return nil, err
		}
		repo = disk
	}

	cache, err := daycache.New(cfg.Location(), cfg.CacheDays)
	if err != nil {
		return nil, err
	}
	metrics, err := web.NewMetrics(cache)
	if err != nil {
		return nil, err
	}
	svc := calendar.NewService(repo, cache, metrics)
	if err := svc.Reload(ctx); err != nil {
		return nil, err
	}

	appLog.Debug("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"data_dir", cfg.DataDir,
		"scale", cfg.Scale,
		"rounding", cfg.Rounding,
		"ics_count", len(cfg.ICS),
		"ephemeral", o.ephemeral,
	)
	return &app{cfg: cfg, repo: repo, cache: cache, metrics: metrics, svc: svc}, nil
}

func (a *app) scheduler() *refresh.Scheduler {
	return refresh.New(refresh.Config{
		Schedule:     a.cfg.RefreshCron,
		Sources:      a.cfg.Sources(),
		Location:     a.cfg.Location(),
		BackfillDays: a.cfg.BackfillDays,
		HorizonDays:  a.cfg.HorizonDays,
		CacheDir:     a.cfg.CacheDir(),
	}, a.svc)
}

// dayFlag resolves a --date value; empty and "today" mean the current day.
func (a *app) dayFlag(raw string) (model.Day, error) {
	if raw == "" || raw == "today" {
		return model.DayOf(time.Now(), a.cfg.Location()), nil
	}
	day, err := model.ParseDay(raw)
	if err != nil {
		return model.Day{}, fmt.Errorf("--date: %w", err)
	}
	return day, nil
}
