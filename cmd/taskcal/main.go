package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"taskcal/internal/buffer"
	"taskcal/internal/config"
	"taskcal/internal/dayplan"
	"taskcal/internal/directory"
	appLog "taskcal/internal/log"
	"taskcal/internal/materialize"
	"taskcal/internal/model"
	"taskcal/internal/oracle"
	"taskcal/internal/provider"
	"taskcal/internal/provider/google"
	"taskcal/internal/provider/icsfile"
	"taskcal/internal/recurrence"
	"taskcal/internal/schedule"
	"taskcal/internal/search"
	"taskcal/internal/spool"
	"taskcal/internal/store"
	"taskcal/internal/store/firestore"
	"taskcal/internal/store/memory"
	"taskcal/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       string
	debug      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	appLog.Info("taskcal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"provider", conf.Provider.Kind,
		"store", conf.Store.Kind,
		"search_enabled", conf.Search.URL != "",
		"users", len(conf.Users),
		"workers", conf.Scheduling.Workers,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := wire(ctx, conf)
	if err != nil {
		appLog.Error("failed to initialize", err)
		os.Exit(1)
	}
	defer app.close()

	if flags.once != "" {
		if err := runOnce(ctx, app.orchestrator, flags.once); err != nil {
			appLog.Error("request failed", err, "file", flags.once)
			os.Exit(1)
		}
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return web.StartServer(gctx, conf, app.orchestrator, flags.debug)
	})
	g.Go(func() error {
		return spool.New(conf.Spool.Dir, app.orchestrator).Run(gctx, conf.Spool.Cron)
	})
	if err := g.Wait(); err != nil {
		appLog.Error("taskcal stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("taskcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/taskcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.once, "once", "", "Schedule the request in this JSON file, print the result and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging and gin debug mode")

	flag.Parse()

	return cfg
}

type application struct {
	orchestrator *schedule.Orchestrator
	closers      []func() error
}

func (a *application) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			appLog.Warn("close failed", err)
		}
	}
}

// wire builds the pipeline from configuration.
func wire(ctx context.Context, conf *config.Config) (*application, error) {
	app := &application{}
	sched := conf.Scheduling

	var st store.Store
	switch conf.Store.Kind {
	case "firestore":
		fs, err := firestore.Connect(ctx, conf.Store.CredentialsFile)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, fs.Close)
		st = fs
	default:
		st = memory.New()
	}

	var prov provider.Provider
	switch conf.Provider.Kind {
	case "google":
		gp, err := google.New(ctx, conf.Provider.CredentialsFile)
		if err != nil {
			return nil, err
		}
		prov = gp
	default:
		ip, err := icsfile.New(conf.Provider.ICSDir, time.Now)
		if err != nil {
			return nil, err
		}
		prov = ip
	}

	dir, err := directory.FromConfig(conf.Users, conf.Provider.Resource)
	if err != nil {
		return nil, err
	}

	oc := oracle.New(oracle.Options{
		BaseURL:        conf.Oracle.BaseURL,
		APIKey:         conf.Oracle.APIKey,
		Model:          conf.Oracle.Model,
		EmbeddingModel: conf.Oracle.EmbeddingModel,
		Timeout:        conf.Oracle.Timeout,
	})

	deps := schedule.Deps{
		Expander:     recurrence.NewExpander(dir, sched.MaxOccurrences),
		Assigner:     dayplan.NewAssigner(oc, st),
		Materializer: materialize.New(st, dir, prov, materialize.Defaults{
			ListName:        sched.DefaultListName,
			DurationMinutes: sched.DefaultDurationMinutes,
			Priority:        sched.DefaultPriority,
			ReminderMethod:  sched.ReminderMethod,
			Resource:        conf.Provider.Resource,
		}),
		Buffers:         buffer.NewSynthesizer(prov, dir, sched.BufferTitle, time.Now, materialize.NewEventID),
		Events:          st,
		Reminders:       st,
		Preferences:     st,
		Timezones:       dir,
		DefaultTimezone: conf.Timezone,
	}
	if conf.Search.URL != "" {
		deps.Embedder = oc
		deps.Index = search.NewOpenSearch(search.Options{
			URL:        conf.Search.URL,
			Username:   conf.Search.Username,
			Password:   conf.Search.Password,
			AllIndex:   conf.Search.AllIndex,
			TrainIndex: conf.Search.TrainIndex,
		})
	} else {
		deps.Index = search.Noop{}
	}

	app.orchestrator = schedule.New(sched, deps)
	return app, nil
}

// runOnce schedules a single request file and prints the result as JSON.
func runOnce(ctx context.Context, o *schedule.Orchestrator, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var req model.AddTaskRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	res, runErr := o.Run(ctx, req)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}
