package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/yegors/landing-tracker/internal/api"
	"github.com/yegors/landing-tracker/internal/config"
	"github.com/yegors/landing-tracker/internal/delivery"
	"github.com/yegors/landing-tracker/internal/feeds"
	"github.com/yegors/landing-tracker/internal/fusion"
	"github.com/yegors/landing-tracker/internal/landing"
	"github.com/yegors/landing-tracker/internal/runner"
	"github.com/yegors/landing-tracker/internal/sequencer"
	"github.com/yegors/landing-tracker/internal/spatial"
	"github.com/yegors/landing-tracker/internal/storage"
	"github.com/yegors/landing-tracker/internal/tracking"
	"github.com/yegors/landing-tracker/internal/websocket"
	"github.com/yegors/landing-tracker/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

// component is one selectable part of the pipeline with its period
type component struct {
	task     runner.Task
	interval time.Duration
}

func main() {
	configPath := pflag.StringP("config", "c", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	selected := pflag.StringSlice("components", config.Components, "Components to run")
	sequential := pflag.Bool("sequential", false, "Run components one at a time through the sequencer")
	pflag.Parse()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	for _, name := range *selected {
		if !slices.Contains(config.Components, name) {
			fmt.Fprintf(os.Stderr, "Unknown component %q (known: %s)\n", name, strings.Join(config.Components, ", "))
			os.Exit(1)
		}
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting landing tracker",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
		logger.Strings("components", *selected))

	if err := run(cfg, *selected, *sequential, log); err != nil {
		log.Error("Landing tracker stopped with error", logger.Error(err))
		log.Sync()
		os.Exit(1)
	}
	log.Info("Landing tracker stopped")
}

func run(cfg *config.Config, selected []string, sequential bool, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(storage.Options{
		Driver:      cfg.Storage.Driver,
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
		BusyTimeout: time.Duration(cfg.Storage.BusyTimeoutMs) * time.Millisecond,
		BusyBackoff: config.Seconds(cfg.Storage.BusyBackoffSecs),
	}, log)
	if err != nil {
		return err
	}
	defer store.Close()

	airports, err := loadAirports(ctx, cfg.Airports, log)
	if err != nil {
		return err
	}
	log.Info("Airports loaded", logger.Int("count", len(airports)))

	confidence, err := landing.LoadConfidenceTable(cfg.Fusion.ConfidencePath)
	if err != nil {
		return err
	}

	wants := func(name string) bool { return slices.Contains(selected, name) }

	var hub *websocket.Server
	if wants("api") {
		hub = websocket.NewServer(log)
	}

	components, err := buildComponents(cfg, wants, store, airports, confidence, hub, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	var services []*runner.Service
	if cfg.Sequencer.Enabled || sequential {
		seq, err := buildSequencer(cfg.Sequencer, components, log)
		if err != nil {
			return err
		}
		g.Go(func() error { return seq.Run(gctx) })
	} else {
		for _, name := range config.Components {
			c, ok := components[name]
			if !ok {
				continue
			}
			svc := runner.NewService(c.task, c.interval, log)
			services = append(services, svc)
			g.Go(func() error { return svc.Run(gctx) })
		}
	}

	if hub != nil {
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
		statuses := func() []runner.Status {
			out := make([]runner.Status, 0, len(services))
			for _, svc := range services {
				out = append(out, svc.Status())
			}
			return out
		}
		handler := api.NewHandler(store, statuses, hub.ClientCount, log)
		router := api.NewRouter(handler, hub.HandleConnection, cfg.Server.CORSAllowedOrigins, log)
		g.Go(func() error { return serve(gctx, cfg.Server, router.Routes(), log) })
	}

	return g.Wait()
}

func loadAirports(ctx context.Context, cfg config.AirportsConfig, log *logger.Logger) (landing.Airports, error) {
	var (
		list []landing.Airport
		err  error
	)
	if cfg.CSVPath != "" {
		list, err = config.LoadAirportsCSV(cfg.CSVPath, cfg.Codes)
	} else {
		auth := config.AuthConfig{Type: "basic", Username: cfg.Username, Password: cfg.Password}
		if cfg.Username == "" {
			auth.Type = "none"
		}
		client := feeds.NewClient(30*time.Second, 0, auth, log.Named("airports"))
		list, err = feeds.FetchAirports(ctx, client, cfg.URL)
	}
	if err != nil {
		return nil, err
	}
	return landing.NewAirports(list), nil
}

func buildComponents(cfg *config.Config, wants func(string) bool, store *storage.Store, airports landing.Airports,
	confidence landing.ConfidenceTable, hub *websocket.Server, log *logger.Logger) (map[string]component, error) {
	components := make(map[string]component)

	if wants("tracker") {
		tracker := tracking.NewTracker(tracking.Config{
			Inactivity:       config.Seconds(cfg.Tracker.InactivitySecs),
			Deletion:         config.Seconds(cfg.Tracker.DeletionSecs),
			FlightSeparation: config.Minutes(float64(cfg.Tracker.FlightSeparationMins)),
			GroundedSpeed:    cfg.Tracker.GroundedSpeedMs,
			History:          config.Hours(float64(cfg.Tracker.HistoryHours)),
		}, store, log)
		components["tracker"] = component{tracker, config.Seconds(cfg.Tracker.CycleSecs)}
	}

	if wants("zone") {
		matcher := spatial.NewMatcher(spatial.MatcherConfig{
			MinBase:   cfg.Zone.MinBase,
			Weight:    cfg.Zone.Weight,
			Threshold: cfg.Zone.Threshold,
		}, airports.List())
		components["zone"] = component{spatial.NewStage(store, matcher, cfg.Zone.Source, log), config.Seconds(cfg.Zone.CycleSecs)}
	}

	if wants("fusion") {
		cycle := fusion.NewCycle(fusion.Config{
			Similarity: fusion.SimilarityConfig{
				LandingTimeMinutes: cfg.Fusion.LandingTimeMinutes,
				LandingDistanceKm:  cfg.Fusion.LandingDistanceKm,
				IdentityPenalty:    cfg.Fusion.IdentityPenalty,
			},
			CorrelationThreshold: cfg.Fusion.CorrelationThreshold,
			ApprovalThreshold:    cfg.Fusion.ApprovalThreshold,
			BonusPerItem:         cfg.Fusion.BonusPerItem,
			ReservationWindow:    config.Hours(cfg.Fusion.ReservationWindowHours),
			TelemetryWindow:      config.Minutes(cfg.Fusion.TelemetryWindowMinutes),
			LandingSeparation:    config.Minutes(cfg.Fusion.LandingSeparationMinutes),
		}, store, confidence, airports, log)
		if hub != nil {
			cycle.SetNotifier(hub)
		}
		components["fusion"] = component{cycle, config.Seconds(cfg.Fusion.CycleSecs)}
	}

	if wants("feeds") && len(cfg.Feeds) > 0 {
		pollers := make([]runner.Task, 0, len(cfg.Feeds))
		interval := config.Seconds(cfg.Feeds[0].IntervalSecs)
		for _, f := range cfg.Feeds {
			pollers = append(pollers, feeds.NewPositionPoller(f, store, log))
			interval = min(interval, config.Seconds(f.IntervalSecs))
		}
		components["feeds"] = component{runner.NewGroup("feeds", pollers...), interval}
	}

	if wants("reservations") && cfg.Reservations.Enabled {
		poller, err := feeds.NewReservationPoller(cfg.Reservations, airports, store, log)
		if err != nil {
			return nil, err
		}
		components["reservations"] = component{poller, config.Seconds(cfg.Reservations.IntervalSecs)}
	}

	if wants("telemetry") && cfg.Telemetry.Enabled {
		poller, err := feeds.NewTelemetryPoller(cfg.Telemetry, airports, store, log)
		if err != nil {
			return nil, err
		}
		components["telemetry"] = component{poller, config.Seconds(cfg.Telemetry.IntervalSecs)}
	}

	if wants("delivery") && cfg.Delivery.Enabled {
		creds, err := delivery.LoadCredentials(cfg.Delivery.CredentialsPath)
		if err != nil {
			return nil, err
		}
		sender := delivery.NewSender(cfg.Delivery, creds, store, log)
		components["delivery"] = component{sender, config.Seconds(cfg.Delivery.IntervalSecs)}
	}

	return components, nil
}

// buildSequencer uses the configured jobs, or every built component at its own
// period when none are configured
func buildSequencer(cfg config.SequencerConfig, components map[string]component, log *logger.Logger) (*sequencer.Sequencer, error) {
	var jobs []sequencer.Job
	if len(cfg.Jobs) > 0 {
		for _, j := range cfg.Jobs {
			c, ok := components[j.Name]
			if !ok {
				log.Warn("Sequenced component not running, skipping", logger.String("job", j.Name))
				continue
			}
			jobs = append(jobs, sequencer.Job{Task: c.task, Period: config.Seconds(j.CycleSecs)})
		}
	} else {
		for _, name := range config.Components {
			if c, ok := components[name]; ok {
				jobs = append(jobs, sequencer.Job{Task: c.task, Period: c.interval})
			}
		}
	}
	return sequencer.New(jobs, log)
}

func serve(ctx context.Context, cfg config.ServerConfig, handler http.Handler, log *logger.Logger) error {
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  config.Seconds(cfg.ReadTimeoutSecs),
		WriteTimeout: config.Seconds(cfg.WriteTimeoutSecs),
		IdleTimeout:  config.Seconds(cfg.IdleTimeoutSecs),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	return nil
}
