package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"clinicsched/internal/api"
	"clinicsched/internal/availability"
	"clinicsched/internal/booking"
	"clinicsched/internal/config"
	"clinicsched/internal/database"
	"clinicsched/internal/events"
	"clinicsched/internal/health"
	"clinicsched/internal/manager"
	"clinicsched/internal/metrics"
	"clinicsched/internal/registry"
	"clinicsched/internal/report"
	"clinicsched/internal/slots"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("SCHEDULER_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		logger = logger.Level(level)
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store availability.Store = availability.NewSQLiteStore(db)
		rdb   *redis.Client
	)
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		store = availability.NewCachedStore(store, rdb, cfg.CacheTTL(), &logger)
	}

	// Initial seed sync happens inside WatchDoctors before it starts polling.
	err = config.WatchDoctors(ctx, cfg.Doctors.SeedPath, cfg.DoctorsReloadInterval(), &logger, func(dc *config.DoctorsConfig) {
		applied, err := availability.SyncFromConfig(ctx, store, dc, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("apply doctor schedules")
			return
		}
		logger.Info().Int("doctors", applied).Str("path", cfg.Doctors.SeedPath).Msg("Doctor schedules synced")
	})
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.Doctors.SeedPath).Msg("doctor seed file not loaded; schedules come from the API only")
	}

	bus := events.NewEventBus(&logger)
	bus.Subscribe(events.AppointmentConfirmed, func(e events.Event) error {
		var p events.AppointmentPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		logger.Debug().Str("appointment_id", p.AppointmentID).Str("doctor_id", p.DoctorID).
			Str("date", p.Date).Str("time_slot", p.TimeSlot).Msg("slot taken")
		return nil
	})
	bus.Subscribe(events.AppointmentStatusChanged, func(e events.Event) error {
		var p events.AppointmentPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		logger.Debug().Str("appointment_id", p.AppointmentID).Str("status", p.Status).Msg("slot released")
		return nil
	})
	bus.Subscribe(events.AvailabilityUpdated, func(e events.Event) error {
		var p events.AvailabilityPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		logger.Info().Str("doctor_id", p.DoctorID).Msg("Doctor availability replaced")
		return nil
	})

	reg := registry.NewSQLiteRegistry(db)
	generator := slots.NewGenerator(store, reg)
	coordinator := booking.NewCoordinator(generator, reg, bus, &logger)
	admin := manager.NewService(reg, bus, &logger)
	exporter := report.NewExporter(reg, nil, &logger)

	perSecond, burst := cfg.BookingRate()
	server := api.NewHTTPServer(cfg.Server.Address, api.Deps{
		Slots:        generator,
		Bookings:     coordinator,
		Availability: store,
		Manager:      admin,
		Reports:      exporter,
		Publisher:    bus,
	}, api.Options{
		BookingsPerSecond: perSecond,
		BookingBurst:      burst,
		ReadTimeout:       cfg.ReadTimeout(),
		WriteTimeout:      cfg.WriteTimeout(),
	}, &logger)

	checker := health.NewChecker(db, rdb)
	go serveHTTP(ctx, "health", fmt.Sprintf(":%d", cfg.Monitoring.HealthCheckPort), checker.Handler(), &logger)

	if cfg.Monitoring.GRPCHealthPort > 0 {
		grpcHealth := health.NewGRPCService(checker, &logger)
		go func() {
			if err := grpcHealth.Serve(ctx, fmt.Sprintf(":%d", cfg.Monitoring.GRPCHealthPort), 10*time.Second); err != nil {
				logger.Error().Err(err).Msg("grpc health server error")
			}
		}()
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go serveHTTP(ctx, "metrics", fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort), mux, &logger)
	}

	if cfg.Backup.Enabled {
		backups := database.NewBackupService(db, database.BackupConfig{
			Enabled:       true,
			Interval:      cfg.BackupInterval(),
			StoragePath:   cfg.Backup.Path,
			RetentionDays: cfg.Backup.RetentionDays,
		}, &logger)
		go backups.Start(ctx)
	}

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("api shutdown error")
		}
	}()

	logger.Info().Msg("Scheduler started")
	if err := server.Start(); err != nil {
		logger.Error().Err(err).Msg("api server error")
	}
	logger.Info().Msg("Scheduler stopped")
}

func serveHTTP(ctx context.Context, name, addr string, handler http.Handler, logger *zerolog.Logger) {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
