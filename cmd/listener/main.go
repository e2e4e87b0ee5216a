package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/pts_listener/internal/cache"
	"github.com/GTDGit/pts_listener/internal/config"
	"github.com/GTDGit/pts_listener/internal/correlator"
	"github.com/GTDGit/pts_listener/internal/database"
	"github.com/GTDGit/pts_listener/internal/handler"
	"github.com/GTDGit/pts_listener/internal/listener"
	"github.com/GTDGit/pts_listener/internal/packetlog"
	"github.com/GTDGit/pts_listener/internal/protocol"
	"github.com/GTDGit/pts_listener/internal/repository"
	"github.com/GTDGit/pts_listener/internal/service"
	"github.com/GTDGit/pts_listener/internal/sse"
	"github.com/GTDGit/pts_listener/internal/station"
	"github.com/GTDGit/pts_listener/internal/worker"
)

// main is the entrypoint for the pneumatic tube telemetry listener.
func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Setup logger
	setupLogger(cfg.Env)
	log.Info().Str("env", cfg.Env).Int("pid", os.Getpid()).Msg("starting pts listener")

	// 3. Select the wire revision
	version, err := protocol.ParseVersion(cfg.Listener.Protocol)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid protocol")
	}
	decoder, err := protocol.NewDecoder(version)
	if err != nil {
		log.Fatal().Err(err).Str("protocol", version.Name).Msg("protocol layout rejected")
	}

	// 4. Startup database connection
	probe, err := database.Connect(&cfg.DB)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "database connection failed: %v\n", err)
		os.Exit(1)
	}

	// 4a. Optional schema bootstrap
	if cfg.Migrate.Enabled {
		if err := runMigrations(probe.DB, cfg.Migrate.Path); err != nil {
			log.Error().Err(err).Msg("migration failed")
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
			os.Exit(1)
		}
		log.Info().Msg("migrations completed successfully")
	}

	// 5. Station mirror
	var (
		mirror       station.Mirror
		stationCache *cache.StationCache
	)
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable - station mirror disabled")
		} else {
			defer redisClient.Close()
			stationCache = cache.NewStationCache(redisClient)
			mirror = stationCache
			log.Info().Msg("redis connected successfully")
		}
	}
	directory := station.NewDirectory(mirror)

	// 5a. Seed from the existing tables, then release the startup connection
	bootstrap(probe, directory)
	if err := probe.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close startup connection")
	}

	// 6. Lazily opened write session
	session := database.NewSession(func(ctx context.Context) (*sqlx.DB, error) {
		return database.Open(ctx, &cfg.DB)
	}, cfg.DB.IdleTimeout)
	defer session.Shutdown()

	// 7. Repositories and services
	eventRepo := repository.NewEventLogRepository(session)
	stationRepo := repository.NewStationRepository(session)
	gateway := service.NewPersistenceGateway(eventRepo, stationRepo, session)

	hub := sse.NewHub()
	dispatcher := listener.NewDispatcher(listener.Deps{
		Decoder:    decoder,
		Correlator: correlator.New(directory),
		Store:      gateway,
		Stations:   directory,
		Session:    session,
		PacketLog:  packetlog.NewWriter(cfg.PacketLog.Dir),
		Notifier:   sse.NewHubNotifier(hub),
	}, cfg.Listener.BufferSize)

	// 8. Bind the UDP socket
	conn, err := listener.Listen(cfg.Listener.Addr())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open UDP socket")
	}

	// 9. Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		sig := <-quit
		log.Info().Str("signal", sig.String()).Msg("Shutting down listener...")
		cancel()
	}()

	// 10. Start workers
	if stationCache != nil {
		go worker.NewMirrorWorker(directory, stationCache, cfg.Redis.SyncInterval).Start(ctx)
	}

	// 11. Start HTTP status server
	var srv *http.Server
	if cfg.HTTP.Enabled {
		router := handler.NewRouter(cfg.Env, cfg.HTTP.CORSHosts, &handler.Handlers{
			Health:  handler.NewHealthHandler(version.Name, session, directory),
			Station: handler.NewStationHandler(directory),
			SSE:     handler.NewSSEHandler(hub),
		})
		srv = &http.Server{
			Addr:    ":" + cfg.HTTP.Port,
			Handler: router,
		}
		go func() {
			log.Info().Str("port", cfg.HTTP.Port).Msg("Starting status server")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("Status server failed")
			}
		}()
	}

	// 12. Receive loop
	log.Info().Str("protocol", version.Name).Str("addr", cfg.Listener.Addr()).Msg("Listener started")
	if err := dispatcher.Run(ctx, conn); err != nil {
		log.Error().Err(err).Msg("listener stopped")
	}
	cancel()

	// 13. Shutdown HTTP server with timeout
	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
	}
	log.Info().Msg("Listener exited")
}

// bootstrap logs the newest eventlog rows and loads the station table into
// the directory. Failures are logged; the listener still starts.
func bootstrap(db *sqlx.DB, directory *station.Directory) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	handle := repository.StaticDB{Handle: db}

	recent, err := repository.NewEventLogRepository(handle).Recent(ctx, 10)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read recent events")
	}
	for _, ev := range recent {
		log.Info().
			Uint8("system", ev.System).
			Uint32("trans_num", ev.TransNum).
			Time("event_start", ev.EventStart).
			Int("source", ev.Source).
			Int("destination", ev.Destination).
			Int("status", ev.Status).
			Str("main_station", ev.MainStationName).
			Str("sub_station", ev.SubStationName).
			Msg("recent event")
	}

	rows, err := repository.NewStationRepository(handle).All(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load station table")
		return
	}
	directory.Load(rows)
}

// runMigrations runs database migrations using golang-migrate.
func runMigrations(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func setupLogger(env string) {
	if env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}
