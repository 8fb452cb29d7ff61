// README: Entry point; loads config, wires stores and services, serves HTTP until signalled.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"haulbook/internal/config"
	"haulbook/internal/events"
	httptransport "haulbook/internal/http"
	"haulbook/internal/infra"
	"haulbook/internal/modules/booking"
	"haulbook/internal/modules/catalog"
	"haulbook/internal/modules/fleet"
	"haulbook/internal/modules/location"
	"haulbook/internal/modules/matching"
)

func main() {
	if err := run(); err != nil {
		slog.Error("haulbook-api exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, _ := cfg.Log.SlogLevel()
	log := infra.NewLogger(os.Stderr, level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		return fmt.Errorf("firebase init: %w", err)
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer dbPool.Close()
	if cfg.DB.Migrate {
		if err := infra.Migrate(ctx, dbPool); err != nil {
			return err
		}
	}

	fleetStore := fleet.NewStore(dbPool)
	catalogStore := catalog.NewStore(dbPool)

	var (
		positions  fleet.PositionIndex
		candidates matching.CandidateIndex
	)
	if cfg.Redis.Addr != "" {
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		geo := location.NewGeoIndex(rdb)
		positions, candidates = geo, geo
	} else {
		log.Info("redis not configured; nearby search scans postgres")
	}

	var publisher booking.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log.With("module", "events"))
		defer kp.Close()
		publisher = kp
	} else {
		log.Info("kafka not configured; booking events disabled")
	}

	fleetSvc := fleet.NewService(fleetStore, positions, log.With("module", "fleet"))
	if n, err := fleetSvc.SyncIndex(ctx); err != nil {
		log.Warn("geo index sync failed", "error", err)
	} else if n > 0 {
		log.Info("geo index synced", "trucks", n)
	}

	matchingSvc := matching.NewService(fleetStore, candidates, matching.Config{
		NearbyRadiusKm: cfg.Matching.NearbyRadiusKm,
		MaxRadiusKm:    cfg.Matching.MaxRadiusKm,
	})

	bookingSvc := booking.NewService(
		booking.NewStore(dbPool, fleetStore),
		catalogStore,
		publisher,
		booking.Config{AssignAttempts: cfg.Booking.AssignAttempts},
		log.With("module", "booking"),
	)

	gin.SetMode(gin.ReleaseMode)
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Bookings: bookingSvc,
		Trucks:   fleetSvc,
		Nearby:   matchingSvc,
		Verifier: verifier,
		Log:      log.With("module", "http"),
		Ping:     dbPool.Ping,
	})

	server := httptransport.NewServer(cfg.HTTP.Addr, router, cfg.HTTP.ShutdownTimeout, log)
	return server.Run(ctx)
}
