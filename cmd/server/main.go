package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/restaurant_pos/internal/daybook"
	"github.com/Skotchmaster/restaurant_pos/internal/httpserver"
	"github.com/Skotchmaster/restaurant_pos/internal/lock"
	"github.com/Skotchmaster/restaurant_pos/internal/menu"
	"github.com/Skotchmaster/restaurant_pos/internal/models"
	"github.com/Skotchmaster/restaurant_pos/internal/order"
	"github.com/Skotchmaster/restaurant_pos/internal/payment"
	"github.com/Skotchmaster/restaurant_pos/internal/realtime"
	"github.com/Skotchmaster/restaurant_pos/internal/search"
	"github.com/Skotchmaster/restaurant_pos/internal/session"
	"github.com/Skotchmaster/restaurant_pos/internal/settings"
	"github.com/Skotchmaster/restaurant_pos/pkg/config"
	pkgdb "github.com/Skotchmaster/restaurant_pos/pkg/db"
	"github.com/Skotchmaster/restaurant_pos/pkg/hash"
	"github.com/Skotchmaster/restaurant_pos/pkg/logging"
	loggingmw "github.com/Skotchmaster/restaurant_pos/pkg/middleware/logging"
	"github.com/Skotchmaster/restaurant_pos/pkg/tokens"
)

const (
	eventBuffer       = 1024
	idempotencyMaxAge = 24 * time.Hour
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("timezone %q: %v", cfg.Timezone, err)
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := pkgdb.Open(initCtx, cfg.DatabaseURL, cfg.SQLitePath)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatalf("db migrate error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, logger)

	catalog := &menu.Catalog{DB: db}
	if cfg.MenuSeedPath != "" {
		n, err := catalog.SeedFile(ctx, cfg.MenuSeedPath)
		if err != nil {
			log.Fatalf("menu seed: %v", err)
		}
		logger.Info("menu_seeded", "items", n, "path", cfg.MenuSeedPath)
	}

	deleteHash, err := hash.HashPassword(cfg.DeleteSecret)
	if err != nil {
		log.Fatalf("hash delete secret: %v", err)
	}
	passwords := map[string]string{}
	if passwords[tokens.RoleReception], err = hash.HashPassword(cfg.StaffPassword); err != nil {
		log.Fatalf("hash staff password: %v", err)
	}
	if cfg.AdminPassword != "" {
		if passwords[tokens.RoleAdmin], err = hash.HashPassword(cfg.AdminPassword); err != nil {
			log.Fatalf("hash admin password: %v", err)
		}
	} else {
		logger.Warn("admin_login_disabled", "reason", "ADMIN_PASSWORD not set")
	}

	ws := realtime.NewWSSink(logger)
	hub := realtime.NewHub(eventBuffer, logger, ws)

	var kafka *realtime.KafkaSink
	if len(cfg.KafkaBrokers) > 0 {
		kafka = realtime.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		hub.AddSink(kafka)
		logger.Info("kafka_sink_enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	var index search.Index = &search.DBIndex{DB: db}
	if cfg.ESURL != "" {
		es, err := search.NewClient(cfg.ESURL, cfg.ESUser, cfg.ESPassword, logger)
		if err != nil {
			log.Fatalf("elasticsearch: %v", err)
		}
		index = &search.ESIndex{Client: es, Name: cfg.ESIndex}
		logger.Info("search_index_enabled", "url", cfg.ESURL, "index", cfg.ESIndex)
	}
	hub.AddSink(&search.Sink{Index: index, DB: db})

	locks := lock.NewKeyed()
	store := &settings.Store{DB: db, DefaultTableCount: cfg.TableCount}
	tables := &session.Manager{Repo: &session.GormRepo{DB: db}, Settings: store, Locks: locks, Pub: hub}
	orders := &order.Engine{
		Repo:             &order.GormRepo{DB: db},
		Tables:           tables,
		Menu:             catalog,
		Locks:            locks,
		Pub:              hub,
		DeleteSecretHash: deleteHash,
		Location:         loc,
	}
	tables.Orders = orders
	ledger := &daybook.Ledger{DB: db, Pub: hub, Location: loc}
	payments := payment.NewReconciler(orders, ledger, hub)
	idem := &httpserver.Idempotency{DB: db, Locks: locks}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = httpserver.ErrorHandler
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization,
			httpserver.HeaderIdempotencyKey, httpserver.HeaderDeleteSecret,
		},
	}))

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler:     &httpserver.AuthHTTP{PasswordHashes: passwords, JWTSecret: cfg.JWTSecret},
		TableHandler:    &httpserver.TableHTTP{Svc: tables},
		OrderHandler:    &httpserver.OrderHTTP{Svc: orders, Index: index},
		PaymentHandler:  &httpserver.PaymentHTTP{Svc: payments},
		DaybookHandler:  &httpserver.DaybookHTTP{Svc: ledger},
		SettingsHandler: &httpserver.SettingsHTTP{Svc: store},
		StateHandler:    &httpserver.StateHTTP{Tables: tables, Orders: orders, Settings: store, WS: ws},
		MenuHandler:     &httpserver.MenuHTTP{Svc: catalog},
		Idempotency:     idem,
		JWTSecret:       cfg.JWTSecret,
		Ready: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})

	hubCtx, hubCancel := context.WithCancel(logging.IntoContext(context.Background(), logger))
	go hub.Run(hubCtx)
	go payments.Run(ctx, cfg.ReconcileInterval)
	go pruneIdempotency(ctx, idem)

	go func() {
		addr := ":" + strconv.Itoa(cfg.ServerPort)
		logger.Info("server_starting", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("echo start: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("server_stopping")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown", "error", err)
	}

	// let queued events reach the sinks before closing them
	hubCancel()
	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
	}
	if kafka != nil {
		if err := kafka.Close(); err != nil {
			logger.Error("kafka close", "error", err)
		}
	}
	if err := pkgdb.Close(db); err != nil {
		logger.Error("db close", "error", err)
	}
}

func pruneIdempotency(ctx context.Context, idem *httpserver.Idempotency) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := idem.Prune(ctx, idempotencyMaxAge)
			if err != nil {
				logging.FromContext(ctx).Warn("idempotency_prune_failed", "error", err)
				continue
			}
			if n > 0 {
				logging.FromContext(ctx).Info("idempotency_pruned", "rows", n)
			}
		}
	}
}
