package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/DocuPay/app/controllers"
	"github.com/ManuelReschke/DocuPay/app/repository"
	apiv1 "github.com/ManuelReschke/DocuPay/internal/api/v1"
	"github.com/ManuelReschke/DocuPay/internal/pkg/cache"
	"github.com/ManuelReschke/DocuPay/internal/pkg/database"
	"github.com/ManuelReschke/DocuPay/internal/pkg/env"
	"github.com/ManuelReschke/DocuPay/internal/pkg/feeschedule"
	"github.com/ManuelReschke/DocuPay/internal/pkg/jobqueue"
	"github.com/ManuelReschke/DocuPay/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/DocuPay/internal/pkg/notify"
	"github.com/ManuelReschke/DocuPay/internal/pkg/reportstore"
	"github.com/ManuelReschke/DocuPay/internal/pkg/router"
	"github.com/ManuelReschke/DocuPay/internal/pkg/settlement"
)

type application struct {
	app       *fiber.App
	manager   *jobqueue.Manager
	publisher *notify.KafkaPublisher
}

func main() {
	a, err := NewApplication()
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	a.manager.Start()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := a.app.Listen(addr); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	if err := a.app.ShutdownWithTimeout(15 * time.Second); err != nil {
		log.Errorf("HTTP shutdown error: %v", err)
	}
	a.manager.Stop()
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			log.Errorf("Kafka writer close error: %v", err)
		}
	}
}

func NewApplication() (*application, error) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()
	rdb := cache.GetClient()

	cfg, err := settlement.LoadConfig()
	if err != nil {
		return nil, err
	}

	fees := feeschedule.NewServiceFromRepositories(repos, rdb)
	counters := counter.NewRecorder(rdb, repos.Stats)
	queue := jobqueue.NewQueue(env.GetEnvInt("JOBQUEUE_WORKERS", 3))

	opts := []settlement.Option{settlement.WithMetrics(counters)}

	// settlement events
	var publisher *notify.KafkaPublisher
	notifyCfg, err := notify.LoadConfig()
	if err != nil {
		return nil, err
	}
	if notifyCfg.IsEnabled() {
		publisher, err = notify.NewKafkaPublisher(notifyCfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, settlement.WithNotifier(jobqueue.NewQueuedNotifier(publisher, queue)))
	}

	// reconciliation report archive
	archiveCfg, err := reportstore.LoadConfig()
	if err != nil {
		return nil, err
	}
	if archiveCfg.IsEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		archiver, err := reportstore.NewClient(ctx, archiveCfg)
		cancel()
		if err != nil {
			return nil, err
		}
		opts = append(opts, settlement.WithArchiver(archiver))
	}

	provider := settlement.NewHTTPProviderFromEnv(cfg.ProviderTimeout)
	svc := settlement.NewServiceFromDB(*cfg, database.GetDB(), provider, fees, opts...)

	managerOpts := []jobqueue.ManagerOption{jobqueue.WithCounters(counters)}
	if publisher != nil {
		managerOpts = append(managerOpts, jobqueue.WithPublisher(publisher))
	}
	manager := jobqueue.NewManager(queue, jobqueue.LoadConfig(), svc, managerOpts...)
	jobqueue.SetManager(manager)

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: env.GetEnv("CORS_ALLOW_ORIGINS", "*"),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key, X-Actor",
	}))

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "change-me"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: env.GetEnv("OPENAPI_FILE", "./public/docs/v1/openapi.yml"),
		Path:     "v1",
	}))

	// ROUTER
	server := apiv1.NewAPIServer(
		controllers.NewPaymentController(svc),
		controllers.NewFeeController(fees),
		controllers.NewReconciliationController(manager, svc),
	)
	router.InstallRouter(app, server)

	return &application{app: app, manager: manager, publisher: publisher}, nil
}
