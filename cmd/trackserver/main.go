package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/pixeltrack/internal/config"
	"github.com/ignite/pixeltrack/internal/crm"
	"github.com/ignite/pixeltrack/internal/ingest"
	"github.com/ignite/pixeltrack/internal/kv"
	"github.com/ignite/pixeltrack/internal/newsletter"
	"github.com/ignite/pixeltrack/internal/pkg/httputil"
	"github.com/ignite/pixeltrack/internal/pkg/spawn"
	"github.com/ignite/pixeltrack/internal/ratelimit"
	"github.com/ignite/pixeltrack/internal/repository/postgres"
	"github.com/ignite/pixeltrack/internal/scheduler"
	"github.com/ignite/pixeltrack/internal/service/eventwriter"
	"github.com/ignite/pixeltrack/internal/service/identity"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	httputil.Environment = cfg.Server.Environment

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeMinutes) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping database: %v", err)
	}
	cancel()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	kvStore, err := kv.NewDynamoDBStore(context.Background(), cfg.DynamoDB.Table, cfg.DynamoDB.Region, "", cfg.DynamoDB.Endpoint)
	if err != nil {
		log.Fatalf("dynamodb store: %v", err)
	}

	projectRepo := postgres.NewProjectRepo(db)
	visitorRepo := postgres.NewVisitorRepo(db)
	sessionRepo := postgres.NewSessionRepo(db)
	eventRepo := postgres.NewEventRepo(db)

	identitySvc := identity.NewService(postgres.NewIdentityRepo(visitorRepo, sessionRepo), time.Now)
	eventSvc := eventwriter.NewService(eventRepo, time.Sleep, time.Now)

	crmClient := crm.NewClient(cfg.Pipedrive.BaseURL, cfg.Pipedrive.APIKey)
	crmSvc := crm.NewService(crmClient)

	sched := scheduler.New(kvStore, crmSvc, eventRepo, visitorRepo, sessionRepo, time.Now)

	limiter := ratelimit.New(redisClient)

	var newsletterClient ingest.NewsletterClient
	if nc := newsletter.NewClient(cfg.Newsletter.APIURL, cfg.Newsletter.AuthToken); nc != nil {
		newsletterClient = nc
	}

	handler := ingest.NewHandler(projectRepo, identitySvc, eventSvc, visitorRepo, sched, limiter, newsletterClient, spawn.New(), time.Now)

	router := chi.NewRouter()
	router.Mount("/", handler.Routes())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
		IdleTimeout:  cfg.Server.IdleTimeout(),
	}

	go func() {
		log.Printf("trackserver listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down trackserver...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	handler.Spawner.Wait(10 * time.Second)
}
