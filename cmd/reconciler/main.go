package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/pixeltrack/internal/config"
	"github.com/ignite/pixeltrack/internal/crm"
	"github.com/ignite/pixeltrack/internal/kv"
	"github.com/ignite/pixeltrack/internal/pkg/distlock"
	"github.com/ignite/pixeltrack/internal/repository/postgres"
	"github.com/ignite/pixeltrack/internal/scheduler"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

func main() {
	tickOnce := flag.Bool("tick-once", false, "run a single process tick and exit, instead of looping on the ticker")
	flag.Parse()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeMinutes) * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("ping database: %v", err)
	}
	cancel()

	kvStore, err := kv.NewDynamoDBStore(context.Background(), cfg.DynamoDB.Table, cfg.DynamoDB.Region, "", cfg.DynamoDB.Endpoint)
	if err != nil {
		log.Fatalf("dynamodb store: %v", err)
	}

	visitorRepo := postgres.NewVisitorRepo(db)
	sessionRepo := postgres.NewSessionRepo(db)
	eventRepo := postgres.NewEventRepo(db)

	crmClient := crm.NewClient(cfg.Pipedrive.BaseURL, cfg.Pipedrive.APIKey)
	crmSvc := crm.NewService(crmClient)

	sched := scheduler.New(kvStore, crmSvc, eventRepo, visitorRepo, sessionRepo, time.Now)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	sched.SetLock(distlock.NewLock(redisClient, db, scheduler.TickLockKey, scheduler.TickInterval))

	if *tickOnce {
		log.Println("reconciler: running a single tick")
		sched.Tick(context.Background())
		log.Println("reconciler: tick complete")
		return
	}

	ctx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	log.Printf("reconciler: starting, tick interval %s", scheduler.TickInterval)
	go sched.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("reconciler: shutting down")
	cancelRun()
	time.Sleep(2 * time.Second)
}
