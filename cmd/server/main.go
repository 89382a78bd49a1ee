package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/flowmail/dashboard/internal/api"
	"github.com/flowmail/dashboard/internal/auth"
	"github.com/flowmail/dashboard/internal/config"
	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/email"
	"github.com/flowmail/dashboard/internal/mailing"
	"github.com/flowmail/dashboard/internal/migrations"
	"github.com/flowmail/dashboard/internal/pkg/distlock"
	"github.com/flowmail/dashboard/internal/pkg/logger"
	"github.com/flowmail/dashboard/internal/repository/postgres"
	"github.com/flowmail/dashboard/internal/service/account"
	"github.com/flowmail/dashboard/internal/service/billing"
	"github.com/flowmail/dashboard/internal/service/campaign"
	"github.com/flowmail/dashboard/internal/service/events"
	"github.com/flowmail/dashboard/internal/service/sendingdomain"
	"github.com/flowmail/dashboard/internal/service/subscriber"
	"github.com/flowmail/dashboard/internal/service/user"
	"github.com/flowmail/dashboard/internal/whop"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.ShouldRedactPII())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := migrations.Up(db); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
		logger.Info("migrations applied")
	}

	redisClient := openRedis(ctx, cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	sender, registrar, err := email.NewFromConfig(ctx, cfg.Email)
	if err != nil {
		log.Fatalf("Failed to initialize email provider: %v", err)
	}
	logger.Info("email provider ready", "provider", sender.Provider())

	whopClient := whop.NewClient(whop.Config{
		BaseURL:    cfg.Whop.BaseURL,
		APIKey:     cfg.Whop.APIKey,
		Timeout:    cfg.Whop.TimeoutSeconds,
		MaxRetries: cfg.Whop.MaxRetries,
	})

	userRepo := postgres.NewUserRepo(db)
	subscriberRepo := postgres.NewSubscriberRepo(db)
	campaignRepo := postgres.NewCampaignRepo(db)
	sendRepo := postgres.NewSendRepo(db)
	eventRepo := postgres.NewEventRepo(db)

	limits := make(map[domain.Plan]int, len(cfg.Billing.Plans))
	plans := make(map[string]billing.Plan, len(cfg.Billing.Plans))
	for name, p := range cfg.Billing.Plans {
		limits[domain.Plan(name)] = p.MonthlyLimit
		plans[name] = billing.Plan{WhopPlanID: p.WhopPlanID, MonthlyLimit: p.MonthlyLimit}
	}

	userSvc := user.NewService(userRepo, limits, cfg.Sending.SenderNameMaxAttempts)
	subscriberSvc := subscriber.NewService(subscriberRepo, whopClient, cfg.Whop.CompanyID)
	campaignSvc := campaign.NewService(campaign.Deps{
		Repo:       campaignRepo,
		Ledger:     sendRepo,
		Recipients: subscriberSvc,
		Usage:      userSvc,
		Sender:     sender,
		Renderer:   mailing.NewRenderer(),
		Locker:     distlock.NewLocker(redisClient, db, cfg.Redis.LockTTL()),
	}, campaign.Config{
		DefaultDomain:     cfg.Email.DefaultDomain,
		DefaultSenderName: cfg.Email.DefaultSenderName,
		DefaultFromName:   cfg.Email.DefaultFromName,
		RatePerSecond:     cfg.Sending.RatePerSecond,
		Burst:             cfg.Sending.Burst,
		LockRenewInterval: cfg.Redis.LockTTL() / 3,
	})
	billingSvc := billing.NewService(whopClient, userSvc, billing.Config{
		Plans:         plans,
		RedirectURL:   cfg.Billing.RedirectURL,
		WebhookSecret: cfg.Whop.WebhookSecret,
	})

	handlers := api.NewHandlers(api.Services{
		Users:       userSvc,
		Subscribers: subscriberSvc,
		Campaigns:   campaignSvc,
		Billing:     billingSvc,
		Account:     account.NewService(campaignSvc, subscriberSvc),
		Domains:     sendingdomain.NewService(userRepo, registrar),
		Events:      events.NewService(eventRepo, cfg.Email.WebhookSecret),
	})

	var sessions auth.SessionStore
	if redisClient != nil {
		sessions = auth.NewRedisStore(redisClient)
	} else {
		mem := auth.NewMemoryStore()
		mem.CleanupExpired(ctx, 10*time.Minute)
		sessions = mem
	}
	authManager := auth.NewAuthManager(cfg.Auth, cfg.Whop, whopClient, userSvc, sessions)
	if authManager.Enabled() {
		logger.Info("whop authentication enabled", "callback", cfg.Auth.BaseURL+"/auth/callback")
	} else {
		logger.Warn("authentication disabled; /api trusts the userId in each request")
	}

	server := api.NewServer(cfg.Server, handlers, api.RouteOptions{
		Auth:   authManager,
		Health: api.NewHealthChecker(db, redisClient),
	})

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// openRedis returns nil when Redis is not configured or unreachable. Send
// locks then use Postgres advisory locks and sessions stay in memory.
func openRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.URL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		logger.Warn("invalid redis url, continuing without redis", "error", err)
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, falling back to postgres advisory locks", "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected")
	return client
}
