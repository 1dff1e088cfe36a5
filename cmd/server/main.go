package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"inkforge/internal/app"
	"inkforge/internal/config"
	"inkforge/internal/feed"
	"inkforge/internal/plan"
	"inkforge/internal/server"
	"inkforge/internal/usertoken"
	"inkforge/internal/util"
	"inkforge/pkg/ai"
	"inkforge/pkg/assets"
	"inkforge/pkg/imagegen"
	"inkforge/pkg/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	leeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse JWT leeway: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	verifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:  cfg.AuthJWKSURL,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   leeway,
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	planClient := plan.NewClient(cfg.PlanServiceURL, cfg.PlanServiceKey)

	appCfg := app.Config{
		DatabaseURL:     cfg.DatabaseURL,
		Plan:            planClient,
		TextGen:         ai.NewOpenAICompatGenerator(cfg.TextGenBaseURL, cfg.TextGenAPIKey, cfg.TextGenModel),
		Renderer:        imagegen.NewClient(cfg.ImageRenderURL, cfg.ImageRenderKey),
		Assets:          assets.NewCDNClient(cfg.AssetHostURL, cfg.AssetHostKey),
		FreeUsageLimit:  cfg.FreeUsageLimit,
		MaxResumeBytes:  cfg.MaxResumeBytes,
		TitleMaxTokens:  cfg.TitleMaxTokens,
		ReviewMaxTokens: cfg.ReviewMaxTokens,
	}
	if cfg.MinioEndpoint != "" {
		objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init object store: %v", err)
		}
		appCfg.Objects = objects
	}
	if cfg.AMQPURL != "" {
		exchange := cfg.FeedExchange
		if exchange == "" {
			exchange = "creations"
		}
		publisher, err := feed.NewPublisher(cfg.AMQPURL, exchange)
		if err != nil {
			log.Fatalf("failed to init feed publisher: %v", err)
		}
		defer publisher.Close()
		appCfg.Feed = publisher
	}

	appCore, err := app.New(appCfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                      appCore,
		TokenVerifier:            verifier,
		Plan:                     planClient,
		RedisAddr:                cfg.RedisAddr,
		RedisPassword:            cfg.RedisPassword,
		ActionRateLimitPerMinute: cfg.ActionRateLimitPerMinute,
		MaxUploadBytes:           cfg.MaxUploadBytes,
		TrustedProxyCIDRs:        cfg.TrustedProxyCIDRs,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
