package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default configuration file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL   string `yaml:"databaseURL"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	AuthJWKSURL string `yaml:"authJwksURL"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`

	PlanServiceURL string `yaml:"planServiceURL"`
	PlanServiceKey string `yaml:"planServiceKey"`

	TextGenBaseURL string `yaml:"textGenBaseURL"`
	TextGenAPIKey  string `yaml:"textGenApiKey"`
	TextGenModel   string `yaml:"textGenModel"`

	ImageRenderURL string `yaml:"imageRenderURL"`
	ImageRenderKey string `yaml:"imageRenderKey"`

	AssetHostURL string `yaml:"assetHostURL"`
	AssetHostKey string `yaml:"assetHostKey"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	AMQPURL      string `yaml:"amqpURL"`
	FeedExchange string `yaml:"feedExchange"`

	TrustedProxyCIDRs        []string `yaml:"trustedProxyCidrs"`
	ActionRateLimitPerMinute int      `yaml:"actionRateLimitPerMinute"`
	MaxUploadBytes           int64    `yaml:"maxUploadBytes"`
	MaxResumeBytes           int64    `yaml:"maxResumeBytes"`
	FreeUsageLimit           int      `yaml:"freeUsageLimit"`
	TitleMaxTokens           int      `yaml:"titleMaxTokens"`
	ReviewMaxTokens          int      `yaml:"reviewMaxTokens"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AUTH_JWKS_URL"); v != "" {
		cfg.AuthJWKSURL = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = v
	}
	if v := os.Getenv("JWT_LEEWAY"); v != "" {
		cfg.JWTLeeway = v
	}
	if v := os.Getenv("PLAN_SERVICE_URL"); v != "" {
		cfg.PlanServiceURL = v
	}
	if v := os.Getenv("PLAN_SERVICE_KEY"); v != "" {
		cfg.PlanServiceKey = v
	}
	if v := os.Getenv("TEXTGEN_BASE_URL"); v != "" {
		cfg.TextGenBaseURL = v
	}
	if v := os.Getenv("TEXTGEN_API_KEY"); v != "" {
		cfg.TextGenAPIKey = v
	}
	if v := os.Getenv("TEXTGEN_MODEL"); v != "" {
		cfg.TextGenModel = v
	}
	if v := os.Getenv("IMAGE_RENDER_URL"); v != "" {
		cfg.ImageRenderURL = v
	}
	if v := os.Getenv("IMAGE_RENDER_KEY"); v != "" {
		cfg.ImageRenderKey = v
	}
	if v := os.Getenv("ASSET_HOST_URL"); v != "" {
		cfg.AssetHostURL = v
	}
	if v := os.Getenv("ASSET_HOST_KEY"); v != "" {
		cfg.AssetHostKey = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("FEED_EXCHANGE"); v != "" {
		cfg.FeedExchange = v
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("ACTION_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ActionRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("MAX_RESUME_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxResumeBytes = n
		}
	}
	if v := os.Getenv("FREE_USAGE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FreeUsageLimit = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for distributed rate limiting")
	}
	if strings.TrimSpace(cfg.AuthJWKSURL) == "" {
		return errors.New("config: authJwksURL is required (set in config.yaml or AUTH_JWKS_URL)")
	}
	if strings.TrimSpace(cfg.JWTIssuer) == "" {
		return errors.New("config: jwtIssuer is required")
	}
	if strings.TrimSpace(cfg.JWTAudience) == "" {
		return errors.New("config: jwtAudience is required")
	}
	if cfg.PlanServiceURL == "" {
		return errors.New("config: planServiceURL is required")
	}
	if cfg.TextGenBaseURL == "" {
		return errors.New("config: textGenBaseURL is required")
	}
	if cfg.ImageRenderURL == "" {
		return errors.New("config: imageRenderURL is required")
	}
	if cfg.AssetHostURL == "" {
		return errors.New("config: assetHostURL is required")
	}
	if cfg.ActionRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.FreeUsageLimit < 0 {
		return errors.New("config: freeUsageLimit must be >= 0")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseJWTLeeway parses the optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}
