package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Reservation ReservationConfig
	Auth        AuthConfig
	AMQP        AMQPConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	// CORSOrigins is empty when any origin is allowed.
	CORSOrigins []string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32
	// Migrate applies the embedded migrations on start.
	Migrate bool
}

// DSN renders the connection URL understood by pgx.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Name,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

type ReservationConfig struct {
	SweepInterval      time.Duration
	LedgerMaxRetries   uint
	RateLimitPerMinute int
}

type AuthConfig struct {
	// JWTSecret enables HS256 bearer tokens.
	JWTSecret string
	// TrustHeaders accepts X-User-ID and X-User-Role as sent by the client.
	// Only consulted when JWTSecret is empty.
	TrustHeaders bool
}

type AMQPConfig struct {
	// URL enables ticket events. Empty disables the broker.
	URL string
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverPort, err := envInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	shutdownTimeout, err := envDuration("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host:            envString("SERVER_HOST", "localhost"),
		Port:            serverPort,
		ShutdownTimeout: shutdownTimeout,
		CORSOrigins:     envList("CORS_ALLOWED_ORIGINS"),
	}

	postgresPort, err := envInt("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresMaxConns, err := envInt("POSTGRES_MAX_CONNS", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresMigrate, err := envBool("POSTGRES_MIGRATE", true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	postgresCfg := PostgresConfig{
		User:     postgresUser,
		Password: postgresPassword,
		Name:     postgresDB,
		Host:     envString("POSTGRES_HOST", "localhost"),
		Port:     postgresPort,
		SSLMode:  envString("POSTGRES_SSLMODE", "disable"),
		MaxConns: int32(postgresMaxConns),
		Migrate:  postgresMigrate,
	}

	redisDB, err := envInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cacheTTL, err := envDuration("REDIS_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisCfg := RedisConfig{
		Addr:     envString("REDIS_ADDR", "localhost:6380"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
		CacheTTL: cacheTTL,
	}

	sweepInterval, err := envDuration("SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	maxRetries, err := envInt("LEDGER_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if maxRetries < 1 {
		return nil, fmt.Errorf("%s: LEDGER_MAX_RETRIES must be at least 1", op)
	}

	rateLimit, err := envInt("RATE_LIMIT_PER_MINUTE", 30)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	trustHeaders, err := envBool("AUTH_TRUST_HEADERS", false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" && !trustHeaders {
		return nil, fmt.Errorf("%s: missing JWT_SECRET (set AUTH_TRUST_HEADERS=true to trust identity headers)", op)
	}

	return &Config{
		Server:   serverCfg,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Reservation: ReservationConfig{
			SweepInterval:      sweepInterval,
			LedgerMaxRetries:   uint(maxRetries),
			RateLimitPerMinute: rateLimit,
		},
		Auth: AuthConfig{JWTSecret: jwtSecret, TrustHeaders: trustHeaders},
		AMQP: AMQPConfig{URL: os.Getenv("AMQP_URL")},
	}, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envList splits a comma separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" && v != "*" {
			out = append(out, v)
		}
	}
	return out
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return v, nil
}
