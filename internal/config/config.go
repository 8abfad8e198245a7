package config

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	FailureModeOpen   = "fail_open"
	FailureModeClosed = "fail_closed"

	EventsSinkNone  = "none"
	EventsSinkKafka = "kafka"
	EventsSinkAMQP  = "amqp"
)

type Config struct {
	Env   string
	Debug bool

	HTTPAddr          string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	CORSOrigins       []string
	TrustedProxies    []netip.Prefix

	DBDriver string
	DBURL    string
	DBLogSQL bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTIssuer       string
	JWTAudience     string
	JWTAccessSecret string
	AdminTokenTTL   time.Duration

	PasskeyPepper string

	SessionCookieName   string
	SessionCookieSecure bool
	SessionTTL          time.Duration

	GateStoreFailureMode string
	MaintenancePath      string

	PasskeyMaxFailures      int
	PasskeyTokenMaxFailures int
	PasskeyFailureWindow    time.Duration
	PasskeyLockout          time.Duration
	VerifyRateLimitRPM      int
	NegativeLookupTTL       time.Duration
	SessionSweepInterval    time.Duration

	EventsSink           string
	EventsBuffer         int
	EventsPublishTimeout time.Duration
	KafkaBrokers         []string
	KafkaTopic           string
	AMQPURL              string
	AMQPQueue            string

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64
}

// Load reads an optional env file (values already present in the environment win) and then
// builds a validated Config from the process environment.
func Load(envFile string) (*Config, error) {
	profile := os.Getenv("APP_ENV")
	if envFile != "" {
		if err := loadEnvFile(envFile); err != nil {
			recordConfigValidationEvent(context.Background(), profile, "error", classifyConfigLoadError(err))
			return nil, err
		}
	}
	cfg, err := fromEnv()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		recordConfigValidationEvent(context.Background(), profile, "error", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(context.Background(), cfg.Env, "success", "none")
	return cfg, nil
}

func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func fromEnv() (*Config, error) {
	p := &parser{}
	cfg := &Config{
		Env:   getenv("APP_ENV", "development"),
		Debug: p.bool("APP_DEBUG", false),

		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		ReadHeaderTimeout: p.duration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ShutdownTimeout:   p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		CORSOrigins:       splitList(getenv("CORS_ALLOWED_ORIGINS", "")),
		TrustedProxies:    p.prefixes("TRUSTED_PROXIES"),

		DBDriver: strings.ToLower(getenv("DB_DRIVER", "postgres")),
		DBURL:    os.Getenv("DATABASE_URL"),
		DBLogSQL: p.bool("DB_LOG_SQL", false),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       p.int("REDIS_DB", 0),

		JWTIssuer:       getenv("JWT_ISSUER", "special-access-gate"),
		JWTAudience:     getenv("JWT_AUDIENCE", "special-access-admin"),
		JWTAccessSecret: os.Getenv("JWT_ACCESS_SECRET"),
		AdminTokenTTL:   p.duration("ADMIN_TOKEN_TTL", 8*time.Hour),

		PasskeyPepper: os.Getenv("PASSKEY_PEPPER"),

		SessionCookieName:   getenv("SESSION_COOKIE_NAME", "gate_sid"),
		SessionCookieSecure: p.bool("SESSION_COOKIE_SECURE", true),
		SessionTTL:          p.duration("SESSION_TTL", 24*time.Hour),

		GateStoreFailureMode: strings.ToLower(getenv("GATE_STORE_FAILURE_MODE", FailureModeClosed)),
		MaintenancePath:      getenv("MAINTENANCE_PATH", "/maintenance"),

		PasskeyMaxFailures:      p.int("PASSKEY_MAX_FAILURES", 5),
		PasskeyTokenMaxFailures: p.int("PASSKEY_TOKEN_MAX_FAILURES", 20),
		PasskeyFailureWindow:    p.duration("PASSKEY_FAILURE_WINDOW", 15*time.Minute),
		PasskeyLockout:          p.duration("PASSKEY_LOCKOUT", 15*time.Minute),
		VerifyRateLimitRPM:      p.int("VERIFY_RATE_LIMIT_RPM", 30),
		NegativeLookupTTL:       p.duration("NEGATIVE_LOOKUP_TTL", 30*time.Second),
		SessionSweepInterval:    p.duration("SESSION_SWEEP_INTERVAL", 0),

		EventsSink:           strings.ToLower(getenv("EVENTS_SINK", EventsSinkNone)),
		EventsBuffer:         p.int("EVENTS_BUFFER", 1024),
		EventsPublishTimeout: p.duration("EVENTS_PUBLISH_TIMEOUT", 5*time.Second),
		KafkaBrokers:         splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:           getenv("KAFKA_TOPIC", "special-access.events"),
		AMQPURL:              os.Getenv("AMQP_URL"),
		AMQPQueue:            getenv("AMQP_QUEUE", "special_access_events"),

		OTELServiceName:           getenv("OTEL_SERVICE_NAME", "special-access-gate"),
		OTELEnvironment:           getenv("OTEL_ENVIRONMENT", "local"),
		OTELExporterOTLPEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  p.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELMetricsEnabled:        p.bool("OTEL_METRICS_ENABLED", false),
		OTELTracingEnabled:        p.bool("OTEL_TRACING_ENABLED", false),
		OTELLogsEnabled:           p.bool("OTEL_LOGS_ENABLED", false),
		OTELMetricsExportInterval: p.duration("OTEL_METRICS_EXPORT_INTERVAL", 10*time.Second),
		OTELTraceSamplingRatio:    p.float("OTEL_TRACE_SAMPLING_RATIO", 1.0),
	}
	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.DBURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	switch c.DBDriver {
	case "postgres", "sqlite", "mysql":
	default:
		problems = append(problems, fmt.Sprintf("DB_DRIVER %q is not supported", c.DBDriver))
	}
	if len(c.JWTAccessSecret) < 32 {
		problems = append(problems, "JWT_ACCESS_SECRET must be at least 32 characters")
	}
	if len(c.PasskeyPepper) < 16 {
		problems = append(problems, "PASSKEY_PEPPER must be at least 16 characters")
	}
	if c.GateStoreFailureMode != FailureModeOpen && c.GateStoreFailureMode != FailureModeClosed {
		problems = append(problems, fmt.Sprintf("GATE_STORE_FAILURE_MODE must be %s or %s", FailureModeOpen, FailureModeClosed))
	}
	if !strings.HasPrefix(c.MaintenancePath, "/") {
		problems = append(problems, "MAINTENANCE_PATH must start with /")
	}
	if c.PasskeyMaxFailures < 1 {
		problems = append(problems, "PASSKEY_MAX_FAILURES must be positive")
	}
	if c.PasskeyTokenMaxFailures < c.PasskeyMaxFailures {
		problems = append(problems, "PASSKEY_TOKEN_MAX_FAILURES must be at least PASSKEY_MAX_FAILURES")
	}
	if c.SessionTTL <= 0 {
		problems = append(problems, "SESSION_TTL must be positive")
	}
	switch c.EventsSink {
	case EventsSinkNone:
	case EventsSinkKafka:
		if len(c.KafkaBrokers) == 0 {
			problems = append(problems, "KAFKA_BROKERS is required when EVENTS_SINK=kafka")
		}
	case EventsSinkAMQP:
		if c.AMQPURL == "" {
			problems = append(problems, "AMQP_URL is required when EVENTS_SINK=amqp")
		}
	default:
		problems = append(problems, fmt.Sprintf("EVENTS_SINK %q is not supported", c.EventsSink))
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		problems = append(problems, "OTEL_TRACE_SAMPLING_RATIO must be within [0,1]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("validate config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return normalizeConfigProfile(c.Env) == "production" || normalizeConfigProfile(c.Env) == "prod"
}

type parser struct{ err error }

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("parse %s=%q: %w", key, value, err)
	}
}

func (p *parser) bool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

// prefixes parses a comma list of CIDRs or bare addresses; a bare address becomes a single-host prefix.
func (p *parser) prefixes(key string) []netip.Prefix {
	var out []netip.Prefix
	for _, part := range splitList(os.Getenv(key)) {
		if strings.Contains(part, "/") {
			prefix, err := netip.ParsePrefix(part)
			if err != nil {
				p.fail(key, part, err)
				return nil
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(part)
		if err != nil {
			p.fail(key, part, err)
			return nil
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
