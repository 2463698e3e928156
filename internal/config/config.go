package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment    string
	Server         ServerConfig
	Gateway        GatewayConfig
	RateLimit      RateLimitConfig
	Redis          RedisConfig
	CircuitBreaker CircuitBreakerConfig
	CORS           CORSConfig
	Logging        LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type GatewayConfig struct {
	// Timeout bounds every downstream call unless a service overrides it.
	Timeout       time.Duration
	AuthService   string
	MarketService string
	// MaxResponseBytes caps how much of a downstream body is read.
	MaxResponseBytes int64
	Services         []ServiceConfig
}

type ServiceConfig struct {
	Name          string `yaml:"name"`
	URL           string `yaml:"url"`
	ReadinessPath string `yaml:"readiness_path"`
	// Timeout in seconds, 0 means the gateway default.
	Timeout int `yaml:"timeout"`
}

type RateLimitConfig struct {
	Enabled   bool
	Threshold int
	Interval  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	DB       int
	Cluster  bool
	Active   bool
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type CircuitBreakerConfig struct {
	Enabled      bool
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

type LoggingConfig struct {
	Level      string
	JSONFormat bool
}

const defaultReadinessPath = "/readiness"

// Load reads the configuration from the environment. Call godotenv.Load
// beforehand to pick up a .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Environment: v.GetString("ENVIRONMENT"),
		Server: ServerConfig{
			Host:         v.GetString("SERVER_HOST"),
			Port:         v.GetString("SERVER_PORT"),
			ReadTimeout:  v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout: v.GetInt("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:  v.GetInt("SERVER_IDLE_TIMEOUT"),
		},
		Gateway: GatewayConfig{
			Timeout:       seconds(v.GetInt("GATEWAY_TIMEOUT")),
			AuthService:   v.GetString("GATEWAY_AUTH_SERVICE"),
			MarketService: v.GetString("GATEWAY_MARKET_SERVICE"),

			MaxResponseBytes: v.GetInt64("GATEWAY_MAX_RESPONSE_BYTES"),
		},
		RateLimit: RateLimitConfig{
			Enabled:   v.GetBool("RATE_LIMIT_ENABLED"),
			Threshold: v.GetInt("RATE_LIMIT_THRESHOLD"),
			Interval:  seconds(v.GetInt("RATE_LIMIT_INTERVAL")),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Username: v.GetString("REDIS_USERNAME"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Cluster:  v.GetBool("REDIS_CLUSTER"),
			Active:   v.GetBool("REDIS_ACTIVE"),
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:      v.GetBool("CIRCUIT_BREAKER_ENABLED"),
			MaxRequests:  v.GetUint32("CIRCUIT_BREAKER_MAX_REQUESTS"),
			Interval:     seconds(v.GetInt("CIRCUIT_BREAKER_INTERVAL")),
			Timeout:      seconds(v.GetInt("CIRCUIT_BREAKER_TIMEOUT")),
			MinRequests:  v.GetUint32("CIRCUIT_BREAKER_MIN_REQUESTS"),
			FailureRatio: v.GetFloat64("CIRCUIT_BREAKER_FAILURE_RATIO"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   parseStringSlice(v.GetString("CORS_ALLOWED_ORIGINS")),
			AllowedMethods:   parseStringSlice(v.GetString("CORS_ALLOWED_METHODS")),
			AllowedHeaders:   parseStringSlice(v.GetString("CORS_ALLOWED_HEADERS")),
			ExposedHeaders:   parseStringSlice(v.GetString("CORS_EXPOSED_HEADERS")),
			AllowCredentials: v.GetBool("CORS_ALLOW_CREDENTIALS"),
			MaxAge:           v.GetInt("CORS_MAX_AGE"),
		},
		Logging: LoggingConfig{
			Level:      v.GetString("LOG_LEVEL"),
			JSONFormat: v.GetBool("LOG_JSON_FORMAT"),
		},
	}

	if err := cfg.loadUpstreamServices(v); err != nil {
		return nil, fmt.Errorf("failed to load upstream services: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 60)
	v.SetDefault("SERVER_IDLE_TIMEOUT", 90)

	v.SetDefault("GATEWAY_TIMEOUT", 59)
	v.SetDefault("GATEWAY_AUTH_SERVICE", "auth")
	v.SetDefault("GATEWAY_MARKET_SERVICE", "market")
	v.SetDefault("GATEWAY_MAX_RESPONSE_BYTES", 10<<20)
	v.SetDefault("GATEWAY_AUTH_URL", "http://localhost:8000")
	v.SetDefault("GATEWAY_MARKET_URL", "http://localhost:8001")
	v.SetDefault("UPSTREAM_SERVICES_FILE", "config/services.yaml")
	v.SetDefault("UPSTREAM_SERVICE_COUNT", 0)

	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_THRESHOLD", 100)
	v.SetDefault("RATE_LIMIT_INTERVAL", 60)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_CLUSTER", false)
	v.SetDefault("REDIS_ACTIVE", true)

	v.SetDefault("CIRCUIT_BREAKER_ENABLED", true)
	v.SetDefault("CIRCUIT_BREAKER_MAX_REQUESTS", 10)
	v.SetDefault("CIRCUIT_BREAKER_INTERVAL", 1)
	v.SetDefault("CIRCUIT_BREAKER_TIMEOUT", 5)
	v.SetDefault("CIRCUIT_BREAKER_MIN_REQUESTS", 3)
	v.SetDefault("CIRCUIT_BREAKER_FAILURE_RATIO", 0.6)

	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,PATCH,OPTIONS")
	v.SetDefault("CORS_ALLOWED_HEADERS", "Accept,Authorization,Content-Type,X-Requested-With")
	v.SetDefault("CORS_EXPOSED_HEADERS", "Location")
	v.SetDefault("CORS_ALLOW_CREDENTIALS", true)
	v.SetDefault("CORS_MAX_AGE", 300)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_JSON_FORMAT", false)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error

	if strings.TrimSpace(c.Server.Port) == "" {
		err = multierr.Append(err, errors.New("SERVER_PORT is required"))
	}
	if c.Gateway.Timeout <= 0 {
		err = multierr.Append(err, errors.New("GATEWAY_TIMEOUT must be > 0"))
	}
	if c.Gateway.MaxResponseBytes <= 0 {
		err = multierr.Append(err, errors.New("GATEWAY_MAX_RESPONSE_BYTES must be > 0"))
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Threshold <= 0 {
			err = multierr.Append(err, errors.New("RATE_LIMIT_THRESHOLD must be > 0"))
		}
		if c.RateLimit.Interval <= 0 {
			err = multierr.Append(err, errors.New("RATE_LIMIT_INTERVAL must be > 0"))
		}
	}
	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.FailureRatio <= 0 || c.CircuitBreaker.FailureRatio > 1 {
			err = multierr.Append(err, errors.New("CIRCUIT_BREAKER_FAILURE_RATIO must be in (0, 1]"))
		}
	}
	if len(c.Gateway.Services) == 0 {
		err = multierr.Append(err, errors.New("no upstream services configured"))
	}
	for i, svc := range c.Gateway.Services {
		if strings.TrimSpace(svc.Name) == "" {
			err = multierr.Append(err, fmt.Errorf("service %d: name is required", i))
		}
		if strings.TrimSpace(svc.URL) == "" {
			err = multierr.Append(err, fmt.Errorf("service %q: url is required", svc.Name))
		}
	}

	return err
}

func (c *Config) loadUpstreamServices(v *viper.Viper) error {
	servicesYAML := v.GetString("UPSTREAM_SERVICES_FILE")

	data, err := os.ReadFile(servicesYAML)
	if err != nil {
		// Fallback to environment variables if file not found
		return c.loadUpstreamServicesFromEnv(v)
	}

	services, err := ParseServices(data)
	if err != nil {
		return err
	}

	c.Gateway.Services = services
	return nil
}

// ParseServices decodes a YAML list of services.
func ParseServices(data []byte) ([]ServiceConfig, error) {
	var services []ServiceConfig
	if err := yaml.Unmarshal(data, &services); err != nil {
		return nil, fmt.Errorf("failed to parse services YAML: %w", err)
	}

	for i := range services {
		if services[i].ReadinessPath == "" {
			services[i].ReadinessPath = defaultReadinessPath
		}
	}
	return services, nil
}

func (c *Config) loadUpstreamServicesFromEnv(v *viper.Viper) error {
	// Example: UPSTREAM_SERVICE_0_NAME=auth UPSTREAM_SERVICE_0_URL=http://localhost:8000
	serviceCount := v.GetInt("UPSTREAM_SERVICE_COUNT")

	for i := 0; i < serviceCount; i++ {
		prefix := fmt.Sprintf("UPSTREAM_SERVICE_%d_", i)
		url := v.GetString(prefix + "URL")
		if url == "" {
			continue
		}

		readiness := v.GetString(prefix + "READINESS_PATH")
		if readiness == "" {
			readiness = defaultReadinessPath
		}

		c.Gateway.Services = append(c.Gateway.Services, ServiceConfig{
			Name:          v.GetString(prefix + "NAME"),
			URL:           url,
			ReadinessPath: readiness,
			Timeout:       v.GetInt(prefix + "TIMEOUT"),
		})
	}

	if len(c.Gateway.Services) > 0 {
		return nil
	}

	c.Gateway.Services = []ServiceConfig{
		{Name: c.Gateway.AuthService, URL: v.GetString("GATEWAY_AUTH_URL"), ReadinessPath: defaultReadinessPath},
		{Name: c.Gateway.MarketService, URL: v.GetString("GATEWAY_MARKET_URL"), ReadinessPath: defaultReadinessPath},
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func parseStringSlice(input string) []string {
	var result []string
	for _, v := range strings.Split(input, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
