package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config хранит все параметры приложения
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	Services ServicesConfig `yaml:"services"`
	Poller   PollerConfig   `yaml:"poller"`
	Listener ListenerConfig `yaml:"listener"`
	Override OverrideConfig `yaml:"override"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
	UseTLS   bool   `yaml:"tls"`
	Exchange string `yaml:"exchange"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ServicesConfig holds base URLs of the backend collaborators.
type ServicesConfig struct {
	Identity     string `yaml:"identity"`
	Gateway      string `yaml:"gateway"`
	Stock        string `yaml:"stock"`
	Kitchen      string `yaml:"kitchen"`
	Notification string `yaml:"notification"`
}

type PollerConfig struct {
	Source   string        `yaml:"source"` // http | postgres
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ListenerConfig struct {
	Transport  string        `yaml:"transport"` // sse | amqp | redis
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type OverrideConfig struct {
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	Timeout       time.Duration `yaml:"timeout"`
}

type ServiceEndpoint struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type MonitorConfig struct {
	Interval         time.Duration     `yaml:"interval"`
	ProbeTimeout     time.Duration     `yaml:"probe_timeout"`
	LatencyThreshold time.Duration     `yaml:"latency_threshold"`
	LatencyService   string            `yaml:"latency_service"`
	ChaosService     string            `yaml:"chaos_service"`
	Probes           []ServiceEndpoint `yaml:"probes"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Default() Config {
	return Config{
		Database: DatabaseConfig{Port: 5432, SSLMode: "disable", MaxConns: 10},
		RabbitMQ: RabbitMQConfig{Port: 5672, VHost: "/", Exchange: "notifications_fanout"},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Services: ServicesConfig{
			Identity:     "http://localhost:8001",
			Gateway:      "http://localhost:8002",
			Stock:        "http://localhost:8003",
			Kitchen:      "http://localhost:8004",
			Notification: "http://localhost:8005",
		},
		Poller:   PollerConfig{Source: "http", Interval: 5 * time.Second, Timeout: 5 * time.Second},
		Listener: ListenerConfig{Transport: "sse", RetryDelay: 3 * time.Second},
		Override: OverrideConfig{RatePerSecond: 5, Burst: 10, Timeout: 5 * time.Second},
		Monitor: MonitorConfig{
			Interval:         15 * time.Second,
			ProbeTimeout:     5 * time.Second,
			LatencyThreshold: time.Second,
			LatencyService:   "order-gateway",
			ChaosService:     "notification-hub",
		},
		HTTP: HTTPConfig{Addr: ":3003"},
		Log:  LogConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults and applies ORDER_SYNC_* overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnv(&cfg)
	cfg.fillProbes()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv builds a config from defaults and environment only.
func FromEnv() (*Config, error) {
	cfg := Default()
	applyEnv(&cfg)
	cfg.fillProbes()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Poller.Source {
	case "http":
		if c.Services.Kitchen == "" {
			errs = append(errs, errors.New("services.kitchen is required for poller.source=http"))
		}
	case "postgres":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.Database == "" {
			errs = append(errs, errors.New("database config incomplete"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown poller.source %q", c.Poller.Source))
	}
	switch c.Listener.Transport {
	case "sse":
		if c.Services.Notification == "" {
			errs = append(errs, errors.New("services.notification is required for listener.transport=sse"))
		}
	case "amqp":
		if c.RabbitMQ.Host == "" || c.RabbitMQ.User == "" {
			errs = append(errs, errors.New("rabbitmq config incomplete"))
		}
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for listener.transport=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown listener.transport %q", c.Listener.Transport))
	}
	if c.Poller.Interval <= 0 {
		errs = append(errs, errors.New("poller.interval must be positive"))
	}
	if c.Monitor.Interval <= 0 {
		errs = append(errs, errors.New("monitor.interval must be positive"))
	}
	return errors.Join(errs...)
}

// fillProbes derives the probe list from service URLs when none is configured.
func (c *Config) fillProbes() {
	if len(c.Monitor.Probes) > 0 {
		return
	}
	for _, p := range []ServiceEndpoint{
		{Name: "identity-provider", URL: c.Services.Identity},
		{Name: "order-gateway", URL: c.Services.Gateway},
		{Name: "stock-service", URL: c.Services.Stock},
		{Name: "kitchen-queue", URL: c.Services.Kitchen},
		{Name: "notification-hub", URL: c.Services.Notification},
	} {
		if p.URL != "" {
			p.URL = strings.TrimRight(p.URL, "/") + "/health"
			c.Monitor.Probes = append(c.Monitor.Probes, p)
		}
	}
}

func applyEnv(c *Config) {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv("ORDER_SYNC_" + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	set("DATABASE_HOST", &c.Database.Host)
	set("DATABASE_PASSWORD", &c.Database.Password)
	set("RABBITMQ_HOST", &c.RabbitMQ.Host)
	set("RABBITMQ_PASSWORD", &c.RabbitMQ.Password)
	set("REDIS_ADDR", &c.Redis.Addr)
	set("REDIS_PASSWORD", &c.Redis.Password)
	set("IDENTITY_URL", &c.Services.Identity)
	set("GATEWAY_URL", &c.Services.Gateway)
	set("STOCK_URL", &c.Services.Stock)
	set("KITCHEN_URL", &c.Services.Kitchen)
	set("NOTIFICATION_URL", &c.Services.Notification)
	set("POLLER_SOURCE", &c.Poller.Source)
	set("LISTENER_TRANSPORT", &c.Listener.Transport)
	set("HTTP_ADDR", &c.HTTP.Addr)
	set("LOG_LEVEL", &c.Log.Level)
}

func FindConfig() (string, error) {
	candidates := []string{"config.yaml", "config.yml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}
