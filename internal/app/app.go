// Package app builds the components of a viewer session from configuration.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"order-sync/internal/client"
	"order-sync/internal/common/logger"
	"order-sync/internal/config"
	"order-sync/internal/connections/database"
	"order-sync/internal/connections/rabbitmq"
	"order-sync/internal/health"
	"order-sync/internal/listener"
	"order-sync/internal/override"
	"order-sync/internal/poller"
	"order-sync/internal/repository"
	"order-sync/internal/session"
)

type Credentials struct {
	StudentID string
	Password  string
}

func httpClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Source builds the snapshot source selected by poller.source.
func Source(ctx context.Context, cfg *config.Config, lg *logger.Logger) (poller.Source, func(), error) {
	switch cfg.Poller.Source {
	case "postgres":
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		lg.Info("db_connected", map[string]any{"host": cfg.Database.Host, "database": cfg.Database.Database})
		return repository.NewOrdersPG(pool), pool.Close, nil
	case "http", "":
		return repository.NewKitchenHTTP(cfg.Services.Kitchen, httpClient(cfg.Poller.Timeout)), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown poller source %q", cfg.Poller.Source)
	}
}

// Transport builds the push transport selected by listener.transport.
func Transport(cfg *config.Config) (listener.Transport, func(), error) {
	retry := cfg.Listener.RetryDelay
	switch cfg.Listener.Transport {
	case "sse", "":
		// no client timeout: the stream stays open until the order settles
		return listener.NewSSETransport(cfg.Services.Notification, &http.Client{}, retry), func() {}, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		return listener.NewRedisTransport(rdb, retry), func() { _ = rdb.Close() }, nil
	case "amqp":
		dial := func() (*rabbitmq.Client, error) { return rabbitmq.Dial(cfg.RabbitMQ) }
		return listener.NewAMQPTransport(dial, cfg.RabbitMQ.Exchange, retry), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown listener transport %q", cfg.Listener.Transport)
	}
}

// Login authenticates against the identity service.
func Login(ctx context.Context, cfg *config.Config, creds Credentials) (client.Token, error) {
	ac := client.NewAuthClient(cfg.Services.Identity, httpClient(10*time.Second))
	return ac.Login(ctx, creds.StudentID, creds.Password)
}

// BoardSession builds an operator board session with override commands.
func BoardSession(ctx context.Context, cfg *config.Config, lg *logger.Logger) (*session.Session, func(), error) {
	src, closeSrc, err := Source(ctx, cfg, lg)
	if err != nil {
		return nil, nil, err
	}
	p := poller.New(src, poller.Scope{},
		poller.WithInterval(cfg.Poller.Interval),
		poller.WithTimeout(cfg.Poller.Timeout),
		poller.WithLogger(lg))
	kitchen := client.NewKitchenClient(cfg.Services.Kitchen, httpClient(cfg.Override.Timeout))
	s := session.New(p,
		session.WithLogger(lg),
		session.WithOverride(kitchen,
			override.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Override.RatePerSecond), cfg.Override.Burst)),
			override.WithTimeout(cfg.Override.Timeout),
			override.WithLogger(lg)))
	return s, closeSrc, nil
}

// TrackSession builds a customer session following one order.
func TrackSession(ctx context.Context, cfg *config.Config, orderID string, lg *logger.Logger) (*session.Session, func(), error) {
	src, closeSrc, err := Source(ctx, cfg, lg)
	if err != nil {
		return nil, nil, err
	}
	tr, closeTr, err := Transport(cfg)
	if err != nil {
		closeSrc()
		return nil, nil, err
	}
	p := poller.New(src, poller.Scope{OrderID: orderID},
		poller.WithTimeout(cfg.Poller.Timeout),
		poller.WithLogger(lg))
	s := session.New(p,
		session.WithLogger(lg),
		session.WithListener(listener.New(tr, listener.WithLogger(lg))),
		session.WithFallbackInterval(cfg.Poller.Interval))
	return s, func() { closeTr(); closeSrc() }, nil
}

// Monitor builds the health & chaos monitor.
func Monitor(cfg *config.Config, lg *logger.Logger) *health.Monitor {
	probes := make([]health.Probe, 0, len(cfg.Monitor.Probes))
	for _, p := range cfg.Monitor.Probes {
		probes = append(probes, health.Probe{Name: p.Name, URL: p.URL})
	}
	opts := []health.Option{
		health.WithHTTPClient(&http.Client{}),
		health.WithInterval(cfg.Monitor.Interval),
		health.WithProbeTimeout(cfg.Monitor.ProbeTimeout),
		health.WithLatencyAlert(cfg.Monitor.LatencyService, cfg.Monitor.LatencyThreshold),
		health.WithLogger(lg),
	}
	if base := chaosBase(cfg); base != "" {
		opts = append(opts, health.WithChaos(base))
	}
	return health.New(probes, opts...)
}

// chaosBase maps the designated chaos service to its control endpoint.
func chaosBase(cfg *config.Config) string {
	switch cfg.Monitor.ChaosService {
	case "notification-hub", "":
		if cfg.Services.Notification == "" {
			return ""
		}
		return cfg.Services.Notification + "/notifications"
	default:
		for _, p := range cfg.Monitor.Probes {
			if p.Name == cfg.Monitor.ChaosService {
				u := p.URL
				if len(u) > len("/health") && u[len(u)-len("/health"):] == "/health" {
					u = u[:len(u)-len("/health")]
				}
				return u
			}
		}
	}
	return ""
}
