package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/pflag"

	"github.com/example/fleet-tracker/internal/config"
	"github.com/example/fleet-tracker/internal/geo"
	"github.com/example/fleet-tracker/internal/ingest"
	"github.com/example/fleet-tracker/internal/logging"
	"github.com/example/fleet-tracker/internal/models"
	"github.com/example/fleet-tracker/internal/storage"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fleet",
		Name:      "consumer_messages_consumed_total",
		Help:      "Total driver location messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fleet",
		Name:      "consumer_messages_invalid_total",
		Help:      "Total invalid messages received",
	})
	redisUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fleet",
		Name:      "consumer_redis_updates_total",
		Help:      "Total successful redis updates",
	})
	redisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fleet",
		Name:      "consumer_redis_errors_total",
		Help:      "Total redis errors",
	})
	historyErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fleet",
		Name:      "consumer_history_errors_total",
		Help:      "Total failed history appends",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, redisUpdates, redisErrors, historyErrors)
}

func main() {
	var metricsAddr string
	pflag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	pflag.Parse()

	config.LoadDotEnvUp(6)
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.LogLevel, cfg.Environment).With().Str("service", "consumer").Logger()

	brokers := cfg.Kafka.Brokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	redisAddr := cfg.Redis.Addr
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rc := redis.NewClient(&redis.Options{Addr: redisAddr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	radapter := &redisAdapter{c: rc}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var history storage.HistoryStore = storage.NewMemoryHistory()
	if cfg.Postgres.DSN != "" {
		if cfg.Postgres.Migrate {
			if err := storage.Migrate(cfg.Postgres.DSN); err != nil {
				logger.Fatal().Err(err).Msg("migrations failed")
			}
		}
		pg, err := storage.NewPostgresHistory(ctx, cfg.Postgres.DSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres unavailable")
		}
		defer pg.Close()
		history = pg
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info().Str("addr", metricsAddr).Msg("metrics/health listening")
		if err := http.ListenAndServe(metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: cfg.Kafka.Topic, GroupID: cfg.Kafka.Group, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info().Str("topic", cfg.Kafka.Topic).Strs("brokers", brokers).Str("group", cfg.Kafka.Group).Msg("consumer listening")

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info().Msg("shutting down consumer")
				return
			}
			logger.Warn().Err(err).Dur("backoff", backoff).Msg("kafka read error")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		ev, err := ingest.DecodeLocation(m)
		if err != nil {
			msgsInvalid.Inc()
			logger.Warn().Err(err).Msg("invalid message")
			continue
		}

		if err := history.AppendSample(ctx, ev); err != nil {
			historyErrors.Inc()
			logger.Warn().Err(err).Int64("driver_id", ev.DriverID).Msg("history append failed")
		}

		if err := updateRedisWithRetry(ctx, radapter, &ev, cfg.Redis.GeoKey, 3, 200*time.Millisecond); err != nil {
			redisErrors.Inc()
			logger.Error().Err(err).Int64("driver_id", ev.DriverID).Msg("redis update failed")
			continue
		}
		redisUpdates.Inc()
	}
}

// RedisUpdater is the subset of redis the consumer writes through.
type RedisUpdater interface {
	GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error
	HSet(ctx context.Context, key string, values map[string]interface{}) error
}

type redisAdapter struct{ c *redis.Client }

func (r *redisAdapter) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	_, err := r.c.GeoAdd(ctx, key, loc).Result()
	return err
}

func (r *redisAdapter) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	_, err := r.c.HSet(ctx, key, values).Result()
	return err
}

// updateRedisWithRetry writes the position and its timestamp, doubling the
// delay after each failed attempt.
func updateRedisWithRetry(ctx context.Context, rc RedisUpdater, ev *models.LocationEvent, geoKey string, attempts int, delay time.Duration) error {
	id := strconv.FormatInt(ev.DriverID, 10)
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		if lastErr = rc.GeoAdd(ctx, geoKey, &redis.GeoLocation{Longitude: ev.Longitude, Latitude: ev.Latitude, Name: id}); lastErr != nil {
			continue
		}
		if lastErr = rc.HSet(ctx, geo.MetaKey(ev.DriverID), map[string]interface{}{"updated": ev.RecordedAt.Unix()}); lastErr != nil {
			continue
		}
		return nil
	}
	return lastErr
}
