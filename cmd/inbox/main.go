package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/sms-inbox/internal/api"
	"github.com/LeventeLantos/sms-inbox/internal/client"
	"github.com/LeventeLantos/sms-inbox/internal/config"
	"github.com/LeventeLantos/sms-inbox/internal/notify"
	"github.com/LeventeLantos/sms-inbox/internal/repo"
	"github.com/LeventeLantos/sms-inbox/internal/scheduler"
	"github.com/LeventeLantos/sms-inbox/internal/service"
	"github.com/LeventeLantos/sms-inbox/internal/ticketing"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(os.Stdout, cfg.Log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("sms inbox stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func run(ctx context.Context, cfg *config.Config) error {
	if !cfg.Gateway.Configured() {
		slog.Warn("gateway credentials missing or placeholders; replies will fail until API_USERNAME and API_PASSWORD are set")
	}

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	gateway := client.NewGatewayClient(cfg.Gateway.URL, cfg.Gateway.Sender, cfg.Gateway.Username, cfg.Gateway.Password, cfg.Gateway.HTTPTimeout)

	var (
		pub    notify.Publisher = notify.Nop{}
		socket http.Handler
	)
	if cfg.Notify.Mode == config.ModePush {
		hub := notify.NewHub(cfg.Server.AllowedOrigins)
		defer hub.Close()
		socket = hub
		pub = hub

		heartbeat, err := scheduler.New("ws-heartbeat", cfg.Notify.Heartbeat, hub.Ping)
		if err != nil {
			return err
		}
		heartbeat.Start()
		defer heartbeat.Stop()

		if cfg.Redis.Enabled {
			bus, stopRelay, err := startRedisRelay(ctx, cfg.Redis, hub)
			if err != nil {
				return err
			}
			defer func() { _ = stopRelay() }()
			pub = bus
		}
	}

	inbox := service.NewInbox(store, gateway, pub, cfg.Store.ListLimit)
	if cfg.Ticketing.Enabled {
		tc := client.NewTicketingClient(cfg.Ticketing.URL, cfg.Ticketing.Token, cfg.Ticketing.Timeout)
		inbox.WithTicketing(ticketing.NewBridge(tc, store, cfg.Ticketing.Members, cfg.Ticketing.CountryCode), cfg.Ticketing.Timeout*3)
		slog.Info("ticketing enabled", "url", cfg.Ticketing.URL)
	}
	defer inbox.Wait()

	h := api.NewHandler(inbox, cfg.Notify.Mode, cfg.Notify.PollInterval)
	router := api.Router(h, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Socket:         socket,
		StaticDir:      cfg.Server.StaticDir,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(router),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("sms inbox starting",
			"addr", cfg.Server.Address,
			"store", cfg.Store.Driver,
			"notify", cfg.Notify.Mode,
			"redis", cfg.Redis.Enabled,
			"ticketing", cfg.Ticketing.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (repo.MessageRepository, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := repo.OpenPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		r := repo.NewPostgresMessageRepo(db, cfg.Table)
		if err := r.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return r, func() { _ = db.Close() }, nil

	case config.DriverBolt:
		r, err := repo.OpenBoltMessageRepo(cfg.BoltPath, cfg.Table)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil

	default:
		slog.Warn("using in-memory store; messages are lost on restart")
		return repo.NewMemoryMessageRepo(), func() {}, nil
	}
}

// startRedisRelay fans events out through Redis so every instance's sockets
// see every event. The local hub receives them via the relay.
func startRedisRelay(ctx context.Context, cfg config.RedisConfig, hub *notify.Hub) (*notify.RedisBus, func() error, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Address, err)
	}

	bus := notify.NewRedisBus(rdb, cfg.Channel)
	stopRelay, err := bus.Relay(ctx, hub)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	slog.Info("redis relay started", "addr", cfg.Address, "channel", cfg.Channel)

	return bus, func() error {
		return errors.Join(stopRelay(), rdb.Close())
	}, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps /ws upgrades working behind the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
