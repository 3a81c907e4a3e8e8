package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devroad/mentorchat/internal/auth"
	"github.com/devroad/mentorchat/internal/chat"
	"github.com/devroad/mentorchat/internal/db"
	"github.com/devroad/mentorchat/internal/events"
	"github.com/devroad/mentorchat/internal/handlers"
	"github.com/devroad/mentorchat/internal/logger"
	"github.com/devroad/mentorchat/internal/media"
	"github.com/devroad/mentorchat/internal/metrics"
	"github.com/devroad/mentorchat/internal/push"
	"github.com/devroad/mentorchat/internal/ratelimit"
	"github.com/devroad/mentorchat/internal/ws"
	"github.com/devroad/mentorchat/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: !cfg.IsProduction(),
		Output: os.Stderr,
	})

	if len(os.Args) > 1 {
		if err := runCommand(cfg, log, os.Args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := runServer(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func runCommand(cfg *config.Config, log *logger.Logger, args []string) error {
	command := args[0]

	switch command {
	case "serve":
		return runServer(cfg, log)
	case "status":
		return runStatus(cfg, os.Stdout, args[1:])
	case "role":
		return runRole(cfg, os.Stdout, args[1:])
	case "vapid":
		return runVAPID(os.Stdout)
	case "client":
		return runClient(os.Stdout, args[1:])
	case "-h", "--help", "help":
		printUsage(os.Stdout)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  mentorchat                                Start the web server")
	fmt.Fprintln(out, "  mentorchat status [--json]                Show application statistics")
	fmt.Fprintln(out, "  mentorchat role <username> <role>         Change a user's role")
	fmt.Fprintln(out, "  mentorchat role --create <username> <password> <role> [display name]")
	fmt.Fprintln(out, "  mentorchat vapid                          Generate a VAPID key pair")
	fmt.Fprintln(out, "  mentorchat client <command> [args]        Talk to a running server")
}

// services holds everything the router is built from, plus what has to be
// closed on shutdown.
type services struct {
	database *db.DB
	hub      *ws.Hub
	notifier *push.Notifier
	amqp     *events.AMQPPublisher
	router   *gin.Engine
}

func (s *services) Close() {
	if s.notifier != nil {
		s.notifier.Wait()
	}
	if s.amqp != nil {
		s.amqp.Close()
	}
	s.database.Close()
}

func buildServices(ctx context.Context, cfg *config.Config, log *logger.Logger) (*services, error) {
	if err := os.MkdirAll(cfg.FileStoragePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	s := &services{database: database}
	conn := database.GetConn()
	m := metrics.New()

	guard, err := newGuard(cfg, m)
	if err != nil {
		database.Close()
		return nil, err
	}

	store, err := newMediaStore(ctx, cfg, log)
	if err != nil {
		database.Close()
		return nil, err
	}

	s.hub = ws.NewHub(log, m).AllowOrigins(cfg.CORSOrigins)
	s.notifier = push.NewNotifier(conn, cfg.VAPIDPublic, cfg.VAPIDPrivate, cfg.PushSubscriber, log)

	fanout := events.NewFanout(log.Component("events"), s.hub)
	if s.notifier != nil {
		fanout.Add(s.notifier)
	} else {
		log.Info().Msg("push notifications disabled, VAPID keys not set")
	}
	if cfg.AMQPURL != "" {
		s.amqp, err = events.DialAMQP(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			// delivery to the broker is best effort, chat keeps working
			log.Warn().Err(err).Msg("amqp unavailable, message events will not be published")
		} else {
			fanout.Add(s.amqp)
		}
	}

	s.router = handlers.NewRouter(handlers.Deps{
		Config:    cfg,
		Log:       log,
		Metrics:   m,
		Auth:      auth.New(conn, cfg.JWTSecret),
		Directory: chat.NewDirectory(conn, m),
		Messages:  chat.NewMessageStore(conn, m),
		Guard:     guard,
		Uploader:  media.NewUploader(store, m),
		Events:    fanout,
		Hub:       s.hub,
		Push:      s.notifier,
	})
	return s, nil
}

// newGuard shares rate limit counters through redis when configured.
func newGuard(cfg *config.Config, m *metrics.Metrics) (*ratelimit.Guard, error) {
	if cfg.RateLimitRedisURL == "" {
		return ratelimit.NewMemory(m), nil
	}
	opts, err := redis.ParseURL(cfg.RateLimitRedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_REDIS_URL: %w", err)
	}
	return ratelimit.NewRedis(redis.NewClient(opts), m)
}

// newMediaStore writes to S3 when a bucket is configured and keeps the local
// directory as fallback.
func newMediaStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (media.Store, error) {
	local := media.NewLocalStore(cfg.FileStoragePath, cfg.PublicBaseURL)
	if cfg.AWSRegion == "" || cfg.S3Bucket == "" {
		return local, nil
	}
	s3Store, err := media.NewS3Store(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3PublicURL)
	if err != nil {
		return nil, err
	}
	return &media.FallbackStore{Primary: s3Store, Secondary: local, Log: log.Component("media")}, nil
}

func runServer(cfg *config.Config, log *logger.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := buildServices(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%s", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.LogServerStart(cfg.Port, cfg.DatabasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.LogServerShutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
