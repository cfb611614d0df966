package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Anmolmahajn/money-tracker-notifier/internal/application"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/config"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/connection"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/credential"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/domain"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/infrastructure/restapi"
	kafkapub "github.com/Anmolmahajn/money-tracker-notifier/internal/kafka"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/observability"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/session"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/transport/natspush"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/transport/stomp"
	transporthttp "github.com/Anmolmahajn/money-tracker-notifier/internal/transport/http"
)

func main() {
	// ── Logging ──────────────────────────────────────────────────────────────
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) > 1 {
		if err := runCommand(os.Args[1], os.Args[2:]); err != nil {
			log.Fatal().Err(err).Str("command", os.Args[1]).Msg("command failed")
		}
		return
	}

	// ── Config ───────────────────────────────────────────────────────────────
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if cfg.Server.Env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("env", cfg.Server.Env).
		Str("port", cfg.Server.Port).
		Str("transport", cfg.Push.Transport).
		Msg("starting money-tracker-notifier")

	// ── Session ──────────────────────────────────────────────────────────────
	var tokens *credential.TokenStore
	if cfg.Session.Token == "" && cfg.Session.UseKeyring {
		if tokens, err = credential.Open(); err != nil {
			log.Fatal().Err(err).Msg("keyring unavailable")
		}
	}
	token, err := credential.Resolve(cfg.Session.Token, tokens)
	if err != nil {
		log.Fatal().Err(err).Msg("no session token; set MT_NOTIF_SESSION_TOKEN or store one in the keyring")
	}
	sess, err := session.FromToken(token)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid session token")
	}
	log.Info().Str("session", sess.ID).Str("user", sess.UserID).Time("expires", sess.ExpiresAt).Msg("session loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Collaborators ────────────────────────────────────────────────────────
	metrics := observability.NewMetrics()
	backend := restapi.New(cfg.API.BaseURL, sess, cfg.API.Timeout)

	dialer, err := newDialer(cfg.Push, sess)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid push transport")
	}

	// ── Application Service ──────────────────────────────────────────────────
	svc := application.NewService(sess, dialer, backend, application.Options{
		Topic:    cfg.Push.Topic,
		Reporter: metrics,
		Connection: connection.Config{
			Backoff:          connection.Backoff{Base: cfg.Push.BaseDelay, Max: cfg.Push.MaxDelay},
			MaxRetries:       cfg.Push.MaxRetries,
			HandshakeTimeout: cfg.Push.HandshakeTimeout,
		},
		BaselineTimeout: cfg.API.Timeout,
	})

	hub := transporthttp.NewHub()
	svc.OnArrival(hub.BroadcastNotification)
	svc.OnArrival(metrics.Arrived)
	svc.OnStatusChange(hub.BroadcastStatus)
	svc.OnStatusChange(metrics.ObserveStatus)
	svc.OnRollback(metrics.Rollback)
	svc.OnUnreadChange(metrics.SetUnread)
	svc.OnUnreadChange(hub.BroadcastUnread)

	// ── Kafka Publisher (optional) ───────────────────────────────────────────
	var publisher *kafkapub.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err = kafkapub.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, sess)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka publisher")
		}
		svc.OnArrival(publisher.Publish)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka publisher enabled")
	}

	// ── HTTP Server ──────────────────────────────────────────────────────────
	router := transporthttp.NewRouter(transporthttp.NewHandler(svc, hub), sess.Token, metrics.Handler())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := router.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := svc.Start(gctx); err != nil {
			if errors.Is(err, domain.ErrUnauthorized) {
				return err
			}
			// Push keeps running; the baseline is retried on the next reconnect.
			log.Warn().Err(err).Msg("initial baseline unavailable")
		}
		return nil
	})

	// ── Graceful Shutdown ────────────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		svc.Logout()
		hub.Close()
		if err := router.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
		if publisher != nil {
			publisher.Close(shutdownCtx)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("money-tracker-notifier stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("money-tracker-notifier stopped")
}

func newDialer(cfg config.PushConfig, sess *domain.Session) (connection.Dialer, error) {
	switch cfg.Transport {
	case "", "stomp":
		return stomp.NewDialer(cfg.URL, sess), nil
	case "nats":
		return natspush.NewDialer(cfg.URL, sess), nil
	default:
		return nil, errors.New("unknown push transport " + cfg.Transport + " (want stomp or nats)")
	}
}

// runCommand handles the keyring maintenance commands.
func runCommand(name string, args []string) error {
	switch name {
	case "store-token":
		if len(args) != 1 {
			return errors.New("usage: notifier store-token <jwt>")
		}
		sess, err := session.FromToken(args[0])
		if err != nil {
			return err
		}
		tokens, err := credential.Open()
		if err != nil {
			return err
		}
		if err := tokens.Save(sess.Token); err != nil {
			return err
		}
		log.Info().Str("user", sess.UserID).Msg("session token stored in keyring")
		return nil
	case "forget-token":
		tokens, err := credential.Open()
		if err != nil {
			return err
		}
		if err := tokens.Forget(); err != nil {
			return err
		}
		log.Info().Msg("session token removed from keyring")
		return nil
	default:
		return errors.New("unknown command " + name + " (want store-token or forget-token)")
	}
}
