package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"datanest-backend/internal/auth"
	"datanest-backend/internal/blob"
	"datanest-backend/internal/config"
	"datanest-backend/internal/events"
	"datanest-backend/internal/httpapi"
	"datanest-backend/internal/keylock"
	"datanest-backend/internal/market"
	"datanest-backend/internal/notify"
	"datanest-backend/internal/payment"
	"datanest-backend/internal/projections"
	"datanest-backend/internal/store"
)

var configFlag = &cli.StringFlag{
	Name:    "config",
	Usage:   "path to a TOML config file",
	EnvVars: []string{"DATANEST_CONFIG"},
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Start the API server and event consumers",
	Flags: []cli.Flag{
		configFlag,
		&cli.StringFlag{
			Name:  "addr",
			Usage: "listen address, overrides http.addr",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		if addr := cctx.String("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}

		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

var checkConfigCmd = &cli.Command{
	Name:  "check-config",
	Usage: "Load and validate the configuration, then exit",
	Flags: []cli.Flag{configFlag},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		log.Infow("config ok",
			"addr", cfg.HTTP.Addr,
			"kafka", cfg.Kafka.Broker != "",
			"redis", cfg.Redis.Addr != "",
			"stripe", cfg.Stripe.SecretKey != "",
			"smtp", cfg.SMTP.Addr != "")
		return nil
	},
}

func loadConfig(cctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return nil, xerrors.Errorf("loading config: %w", err)
	}
	if err := logging.SetLogLevel("*", cfg.LogLevel); err != nil {
		return nil, xerrors.Errorf("setting log level: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	st := store.NewMem()
	blobs, err := blob.NewFS(cfg.Storage.UploadDir, cfg.HTTP.MaxUploadBytes)
	if err != nil {
		return xerrors.Errorf("opening upload dir: %w", err)
	}
	issuer := auth.NewIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL.Std())

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warnw("redis not reachable at startup", "addr", cfg.Redis.Addr, "error", err)
		}
	}

	pub, err := publisher(cfg)
	if err != nil {
		return err
	}
	defer pub.Close()

	opts := []market.Option{
		market.WithPublisher(pub),
		market.WithPendingTTL(cfg.Market.PendingPurchaseTTL.Std()),
	}
	if cfg.Redis.Lock {
		opts = append(opts, market.WithLocker(keylock.NewRedis(rdb, cfg.Redis.Prefix+"lock:", cfg.Redis.LockTTL.Std())))
	}
	svc := market.New(st, gateway(cfg), blobs, issuer, opts...)

	var stats *projections.Stats
	if rdb != nil {
		stats = projections.NewStats(rdb, cfg.Redis.Prefix)
	}
	api := httpapi.NewServer(svc, auth.NewProvider(issuer, st), stats, httpapi.Options{
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		RateLimit:      cfg.HTTP.RateLimit,
		RateBurst:      cfg.HTTP.RateBurst,
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("datanest API listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return xerrors.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Infow("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout.Std())
		defer cancel()
		return server.Shutdown(sctx)
	})

	if cfg.Kafka.Broker != "" {
		consume(gctx, g, cfg, "datanest-notify", notify.NewNotifier(st, sender(cfg)).Handle)
		if rdb != nil {
			consume(gctx, g, cfg, "datanest-projections", projections.NewProjector(rdb, cfg.Redis.Prefix).Handle)
		}
	}

	return g.Wait()
}

// consume runs one consumer group. A broken consumer is logged but does not
// take the API down.
func consume(ctx context.Context, g *errgroup.Group, cfg *config.Config, group string, h events.Handler) {
	r := events.NewReader(cfg.Kafka.Broker, cfg.Kafka.Topic, group)
	g.Go(func() error {
		defer r.Close()
		if err := events.Consume(ctx, group, r, h); err != nil {
			log.Errorw("consumer stopped", "consumer", group, "error", err)
		}
		return nil
	})
}

func publisher(cfg *config.Config) (events.Publisher, error) {
	if cfg.Kafka.Broker != "" {
		return events.NewKafka(cfg.Kafka.Broker, cfg.Kafka.Topic), nil
	}
	f, err := events.NewFile(cfg.Storage.EventDir)
	if err != nil {
		return nil, xerrors.Errorf("opening event dir: %w", err)
	}
	log.Infow("no kafka broker configured; writing events to disk", "dir", cfg.Storage.EventDir)
	return f, nil
}

func gateway(cfg *config.Config) payment.Gateway {
	switch {
	case cfg.Stripe.SecretKey != "":
		return payment.NewStripe(cfg.Stripe.SecretKey, cfg.Stripe.BaseURL, cfg.Stripe.Timeout.Std())
	case cfg.Stripe.Fake:
		log.Warnw("stripe.fake is enabled; purchases complete without payment")
		return payment.NewFake()
	}
	log.Warnw("no stripe key configured; checkout is disabled")
	return payment.Unavailable{}
}

func sender(cfg *config.Config) notify.Sender {
	if cfg.SMTP.Addr == "" {
		return notify.LogSender{}
	}
	return notify.SMTPSender{
		Addr:     cfg.SMTP.Addr,
		From:     cfg.SMTP.From,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
	}
}
