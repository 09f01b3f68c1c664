package main

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/clinical-intake/internal/bus"
	"github.com/tbourn/clinical-intake/internal/config"
	"github.com/tbourn/clinical-intake/internal/observability"
	"github.com/tbourn/clinical-intake/internal/repo"
	"github.com/tbourn/clinical-intake/internal/sysutil"
)

// app holds the process-wide dependencies of one stage.
type app struct {
	stage string
	cfg   config.Config
	log   zerolog.Logger
	db    *gorm.DB

	mem *bus.MemoryBus
	sqs *sqs.Client

	closers []func(context.Context) error
}

// bootstrap loads configuration, sets up logging and tracing, opens the
// stage's database and migrates the tables the stage owns.
func bootstrap(ctx context.Context, stage string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	gin.SetMode(cfg.GinMode)

	a := &app{
		stage: stage,
		cfg:   cfg,
		log:   sysutil.NewLogger(cfg.LogLevel, cfg.LogPretty, stage),
	}

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, stage, version)
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}
	a.onClose(shutdownOTel)

	db, err := repo.Open(cfg.DB)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("db: %w", err)
	}
	a.db = db
	a.onClose(func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	if err := repo.AutoMigrate(db, repo.ModelsFor(stage)...); err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a.log.Info().
		Str("version", version).
		Str("db_driver", cfg.DB.Driver).
		Str("bus_driver", cfg.Bus.Driver).
		Msg("stage bootstrapped")
	return a, nil
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// close releases resources in reverse acquisition order.
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Warn().Err(err).Msg("shutdown step failed")
		}
	}
	a.closers = nil
}

// ready pings the database.
func (a *app) ready(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// publisher returns an event publisher bound to topic on the configured
// transport.
func (a *app) publisher(ctx context.Context, topic string) (*bus.EventPublisher, error) {
	var pub bus.Publisher
	switch a.cfg.Bus.Driver {
	case "kafka":
		kp := bus.NewKafkaPublisher(a.cfg.Bus.Brokers)
		a.onClose(func(context.Context) error { return kp.Close() })
		pub = kp
	case "sqs":
		client, err := a.sqsClient(ctx)
		if err != nil {
			return nil, err
		}
		pub = bus.NewSQSPublisher(client)
	case "memory":
		pub = a.memoryBus()
	default:
		return nil, fmt.Errorf("unsupported bus driver %q", a.cfg.Bus.Driver)
	}
	return bus.NewEventPublisher(pub, topic, a.log), nil
}

// subscriber returns a subscriber on topics for this stage's consumer group.
func (a *app) subscriber(ctx context.Context, topics ...string) (bus.Subscriber, error) {
	if len(topics) == 0 {
		return nil, errors.New("no topics to subscribe to")
	}
	var sub bus.Subscriber
	switch a.cfg.Bus.Driver {
	case "kafka":
		group := a.cfg.Bus.GroupPrefix + "-" + a.stage
		sub = bus.NewKafkaSubscriber(a.cfg.Bus.Brokers, group, topics, a.cfg.Bus.MaxBackoff, a.log)
	case "sqs":
		client, err := a.sqsClient(ctx)
		if err != nil {
			return nil, err
		}
		g := make(bus.Group, 0, len(topics))
		for _, t := range topics {
			g = append(g, bus.NewSQSSubscriber(client, t, a.log))
		}
		sub = g
	case "memory":
		sub = a.memoryBus().Subscribe(topics...)
	default:
		return nil, fmt.Errorf("unsupported bus driver %q", a.cfg.Bus.Driver)
	}
	a.onClose(func(context.Context) error { return sub.Close() })
	return sub, nil
}

// memoryBus is only useful for local development: it delivers within this
// process, so other stages never see the events.
func (a *app) memoryBus() *bus.MemoryBus {
	if a.mem == nil {
		a.log.Warn().Msg("memory bus in use; events stay inside this process")
		a.mem = bus.NewMemoryBus(a.log)
	}
	return a.mem
}

func (a *app) sqsClient(ctx context.Context) (*sqs.Client, error) {
	if a.sqs != nil {
		return a.sqs, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	a.sqs = sqs.NewFromConfig(awsCfg)
	return a.sqs, nil
}

func (a *app) s3Client(ctx context.Context) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), nil
}
