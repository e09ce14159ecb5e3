package iapp

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	mio "github.com/you-humble/audioclip/core/libs/minio"
	natsq "github.com/you-humble/audioclip/core/libs/nats"
	rediscli "github.com/you-humble/audioclip/core/libs/redis"
	"github.com/you-humble/audioclip/internal/infra/config"
	"github.com/you-humble/audioclip/internal/infra/queue"
	artifactstore "github.com/you-humble/audioclip/internal/infra/store/artifact"
	jobstore "github.com/you-humble/audioclip/internal/infra/store/job"
	"github.com/you-humble/audioclip/internal/transport"
	"github.com/you-humble/audioclip/internal/usecase"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

type Router interface {
	MountRoutes(*http.ServeMux) *http.ServeMux
}

type dependencyInjector struct {
	cfgPath string
	cfg     *config.Ingress
	logger  *slog.Logger

	redis    *redis.Client
	jobStore usecase.JobStore

	artifactStore usecase.ArtifactStore

	natsConn *nats.Conn
	js       nats.JetStreamContext

	dispatcher usecase.Dispatcher

	usecase transport.Usecase
	handler transport.Handler
	router  Router
}

func newDI(cfgPath string) *dependencyInjector {
	return &dependencyInjector{cfgPath: cfgPath}
}

func (di *dependencyInjector) Config() *config.Ingress {
	if di.cfg == nil {
		di.cfg = config.MustLoadIngress(di.cfgPath)
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		di.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.Level(di.Config().LogLevel),
		}))
	}

	slog.SetDefault(di.logger)
	return di.logger
}

func (di *dependencyInjector) RedisClient(ctx context.Context) *redis.Client {
	if di.redis == nil {
		cfg := di.Config().Redis
		client, err := rediscli.NewClient(ctx, rediscli.Config{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			log.Fatalf("RedisClient: %+v", err)
		}

		di.redis = client
		di.Logger().Info("connected to redis", slog.String("addr", cfg.Addr))
	}
	return di.redis
}

func (di *dependencyInjector) JobStore(ctx context.Context) usecase.JobStore {
	if di.jobStore == nil {
		di.jobStore = jobstore.NewRedisJobStore(di.RedisClient(ctx))
	}
	return di.jobStore
}

func (di *dependencyInjector) ArtifactStore(ctx context.Context) usecase.ArtifactStore {
	if di.artifactStore == nil {
		cfg := di.Config()

		switch cfg.Artifact.Backend {
		case config.BackendLocal:
			local, err := artifactstore.NewLocalStore(cfg.Artifact.LocalDir)
			if err != nil {
				log.Fatalf("ArtifactStore local: %+v", err)
			}
			di.Logger().Info("initialized local artifact store", slog.String("dir", cfg.Artifact.LocalDir))
			di.artifactStore = local

		default:
			remote, err := artifactstore.NewMinIOStore(ctx, mio.Config{
				Endpoint:        cfg.MinIO.Endpoint,
				AccessKeyID:     cfg.MinIO.AccessKeyID,
				SecretAccessKey: cfg.MinIO.SecretAccessKey,
				UseSSL:          cfg.MinIO.UseSSL,
				Bucket:          cfg.MinIO.Bucket,
				BasePath:        cfg.MinIO.BasePath,
			})
			if err != nil {
				log.Fatalf("ArtifactStore minio: %+v", err)
			}
			di.Logger().Info(
				"initialized MinIO artifact store",
				slog.String("endpoint", cfg.MinIO.Endpoint),
				slog.String("bucket", cfg.MinIO.Bucket),
			)
			di.artifactStore = remote
		}
	}

	return di.artifactStore
}

func (di *dependencyInjector) NATSConn(ctx context.Context) *nats.Conn {
	if di.natsConn == nil {
		cfg := di.Config()
		nc, err := natsq.NewConnect(cfg.NATS.URL, natsq.Config{
			Name:          cfg.NATS.QueueName + "-ingress",
			MaxReconnects: cfg.NATS.MaxReconnects,
		})
		if err != nil {
			log.Fatalf("NATS connect: %+v", err)
		}
		di.natsConn = nc
	}
	return di.natsConn
}

func (di *dependencyInjector) JetStream(ctx context.Context) nats.JetStreamContext {
	if di.js == nil {
		cfg := di.Config()
		js, err := natsq.NewJetStream(di.NATSConn(ctx),
			natsq.WorkQueueStream(cfg.NATS.Stream, cfg.NATS.Subject, 2*cfg.Artifact.Retention))
		if err != nil {
			log.Fatalf("DI JetStream: %+v", err)
		}

		di.js = js
	}
	return di.js
}

func (di *dependencyInjector) Dispatcher(ctx context.Context) usecase.Dispatcher {
	if di.dispatcher == nil {
		di.dispatcher = queue.NewJetStream(di.JetStream(ctx), di.Config().NATS.Subject)
	}
	return di.dispatcher
}

func (di *dependencyInjector) Usecase(ctx context.Context) transport.Usecase {
	if di.usecase == nil {
		cfg := di.Config()
		di.usecase = usecase.New(
			usecase.Config{
				MaxClipDuration:  cfg.MaxClipDuration,
				DefaultBitrate:   cfg.DefaultBitrate,
				PresignDownloads: cfg.PresignDownloads,
			},
			di.JobStore(ctx),
			di.ArtifactStore(ctx),
			di.Dispatcher(ctx),
		)
	}

	return di.usecase
}

func (di *dependencyInjector) Handler(ctx context.Context) transport.Handler {
	if di.handler == nil {
		di.handler = transport.NewHandler(di.Usecase(ctx))
	}

	return di.handler
}

func (di *dependencyInjector) Router(ctx context.Context) Router {
	if di.router == nil {
		di.router = transport.NewRouter(di.Handler(ctx))
	}

	return di.router
}

func (di *dependencyInjector) Close() {
	if di.natsConn != nil {
		if err := di.natsConn.Drain(); err != nil {
			slog.Warn("NATS drain", slog.String("error", err.Error()))
		}
	}
	if di.redis != nil {
		if err := di.redis.Close(); err != nil {
			slog.Warn("redis close", slog.String("error", err.Error()))
		}
	}
}
