package dapp

import (
	"context"
	"log"
	"log/slog"
	"os"

	mio "github.com/you-humble/audioclip/core/libs/minio"
	natsq "github.com/you-humble/audioclip/core/libs/nats"
	rediscli "github.com/you-humble/audioclip/core/libs/redis"
	"github.com/you-humble/audioclip/internal/converter"
	"github.com/you-humble/audioclip/internal/distributor"
	"github.com/you-humble/audioclip/internal/infra/config"
	"github.com/you-humble/audioclip/internal/infra/media"
	"github.com/you-humble/audioclip/internal/infra/secret"
	artifactstore "github.com/you-humble/audioclip/internal/infra/store/artifact"
	jobstore "github.com/you-humble/audioclip/internal/infra/store/job"
	"github.com/you-humble/audioclip/internal/pipeline"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
)

type Distributor interface {
	Run(ctx context.Context) error
	Stop(ctx context.Context)
}

type Sweeper interface {
	StartCleanup(ctx context.Context)
}

type JobStore interface {
	pipeline.JobStore
	distributor.SweepStore
}

type ArtifactStore interface {
	pipeline.ArtifactStore
	distributor.ArtifactCleaner
}

type dependencyInjector struct {
	cfgPath string
	cfg     *config.Distributor
	logger  *slog.Logger

	grpcConn   *grpc.ClientConn
	transcoder pipeline.Transcoder

	redis    *redis.Client
	jobStore JobStore

	artifactStore ArtifactStore
	secrets       pipeline.SecretProvider

	natsConn *nats.Conn
	js       nats.JetStreamContext

	worker      *pipeline.Worker
	distributor Distributor
	sweeper     Sweeper
}

func newDI(cfgPath string) *dependencyInjector {
	return &dependencyInjector{cfgPath: cfgPath}
}

func (di *dependencyInjector) Config() *config.Distributor {
	if di.cfg == nil {
		di.cfg = config.MustLoadDistributor(di.cfgPath)
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		di.logger = slog.New(
			slog.NewTextHandler(
				os.Stdout,
				&slog.HandlerOptions{
					Level: config.Level(di.Config().LogLevel),
				},
			),
		)
	}

	slog.SetDefault(di.logger)
	return di.logger
}

func (di *dependencyInjector) GRPCConnect(ctx context.Context) *grpc.ClientConn {
	if di.grpcConn == nil {
		cl, err := converter.NewConnection(di.Config().ConverterAddr)
		if err != nil {
			log.Fatalf("GRPCConnect: %+v", err)
		}
		di.grpcConn = cl
	}

	return di.grpcConn
}

// Transcoder is the remote converter when converter_addr is set, otherwise
// ffmpeg runs next to the worker.
func (di *dependencyInjector) Transcoder(ctx context.Context) pipeline.Transcoder {
	if di.transcoder == nil {
		cfg := di.Config()
		if cfg.ConverterAddr != "" {
			di.transcoder = converter.NewClient(di.GRPCConnect(ctx), cfg.WorkDir)
			di.Logger().Info("using remote converter", slog.String("addr", cfg.ConverterAddr))
		} else {
			di.transcoder = media.NewFFmpeg(
				media.WithFFmpegPath(cfg.FFmpegPath),
				media.WithFFprobePath(cfg.FFprobePath),
			)
			di.Logger().Info("using local ffmpeg", slog.String("path", cfg.FFmpegPath))
		}
	}

	return di.transcoder
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

func (di *dependencyInjector) JobStore(ctx context.Context) JobStore {
	if di.jobStore == nil {
		di.jobStore = jobstore.NewRedisJobStore(di.RedisClient(ctx))
	}
	return di.jobStore
}

func (di *dependencyInjector) ArtifactStore(ctx context.Context) ArtifactStore {
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
				ExpireAfter:     cfg.Artifact.Retention,
			})
			if err != nil {
				log.Fatalf("ArtifactStore minio: %+v", err)
			}
			di.Logger().Info(
				"initialized MinIO artifact store",
				slog.String("endpoint", cfg.MinIO.Endpoint),
				slog.String("bucket", cfg.MinIO.Bucket),
				slog.Duration("retention", cfg.Artifact.Retention),
			)
			di.artifactStore = remote
		}
	}

	return di.artifactStore
}

func (di *dependencyInjector) Secrets(ctx context.Context) pipeline.SecretProvider {
	if di.secrets == nil {
		cfg := di.Config().Secret

		switch cfg.Backend {
		case config.SecretFile:
			di.secrets = secret.NewFileProvider(cfg.Path)
		case config.SecretAWS:
			p, err := secret.NewSecretsManagerProvider(ctx, cfg.Name, cfg.Region)
			if err != nil {
				log.Fatalf("Secrets aws: %+v", err)
			}
			di.secrets = p
		default:
			di.secrets = secret.NewNoneProvider()
		}
		di.Logger().Info("auth material provider", slog.String("backend", cfg.Backend))
	}

	return di.secrets
}

func (di *dependencyInjector) Worker(ctx context.Context) *pipeline.Worker {
	if di.worker == nil {
		cfg := di.Config()
		fetcher := media.NewYTDLP(media.WithYTDLPPath(cfg.YTDLPPath))

		di.worker = pipeline.NewWorker(
			pipeline.Config{
				WorkDir: cfg.WorkDir,
				Budget: pipeline.Budget{
					Total:           cfg.JobBudget,
					TerminalReserve: cfg.TerminalReserve,
				},
				Retention: cfg.Artifact.Retention,
			},
			di.JobStore(ctx),
			di.ArtifactStore(ctx),
			pipeline.NewFetchPolicy(fetcher, di.Secrets(ctx)),
			di.Transcoder(ctx),
		)
	}

	return di.worker
}

func (di *dependencyInjector) NATSConn(ctx context.Context) *nats.Conn {
	if di.natsConn == nil {
		cfg := di.Config()
		nc, err := natsq.NewConnect(cfg.NATS.URL, natsq.Config{
			Name:          cfg.NATS.QueueName,
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

func (di *dependencyInjector) Distributor(ctx context.Context) Distributor {
	if di.distributor == nil {
		cfg := di.Config()
		di.distributor = distributor.New(
			distributor.Config{
				Stream:  cfg.NATS.Stream,
				Subject: cfg.NATS.Subject,
				Size:    cfg.PoolSize,
				AckWait: cfg.JobBudget + cfg.StaleGrace,
			},
			di.JetStream(ctx),
			di.Worker(ctx),
		)
	}
	return di.distributor
}

func (di *dependencyInjector) Sweeper(ctx context.Context) Sweeper {
	if di.sweeper == nil {
		cfg := di.Config()
		di.sweeper = distributor.NewSweeper(
			distributor.SweepConfig{
				Interval:  cfg.CleanupInterval,
				Budget:    cfg.JobBudget,
				Grace:     cfg.StaleGrace,
				RecordTTL: cfg.RecordTTL,
				Retention: cfg.Artifact.Retention,
			},
			di.JobStore(ctx),
			di.ArtifactStore(ctx),
		)
	}
	return di.sweeper
}

func (di *dependencyInjector) Close() {
	if di.natsConn != nil {
		if err := di.natsConn.Drain(); err != nil {
			slog.Warn("NATS drain", slog.String("error", err.Error()))
		}
	}
	if di.grpcConn != nil {
		_ = di.grpcConn.Close()
	}
	if di.redis != nil {
		if err := di.redis.Close(); err != nil {
			slog.Warn("redis close", slog.String("error", err.Error()))
		}
	}
}
