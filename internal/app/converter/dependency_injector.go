package capp

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/you-humble/audioclip/internal/converter"
	"github.com/you-humble/audioclip/internal/infra/config"
	"github.com/you-humble/audioclip/internal/infra/media"
)

type dependencyInjector struct {
	cfgPath string
	cfg     *config.Converter
	logger  *slog.Logger

	transcoder converter.Transcoder
	service    *converter.Service
}

func newDI(cfgPath string) *dependencyInjector {
	return &dependencyInjector{cfgPath: cfgPath}
}

func (di *dependencyInjector) Config() *config.Converter {
	if di.cfg == nil {
		di.cfg = config.MustLoadConverter(di.cfgPath)
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		di.logger = slog.New(slog.NewTextHandler(
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

func (di *dependencyInjector) Transcoder(ctx context.Context) converter.Transcoder {
	if di.transcoder == nil {
		cfg := di.Config()
		di.transcoder = media.NewFFmpeg(
			media.WithFFmpegPath(cfg.FFmpegPath),
			media.WithFFprobePath(cfg.FFprobePath),
		)
	}

	return di.transcoder
}

func (di *dependencyInjector) Service(ctx context.Context) *converter.Service {
	if di.service == nil {
		cfg := di.Config()
		if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
			log.Fatalf("converter work dir: %+v", err)
		}
		di.service = converter.NewService(di.Transcoder(ctx), cfg.WorkDir, cfg.MaxParallel)
		di.Logger().Info("converter service ready",
			slog.String("work_dir", cfg.WorkDir),
			slog.Int("max_parallel", cfg.MaxParallel),
		)
	}

	return di.service
}
