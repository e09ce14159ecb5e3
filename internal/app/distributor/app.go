package dapp

import (
	"context"
	"log/slog"
)

type app struct {
	di *dependencyInjector
}

func New(ctx context.Context, cfgPath string) *app {
	di := newDI(cfgPath)
	di.Logger()
	return &app{di: di}
}

func (a *app) Run(ctx context.Context) error {
	defer a.di.Close()

	d := a.di.Distributor(ctx)
	slog.Info("distributor starting...")

	if err := d.Run(ctx); err != nil {
		return err
	}
	defer d.Stop(ctx)
	slog.Info("distributor running...")

	a.di.Sweeper(ctx).StartCleanup(ctx)
	slog.Info("cleanup running...", slog.Duration("interval", a.di.Config().CleanupInterval))

	<-ctx.Done()

	slog.Info("distributor shutting down...")
	return nil
}
