package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	dapp "github.com/you-humble/audioclip/internal/app/distributor"
)

func main() {
	cfgPath := flag.String("config", "./configs/distributor.yaml", "path to the distributor config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	a := dapp.New(ctx, *cfgPath)
	if err := a.Run(ctx); err != nil {
		log.Fatalln("distributor:", err)
	}
}
