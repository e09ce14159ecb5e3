package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	iapp "github.com/you-humble/audioclip/internal/app/ingress"
)

func main() {
	cfgPath := flag.String("config", "./configs/ingress.yaml", "path to the ingress config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	a := iapp.New(ctx, *cfgPath)
	if err := a.Run(ctx); err != nil {
		log.Fatalln("ingress:", err)
	}
}
