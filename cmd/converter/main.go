package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	capp "github.com/you-humble/audioclip/internal/app/converter"
)

func main() {
	cfgPath := flag.String("config", "./configs/converter.yaml", "path to the converter config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	a := capp.New(ctx, *cfgPath)
	if err := a.Run(ctx); err != nil {
		log.Fatalln("converter:", err)
	}
}
