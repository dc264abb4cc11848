package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"pearcron/internal/bootstrap"
	"pearcron/internal/logging"
)

func main() {
	cfg, err := bootstrap.LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "bootstrap: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	app, err := bootstrap.NewApp(context.Background(), cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap init")
	}
	if err := app.Start(); err != nil {
		log.Fatal().Err(err).Msg("bootstrap start")
	}
	bootstrap.WaitForShutdown(app)
}
