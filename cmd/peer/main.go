package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"pearcron/internal/logging"
	"pearcron/internal/peer"
)

func main() {
	cfg, err := peer.LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "pearcron: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	app, err := peer.NewApp(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("peer startup failed")
		os.Exit(1)
	}
	app.Start()
	peer.WaitForShutdown(app)
}
