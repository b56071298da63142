package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	arg "github.com/alexflint/go-arg"

	"imgacquisition/internal/app"
	"imgacquisition/internal/config"
	"imgacquisition/internal/logger"
)

var version = "<not set>"

type Args struct {
	Config     string `arg:"-c,--config" help:"path to the stream layout YAML"`
	EnvFile    string `arg:"-e,--env-file" help:"path to a .env file"`
	Timestamps bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	arg.MustParse(&args)
	return args
}

func main() {
	args := procArgs()

	cfg, err := config.Load(args.EnvFile, args.Config)
	if err != nil {
		// No log directory is known yet.
		os.Stderr.WriteString("recorder: " + err.Error() + "\n")
		os.Exit(1)
	}
	if args.Timestamps {
		cfg.LogTimestamps = true
	}

	log := logger.NewLogger(cfg)
	log.Info("version: %s", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Critical("Initialization failed: %v", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		log.Critical("Recorder stopped: %v", err)
		stop()
		os.Exit(1)
	}
	log.Info("Recorder stopped cleanly")
}
