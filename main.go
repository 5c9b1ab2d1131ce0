package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"

	"boxim-bot/internal/config"
	"boxim-bot/internal/logging"
	"boxim-bot/internal/runtime"
	"boxim-bot/internal/supervisor"
	"boxim-bot/internal/ui/console"
)

var BuildVersion = "dev"

const (
	exitForcedOffline = 3
	stopTimeout       = 10 * time.Second
)

func main() {
	rootCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	opts, err := config.ParseOptions(nil)
	if err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	lock, lockedByOther, lockErr := acquireInstanceLock(instanceKey(opts))
	if lockErr != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize single-instance lock:", lockErr)
		os.Exit(2)
	}
	if lockedByOther {
		fmt.Fprintln(os.Stderr, "BoxIM bot is already running for this account.")
		os.Exit(1)
	}

	code := run(rootCtx, opts)
	_ = lock.Release()
	stopSignals()
	os.Exit(code)
}

func run(ctx context.Context, opts config.Options) int {
	settingsPath, pathErr := config.ResolveSettingsPath(opts)
	if pathErr == nil {
		if saved, loadErr := config.LoadSettings(settingsPath); loadErr == nil {
			opts = config.MergeOptionsWithSettings(opts, saved)
		}
	}

	logger := logging.New(opts.Debug)
	defer func() {
		_ = logger.Close()
	}()
	if err := logger.EnableFilePersistence(opts.LogDir, 0); err != nil {
		logger.Warn("failed to enable file log persistence", logging.Field("error", err))
	}
	logger.Info("starting BoxIM bot", logging.Field("version", BuildVersion))

	if err := config.ValidateRequired(opts); err != nil {
		logger.Error("invalid configuration", logging.Field("error", err))
		return 2
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if pathErr != nil {
		logger.Warn("settings file unavailable", logging.Field("error", pathErr))
	} else {
		go func() {
			err := config.WatchSettings(watchCtx, settingsPath, logger.Named("settings"), func(s config.Settings) {
				logger.SetDebugEnabled(opts.Debug || s.Debug)
			})
			if err != nil {
				logger.Warn("settings watcher stopped", logging.Field("error", err))
			}
		}()
	}

	var runErr error
	if opts.TUI {
		runErr = console.Run(ctx, BuildVersion, opts, logger)
	} else {
		runErr = runPlain(ctx, opts, logger)
	}
	switch {
	case runErr == nil, errors.Is(runErr, context.Canceled):
		logger.Info("BoxIM bot stopped")
		return 0
	case errors.Is(runErr, supervisor.ErrForcedOffline):
		logger.Error("session was taken over by another login; log in again to resume")
		return exitForcedOffline
	default:
		logger.Error("BoxIM bot exited", logging.Field("error", runErr))
		return 1
	}
}

func runPlain(ctx context.Context, opts config.Options, logger *logging.Logger) error {
	controller := runtime.NewController(ctx)
	exited := make(chan error, 1)
	if err := controller.Start(opts, logger, runtime.StartHooks{
		OnExit: func(err error) { exited <- err },
	}); err != nil {
		return err
	}
	select {
	case err := <-exited:
		return err
	case <-ctx.Done():
		if !controller.StopAndWait(stopTimeout) {
			logger.Warn("bot did not stop in time", logging.Field("timeout", stopTimeout.String()))
		}
		return nil
	}
}
