// Command authdemo wires the full authentication stack against a real
// identity service: device store, session store, credential client and
// background refresher. It logs session transitions the way the app's route
// guards consume them, then waits for an interrupt.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/dietplanner/authflow/auth"
	"github.com/dietplanner/authflow/devicestore"
	"github.com/dietplanner/authflow/identity/gotrue"
	"github.com/dietplanner/authflow/internal/config"
	"github.com/dietplanner/authflow/onboarding"
	"github.com/dietplanner/authflow/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running authdemo: %s\n", err)
	}
	log.Printf("authdemo stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		return err
	}
	displayAppname(cfg.AppName)

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	device, err := openDeviceStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = device.Close() }()

	svc, err := gotrue.New(cfg.IdentityURL, cfg.IdentityKey, gotrue.WithLogger(logger))
	if err != nil {
		return err
	}

	sessions := session.NewStore(session.WithStoreLogger(logger))
	defer sessions.Close()

	unsubscribe := sessions.Subscribe(func(snapshot session.Snapshot) {
		logger.Info().
			Bool("authenticated", snapshot.Authenticated()).
			Msg("session state changed")
	})
	defer unsubscribe()

	client, err := auth.New(svc, sessions,
		auth.WithAppScheme(cfg.AppScheme),
		auth.WithPersistence(device),
		auth.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	refresher, err := session.NewRefresher(svc, sessions,
		session.WithLeeway(cfg.RefreshLeeway),
		session.WithRefresherLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker, err := onboarding.New(ctx, device, onboarding.WithLogger(logger))
	if err != nil {
		return err
	}
	logger.Info().Bool("onboarded", tracker.Completed()).Msg("onboarding state loaded")

	client.Start(ctx)
	go refresher.Run(ctx)

	if cfg.DemoEmail != "" && cfg.DemoPassword != "" {
		if failed := client.SignInWithPassword(ctx, cfg.DemoEmail, cfg.DemoPassword); failed != nil {
			logger.Warn().
				Str("category", string(failed.Category)).
				Str("message", failed.Message).
				Msg("demo sign-in failed")
		}
	}

	waitForStopSignal()
	return nil
}

func openDeviceStore(cfg config.Config, logger zerolog.Logger) (*devicestore.Store, error) {
	options := []devicestore.Option{devicestore.WithLogger(logger)}
	key, err := cfg.EncryptionKey()
	if err != nil {
		return nil, err
	}
	if key != nil {
		options = append(options, devicestore.WithEncryptionKey(key))
	}
	return devicestore.Open(cfg.DeviceStorePath, options...)
}

func newLogger(level string) (zerolog.Logger, error) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, err
	}
	return zerolog.New(os.Stderr).Level(parsed).With().Timestamp().Logger(), nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
}
