package main

import (
	"context"
	"log"

	"github.com/sundayezeilo/linkstat/internal/app"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() (err error) {
	ctx := context.Background()

	application, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), application.Config.Server.ShutdownTimeout)
		defer cancel()
		if shutdownErr := application.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}()

	// Blocks until SIGINT/SIGTERM.
	return application.Start(ctx)
}
