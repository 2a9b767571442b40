package main

import (
	"log/slog"
	"os"

	"github.com/aussiebroadwan/crm/internal/auth/app"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		// No authenticated route may be served without a signing secret.
		app.NewLogger(cfg).Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	application, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}
