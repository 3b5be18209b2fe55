package main

import (
	"context"
	"log"

	"github.com/praetorlabs/praetor/internal/app"
	"github.com/praetorlabs/praetor/internal/config"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	builder := app.NewBuilder(cfg, version)
	application, err := builder.Build(ctx)
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
