package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	dbfs "github.com/garnizeh/whitelist/db"
	"github.com/garnizeh/whitelist/internal/config"
	"github.com/garnizeh/whitelist/internal/db"
)

func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	noSeed := flag.Bool("no-seed", false, "Skip seeding the default question catalog")
	flag.Parse()
	_ = godotenv.Load()

	ctx := context.Background()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	database, err := db.New(ctx, cfg.DatabaseDriver, cfg.DatabasePath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DB init error: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	var seed fs.FS = dbfs.SeedFiles
	if *noSeed {
		seed = nil
	}
	// run migrations and seed using internal/db.Migrate
	if err := db.Migrate(ctx, database, dbfs.Migrations, seed); err != nil {
		fmt.Fprintf(os.Stderr, "Migration runner error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Database initialized successfully (%s).\n", cfg.DatabaseDriver)
}
