package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/garnizeh/whitelist/internal/config"
	"github.com/garnizeh/whitelist/internal/db"
)

// Restores a sqlite backup over the configured database after checking the
// backup's integrity. The server must be stopped.
func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	src := flag.String("from", "", "Backup file to restore")
	flag.Parse()
	_ = godotenv.Load()

	if *src == "" {
		fmt.Fprintln(os.Stderr, "Restore error: -from is required")
		os.Exit(1)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.DatabaseDriver != db.DriverSQLite {
		fmt.Fprintf(os.Stderr, "Restore error: driver %q is not supported\n", cfg.DatabaseDriver)
		os.Exit(1)
	}

	if err := verify(*src); err != nil {
		fmt.Fprintf(os.Stderr, "Restore error: %v\n", err)
		os.Exit(1)
	}
	if err := copyFile(*src, cfg.DatabasePath); err != nil {
		fmt.Fprintf(os.Stderr, "Restore error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Database restored from %s.\n", *src)
}

func verify(path string) error {
	ctx := context.Background()
	backup, err := db.New(ctx, db.DriverSQLite, "file:"+path+"?mode=ro", nil)
	if err != nil {
		return err
	}
	defer backup.Close()

	var result string
	if err := backup.Get(ctx, &result, `PRAGMA integrity_check`); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("backup is corrupt: %s", result)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
