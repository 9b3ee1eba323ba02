// migrate applies or reverts the embedded schema: go run ./cmd/migrate -direction up.
package main

import (
	"flag"
	"fmt"
	"os"

	"community-bot/backend/internal/config"
	"community-bot/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", migrate.Up, "Migration direction: up or down")
	showVersion := flag.Bool("version", false, "Print the applied schema version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; create a .env or set DATABASE_URL")
		os.Exit(1)
	}

	if *showVersion {
		v, dirty, ok, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		latest, _ := migrate.Latest()
		switch {
		case !ok:
			fmt.Printf("no migrations applied (latest %d)\n", latest)
		case dirty:
			fmt.Printf("version %d (dirty, latest %d)\n", v, latest)
		default:
			fmt.Printf("version %d (latest %d)\n", v, latest)
		}
		return
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
