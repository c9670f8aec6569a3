package main

import (
	"flag"
	"fmt"
	"os"

	"mozillians/internal/config"
	"mozillians/internal/migrations"
)

func main() {
	config.LoadDotEnvUp(8)

	var (
		direction = flag.String("direction", "up", "up|down")
		steps     = flag.Int("steps", 0, "number of steps (0 = all)")
	)
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(2)
	}

	r, err := migrations.NewRunner(dbURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate init error:", err)
		os.Exit(1)
	}
	defer func() { _ = r.Close() }()

	switch *direction {
	case "up":
		if *steps > 0 {
			err = r.Steps(*steps)
		} else {
			err = r.Up()
		}
	case "down":
		if *steps > 0 {
			err = r.Steps(-*steps)
		} else {
			err = r.Down()
		}
	default:
		fmt.Fprintln(os.Stderr, "invalid -direction, must be up|down")
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "migration error:", err)
		os.Exit(1)
	}

	version, dirty, _ := r.Version()
	fmt.Printf("migrations: %s ok (version %d, dirty %v)\n", *direction, version, dirty)
}
