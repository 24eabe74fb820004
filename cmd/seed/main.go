// Command seed populates the dev backend's database from a yaml profile.
package main

import (
	"flag"
	"log"

	"quad/internal/config"
	"quad/internal/database"
	"quad/internal/middleware"
	"quad/internal/seed"
)

func main() {
	var (
		profilePath = flag.String("profile", "", "path to the yaml seed profile (defaults to SEED_PROFILE)")
		clean       = flag.Bool("clean", false, "delete existing rows before seeding")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *profilePath == "" {
		*profilePath = cfg.SeedProfile
	}

	profile, err := seed.LoadProfile(*profilePath)
	if err != nil {
		log.Fatalf("Failed to load seed profile: %v", err)
	}
	if *clean {
		profile.Clean = true
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	if err := seed.Run(db, profile, middleware.Logger); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Println("Database seeded.")
}
