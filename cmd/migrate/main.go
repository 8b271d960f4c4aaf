// Package main applies the bridge schemas to the auth or characters database.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/cory-johannsen/chatbridge/internal/config"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	target := flag.String("target", "auth", "schema to migrate: auth or characters")
	direction := flag.String("direction", "up", "migration direction: up or down")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	var dbCfg config.DatabaseConfig
	switch *target {
	case "auth":
		dbCfg = cfg.AuthDatabase
	case "characters":
		dbCfg = cfg.CharacterDatabase
	default:
		log.Fatalf("invalid target %q: must be 'auth' or 'characters'", *target)
	}

	dsn := dbCfg.DSN() + "&x-migrations-table=schema_migrations_" + *target
	m, err := migrate.New("file://migrations/"+*target, dsn)
	if err != nil {
		log.Fatalf("creating migrator: %v", err)
	}
	defer m.Close()

	switch *direction {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	default:
		log.Fatalf("invalid direction %q: must be 'up' or 'down'", *direction)
	}

	noChange := errors.Is(err, migrate.ErrNoChange)
	if err != nil && !noChange {
		log.Fatalf("migration failed: %v", err)
	}

	version, dirty, _ := m.Version()
	elapsed := time.Since(start)

	if noChange {
		fmt.Fprintf(os.Stdout, "%s: no changes (version=%d dirty=%v) [%s]\n", *target, version, dirty, elapsed)
	} else {
		fmt.Fprintf(os.Stdout, "%s: migrated %s to version=%d dirty=%v [%s]\n", *target, *direction, version, dirty, elapsed)
	}
}
