// Command migrate applies or rolls back the database schema.
//
//	migrate [-env .env] up|down|version|force N
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"

	"github.com/conthop/backend/internal/logging"
	"github.com/conthop/backend/internal/platform/database"
	"github.com/conthop/backend/internal/platform/migrations"
)

func main() {
	envFile := flag.String("env", ".env", "Optional dotenv file")
	steps := flag.Int("steps", 0, "Number of migrations to roll back with down (0 rolls back all)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] up|down|version|force N\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	log := logging.New("migrate", "info", "text")

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Fatal("load env file")
	}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	db, err := database.Open(context.Background(), database.Config{DSN: dsn, MaxOpenConns: 1})
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()

	m, err := migrations.NewMigrator(db.DB)
	if err != nil {
		log.WithError(err).Fatal("open migrator")
	}

	switch cmd := flag.Arg(0); cmd {
	case "up":
		err = m.Up()
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	case "force":
		var v int
		if v, err = strconv.Atoi(flag.Arg(1)); err == nil {
			err = m.Force(v)
		}
	case "version":
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.WithError(err).Fatal("migration failed")
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Info("database has no migrations applied")
	case err != nil:
		log.WithError(err).Fatal("read version")
	default:
		log.WithField("version", version).WithField("dirty", dirty).Info("schema version")
	}
}
