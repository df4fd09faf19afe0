package main

import (
	"flag"
	"os"

	"github.com/indebted-modules/es/v2/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "es.yaml", "path to the event store configuration")
	store := flag.String("store", "", "migrate only the named store")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	c, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed loading configuration")
	}
	c.ApplyLogLevel()

	migrated := 0
	for _, s := range c.Stores {
		if !s.IsSQL() || (*store != "" && s.Name != *store) {
			continue
		}

		db, err := config.OpenDB(s)
		if err != nil {
			log.Fatal().Err(err).Str("Store", s.Name).Msg("Failed connecting to the database")
		}
		err = config.Migrate(db, s)
		_ = db.Close()
		if err != nil {
			log.Fatal().Err(err).Str("Store", s.Name).Msg("Failed migrating the database")
		}

		log.Info().Str("Store", s.Name).Str("Driver", s.Driver).Msg("Migrated event store")
		migrated++
	}

	if migrated == 0 {
		log.Warn().Msg("No SQL event store to migrate")
	}
}
