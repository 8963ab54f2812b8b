// Command userctl provisions and inspects user accounts. The request
// path never creates users; accounts are seeded out of band with this
// tool.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cloudcrate/cloudcrate/internal/config"
	"github.com/cloudcrate/cloudcrate/internal/models"
	"github.com/cloudcrate/cloudcrate/internal/storage"
)

func main() {
	username := flag.String("create", "", "provision a new user with this username")
	quota := flag.Int64("quota", 0, "quota in bytes for -create (default: DEFAULT_QUOTA_BYTES)")
	show := flag.String("show", "", "print the user with this ID")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	store, err := storage.NewMySQLClient(cfg.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to metadata store")
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case *username != "":
		if *quota <= 0 {
			*quota = cfg.DefaultQuotaBytes
		}
		user := &models.User{
			ID:        uuid.New().String(),
			Username:  *username,
			Quota:     *quota,
			IsActive:  true,
			CreatedAt: time.Now(),
		}
		if err := store.CreateUser(ctx, user); err != nil {
			log.Fatal().Err(err).Msg("failed to create user")
		}
		printJSON(user)

	case *show != "":
		user, err := store.GetUser(ctx, *show)
		if err != nil {
			log.Fatal().Err(err).Str("user_id", *show).Msg("failed to load user")
		}
		printJSON(user)

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatal().Err(err).Msg("failed to encode output")
	}
}
