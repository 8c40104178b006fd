package main

import (
	"context"
	"os"
	"strings"

	"github.com/oggyb/courier/internal/config"
	"github.com/oggyb/courier/internal/db/gormdb"
	"github.com/oggyb/courier/internal/logger"
	mesgRepo "github.com/oggyb/courier/internal/repository/gorm/message"
)

func main() {
	ctx := context.Background()

	// Load application configuration (DB, Redis, etc.) from env/.env.
	cfg := config.New()
	log := logger.New(cfg.App.LogLevel, cfg.App.LogPretty).With().Str("cmd", "migrate").Logger()

	// Open a Postgres connection through our GORM adapter.
	db, err := gormdb.New(cfg.PostgresDSN(), gormdb.Pool{MaxOpenConns: 1})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	log.Info().Str("db", cfg.DB.Name).Msg("connected to database")

	// 1) Tables, then the GIN and composite indexes tags cannot express.
	if err := gormdb.Migrate(db, mesgRepo.Models(), mesgRepo.Indexes()...); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Int("tables", len(mesgRepo.Models())).Msg("schema is up to date")

	// 2) Optionally pre-register companies, e.g. SEED_COMPANIES=acme,globex.
	repo := mesgRepo.NewRepository(db)
	for _, code := range strings.Split(os.Getenv("SEED_COMPANIES"), ",") {
		if code = strings.TrimSpace(code); code == "" {
			continue
		}
		id, err := repo.CompanyID(ctx, code)
		if err != nil {
			log.Fatal().Err(err).Str("company", code).Msg("failed to seed company")
		}
		log.Info().Str("company", code).Uint("id", id).Msg("company ready")
	}
}
