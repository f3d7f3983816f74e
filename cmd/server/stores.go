// cmd/server/stores.go
package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"risk-engine/internal/analyzer"
	"risk-engine/internal/config"
	"risk-engine/internal/repository"
	"risk-engine/internal/service"
	"risk-engine/pkg/database"
)

// platformStore is everything the engine reads and writes besides analyses.
// Both *repository.MemoryStore and *repository.PostgresStore satisfy it.
type platformStore interface {
	service.TransactionStore
	service.ReviewStore
	service.AccountFlagger
	service.SettingsStore
	analyzer.HistoryReader
	analyzer.Blacklist
}

type stores struct {
	kind     string
	platform platformStore
	analyses service.AnalysisStore

	db    *database.PostgresDB
	mongo *database.MongoDB
	log   *zap.Logger
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stores, error) {
	st := &stores{log: log}

	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		mem := repository.NewMemoryStore()
		st.kind = "memory"
		st.platform = mem
		st.analyses = mem
	} else {
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pg := repository.NewPostgresStore(db.DB)
		st.kind = "postgres"
		st.db = db
		st.platform = pg
		st.analyses = pg
	}

	if cfg.AnalysisStore == "mongo" {
		mdb, err := database.NewMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			st.close(ctx)
			return nil, err
		}
		repo := repository.NewMongoAnalysisRepository(mdb.Database)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = mdb.Close(ctx)
			st.close(ctx)
			return nil, err
		}
		st.mongo = mdb
		st.analyses = repo
		st.kind += "+mongo"
	}

	return st, nil
}

func (st *stores) ping(ctx context.Context) error {
	if st.db != nil {
		if err := st.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if st.mongo != nil {
		if err := st.mongo.Client.Ping(ctx, nil); err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
	}
	return nil
}

func (st *stores) close(ctx context.Context) {
	if st.mongo != nil {
		if err := st.mongo.Close(ctx); err != nil {
			st.log.Warn("failed to disconnect mongo", zap.Error(err))
		}
	}
	if st.db != nil {
		if err := st.db.Close(); err != nil {
			st.log.Warn("failed to close database", zap.Error(err))
		}
	}
}
