// internal/repository/postgres_store.go
package repository

import "database/sql"

// PostgresStore groups the SQL repositories behind the same store
// interfaces the memory store implements.
type PostgresStore struct {
	*TransactionRepository
	*HistoryRepository
	*AnalysisRepository
	*ReviewRepository
	*SettingsRepository
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		TransactionRepository: NewTransactionRepository(db),
		HistoryRepository:     NewHistoryRepository(db),
		AnalysisRepository:    NewAnalysisRepository(db),
		ReviewRepository:      NewReviewRepository(db),
		SettingsRepository:    NewSettingsRepository(db),
	}
}
