package service

import (
	"database/sql"

	"github.com/pinbox/pinbox-api/internal/store"
)

// CardRepositoryAdapter adapts a store.CardStore plus its database handle to
// the service-layer CardRepository, keeping the service decoupled from the
// concrete store implementation.
type CardRepositoryAdapter struct {
	store.CardStore
	db *sql.DB
}

// NewCardRepositoryAdapter creates an adapter that implements CardRepository
// by delegating to a store.CardStore implementation.
func NewCardRepositoryAdapter(cardStore store.CardStore, db *sql.DB) *CardRepositoryAdapter {
	return &CardRepositoryAdapter{
		CardStore: cardStore,
		db:        db,
	}
}

// DB returns the underlying database connection for transaction management.
func (a *CardRepositoryAdapter) DB() *sql.DB {
	return a.db
}

// Ensure CardRepositoryAdapter implements service.CardRepository
var _ CardRepository = (*CardRepositoryAdapter)(nil)
