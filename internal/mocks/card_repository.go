package mocks

import (
	"database/sql"

	"github.com/pinbox/pinbox-api/internal/store"
)

// MemCardRepository wraps a MemCardStore behind the service layer's
// repository contract, with a no-op database for transaction plumbing.
type MemCardRepository struct {
	*MemCardStore
	db *sql.DB
}

// NewMemCardRepository creates a repository over a fresh in-memory store.
func NewMemCardRepository() *MemCardRepository {
	return &MemCardRepository{
		MemCardStore: NewMemCardStore(),
		db:           NewNoopDB(),
	}
}

// DB returns the no-op database handle.
func (r *MemCardRepository) DB() *sql.DB { return r.db }

// WithTx returns the underlying store; the in-memory store ignores
// transactions.
func (r *MemCardRepository) WithTx(tx *sql.Tx) store.CardStore { return r.MemCardStore }
