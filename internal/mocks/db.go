package mocks

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync/atomic"
)

// noopDriver backs NewNoopDB: a real *sql.DB whose transactions begin,
// commit and roll back without touching anything. Service tests pair it
// with the in-memory stores to exercise transaction plumbing.
type noopDriver struct{}

func (noopDriver) Open(name string) (driver.Conn, error) { return noopConn{}, nil }

type noopConn struct{}

func (noopConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("noop driver does not support statements")
}
func (noopConn) Close() error              { return nil }
func (noopConn) Begin() (driver.Tx, error) { return noopTx{}, nil }

type noopTx struct{}

func (noopTx) Commit() error   { return nil }
func (noopTx) Rollback() error { return nil }

func init() {
	sql.Register("mocknoop", noopDriver{})
}

var noopDBSeq atomic.Int64

// NewNoopDB returns a *sql.DB backed by the no-op driver.
func NewNoopDB() *sql.DB {
	db, err := sql.Open("mocknoop", fmt.Sprintf("noop-%d", noopDBSeq.Add(1)))
	if err != nil {
		panic(err)
	}
	return db
}
