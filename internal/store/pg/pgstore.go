// Package pg is the Postgres persistence layer. Every multi-row write runs
// inside a single transaction with the aggregate root locked first.
package pg

import (
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"propdesk.io/internal/challenge"
	"propdesk.io/internal/notify"
	"propdesk.io/internal/order"
	"propdesk.io/internal/tenant"
	"propdesk.io/internal/ticket"
	"propdesk.io/internal/user"
)

type Store struct {
	db *sql.DB
}

// TicketStore carries the ticket.Service methods, whose Get/List signatures
// collide with challenge.Service's on the shared Store receiver.
type TicketStore struct {
	*Store
}

func (s *Store) Tickets() *TicketStore { return &TicketStore{s} }

var (
	_ tenant.Store      = (*Store)(nil)
	_ user.Store        = (*Store)(nil)
	_ challenge.Service = (*Store)(nil)
	_ ticket.Service    = (*TicketStore)(nil)
	_ order.Store       = (*Store)(nil)
	_ notify.Store      = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle, used by sqlmock tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }
