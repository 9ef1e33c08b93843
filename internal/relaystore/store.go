// Package relaystore provides the SQLite persistence layer for the
// development relay.
package relaystore

import (
	"database/sql"

	"github.com/hazyhaar/pagebeacon/dbopen"
)

// Store is the relay database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the relay SQLite database at path and applies
// the presence schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
