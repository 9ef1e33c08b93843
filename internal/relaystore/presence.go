package relaystore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hazyhaar/pagebeacon/dbopen"
	"github.com/hazyhaar/pagebeacon/idgen"
)

// Entry is a presence record for one page URL.
type Entry struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Active      bool   `json:"active"`
	SignalCount int    `json:"signal_count"`
	FirstSeen   int64  `json:"first_seen"`
	LastSeen    int64  `json:"last_seen"`
}

var newPresenceID = idgen.Prefixed("pre_", idgen.UUIDv7())

// Record upserts a presence entry keyed by URL. A repeated signal for the
// same URL bumps last_seen and the signal count but keeps the original ID
// and first_seen.
func (s *Store) Record(ctx context.Context, url, name, description, image string, active bool) (*Entry, error) {
	now := time.Now().UnixMilli()
	act := 0
	if active {
		act = 1
	}

	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO presence (id, url, name, description, image, active, signal_count, first_seen, last_seen)
			VALUES (?,?,?,?,?,?,1,?,?)
			ON CONFLICT(url) DO UPDATE SET
				name         = excluded.name,
				description  = excluded.description,
				image        = excluded.image,
				active       = excluded.active,
				signal_count = signal_count + 1,
				last_seen    = excluded.last_seen`,
			newPresenceID(), url, name, description, image, act, now, now,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, url)
}

// Get retrieves the presence entry for a URL, or nil when none exists.
func (s *Store) Get(ctx context.Context, url string) (*Entry, error) {
	e := &Entry{}
	var act int

	err := s.DB.QueryRowContext(ctx, `
		SELECT id, url, name, description, image, active, signal_count, first_seen, last_seen
		FROM presence WHERE url = ?`, url).Scan(
		&e.ID, &e.URL, &e.Name, &e.Description, &e.Image, &act, &e.SignalCount, &e.FirstSeen, &e.LastSeen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Active = act != 0
	return e, nil
}

// Active returns all active entries, most recently seen first.
func (s *Store) Active(ctx context.Context) ([]*Entry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, url, name, description, image, active, signal_count, first_seen, last_seen
		FROM presence WHERE active = 1
		ORDER BY last_seen DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Expire marks entries inactive whose last signal is older than maxAge.
// It returns the number of entries expired.
func (s *Store) Expire(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	res, err := s.DB.ExecContext(ctx, `
		UPDATE presence SET active = 0 WHERE active = 1 AND last_seen < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var out []*Entry
	for rows.Next() {
		e := &Entry{}
		var act int
		if err := rows.Scan(&e.ID, &e.URL, &e.Name, &e.Description, &e.Image, &act, &e.SignalCount, &e.FirstSeen, &e.LastSeen); err != nil {
			return nil, err
		}
		e.Active = act != 0
		out = append(out, e)
	}
	return out, rows.Err()
}
