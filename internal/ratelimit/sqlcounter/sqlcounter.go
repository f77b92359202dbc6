/*
Mailward - mail submission policy daemon.
Copyright © 2021-2024 Mailward contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package sqlcounter implements module.CounterStore on top of a SQL table
// with an atomic upsert.
//
// The increment is a single INSERT ... ON CONFLICT ... RETURNING statement,
// so concurrent increments for the same key serialize inside the database
// and never lose updates. Window expiry is handled in the same statement: an
// expired row is overwritten instead of incremented.
//
// Drivers with UPSERT+RETURNING support are accepted: postgres and sqlite3.
package sqlcounter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mailward/mailward/framework/module"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const upsert = `
INSERT INTO rate_counters (key, count, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET
	count = CASE WHEN rate_counters.expires_at <= $4
		THEN excluded.count
		ELSE rate_counters.count + excluded.count END,
	expires_at = CASE WHEN rate_counters.expires_at <= $4
		THEN excluded.expires_at
		ELSE rate_counters.expires_at END
RETURNING count, expires_at`

const schema = `
CREATE TABLE IF NOT EXISTS rate_counters (
	key TEXT PRIMARY KEY NOT NULL,
	count BIGINT NOT NULL,
	expires_at BIGINT NOT NULL
)`

// Store is a SQL-backed counter store. Construct with Open.
type Store struct {
	db *sql.DB

	// Now is replaceable for tests.
	Now func() time.Time
}

// Open connects to the database and creates the counters table if it is
// missing.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case "postgres", "sqlite3":
	default:
		return nil, fmt.Errorf("sqlcounter: unsupported driver: %v", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlcounter: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlcounter: %w", err)
	}

	return &Store{db: db, Now: time.Now}, nil
}

func (s *Store) Incr(ctx context.Context, key string, cost int, ttl time.Duration) (module.RateWindow, error) {
	now := s.Now().Unix()
	var (
		count     int
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, upsert, key, cost, now+int64(ttl.Seconds()), now).
		Scan(&count, &expiresAt)
	if err != nil {
		return module.RateWindow{}, fmt.Errorf("sqlcounter: %w", err)
	}

	remaining := time.Duration(expiresAt-now) * time.Second
	if remaining >= ttl {
		// The row was created (or reset) by this call: fresh window.
		remaining = 0
	}
	return module.RateWindow{Count: count, TTL: remaining}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
