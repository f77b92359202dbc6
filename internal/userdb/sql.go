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

// Package userdb implements the identity store on top of a SQL database.
//
// Interfaces implemented:
// - module.UserStore
// - module.PlainAuth
// - module.Table (local address directory, via Addrs)
package userdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mailward/mailward/framework/address"
	"github.com/mailward/mailward/framework/module"
	"golang.org/x/crypto/bcrypt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Store is a SQL-backed identity store.
//
// Expected schema:
//
//	users(username, address, quota, storage_used, recipients,
//	      password_hash, master, tfa_enabled)
//	addresses(address, username)
//
// The addresses table holds every address an account is authorized to send
// as; users.address is the primary one and is expected to be present in
// addresses too.
type Store struct {
	db     *sql.DB
	driver string
}

func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case "postgres", "mysql", "sqlite3":
	default:
		return nil, fmt.Errorf("userdb: unsupported driver: %v", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("userdb: %w", err)
	}
	return &Store{db: db, driver: driver}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// rebind translates $N placeholders for drivers that use '?'.
func (s *Store) rebind(query string) string {
	if s.driver == "postgres" {
		return query
	}
	for i := 9; i >= 1; i-- {
		query = strings.ReplaceAll(query, fmt.Sprintf("$%d", i), "?")
	}
	return query
}

func (s *Store) Lookup(ctx context.Context, username string) (*module.Identity, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT username, address, quota, storage_used, recipients
		FROM users WHERE username = $1`),
		strings.ToLower(username))

	info := module.Identity{}
	err := row.Scan(&info.Username, &info.Address, &info.Quota, &info.StorageUsed, &info.Recipients)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, module.ErrUserNotFound
		}
		return nil, fmt.Errorf("userdb: lookup %v: %w", username, err)
	}
	return &info, nil
}

func (s *Store) AuthorizedAddress(ctx context.Context, username, addr string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT 1 FROM addresses WHERE address = $1 AND username = $2`),
		addr, strings.ToLower(username)).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("userdb: address check %v: %w", addr, err)
	}
	return true, nil
}

func (s *Store) AuthPlain(ctx context.Context, username, password string) (*module.AuthInfo, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT username, password_hash, master, tfa_enabled
		FROM users WHERE username = $1`),
		strings.ToLower(username))

	var (
		info module.AuthInfo
		hash string
	)
	err := row.Scan(&info.Username, &hash, &info.Master, &info.TwoFactor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, module.ErrUnknownCredentials
		}
		return nil, fmt.Errorf("userdb: auth %v: %w", username, err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, module.ErrUnknownCredentials
	}
	return &info, nil
}

// Addrs returns the local address directory view of the store: a lookup of
// the canonical address to the owning account name. Used by the routing
// override stage to detect locally-known recipients.
func (s *Store) Addrs() module.Table {
	return addrTable{s}
}

type addrTable struct {
	s *Store
}

func (t addrTable) Lookup(ctx context.Context, addr string) (string, bool, error) {
	var username string
	err := t.s.db.QueryRowContext(ctx, t.s.rebind(`
		SELECT username FROM addresses WHERE address = $1`),
		address.ForAccount(addr)).Scan(&username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("userdb: directory %v: %w", addr, err)
	}
	return username, true, nil
}
