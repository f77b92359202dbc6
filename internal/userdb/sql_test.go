//go:build !nosqlite3 && cgo

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

package userdb

import (
	"context"
	"errors"
	"testing"

	"github.com/mailward/mailward/framework/module"
	"golang.org/x/crypto/bcrypt"
)

func testDB(t *testing.T) *Store {
	t.Helper()

	s, err := Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	for _, stmt := range []string{
		`CREATE TABLE users (
			username TEXT PRIMARY KEY NOT NULL,
			address TEXT NOT NULL,
			quota BIGINT NOT NULL DEFAULT 0,
			storage_used BIGINT NOT NULL DEFAULT 0,
			recipients INTEGER NOT NULL DEFAULT 0,
			password_hash TEXT NOT NULL,
			master INTEGER NOT NULL DEFAULT 1,
			tfa_enabled INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE addresses (
			address TEXT PRIMARY KEY NOT NULL,
			username TEXT NOT NULL
		)`,
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			t.Fatal(err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(
		`INSERT INTO users (username, address, quota, storage_used, recipients, password_hash, master, tfa_enabled)
		 VALUES ('user', 'user@example.org', 1000, 250, 200, ?, 1, 0)`, string(hash)); err != nil {
		t.Fatal(err)
	}
	for _, addr := range []string{"user@example.org", "alias@example.org"} {
		if _, err := s.db.Exec(`INSERT INTO addresses (address, username) VALUES (?, 'user')`, addr); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestLookup(t *testing.T) {
	s := testDB(t)

	info, err := s.Lookup(context.Background(), "user")
	if err != nil {
		t.Fatal(err)
	}
	want := module.Identity{
		Username:    "user",
		Address:     "user@example.org",
		Quota:       1000,
		StorageUsed: 250,
		Recipients:  200,
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}

	if _, err := s.Lookup(context.Background(), "ghost"); !errors.Is(err, module.ErrUserNotFound) {
		t.Errorf("want ErrUserNotFound, got %v", err)
	}
}

func TestAuthorizedAddress(t *testing.T) {
	s := testDB(t)
	ctx := context.Background()

	test := func(addr string, want bool) {
		t.Helper()
		ok, err := s.AuthorizedAddress(ctx, "user", addr)
		if err != nil {
			t.Fatal(err)
		}
		if ok != want {
			t.Errorf("AuthorizedAddress(user, %s) = %v, want %v", addr, ok, want)
		}
	}

	test("user@example.org", true)
	test("alias@example.org", true)
	test("other@example.org", false)
	// The directory holds canonical addresses only; lookups use the
	// canonical form too.
	test("USER@example.org", false)
}

func TestAuthPlain(t *testing.T) {
	s := testDB(t)
	ctx := context.Background()

	info, err := s.AuthPlain(ctx, "user", "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if info.Username != "user" || !info.Master || info.TwoFactor {
		t.Errorf("wrong auth info: %+v", info)
	}

	for _, c := range [][2]string{
		{"user", "wrong"},
		{"ghost", "correct horse"},
	} {
		if _, err := s.AuthPlain(ctx, c[0], c[1]); !errors.Is(err, module.ErrUnknownCredentials) {
			t.Errorf("%s: want ErrUnknownCredentials, got %v", c[0], err)
		}
	}
}

func TestAddrsTable(t *testing.T) {
	s := testDB(t)

	username, ok, err := s.Addrs().Lookup(context.Background(), "alias@example.org")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || username != "user" {
		t.Errorf("Lookup = %q, %v", username, ok)
	}

	_, ok, err = s.Addrs().Lookup(context.Background(), "unknown@example.org")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("unknown address resolved")
	}
}
