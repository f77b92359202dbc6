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

package policy

import (
	"context"
	"testing"

	"github.com/mailward/mailward/framework/module"
	"github.com/mailward/mailward/internal/testutils"
)

func TestAuthenticate(t *testing.T) {
	p := testPipeline(t, Config{})

	username, d := p.Authenticate(context.Background(), "submission", "user", "correct horse")
	requireContinue(t, d)
	if username != "user" {
		t.Errorf("username = %q", username)
	}
}

func TestAuthenticateNormalizedUsername(t *testing.T) {
	store := testStore()
	store.Passwords["User@Example.ORG"] = "pw"
	store.Auth = map[string]*module.AuthInfo{
		"User@Example.ORG": {Username: "user@example.org"},
	}
	p := testPipeline(t, Config{Users: store})

	// The session identity is the store's form, not the submitted one.
	username, d := p.Authenticate(context.Background(), "submission", "User@Example.ORG", "pw")
	requireContinue(t, d)
	if username != "user@example.org" {
		t.Errorf("username = %q, want store-normalized form", username)
	}
}

func TestAuthenticateBadCredentials(t *testing.T) {
	p := testPipeline(t, Config{})
	ctx := context.Background()

	_, d := p.Authenticate(ctx, "submission", "user", "wrong")
	requireDeny(t, d, 535)

	_, d = p.Authenticate(ctx, "submission", "ghost", "whatever")
	requireDeny(t, d, 535)
}

func TestAuthenticateMasterWith2FA(t *testing.T) {
	store := testStore()
	store.Auth = map[string]*module.AuthInfo{
		"user": {Username: "user", Master: true, TwoFactor: true},
	}
	p := testPipeline(t, Config{Users: store})

	_, d := p.Authenticate(context.Background(), "submission", "user", "correct horse")
	requireDeny(t, d, 535)

	// An application-specific password on the same account still works.
	store.Auth["user"].Master = false
	username, d := p.Authenticate(context.Background(), "submission", "user", "correct horse")
	requireContinue(t, d)
	if username != "user" {
		t.Errorf("username = %q", username)
	}
}

func TestAuthenticateForeignInterface(t *testing.T) {
	p := testPipeline(t, Config{Interfaces: []string{"submission"}})

	// Interfaces outside the policy scope pass through untouched, wrong
	// password and all.
	username, d := p.Authenticate(context.Background(), "relay", "user", "wrong")
	requireContinue(t, d)
	if username != "user" {
		t.Errorf("username = %q", username)
	}
}

func TestAuthenticateStoreError(t *testing.T) {
	p := testPipeline(t, Config{
		Users: &testutils.UserStore{Err: context.DeadlineExceeded},
	})

	_, d := p.Authenticate(context.Background(), "submission", "user", "pw")
	if d.Err == nil {
		t.Fatal("store failure not propagated")
	}
	if d.Deny != nil {
		t.Fatal("store failure reported as a policy denial")
	}
}
