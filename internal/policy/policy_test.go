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
	"net"
	"testing"
	"time"

	"github.com/mailward/mailward/framework/module"
	"github.com/mailward/mailward/internal/ratelimit/memcounter"
	"github.com/mailward/mailward/internal/testutils"
)

// testStore is the account fixture shared by the stage tests: one account
// with an extra authorized address and a recipient cap.
func testStore() *testutils.UserStore {
	return &testutils.UserStore{
		Users: map[string]*module.Identity{
			"user": {
				Username:   "user",
				Address:    "user@example.org",
				Quota:      1000,
				Recipients: 3,
			},
		},
		Addrs: map[string]string{
			"alias@example.org": "user",
		},
		Passwords: map[string]string{
			"user": "correct horse",
		},
	}
}

func testPipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()

	if cfg.Hostname == "" {
		cfg.Hostname = "mx.example.org"
	}
	if cfg.Users == nil {
		cfg.Users = testStore()
	}
	if cfg.Auth == nil {
		if auth, ok := cfg.Users.(*testutils.UserStore); ok {
			cfg.Auth = auth
		}
	}
	if cfg.Counters == nil {
		cfg.Counters = memcounter.New()
	}
	cfg.Log = testutils.Logger(t, "policy")

	p, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func testEnv(authUser string) *module.Envelope {
	return &module.Envelope{
		ID:         "test-msg-1",
		ReceivedAt: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		Interface:  "submission",
		Conn: &module.ConnState{
			Hostname:   "client.example.com",
			Proto:      "ESMTPSA",
			RemoteAddr: &net.TCPAddr{IP: net.IPv4(203, 0, 113, 5), Port: 52311},
			AuthUser:   authUser,
		},
		MailFrom: "user@example.org",
		RcptTo:   []string{"rcpt@remote.example"},
	}
}

func requireContinue(t *testing.T, d Decision) {
	t.Helper()
	if d.Err != nil {
		t.Fatalf("unexpected stage error: %v", d.Err)
	}
	if d.Deny != nil {
		t.Fatalf("unexpected denial: %v", d.Deny)
	}
}

func requireDeny(t *testing.T, d Decision, code int) {
	t.Helper()
	if d.Err != nil {
		t.Fatalf("stage error instead of denial: %v", d.Err)
	}
	if d.Deny == nil {
		t.Fatal("expected denial, stage continued")
	}
	if d.Deny.Code != code {
		t.Fatalf("denial code = %d, want %d", d.Deny.Code, code)
	}
}
