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

	"github.com/emersion/go-message/textproto"
)

func testHeader(from string) textproto.Header {
	hdr := textproto.Header{}
	hdr.Add("Subject", "hello")
	if from != "" {
		hdr.Add("From", from)
	}
	return hdr
}

func TestFixupHeadersAuthorized(t *testing.T) {
	p := testPipeline(t, Config{})
	env := testEnv("user")
	hdr := testHeader("Someone <user@example.org>")

	requireContinue(t, p.FixupHeaders(context.Background(), env, &hdr))

	if env.MailFrom != "user@example.org" {
		t.Errorf("envelope sender changed: %s", env.MailFrom)
	}
	if got := hdr.Get("From"); got != "Someone <user@example.org>" {
		t.Errorf("From changed: %s", got)
	}
	if hdr.Get(OriginalFromHeader) != "" {
		t.Error("X-Original-From added without a rewrite")
	}
}

func TestFixupHeadersExtraAddress(t *testing.T) {
	p := testPipeline(t, Config{})
	env := testEnv("user")
	env.MailFrom = "alias@example.org"
	hdr := testHeader("<Alias@Example.org>")

	requireContinue(t, p.FixupHeaders(context.Background(), env, &hdr))

	// Both identities check out against the extra address, case aside.
	if env.MailFrom != "alias@example.org" {
		t.Errorf("envelope sender changed: %s", env.MailFrom)
	}
	if hdr.Get(OriginalFromHeader) != "" {
		t.Error("authorized From rewritten")
	}
}

func TestFixupHeadersEnvelopeRewrite(t *testing.T) {
	p := testPipeline(t, Config{})
	env := testEnv("user")
	env.MailFrom = "somebody-else@example.org"
	hdr := testHeader("<user@example.org>")

	requireContinue(t, p.FixupHeaders(context.Background(), env, &hdr))

	if env.MailFrom != "user@example.org" {
		t.Errorf("envelope sender not corrected: %s", env.MailFrom)
	}
	if env.OriginalFrom != "somebody-else@example.org" {
		t.Errorf("original sender not kept: %s", env.OriginalFrom)
	}
	// The From header matched the account address, no header rewrite.
	if hdr.Get(OriginalFromHeader) != "" {
		t.Error("authorized From rewritten")
	}
}

func TestFixupHeadersFromRewrite(t *testing.T) {
	p := testPipeline(t, Config{})
	env := testEnv("user")
	hdr := testHeader("Mallory <spoofed@victim.example>")

	requireContinue(t, p.FixupHeaders(context.Background(), env, &hdr))

	// Display name survives, address is replaced with the envelope sender.
	if got := hdr.Get("From"); got != `"Mallory" <user@example.org>` {
		t.Errorf("From = %s", got)
	}
	if got := hdr.Get(OriginalFromHeader); got != "Mallory <spoofed@victim.example>" {
		t.Errorf("X-Original-From = %s", got)
	}
}

func TestFixupHeadersBothRewritten(t *testing.T) {
	p := testPipeline(t, Config{})
	env := testEnv("user")
	env.MailFrom = "not-mine@example.org"
	hdr := testHeader("<also-not-mine@example.org>")

	requireContinue(t, p.FixupHeaders(context.Background(), env, &hdr))

	// The From correction uses the already corrected envelope sender.
	if env.MailFrom != "user@example.org" {
		t.Errorf("envelope sender = %s", env.MailFrom)
	}
	if got := hdr.Get("From"); got != "<user@example.org>" {
		t.Errorf("From = %s", got)
	}
	if got := hdr.Get(OriginalFromHeader); got != "<also-not-mine@example.org>" {
		t.Errorf("X-Original-From = %s", got)
	}
}

func TestFixupHeadersNoFrom(t *testing.T) {
	p := testPipeline(t, Config{})
	env := testEnv("user")
	hdr := testHeader("")

	requireContinue(t, p.FixupHeaders(context.Background(), env, &hdr))

	if hdr.Has("From") {
		t.Error("From synthesized for a message without one")
	}
}

func TestFixupHeadersUnparseableFrom(t *testing.T) {
	p := testPipeline(t, Config{})
	env := testEnv("user")
	hdr := testHeader("undisclosed-recipients:;")

	requireContinue(t, p.FixupHeaders(context.Background(), env, &hdr))

	// A From value naming no usable address is not an authorized identity.
	if got := hdr.Get("From"); got != "<user@example.org>" {
		t.Errorf("From = %s", got)
	}
}

func TestFixupHeadersNoAuthUser(t *testing.T) {
	p := testPipeline(t, Config{})
	env := testEnv("")
	hdr := testHeader("<user@example.org>")

	d := p.FixupHeaders(context.Background(), env, &hdr)
	if d.Err == nil {
		t.Fatal("unauthenticated envelope passed identity enforcement")
	}
}
