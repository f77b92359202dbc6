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
	"strings"
	"testing"
)

func TestBuildReceived(t *testing.T) {
	env := testEnv("user")

	want := "from client.example.com [203.0.113.5] (Authenticated sender: user)\r\n " +
		"by mx.example.org with ESMTPSA id test-msg-1\r\n " +
		"for <rcpt@remote.example>;\r\n " +
		"Fri, 15 Mar 2024 12:00:00 +0000"
	if got := BuildReceived("mx.example.org", env); got != want {
		t.Errorf("wrong trace field:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestBuildReceivedMultipleRcpts(t *testing.T) {
	env := testEnv("user")
	env.RcptTo = []string{"a@remote.example", "b@remote.example"}

	got := BuildReceived("mx.example.org", env)
	// The for clause would disclose BCC recipients.
	if strings.Contains(got, "for <") {
		t.Errorf("for clause present with multiple recipients: %q", got)
	}
	if !strings.Contains(got, "id test-msg-1;\r\n ") {
		t.Errorf("semicolon not attached to the last clause: %q", got)
	}
}

func TestBuildReceivedSMTPUTF8(t *testing.T) {
	env := testEnv("user")
	env.SMTPOpts.UTF8 = true

	got := BuildReceived("mx.example.org", env)
	if !strings.Contains(got, "with UTF8SMTPSA id") {
		t.Errorf("SMTPUTF8 transmission type not used: %q", got)
	}
}

func TestBuildReceivedRDNS(t *testing.T) {
	env := testEnv("user")
	env.Conn.RDNSName = "client.example.com"

	got := BuildReceived("mx.example.org", env)
	if !strings.Contains(got, "([203.0.113.5] client.example.com)") {
		t.Errorf("rDNS origin not rendered: %q", got)
	}
}

func TestBuildReceivedNoAddress(t *testing.T) {
	env := testEnv("")
	env.Conn.RemoteAddr = nil
	env.Conn.Hostname = ""

	got := BuildReceived("mx.example.org", env)
	if !strings.HasPrefix(got, "from localhost localhost\r\n ") {
		t.Errorf("local submission origin: %q", got)
	}
	if strings.Contains(got, "Authenticated sender") {
		t.Errorf("auth comment without authentication: %q", got)
	}
}
