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
	"crypto/tls"
	"strings"
	"time"

	"github.com/mailward/mailward/framework/module"
)

// BuildReceived synthesizes the Received header value recording how the
// message entered the system. The format follows RFC 5321 trace field
// conventions: "from" clause describing the client, "by" clause naming this
// host, an optional TLS comment, and a "for" clause that is emitted only
// when the message has exactly one recipient so that BCC recipients are
// never disclosed.
//
// Folding is done here, with a single space continuation, because the value
// is written verbatim into the archived copy.
func BuildReceived(hostname string, env *module.Envelope) string {
	origin := originClause(env.Conn)

	transHost := env.Conn.Hostname
	if transHost == "" {
		transHost = "localhost"
	}

	// RFC 6531 renames the transmission types for SMTPUTF8 messages.
	proto := env.Conn.Proto
	if env.SMTPOpts.UTF8 && strings.HasPrefix(proto, "E") {
		proto = "UTF8" + strings.TrimPrefix(proto, "E")
	}

	segments := []string{
		"from " + transHost + " " + origin + authComment(env.Conn),
		"by " + hostname + " with " + proto + " id " + env.ID,
	}
	if tlsClause := tlsComment(env.Conn.TLS); tlsClause != "" {
		segments = append(segments, tlsClause)
	}
	if len(env.RcptTo) == 1 {
		segments = append(segments, "for <"+env.RcptTo[0]+">")
	}
	segments[len(segments)-1] += ";"
	segments = append(segments, env.ReceivedAt.UTC().Format(time.RFC1123Z))

	return strings.Join(segments, "\r\n ")
}

// originClause renders the client network address part of the "from"
// clause: "([ip] rdns-name)" when both the address and the PTR name are
// known, "[ip]" when only the address is, "localhost" otherwise.
func originClause(conn *module.ConnState) string {
	ip := remoteIP(conn)

	switch {
	case ip != "" && conn.RDNSName != "":
		return "([" + ip + "] " + conn.RDNSName + ")"
	case ip != "":
		return "[" + ip + "]"
	default:
		return "localhost"
	}
}

func authComment(conn *module.ConnState) string {
	if conn.AuthUser == "" {
		return ""
	}
	return " (Authenticated sender: " + conn.AuthUser + ")"
}

func tlsComment(state *tls.ConnectionState) string {
	if state == nil {
		return ""
	}
	version := "unknown"
	switch state.Version {
	case tls.VersionTLS10:
		version = "TLSv1"
	case tls.VersionTLS11:
		version = "TLSv1.1"
	case tls.VersionTLS12:
		version = "TLSv1.2"
	case tls.VersionTLS13:
		version = "TLSv1.3"
	}
	return "(version=" + version + " cipher=" + tls.CipherSuiteName(state.CipherSuite) + ")"
}
