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

package module

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/emersion/go-smtp"
)

// ConnState describes the transport-level state of the SMTP connection the
// message was accepted on.
type ConnState struct {
	// Hostname is the name sent in the EHLO/HELO command.
	Hostname string

	// Proto is the transmission type: SMTP, ESMTP, ESMTPS, ESMTPA, ESMTPSA.
	Proto string

	// RemoteAddr is the network address of the client.
	RemoteAddr net.Addr

	// RDNSName is the PTR name of the client address, empty if reverse
	// resolution failed or was not attempted.
	RDNSName string

	// TLS is the connection TLS state, nil for plaintext connections.
	TLS *tls.ConnectionState

	// AuthUser is the username the client authenticated as, in the exact
	// form returned by the credentials store. Empty for unauthenticated
	// sessions.
	AuthUser string
}

// Envelope is the mutable per-message state threaded through all policy
// stages.
//
// An Envelope object is created when the message transaction starts and is
// discarded when it ends, whether the message was accepted or rejected.
// Envelope objects are never shared between messages so no synchronization
// is done for any of the fields.
type Envelope struct {
	// ID is the unique identifier of the message used in log output.
	ID string

	// ReceivedAt is the time the transaction started.
	ReceivedAt time.Time

	// Interface is the tag of the endpoint that accepted the message
	// ("submission", "forwarder", ...). Stages use it to decide whether
	// they apply.
	Interface string

	Conn *ConnState

	// MailFrom is the current envelope sender. Stages may replace it;
	// OriginalFrom keeps the value the client sent.
	MailFrom     string
	OriginalFrom string

	// RcptTo is accepted envelope recipients, in the order they were added.
	RcptTo []string

	SMTPOpts smtp.MailOptions

	// identity is the per-message cache slot for the resolved sender
	// account. It is deliberately tied to the Envelope lifetime: the cache
	// dies with the message and cannot leak into the next one.
	identity *Identity
}

// CachedIdentity returns the identity resolved earlier for this message, or
// nil if resolution was not done yet.
func (e *Envelope) CachedIdentity() *Identity {
	return e.identity
}

// CacheIdentity stores the resolved identity in the envelope so later stages
// observe the same snapshot without repeating the store query.
func (e *Envelope) CacheIdentity(info *Identity) {
	e.identity = info
}
