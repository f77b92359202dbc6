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
	"github.com/emersion/go-message/textproto"
)

// Route is the set of transport parameters for one outbound delivery.
type Route struct {
	// MXs is the ordered list of hosts to attempt.
	MXs []string

	Port int

	// Proto is "smtp" or "lmtp".
	Proto string

	// Zone is the delivery zone tag recognized by the relaying host, empty
	// when the default zone applies.
	Zone string
}

// Delivery is the mutable state of one outbound delivery attempt flowing
// through the sender-side policy stages.
type Delivery struct {
	// ID is the delivery identifier used in log output.
	ID string

	// Interface is the tag of the sending interface performing this
	// delivery.
	Interface string

	// MailFrom is the envelope sender. The outbound rewrite stage may
	// replace it; OriginalFrom keeps the pre-rewrite value.
	MailFrom     string
	OriginalFrom string

	RcptTo []string

	// Header is the message header, nil when the delivery carries no
	// header mutation capability.
	Header *textproto.Header

	// Route is the resolved transport parameters. The routing stage
	// overwrites it for locally-known recipients and leaves it untouched
	// otherwise.
	Route *Route
}
