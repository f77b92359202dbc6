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

	"github.com/mailward/mailward/framework/address"
	"github.com/mailward/mailward/framework/module"
)

// Header names recording the pre-rewrite envelope for forwarded deliveries.
const (
	OriginalSenderHeader = "X-Mailward-Original-Sender"
	OriginalRcptHeader   = "X-Mailward-Original-Rcpt"
)

// RewriteOutbound replaces the envelope sender of forwarded deliveries with
// an SRS alias under the local domain, so remote SPF checks evaluate our
// domain instead of the original sender's.
//
// Only deliveries leaving through the forwarder interface are touched;
// submissions by local users keep their (already enforced) sender. Rewrite
// failure degrades to the unmodified sender rather than blocking the
// delivery.
func (p *Pipeline) RewriteOutbound(ctx context.Context, d *module.Delivery) Decision {
	if p.cfg.SRS == nil || d.Interface != p.cfg.ForwarderInterface {
		return cont()
	}
	if d.MailFrom == "" {
		// Bounces keep the null reverse-path.
		return cont()
	}
	if d.OriginalFrom != "" {
		// The sender was already rewritten for this delivery. Aliasing an
		// alias would make the reverse path unrecoverable.
		return cont()
	}
	l := idLogger(p.Log, d.ID)

	if d.Header != nil {
		d.Header.Add(OriginalSenderHeader, d.MailFrom)
		for _, rcpt := range d.RcptTo {
			d.Header.Add(OriginalRcptHeader, rcpt)
		}
	}

	alias, err := p.cfg.SRS.RewriteAddr(d.MailFrom)
	if err != nil {
		l.Error("SRS rewrite failed, sender kept", err, "sender", d.MailFrom)
		return cont()
	}

	l.Msg("sender rewritten for forwarding", "original", d.MailFrom, "rewritten", alias)
	senderRewrites.WithLabelValues("srs").Inc()
	d.OriginalFrom = d.MailFrom
	d.MailFrom = alias
	return cont()
}

// RouteLocal overrides the delivery route for recipients known to the local
// address directory, short-circuiting MX resolution and pointing the
// delivery at the local store endpoints.
func (p *Pipeline) RouteLocal(ctx context.Context, d *module.Delivery, rcptTo string) Decision {
	if len(p.cfg.LocalMXs) == 0 || p.cfg.LocalAddrs == nil {
		return cont()
	}

	canon := address.ForAccount(rcptTo)
	if canon == "" {
		return cont()
	}
	_, ok, err := p.cfg.LocalAddrs.Lookup(ctx, canon)
	if err != nil {
		return failed(err)
	}
	if !ok {
		return cont()
	}

	idLogger(p.Log, d.ID).DebugMsg("routing to local store", "rcpt", rcptTo)
	d.Route = &module.Route{
		MXs:   p.cfg.LocalMXs,
		Port:  p.cfg.LocalPort,
		Proto: "lmtp",
		Zone:  p.cfg.LocalZone,
	}
	return cont()
}
