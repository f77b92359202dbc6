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
	"net/mail"

	"github.com/emersion/go-message/textproto"
	"github.com/mailward/mailward/framework/address"
	"github.com/mailward/mailward/framework/module"
)

// OriginalFromHeader preserves the client-submitted From value when the
// identity enforcement stage rewrites it.
const OriginalFromHeader = "X-Original-From"

// FixupHeaders enforces the sender identity on the envelope and the message
// header.
//
// The envelope MAIL FROM is checked against the account's authorized
// addresses first and silently replaced with the account's canonical
// address when it is not among them. The From: header is checked second,
// against the same set, and rewritten to the (possibly corrected) envelope
// sender on mismatch; the original value is preserved in X-Original-From.
// The ordering is load-bearing: the From correction substitutes the
// corrected envelope sender.
//
// Unauthorized identities are never a reason to refuse the message here,
// the correction itself is the policy.
func (p *Pipeline) FixupHeaders(ctx context.Context, env *module.Envelope, hdr *textproto.Header) Decision {
	if !p.checkInterface(env.Interface) {
		return cont()
	}

	info, err := p.resolver.Resolve(ctx, env)
	if err != nil {
		return failed(err)
	}
	l := p.msgLogger(env)

	// Envelope sender first.
	ok, err := p.addrAuthorized(ctx, info, env.MailFrom)
	if err != nil {
		return failed(err)
	}
	if !ok {
		l.Msg("envelope sender rewritten",
			"original", env.MailFrom, "rewritten", info.Address,
			"username", info.Username)
		senderRewrites.WithLabelValues("envelope").Inc()
		env.OriginalFrom = env.MailFrom
		env.MailFrom = info.Address
	}

	// Then the From header, substituting the corrected envelope sender.
	fromHdr := hdr.Get("From")
	if fromHdr == "" {
		return cont()
	}
	fromAddr, name := parseFirstAddress(fromHdr)

	ok, err = p.addrAuthorized(ctx, info, fromAddr)
	if err != nil {
		return failed(err)
	}
	if ok {
		return cont()
	}

	newFrom := (&mail.Address{Name: name, Address: env.MailFrom}).String()
	hdr.Del("From")
	hdr.Add("From", newFrom)
	hdr.Add(OriginalFromHeader, fromHdr)

	l.Msg("from header rewritten",
		"original", fromHdr, "rewritten", newFrom, "username", info.Username)
	senderRewrites.WithLabelValues("header").Inc()

	return cont()
}

// addrAuthorized reports whether the canonical form of addr belongs to the
// account. The account's own canonical address always qualifies, sparing a
// store query for the common case.
func (p *Pipeline) addrAuthorized(ctx context.Context, info *module.Identity, addr string) (bool, error) {
	canon := address.ForAccount(addr)
	if canon == "" {
		return false, nil
	}
	if canon == address.ForAccount(info.Address) {
		return true, nil
	}
	return p.cfg.Users.AuthorizedAddress(ctx, info.Username, canon)
}

// parseFirstAddress extracts the first address of an address-list header
// value. Group constructs and unparseable values yield an empty address,
// which no account is authorized for.
func parseFirstAddress(hdr string) (addr, name string) {
	list, err := mail.ParseAddressList(hdr)
	if err != nil || len(list) == 0 {
		return "", ""
	}
	return list[0].Address, list[0].Name
}
