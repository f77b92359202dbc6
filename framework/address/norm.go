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

package address

import (
	"strings"

	"github.com/mailward/mailward/framework/dns"
	"golang.org/x/text/unicode/norm"
)

// ForLookup transforms the address into a canonical form usable for map
// lookups or direct comparisons.
//
// If Equal(addr1, addr2) == true, then ForLookup(addr1) == ForLookup(addr2).
//
// On error, case-folded addr is also returned.
func ForLookup(addr string) (string, error) {
	mbox, domain, err := Split(addr)
	if err != nil {
		return strings.ToLower(addr), err
	}

	if domain != "" {
		domain, err = dns.ForLookup(domain)
		if err != nil {
			return strings.ToLower(addr), err
		}
	}

	mbox = strings.ToLower(norm.NFC.String(mbox))

	if domain == "" {
		return mbox, nil
	}

	return mbox + "@" + domain, nil
}

// ForAccount reduces the address to the canonical form identifying the
// owning account.
//
// On top of the ForLookup transformation, the sub-addressing tag is removed
// from the local part: everything starting at the first '+' is dropped.
// user+lists@EXAMPLE.ORG and USER@example.org identify the same account.
//
// All identity comparisons in the policy engine are done on ForAccount
// output, raw addresses are never compared directly.
//
// Malformed input yields an empty string, not an error. Policy code treats a
// message with an unparseable sender the same way it treats one with no
// sender.
func ForAccount(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}

	mbox, domain, err := Split(addr)
	if err != nil {
		return ""
	}

	if indx := strings.IndexByte(mbox, '+'); indx != -1 {
		mbox = mbox[:indx]
	}
	mbox = strings.ToLower(norm.NFC.String(strings.TrimSpace(mbox)))
	if mbox == "" {
		return ""
	}
	if domain == "" {
		return mbox
	}

	// Errors are deliberately dropped: dns.ForLookup falls back to plain
	// case-folding for malformed A-labels and that is good enough for
	// account identification.
	domain, _ = dns.ForLookup(strings.TrimSpace(domain))

	return mbox + "@" + domain
}

// Equal reports whether addr1 and addr2 are considered to be
// case-insensitively equivalent.
//
// The equivalence is defined to be the conjunction of IDN label equivalence
// for the domain part and canonical equivalence of the local-part converted
// to lower case.
//
// Equivalence for malformed addresses is defined using regular byte-string
// comparison with case-folding applied.
func Equal(addr1, addr2 string) bool {
	// Short circuit. If they are bit-equivalent, then they are also
	// canonically equivalent.
	if addr1 == addr2 {
		return true
	}

	uAddr1, _ := ForLookup(addr1)
	uAddr2, _ := ForLookup(addr2)
	return uAddr1 == uAddr2
}
