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
	"context"
	"errors"
)

// ErrUserNotFound is returned by UserStore.Lookup when no account exists
// for the requested username.
var ErrUserNotFound = errors.New("module: no such user")

// Identity is the account record governing a message's sending permissions.
//
// It is a read-only snapshot of the identity store row taken once per
// message (see Envelope.CacheIdentity). Concurrent store mutations do not
// affect an in-flight message.
type Identity struct {
	// Username is the canonical account name.
	Username string

	// Address is the account's primary (canonical) email address.
	Address string

	// Quota is the storage quota in bytes.
	Quota int64

	// StorageUsed is the current storage usage in bytes.
	StorageUsed int64

	// Recipients is the maximum number of outgoing recipients per
	// accounting window. Zero means no cap is configured.
	Recipients int
}

// UserStore is the identity store interface.
//
// Both queries are expected to be served by a shared store that is mutated
// concurrently with message processing; implementations must be safe for
// concurrent use.
type UserStore interface {
	// Lookup fetches the account record for the username, projecting
	// exactly the Identity fields. ErrUserNotFound is returned when the
	// account does not exist; any other error is an infrastructure
	// failure.
	Lookup(ctx context.Context, username string) (*Identity, error)

	// AuthorizedAddress reports whether the canonical address addr is
	// registered to the account. addr must already be in
	// address.ForAccount form.
	AuthorizedAddress(ctx context.Context, username, addr string) (bool, error)
}
