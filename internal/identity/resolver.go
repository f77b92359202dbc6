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

// Package identity resolves the authenticated user of a message to the
// account record governing its submission.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/mailward/mailward/framework/exterrors"
	"github.com/mailward/mailward/framework/module"
)

// ErrNoAuthUser is returned when the envelope carries no authenticated
// username, so there is nothing to resolve against.
var ErrNoAuthUser = errors.New("identity: insufficient identity information")

// Resolver memoizes identity store lookups per message.
type Resolver struct {
	Store module.UserStore
}

// Resolve returns the account record for the envelope's authenticated user.
//
// The first call for an envelope queries the store and caches the result in
// the envelope itself; repeated calls within the same message are free and
// observe the same snapshot even if the store row is changed concurrently.
// The cache lives and dies with the envelope, nothing is kept in the
// resolver.
func (r Resolver) Resolve(ctx context.Context, env *module.Envelope) (*module.Identity, error) {
	if cached := env.CachedIdentity(); cached != nil {
		return cached, nil
	}

	if env.Conn == nil || env.Conn.AuthUser == "" {
		return nil, ErrNoAuthUser
	}

	info, err := r.Store.Lookup(ctx, env.Conn.AuthUser)
	if err != nil {
		if errors.Is(err, module.ErrUserNotFound) {
			return nil, exterrors.WithFields(
				fmt.Errorf("identity: %w", err),
				map[string]interface{}{"username": env.Conn.AuthUser})
		}
		return nil, exterrors.WithTemporary(fmt.Errorf("identity: %w", err), true)
	}

	env.CacheIdentity(info)
	return info, nil
}
