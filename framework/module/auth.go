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

// ErrUnknownCredentials should be returned by the auth provider if supplied
// credentials are valid for it but are not recognized (e.g. not found in
// used DB).
var ErrUnknownCredentials = errors.New("unknown credentials")

// AuthInfo describes the account a set of credentials resolved to.
type AuthInfo struct {
	// Username is the account name in the form stored by the credentials
	// store. It may differ from the client-submitted value in case or
	// aliasing and callers must use this value for the session.
	Username string

	// Master marks primary-scope credentials (as opposed to
	// application-specific passwords).
	Master bool

	// TwoFactor is set when the account has two-factor authentication
	// enabled.
	TwoFactor bool
}

// PlainAuth is the interface implemented by modules providing authentication
// using username:password pairs.
type PlainAuth interface {
	// AuthPlain verifies the credentials and returns the resolved account.
	// ErrUnknownCredentials is returned for any credentials mismatch; other
	// errors indicate a store failure.
	AuthPlain(ctx context.Context, username, password string) (*AuthInfo, error)
}
