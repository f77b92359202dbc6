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
	"errors"

	"github.com/mailward/mailward/framework/exterrors"
	"github.com/mailward/mailward/framework/module"
)

const stageAuth = "auth"

func authFailure(reason string) *exterrors.SMTPError {
	return &exterrors.SMTPError{
		Code:         535,
		EnhancedCode: exterrors.EnhancedCode{5, 7, 8},
		Message:      "Authentication failed",
		StageName:    stageAuth,
		Reason:       reason,
	}
}

// Authenticate verifies the credentials against the identity store.
//
// On success it returns the username in the form stored by the identity
// store; the caller must use the returned value for the session, not the
// client-submitted one, since the store may apply case or alias
// canonicalization.
//
// Primary ("master") credentials of accounts with two-factor authentication
// enabled are refused: such credentials must not be usable over a channel
// that cannot complete the second factor.
func (p *Pipeline) Authenticate(ctx context.Context, iface, username, password string) (string, Decision) {
	if !p.checkInterface(iface) {
		return username, cont()
	}
	if p.cfg.Auth == nil {
		return "", failed(errors.New("policy: no credentials store configured"))
	}

	info, err := p.cfg.Auth.AuthPlain(ctx, username, password)
	if err != nil {
		if errors.Is(err, module.ErrUnknownCredentials) {
			failedLogins.WithLabelValues(iface).Inc()
			p.Log.Msg("authentication refused", "username", username, "interface", iface)
			return "", deny(authFailure("invalid credentials"))
		}
		return "", failed(err)
	}
	if info == nil {
		// A store that returns neither an error nor a result is treated
		// the same as a credentials mismatch.
		failedLogins.WithLabelValues(iface).Inc()
		return "", deny(authFailure("no result from credentials store"))
	}

	if info.Master && info.TwoFactor {
		failedLogins.WithLabelValues(iface).Inc()
		p.Log.Msg("master password refused, 2FA enabled",
			"username", info.Username, "interface", iface)
		return "", deny(authFailure("master credentials with 2FA"))
	}

	return info.Username, cont()
}
