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

	"github.com/mailward/mailward/framework/exterrors"
	"github.com/mailward/mailward/framework/module"
	"github.com/mailward/mailward/internal/ratelimit"
)

const stageRcpt = "rcpt"

// CheckRcpt charges one recipient against the account's sending allowance
// and denies the RCPT command when the allowance for the current window is
// exhausted.
//
// Accounts with no recipient cap configured are not charged at all. The
// charge for the over-limit recipient itself is kept: a client that keeps
// retrying against a closed window extends nothing, the window expires on
// schedule regardless.
func (p *Pipeline) CheckRcpt(ctx context.Context, env *module.Envelope, rcptTo string) Decision {
	if !p.checkInterface(env.Interface) {
		return cont()
	}

	info, err := p.resolver.Resolve(ctx, env)
	if err != nil {
		return failed(err)
	}
	if info.Recipients <= 0 {
		return cont()
	}

	status, err := p.limiter.CheckAndIncrement(ctx, "rcpt:"+info.Username, 1, info.Recipients)
	if err != nil {
		return failed(exterrors.WithFields(err, map[string]interface{}{
			"username": info.Username, "rcpt": rcptTo,
		}))
	}
	if status.Allowed {
		return cont()
	}

	p.msgLogger(env).Msg("recipient limit reached",
		"username", info.Username, "rcpt", rcptTo,
		"used", status.Used, "limit", info.Recipients,
		"ttl", status.TTL)
	policyDenials.WithLabelValues(stageRcpt).Inc()

	return deny(&exterrors.SMTPError{
		Code:         550,
		EnhancedCode: exterrors.EnhancedCode{5, 7, 0},
		Message:      "You reached a daily sending limit, limit expires in " + ratelimit.FormatTTL(status.TTL),
		StageName:    stageRcpt,
	})
}
