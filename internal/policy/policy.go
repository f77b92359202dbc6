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

// Package policy implements the submission policy pipeline.
//
// The pipeline is an ordered set of named stages invoked by the hosting
// transport at defined points of the SMTP transaction: authentication,
// header fixup, recipient admission, archival on enqueue, outbound sender
// rewrite and local routing override. Each stage is an ordinary method
// returning a Decision; the host interprets the Decision and maps it onto
// the enclosing protocol operation.
//
// Stages are independent and idempotent. A stage whose interface allow-list
// does not cover the session's interface falls through without touching the
// message.
package policy

import (
	"errors"
	"time"

	"github.com/mailward/mailward/framework/exterrors"
	"github.com/mailward/mailward/framework/log"
	"github.com/mailward/mailward/framework/module"
	"github.com/mailward/mailward/internal/archive"
	"github.com/mailward/mailward/internal/identity"
	"github.com/mailward/mailward/internal/ratelimit"
	"github.com/mailward/mailward/internal/srs"
)

// Decision is the outcome of one policy stage.
//
// The zero value means "continue": the stage has no objection and may have
// mutated the message. Deny is a deliberate policy refusal carrying the
// transport response; it is logged as a decision, not as an error. Err is an
// infrastructure failure; the host transport decides the transaction
// outcome.
type Decision struct {
	Deny *exterrors.SMTPError
	Err  error
}

// Continue reports whether the stage passed the message through.
func (d Decision) Continue() bool {
	return d.Deny == nil && d.Err == nil
}

func cont() Decision {
	return Decision{}
}

func deny(err *exterrors.SMTPError) Decision {
	return Decision{Deny: err}
}

func failed(err error) Decision {
	return Decision{Err: err}
}

// Config is the static pipeline configuration plus its external
// collaborators. All settings come from the hosting process.
type Config struct {
	// Hostname is used in synthesized Received headers.
	Hostname string

	// Interfaces is the set of interface tags the policy applies to.
	// The single element "*" covers all interfaces.
	Interfaces []string

	// ForwarderInterface is the sending interface tag that triggers the
	// outbound SRS rewrite. Empty disables the rewrite stage.
	ForwarderInterface string

	// RcptWindow is the accounting window for the recipient rate gate.
	// Defaults to 24 hours.
	RcptWindow time.Duration

	// LocalMXs, LocalPort and LocalZone configure the local-delivery
	// routing override. An empty LocalMXs disables the routing stage.
	LocalMXs  []string
	LocalPort int
	LocalZone string

	Users    module.UserStore
	Auth     module.PlainAuth
	Counters module.CounterStore

	// LocalAddrs is the directory of locally-known addresses consulted by
	// the routing stage.
	LocalAddrs module.Table

	// Archive receives copies of accepted messages. Nil disables
	// archival.
	Archive *archive.Worker

	// SRS performs the outbound sender rewrite. Nil disables it.
	SRS *srs.Rewriter

	Log log.Logger
}

// Pipeline is the submission policy engine. It holds no per-message state;
// everything mutable lives in the Envelope or Delivery being processed, so
// one Pipeline serves all concurrent sessions.
type Pipeline struct {
	cfg      Config
	resolver identity.Resolver
	limiter  ratelimit.Limiter

	Log log.Logger
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.Users == nil {
		return nil, errors.New("policy: identity store is required")
	}
	if cfg.RcptWindow == 0 {
		cfg.RcptWindow = 24 * time.Hour
	}
	if len(cfg.Interfaces) == 0 {
		cfg.Interfaces = []string{"*"}
	}

	return &Pipeline{
		cfg:      cfg,
		resolver: identity.Resolver{Store: cfg.Users},
		limiter:  ratelimit.Limiter{Store: cfg.Counters, Window: cfg.RcptWindow},
		Log:      cfg.Log,
	}, nil
}

// checkInterface reports whether the policy applies to the given interface
// tag.
func (p *Pipeline) checkInterface(iface string) bool {
	for _, i := range p.cfg.Interfaces {
		if i == "*" || i == iface {
			return true
		}
	}
	return false
}

// msgLogger returns the pipeline logger with the message id field attached.
func (p *Pipeline) msgLogger(env *module.Envelope) log.Logger {
	return idLogger(p.Log, env.ID)
}

func idLogger(l log.Logger, id string) log.Logger {
	fields := make(map[string]interface{}, len(l.Fields)+1)
	for k, v := range l.Fields {
		fields[k] = v
	}
	fields["msg_id"] = id
	l.Fields = fields
	return l
}
