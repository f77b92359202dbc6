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

// Package imapsql implements the archive sink on top of the go-imap-sql
// mailbox storage (github.com/foxcpp/go-imap-sql).
//
// Stored copies land in the account's "Sent" mailbox, flagged \Seen so
// clients do not present the user's own mail as unread.
package imapsql

import (
	"context"
	"fmt"

	"github.com/emersion/go-message/textproto"
	imapsql "github.com/foxcpp/go-imap-sql"
	"github.com/mailward/mailward/framework/log"
	"github.com/mailward/mailward/framework/module"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

type Sink struct {
	back *imapsql.Backend

	// Mailbox is the destination mailbox name, "Sent" by default.
	Mailbox string

	Log log.Logger
}

func New(driver, dsn string, logger log.Logger) (*Sink, error) {
	back, err := imapsql.New(driver, dsn, nil, imapsql.Opts{
		// Prevent deadlock if nobody is listening for updates (no IMAP
		// server runs in this process).
		LazyUpdatesInit: true,
	})
	if err != nil {
		return nil, fmt.Errorf("archive/imapsql: %w", err)
	}
	back.EnableSpecialUseExt()

	return &Sink{back: back, Mailbox: "Sent", Log: logger}, nil
}

func (s *Sink) Append(_ context.Context, rec *module.ArchiveRecord) (module.AppendStatus, error) {
	d := s.back.NewDelivery()

	if err := d.AddRcpt(rec.Username, textproto.Header{}); err != nil {
		return module.AppendStatus{}, fmt.Errorf("archive/imapsql: %w", err)
	}
	d.UserMailbox(rec.Username, s.Mailbox, rec.Flags)

	r, err := rec.Body.Open()
	if err != nil {
		abortDelivery(d, s.Log)
		return module.AppendStatus{}, fmt.Errorf("archive/imapsql: %w", err)
	}
	defer r.Close()

	if err := d.BodyRaw(r); err != nil {
		abortDelivery(d, s.Log)
		return module.AppendStatus{}, fmt.Errorf("archive/imapsql: %w", err)
	}
	if err := d.Commit(); err != nil {
		return module.AppendStatus{}, fmt.Errorf("archive/imapsql: %w", err)
	}

	// go-imap-sql does not report the assigned UID through the delivery
	// interface.
	return module.AppendStatus{}, nil
}

func (s *Sink) Close() error {
	return s.back.Close()
}

func abortDelivery(d imapsql.Delivery, l log.Logger) {
	if err := d.Abort(); err != nil {
		l.Error("delivery abort failed", err)
	}
}
