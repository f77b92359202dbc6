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
	"time"

	"github.com/mailward/mailward/framework/buffer"
)

// ArchiveMetadata is the transport context stored alongside the archived
// message copy.
type ArchiveMetadata struct {
	// Source is the submission protocol ("SMTP", "ESMTP", ...).
	Source string

	From string
	To   []string

	// Origin is the client IP address.
	Origin string

	// OriginHost is the client EHLO name.
	OriginHost string

	// TransHost is the hostname the message was accepted on.
	TransHost string

	Time time.Time
}

// ArchiveRecord is one message copy to be placed into the owner's archive.
type ArchiveRecord struct {
	// Username identifies the owning account.
	Username string

	Metadata ArchiveMetadata

	// Flags is the IMAP flags the stored copy is tagged with.
	Flags []string

	// Body is the complete composed message (headers included).
	Body buffer.Buffer

	// SuppressDuplicate requests that the insert is skipped when a
	// byte-identical copy already exists for this account.
	SuppressDuplicate bool
}

// AppendStatus is the outcome of a successful ArchiveSink.Append.
type AppendStatus struct {
	// UID is the IMAP UID assigned to the stored copy, zero when the sink
	// does not report one.
	UID uint32

	// Duplicate is set when the insert was skipped due to duplicate
	// suppression.
	Duplicate bool
}

// ArchiveSink stores copies of sent messages into the account's "Sent"
// collection.
type ArchiveSink interface {
	Append(ctx context.Context, rec *ArchiveRecord) (AppendStatus, error)
}
