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

package testutils

import (
	"context"
	"sync"

	"github.com/mailward/mailward/framework/module"
)

// UserStore is an in-memory module.UserStore and module.PlainAuth for use
// in tests.
type UserStore struct {
	// Users maps username to the account record.
	Users map[string]*module.Identity

	// Addrs maps canonical extra addresses to the owning username. The
	// account's own Address is always authorized and need not be listed.
	Addrs map[string]string

	// Passwords maps username to the accepted password.
	Passwords map[string]string

	// Auth overrides the AuthInfo returned for a successful AuthPlain.
	Auth map[string]*module.AuthInfo

	Err error
}

func (s *UserStore) Lookup(_ context.Context, username string) (*module.Identity, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	info, ok := s.Users[username]
	if !ok {
		return nil, module.ErrUserNotFound
	}
	return info, nil
}

func (s *UserStore) AuthorizedAddress(_ context.Context, username, addr string) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	if info, ok := s.Users[username]; ok && info.Address == addr {
		return true, nil
	}
	return s.Addrs[addr] == username, nil
}

func (s *UserStore) AuthPlain(_ context.Context, username, password string) (*module.AuthInfo, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	stored, ok := s.Passwords[username]
	if !ok || stored != password {
		return nil, module.ErrUnknownCredentials
	}
	if info, ok := s.Auth[username]; ok {
		return info, nil
	}
	return &module.AuthInfo{Username: username}, nil
}

// Table is a static module.Table.
type Table struct {
	M   map[string]string
	Err error
}

func (m Table) Lookup(_ context.Context, a string) (string, bool, error) {
	b, ok := m.M[a]
	return b, ok, m.Err
}

// ArchiveSink records appended messages for inspection.
type ArchiveSink struct {
	mu      sync.Mutex
	Records []module.ArchiveRecord
	Err     error
}

func (s *ArchiveSink) Append(_ context.Context, rec *module.ArchiveRecord) (module.AppendStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return module.AppendStatus{}, s.Err
	}
	s.Records = append(s.Records, *rec)
	return module.AppendStatus{UID: uint32(len(s.Records))}, nil
}

func (s *ArchiveSink) Appended() []module.ArchiveRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]module.ArchiveRecord, len(s.Records))
	copy(out, s.Records)
	return out
}
