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

// Package memcounter provides an in-process module.CounterStore.
//
// Useful for tests and single-node deployments that do not run a shared
// counter store. Counters are lost on restart, which for rate accounting is
// an acceptable failure mode.
package memcounter

import (
	"context"
	"sync"
	"time"

	"github.com/mailward/mailward/framework/module"
)

type window struct {
	count   int
	expires time.Time
}

// Store is a map-backed counter store with expiring windows.
//
// Expired entries are reaped lazily on access and in bulk when the map
// grows past MaxKeys.
type Store struct {
	// MaxKeys bounds the internal map. When exceeded, stale windows are
	// dropped on the next Incr.
	MaxKeys int

	// Now is replaceable for tests.
	Now func() time.Time

	lck sync.Mutex
	m   map[string]*window
}

func New() *Store {
	return &Store{
		MaxKeys: 20010,
		Now:     time.Now,
		m:       map[string]*window{},
	}
}

func (s *Store) Incr(_ context.Context, key string, cost int, ttl time.Duration) (module.RateWindow, error) {
	s.lck.Lock()
	defer s.lck.Unlock()

	now := s.Now()

	if len(s.m) > s.MaxKeys {
		for k, w := range s.m {
			if now.After(w.expires) {
				delete(s.m, k)
			}
		}
	}

	w, ok := s.m[key]
	if ok && now.After(w.expires) {
		delete(s.m, key)
		ok = false
	}
	if !ok {
		s.m[key] = &window{count: cost, expires: now.Add(ttl)}
		// First hit in a fresh window reports no remaining time, matching
		// the behavior of counter stores that set expiry asynchronously.
		return module.RateWindow{Count: cost, TTL: 0}, nil
	}

	w.count += cost
	return module.RateWindow{Count: w.count, TTL: w.expires.Sub(now)}, nil
}
