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

// Package ratelimit implements fixed-window rate accounting on top of an
// external atomic counter store.
//
// Each distinct key accumulates usage against a ceiling for the duration of
// the window, then the counter expires and a fresh window starts. Once a key
// is over its ceiling every further request in the window is denied:
// the over-limit increment is kept, never refunded, so concurrent requests
// racing past the ceiling cannot be double-admitted.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mailward/mailward/framework/module"
)

// Status is the outcome of one CheckAndIncrement call.
type Status struct {
	// Allowed is false when the increment pushed the counter past the
	// ceiling or the window was already exhausted.
	Allowed bool

	// Used is the post-increment counter value.
	Used int

	// TTL is the remaining lifetime of the window. Zero for the first hit
	// in a fresh window.
	TTL time.Duration
}

// Limiter tracks per-identity usage over a rolling window.
//
// Limiter only computes, the counters live in the store; it is safe for
// concurrent use and never blocks requests for one key on requests for
// another.
type Limiter struct {
	Store module.CounterStore

	// Window is the accounting window length applied to fresh counters.
	Window time.Duration
}

// CheckAndIncrement atomically adds cost to the counter behind key and
// checks the result against ceiling.
//
// The increment is a single store round trip: check-then-increment would
// race between concurrent messages for the same identity. On a store error
// the returned Status is meaningless and the error must be propagated, it is
// an infrastructure failure, not a denial.
func (l Limiter) CheckAndIncrement(ctx context.Context, key string, cost, ceiling int) (Status, error) {
	win, err := l.Store.Incr(ctx, key, cost, l.Window)
	if err != nil {
		return Status{}, fmt.Errorf("ratelimit: %w", err)
	}

	return Status{
		Allowed: win.Count <= ceiling,
		Used:    win.Count,
		TTL:     win.TTL,
	}, nil
}

// FormatTTL renders the remaining window time for use in human-readable
// denial messages: seconds below a minute, rounded minutes below an hour,
// rounded hours otherwise.
func FormatTTL(ttl time.Duration) string {
	secs := int(ttl.Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%d seconds", secs)
	case secs < 3600:
		return fmt.Sprintf("%d minutes", int(math.Round(float64(secs)/60)))
	default:
		return fmt.Sprintf("%d hours", int(math.Round(float64(secs)/3600)))
	}
}
