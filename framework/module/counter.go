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
)

// RateWindow is the state of one counter-store record after an increment.
type RateWindow struct {
	// Count is the post-increment counter value.
	Count int

	// TTL is the remaining lifetime of the accounting window. Zero means
	// the increment opened a fresh window.
	TTL time.Duration
}

// CounterStore is the external atomic counter used for rate accounting.
//
// The store is shared between all concurrent sessions. Incr must be atomic
// at the store level: a single check-and-increment round trip, never
// read-then-write. Counters expire on their own after the window passes.
type CounterStore interface {
	// Incr adds cost to the counter behind key, creating it with the given
	// window lifetime when absent, and returns the resulting window state.
	Incr(ctx context.Context, key string, cost int, window time.Duration) (RateWindow, error)
}
