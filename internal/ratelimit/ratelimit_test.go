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

package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mailward/mailward/framework/module"
	"github.com/mailward/mailward/internal/ratelimit/memcounter"
)

func TestCheckAndIncrement(t *testing.T) {
	l := Limiter{Store: memcounter.New(), Window: time.Hour}
	ctx := context.Background()

	const ceiling = 5
	for i := 1; i <= ceiling; i++ {
		status, err := l.CheckAndIncrement(ctx, "rcpt:user", 1, ceiling)
		if err != nil {
			t.Fatal(err)
		}
		if !status.Allowed {
			t.Fatalf("hit %d of %d denied", i, ceiling)
		}
		if status.Used != i {
			t.Fatalf("hit %d: Used = %d", i, status.Used)
		}
	}

	// Ceiling+1 and everything after is denied, but still counted.
	for i := 0; i < 3; i++ {
		status, err := l.CheckAndIncrement(ctx, "rcpt:user", 1, ceiling)
		if err != nil {
			t.Fatal(err)
		}
		if status.Allowed {
			t.Fatal("over-ceiling hit allowed")
		}
		if status.Used != ceiling+1+i {
			t.Fatalf("over-ceiling hit not counted: Used = %d", status.Used)
		}
	}

	// Other keys are unaffected.
	status, err := l.CheckAndIncrement(ctx, "rcpt:other", 1, ceiling)
	if err != nil {
		t.Fatal(err)
	}
	if !status.Allowed {
		t.Fatal("unrelated key denied")
	}
}

func TestCheckAndIncrementCost(t *testing.T) {
	l := Limiter{Store: memcounter.New(), Window: time.Hour}

	status, err := l.CheckAndIncrement(context.Background(), "k", 10, 5)
	if err != nil {
		t.Fatal(err)
	}
	if status.Allowed {
		t.Error("cost past ceiling allowed")
	}
	if status.Used != 10 {
		t.Errorf("Used = %d, want 10", status.Used)
	}
}

type failingStore struct{ err error }

func (s failingStore) Incr(context.Context, string, int, time.Duration) (module.RateWindow, error) {
	return module.RateWindow{}, s.err
}

func TestCheckAndIncrementStoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	l := Limiter{Store: failingStore{storeErr}, Window: time.Hour}

	_, err := l.CheckAndIncrement(context.Background(), "k", 1, 5)
	if !errors.Is(err, storeErr) {
		t.Errorf("store error not propagated: %v", err)
	}
}

func TestFormatTTL(t *testing.T) {
	test := func(ttl time.Duration, want string) {
		t.Helper()
		if got := FormatTTL(ttl); got != want {
			t.Errorf("FormatTTL(%v) = %q, want %q", ttl, got, want)
		}
	}

	test(0, "0 seconds")
	test(45*time.Second, "45 seconds")
	test(60*time.Second, "1 minutes")
	test(90*time.Second, "2 minutes")
	test(59*time.Minute, "59 minutes")
	test(time.Hour, "1 hours")
	test(90*time.Minute, "2 hours")
	test(23*time.Hour+40*time.Minute, "24 hours")
}
