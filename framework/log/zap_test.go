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

package log

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func captureLogger(debug bool) (Logger, *[]string, *[]bool) {
	var msgs []string
	var debugs []bool
	l := Logger{
		Name:  "test",
		Debug: debug,
		Out: FuncOutput(func(_ time.Time, debug bool, msg string) {
			msgs = append(msgs, msg)
			debugs = append(debugs, debug)
		}, func() error { return nil }),
	}
	return l, &msgs, &debugs
}

func TestZapBridge(t *testing.T) {
	l, msgs, debugs := captureLogger(false)

	zl := l.Zap()
	zl.Info("listener failed", zap.String("addr", "127.0.0.1:9749"))
	zl.Debug("suppressed entry")

	if len(*msgs) != 1 {
		t.Fatalf("%d entries written, want 1: %v", len(*msgs), *msgs)
	}
	if !strings.Contains((*msgs)[0], "listener failed") {
		t.Errorf("message lost: %q", (*msgs)[0])
	}
	if !strings.Contains((*msgs)[0], "127.0.0.1:9749") {
		t.Errorf("field lost: %q", (*msgs)[0])
	}
	if (*debugs)[0] {
		t.Error("info entry written as debug")
	}
}

func TestZapBridgeDebug(t *testing.T) {
	l, msgs, debugs := captureLogger(true)

	l.Zap().Debug("debug entry")

	if len(*msgs) != 1 {
		t.Fatalf("%d entries written, want 1", len(*msgs))
	}
	if !(*debugs)[0] {
		t.Error("debug entry not marked as debug")
	}
}

func TestZapStdLogBridge(t *testing.T) {
	l, msgs, _ := captureLogger(false)

	std := zap.NewStdLog(l.Zap())
	std.Print("http: panic serving")

	if len(*msgs) != 1 {
		t.Fatalf("%d entries written, want 1", len(*msgs))
	}
	if !strings.Contains((*msgs)[0], "http: panic serving") {
		t.Errorf("message lost: %q", (*msgs)[0])
	}
}
