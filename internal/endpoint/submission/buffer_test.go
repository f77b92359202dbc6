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

package submission

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/mailward/mailward/framework/buffer"
)

func readBuffer(t *testing.T, b buffer.Buffer) []byte {
	t.Helper()
	r, err := b.Open()
	if err != nil {
		t.Fatal("Open:", err)
	}
	defer r.Close()
	blob, err := io.ReadAll(r)
	if err != nil {
		t.Fatal("ReadAll:", err)
	}
	return blob
}

func TestAutoBufferSmallBody(t *testing.T) {
	bodyBuf := AutoBuffer(1024, t.TempDir())

	body := []byte("a small message body\r\n")
	b, err := bodyBuf(bytes.NewReader(body))
	if err != nil {
		t.Fatal("AutoBuffer:", err)
	}
	defer b.Remove()

	if _, ok := b.(buffer.MemoryBuffer); !ok {
		t.Fatalf("small body buffered as %T, want buffer.MemoryBuffer", b)
	}
	if blob := readBuffer(t, b); !bytes.Equal(blob, body) {
		t.Errorf("body = %q, want %q", blob, body)
	}
}

func TestAutoBufferLargeBody(t *testing.T) {
	bodyBuf := AutoBuffer(16, t.TempDir())

	body := []byte(strings.Repeat("0123456789", 10))
	b, err := bodyBuf(bytes.NewReader(body))
	if err != nil {
		t.Fatal("AutoBuffer:", err)
	}
	defer b.Remove()

	if _, ok := b.(buffer.FileBuffer); !ok {
		t.Fatalf("large body buffered as %T, want buffer.FileBuffer", b)
	}
	if blob := readBuffer(t, b); !bytes.Equal(blob, body) {
		t.Errorf("body = %q, want %q", blob, body)
	}
}

func TestAutoBufferExactThreshold(t *testing.T) {
	body := []byte(strings.Repeat("x", 16))
	b, err := AutoBuffer(16, t.TempDir())(bytes.NewReader(body))
	if err != nil {
		t.Fatal("AutoBuffer:", err)
	}
	defer b.Remove()

	if blob := readBuffer(t, b); !bytes.Equal(blob, body) {
		t.Errorf("body = %q, want %q", blob, body)
	}
}

func TestNewDefaultsBodyBuffer(t *testing.T) {
	endp := New(Config{Hostname: "mx.example.org"})
	defer endp.Close()

	if endp.cfg.BodyBuffer == nil {
		t.Fatal("BodyBuffer not defaulted")
	}
	b, err := endp.cfg.BodyBuffer(strings.NewReader("hello"))
	if err != nil {
		t.Fatal("BodyBuffer:", err)
	}
	defer b.Remove()
	if _, ok := b.(buffer.MemoryBuffer); !ok {
		t.Fatalf("default buffered as %T, want buffer.MemoryBuffer", b)
	}
}
