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

// Package submission exposes the policy pipeline over an SMTP submission
// endpoint.
//
// The endpoint is deliberately thin: it owns the protocol conversation and
// the session state, all decisions are made by the pipeline. Accepted
// messages are handed to the configured Submit hook, which is whatever the
// deployment uses for onward delivery.
package submission

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"time"

	"github.com/emersion/go-message/textproto"
	"github.com/emersion/go-smtp"
	"github.com/mailward/mailward/framework/buffer"
	"github.com/mailward/mailward/framework/dns"
	"github.com/mailward/mailward/framework/log"
	"github.com/mailward/mailward/framework/module"
	"github.com/mailward/mailward/internal/policy"
)

// SubmitFunc receives the accepted message after all policy stages passed.
// The header is the fixed-up header; body is the unmodified message body.
type SubmitFunc func(ctx context.Context, env *module.Envelope, hdr textproto.Header, body buffer.Buffer) error

// Config is static endpoint configuration.
type Config struct {
	// Hostname is the server name announced in the SMTP banner.
	Hostname string

	// Interface is the tag reported to the pipeline. Defaults to
	// "submission".
	Interface string

	TLS *tls.Config

	MaxMessageBytes int64
	MaxRecipients   int

	// BodyBuffer decides where the message body is kept while the policy
	// stages run. Defaults to buffer.BufferInMemory; use AutoBuffer to
	// spill large bodies to disk.
	BodyBuffer func(io.Reader) (buffer.Buffer, error)

	// Resolver performs the rDNS lookup for the trace header origin.
	// Defaults to net.DefaultResolver.
	Resolver dns.Resolver

	Pipeline *policy.Pipeline

	// Submit is called for every accepted message. Nil means the endpoint
	// only applies policy and discards the message, which is useful for
	// dry runs.
	Submit SubmitFunc

	Log log.Logger
}

// Endpoint is a submission SMTP server backed by the policy pipeline.
type Endpoint struct {
	cfg  Config
	serv *smtp.Server

	Log log.Logger
}

func New(cfg Config) *Endpoint {
	if cfg.Interface == "" {
		cfg.Interface = "submission"
	}
	if cfg.BodyBuffer == nil {
		cfg.BodyBuffer = buffer.BufferInMemory
	}
	if cfg.Resolver == nil {
		cfg.Resolver = net.DefaultResolver
	}
	endp := &Endpoint{
		cfg: cfg,
		Log: cfg.Log,
	}

	endp.serv = smtp.NewServer(endp)
	endp.serv.Domain = cfg.Hostname
	endp.serv.TLSConfig = cfg.TLS
	endp.serv.ReadTimeout = 10 * time.Minute
	endp.serv.WriteTimeout = 1 * time.Minute
	endp.serv.MaxMessageBytes = cfg.MaxMessageBytes
	endp.serv.MaxRecipients = cfg.MaxRecipients
	endp.serv.EnableSMTPUTF8 = true
	endp.serv.ErrorLog = endp.Log
	return endp
}

// NewSession implements smtp.Backend.
func (endp *Endpoint) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &session{
		endp: endp,
		conn: c,
		log:  endp.Log,
	}, nil
}

// Serve accepts connections from the listener until Close.
func (endp *Endpoint) Serve(l net.Listener) error {
	return endp.serv.Serve(l)
}

func (endp *Endpoint) Close() error {
	return endp.serv.Close()
}

// AutoBuffer returns a BodyBuffer that keeps bodies up to maxSize bytes in
// memory and writes bigger ones to a file under dir.
func AutoBuffer(maxSize int, dir string) func(io.Reader) (buffer.Buffer, error) {
	return func(r io.Reader) (buffer.Buffer, error) {
		initial := make([]byte, maxSize)
		actualSize, err := io.ReadFull(r, initial)
		if err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				// The whole body fit in the initial read.
				return buffer.MemoryBuffer{Slice: initial[:actualSize]}, nil
			}
			return nil, err
		}

		// The body is at least maxSize bytes. Dump what we read so far to
		// the disk and continue writing there.
		return buffer.BufferInFile(
			io.MultiReader(bytes.NewReader(initial[:actualSize]), r),
			dir)
	}
}
