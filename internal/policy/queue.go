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

package policy

import (
	"bytes"
	"context"
	"io"
	"net"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/textproto"
	"github.com/mailward/mailward/framework/buffer"
	"github.com/mailward/mailward/framework/module"
)

// Queue captures a copy of the accepted message for the sender's archive.
//
// The copy is the message as it will leave the queue: the synthesized
// Received header and the Return-Path are prepended to the (already
// fixed-up) header before serialization. Submission to the archive worker
// is fire-and-forget; no failure on this path is ever reported to the
// client, the message is accepted regardless.
func (p *Pipeline) Queue(ctx context.Context, env *module.Envelope, hdr textproto.Header, body buffer.Buffer) Decision {
	if !p.checkInterface(env.Interface) || p.cfg.Archive == nil {
		return cont()
	}
	l := p.msgLogger(env)

	info, err := p.resolver.Resolve(ctx, env)
	if err != nil {
		l.Error("archival skipped: sender account unresolved", err)
		return cont()
	}
	if info.Quota > 0 && info.StorageUsed > info.Quota {
		l.Msg("archival skipped: account over quota",
			"username", info.Username,
			"used", info.StorageUsed, "quota", info.Quota)
		return cont()
	}

	composed, err := composeCopy(p.cfg.Hostname, env, hdr, body)
	if err != nil {
		l.Error("archival skipped: message copy failed", err)
		return cont()
	}

	p.cfg.Archive.Submit(&module.ArchiveRecord{
		Username: info.Username,
		Metadata: module.ArchiveMetadata{
			Source:     env.Conn.Proto,
			From:       env.MailFrom,
			To:         env.RcptTo,
			Origin:     remoteIP(env.Conn),
			OriginHost: env.Conn.Hostname,
			TransHost:  p.cfg.Hostname,
			Time:       env.ReceivedAt,
		},
		Flags:             []string{imap.SeenFlag},
		Body:              composed,
		SuppressDuplicate: true,
	})
	return cont()
}

// composeCopy serializes the message with the trace fields the queue will
// prepend on delivery, so the archived copy matches what recipients see.
func composeCopy(hostname string, env *module.Envelope, hdr textproto.Header, body buffer.Buffer) (buffer.Buffer, error) {
	outHdr := hdr.Copy()
	outHdr.Add("Received", BuildReceived(hostname, env))
	outHdr.Add("Return-Path", "<"+env.MailFrom+">")

	var buf bytes.Buffer
	if err := textproto.WriteHeader(&buf, outHdr); err != nil {
		return nil, err
	}

	r, err := body.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, err
	}

	return buffer.MemoryBuffer{Slice: buf.Bytes()}, nil
}

func remoteIP(conn *module.ConnState) string {
	if conn.RemoteAddr == nil {
		return ""
	}
	if tcp, ok := conn.RemoteAddr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	if host, _, err := net.SplitHostPort(conn.RemoteAddr.String()); err == nil {
		return host
	}
	return conn.RemoteAddr.String()
}
