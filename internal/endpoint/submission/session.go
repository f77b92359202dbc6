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
	"bufio"
	"context"
	"io"
	"net"
	"time"

	"github.com/emersion/go-message/textproto"
	"github.com/emersion/go-smtp"
	"github.com/mailward/mailward/framework/dns"
	"github.com/mailward/mailward/framework/exterrors"
	"github.com/mailward/mailward/framework/log"
	"github.com/mailward/mailward/framework/module"
	"github.com/mailward/mailward/internal/policy"
)

type session struct {
	endp *Endpoint
	conn *smtp.Conn
	log  log.Logger

	authUser string
	env      *module.Envelope

	rdnsName string
	rdnsDone bool
}

func (s *session) AuthPlain(username, password string) error {
	stored, d := s.endp.cfg.Pipeline.Authenticate(
		context.TODO(), s.endp.cfg.Interface, username, password)
	if err := s.decisionErr("AUTH", d); err != nil {
		return err
	}

	s.authUser = stored
	return nil
}

func (s *session) Mail(from string, opts *smtp.MailOptions) error {
	if s.authUser == "" {
		return smtp.ErrAuthRequired
	}

	id, err := module.GenerateMsgID()
	if err != nil {
		return s.failure("MAIL", err)
	}

	s.env = &module.Envelope{
		ID:         id,
		ReceivedAt: time.Now(),
		Interface:  s.endp.cfg.Interface,
		Conn:       s.connState(),
		MailFrom:   from,
	}
	if opts != nil {
		s.env.SMTPOpts = *opts
	}

	s.log.Msg("incoming message",
		"msg_id", id, "sender", from, "username", s.authUser)
	return nil
}

func (s *session) Rcpt(to string, opts *smtp.RcptOptions) error {
	if s.env == nil {
		return &smtp.SMTPError{
			Code:         503,
			EnhancedCode: smtp.EnhancedCode{5, 5, 1},
			Message:      "MAIL is required first",
		}
	}

	if err := s.decisionErr("RCPT", s.endp.cfg.Pipeline.CheckRcpt(context.TODO(), s.env, to)); err != nil {
		return err
	}

	s.env.RcptTo = append(s.env.RcptTo, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	if s.env == nil || len(s.env.RcptTo) == 0 {
		return &smtp.SMTPError{
			Code:         503,
			EnhancedCode: smtp.EnhancedCode{5, 5, 1},
			Message:      "RCPT is required first",
		}
	}
	ctx := context.TODO()
	pl := s.endp.cfg.Pipeline

	br := bufio.NewReader(r)
	hdr, err := textproto.ReadHeader(br)
	if err != nil {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Malformed message header",
		}
	}

	if err := s.decisionErr("DATA", pl.FixupHeaders(ctx, s.env, &hdr)); err != nil {
		return err
	}

	body, err := s.endp.cfg.BodyBuffer(br)
	if err != nil {
		return s.failure("DATA", err)
	}

	if err := s.decisionErr("DATA", pl.Queue(ctx, s.env, hdr, body)); err != nil {
		return err
	}

	if s.endp.cfg.Submit != nil {
		if err := s.endp.cfg.Submit(ctx, s.env, hdr, body); err != nil {
			return s.failure("DATA", err)
		}
	}

	accepted := []interface{}{"msg_id", s.env.ID, "rcpts", len(s.env.RcptTo)}
	if s.env.OriginalFrom != "" {
		accepted = append(accepted, "sender", s.env.MailFrom, "original_sender", s.env.OriginalFrom)
	}
	s.log.Msg("message accepted", accepted...)
	return nil
}

func (s *session) Reset() {
	s.env = nil
}

func (s *session) Logout() error {
	s.env = nil
	return nil
}

// connState snapshots the transport-level connection facts for the
// envelope. Taken at MAIL time so the EHLO name is already known.
func (s *session) connState() *module.ConnState {
	state := &module.ConnState{
		Hostname: s.conn.Hostname(),
		AuthUser: s.authUser,
		RDNSName: s.resolveRDNS(),
	}
	if conn := s.conn.Conn(); conn != nil {
		state.RemoteAddr = conn.RemoteAddr()
	}
	if tlsState, ok := s.conn.TLSConnectionState(); ok {
		state.TLS = &tlsState
	}

	switch {
	case state.TLS != nil && s.authUser != "":
		state.Proto = "ESMTPSA"
	case state.TLS != nil:
		state.Proto = "ESMTPS"
	case s.authUser != "":
		state.Proto = "ESMTPA"
	default:
		state.Proto = "ESMTP"
	}
	return state
}

// resolveRDNS fetches the PTR name of the client address for the trace
// header. The lookup is done once per session, at the first MAIL command; a
// failed or absent PTR leaves the name empty and is not an error.
func (s *session) resolveRDNS() string {
	if s.rdnsDone {
		return s.rdnsName
	}
	s.rdnsDone = true

	conn := s.conn.Conn()
	if conn == nil {
		return ""
	}
	tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	name, err := dns.LookupAddr(ctx, s.endp.cfg.Resolver, tcpAddr.IP)
	if err != nil {
		s.log.Error("rDNS lookup failed", err, "src_ip", tcpAddr.IP.String())
		return ""
	}
	s.rdnsName = name
	return name
}

// decisionErr maps a stage decision onto the SMTP reply for the command.
func (s *session) decisionErr(command string, d policy.Decision) error {
	switch {
	case d.Continue():
		return nil
	case d.Deny != nil:
		s.log.Msg("policy refused message", "command", command, "reason", d.Deny.Error())
		return d.Deny.SMTP()
	default:
		return s.failure(command, d.Err)
	}
}

func (s *session) failure(command string, err error) error {
	s.log.Error(command+" failed", err)
	return &smtp.SMTPError{
		Code: exterrors.SMTPCode(err, 451, 554),
		EnhancedCode: smtp.EnhancedCode(exterrors.SMTPEnchCode(err,
			exterrors.EnhancedCode{4, 0, 0}, exterrors.EnhancedCode{5, 0, 0})),
		Message: "Internal server error",
	}
}
