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

package exterrors

import (
	"fmt"

	"github.com/emersion/go-smtp"
)

// EnhancedCode is a SMTP enhanced status code as defined in RFC 3463.
type EnhancedCode [3]int

func (ec EnhancedCode) String() string {
	return fmt.Sprintf("%d.%d.%d", ec[0], ec[1], ec[2])
}

// SMTPError is the error that carries the SMTP response metadata for a
// deliberate policy decision or a failure that should be reported to the
// submitting client with a specific code.
//
// Policy denials (5.7.x family, code 535/550 and friends) are represented as
// SMTPError values with Reason set and Err unset. Infrastructure failures
// that happen to have a meaningful transport mapping wrap the underlying
// error in Err.
type SMTPError struct {
	// Code is the SMTP response code attached to the server reply.
	Code int

	// EnhancedCode is the machine-readable status included in the reply.
	EnhancedCode EnhancedCode

	// Message is the human-readable description sent to the client.
	Message string

	// StageName is the name of the policy stage that produced the error.
	// Used only for logging, not sent to the client.
	StageName string

	// Err is the underlying infrastructure error, if any. Absence of Err
	// marks the value as a pure policy decision.
	Err error

	// Reason is a short explanation of the decision for the log, when
	// Err is not present or is too technical to be useful.
	Reason string

	// Misc is additional fields to be included in log messages.
	Misc map[string]interface{}
}

func (err *SMTPError) Unwrap() error {
	return err.Err
}

func (err *SMTPError) Fields() map[string]interface{} {
	ctx := make(map[string]interface{}, len(err.Misc)+4)
	for k, v := range err.Misc {
		ctx[k] = v
	}
	ctx["smtp_code"] = err.Code
	ctx["smtp_enchcode"] = err.EnhancedCode.String()
	ctx["smtp_msg"] = err.Message
	if err.StageName != "" {
		ctx["stage"] = err.StageName
	}
	if err.Reason != "" {
		ctx["reason"] = err.Reason
	}
	return ctx
}

func (err *SMTPError) Temporary() bool {
	return err.Code/100 == 4
}

func (err *SMTPError) Error() string {
	if err.Reason != "" {
		return err.Reason
	}
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

// SMTP converts the error to the format used by the go-smtp library so the
// hosting endpoint can return it from a command handler directly.
func (err *SMTPError) SMTP() *smtp.SMTPError {
	return &smtp.SMTPError{
		Code:         err.Code,
		EnhancedCode: smtp.EnhancedCode(err.EnhancedCode),
		Message:      err.Message,
	}
}

// SMTPCode returns target code if the error has a Temporary() == true method,
// otherwise it returns permCode.
func SMTPCode(err error, tempCode, permCode int) int {
	if IsTemporaryOrUnspec(err) {
		return tempCode
	}
	return permCode
}

// SMTPEnchCode is like SMTPCode but for enhanced status codes.
func SMTPEnchCode(err error, tempCode, permCode EnhancedCode) EnhancedCode {
	if IsTemporaryOrUnspec(err) {
		return tempCode
	}
	return permCode
}
