// Package mail implements the email-delivery boundary used by the Login
// Flow Engine to dispatch out-of-band login codes (spec.md §1's "email/SMTP
// sender used to deliver login codes", named only by the interface the
// core consumes).
package mail

import (
	"fmt"
	"net/smtp"
)

// Config mirrors spec.md §6's SERVER_MAIL_* environment variables exactly.
type Config struct {
	ServerAddress string
	ServerPort    int
	Name          string
	FromAddress   string
	Username      string
	Password      string
}

// Sender dispatches a single plaintext message. Implementations may
// surface connection failures distinctly from send failures so flow code
// can map them to rpcerr.UnableToConnectToMail / rpcerr.UnableToSendMail
// (spec.md §4.2).
type Sender interface {
	Send(to, subject, body string) error
}

// ConnectError marks a failure to reach the mail server at all (as opposed
// to the server rejecting the message).
type ConnectError struct{ Cause error }

func (e *ConnectError) Error() string        { return "mail: connect failed: " + e.Cause.Error() }
func (e *ConnectError) Unwrap() error        { return e.Cause }
func (e *ConnectError) IsConnectFailure() bool { return true }

// connectFailure is implemented by any error that wants to be classified as
// a connection failure rather than a generic send failure, letting
// auth/flow map it to rpcerr.UnableToConnectToMail vs
// rpcerr.UnableToSendMail (spec.md §4.2) without depending on a concrete
// Sender implementation (e.g. mailtest's simulated connect error implements
// this too).
type connectFailure interface {
	IsConnectFailure() bool
}

// IsConnectFailure reports whether err represents a failure to reach the
// mail server at all, as opposed to the server rejecting the message.
func IsConnectFailure(err error) bool {
	cf, ok := err.(connectFailure)
	return ok && cf.IsConnectFailure()
}

// SMTPSender is a minimal net/smtp-based implementation. Standard library
// only: spec.md §1 names the mail sender an external collaborator whose
// interface is all that matters to the core, so no third-party mail SDK is
// wired here — see DESIGN.md.
type SMTPSender struct {
	cfg Config
}

// NewSMTPSender builds a sender from cfg.
func NewSMTPSender(cfg Config) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.ServerAddress, s.cfg.ServerPort)
}

// Send dials the configured SMTP server and submits a single message.
func (s *SMTPSender) Send(to, subject, body string) error {
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.ServerAddress)

	msg := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.cfg.Name, s.cfg.FromAddress, to, subject, body)

	if err := smtp.SendMail(s.addr(), auth, s.cfg.FromAddress, []string{to}, []byte(msg)); err != nil {
		if _, dialErr := smtp.Dial(s.addr()); dialErr != nil {
			return &ConnectError{Cause: dialErr}
		}
		return err
	}
	return nil
}
