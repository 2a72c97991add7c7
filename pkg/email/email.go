package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Server is an SMTP relay with PLAIN auth.
type Server struct {
	Host     string
	Port     int
	Username string
	Password string
}

func (s Server) Configured() bool {
	return s.Host != "" && s.Port != 0 && s.Username != ""
}

// Compose builds an RFC 5322 message for the given recipients.
func Compose(from string, to []string, subject, body string) ([]byte, error) {
	if len(to) == 0 {
		return nil, fmt.Errorf("no recipients")
	}
	for _, addr := range to {
		if !strings.Contains(addr, "@") {
			return nil, fmt.Errorf("invalid email address: %s", addr)
		}
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n",
		from, strings.Join(to, ", "), subject, body)
	return []byte(msg), nil
}

func Send(s Server, to []string, subject, body string) error {
	msg, err := Compose(s.Username, to, subject, body)
	if err != nil {
		return err
	}
	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	return smtp.SendMail(addr, auth, s.Username, to, msg)
}
