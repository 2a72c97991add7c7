package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fleet-service/internal/logging"
	"fleet-service/internal/models"
	"fleet-service/internal/utils"
	"fleet-service/pkg/email"
)

// Email forwards alerts to a fixed recipient list.
type Email struct {
	server email.Server
	to     []string
	logger *logging.Logger
	delay  time.Duration
	send   func(email.Server, []string, string, string) error
}

func NewEmail(server email.Server, to []string, logger *logging.Logger) (*Email, error) {
	if !server.Configured() {
		return nil, fmt.Errorf("missing Email configuration: SMTPServer, SMTPPort, or Username is empty")
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("no email recipients configured")
	}
	return &Email{server: server, to: to, logger: logger, delay: 2 * time.Second, send: email.Send}, nil
}

// Subject is the title case form of a level, used as a message heading.
func Subject(level models.AlertLevel) string {
	s := string(level)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (e *Email) Send(ctx context.Context, a models.Alert) error {
	subject := fmt.Sprintf("%s: %s", Subject(a.Level), a.DeviceID)
	body := fmt.Sprintf("%s\n\nDevice: %s\nRobot: %s\nTime: %s",
		a.Message, a.DeviceID, a.RobotID, a.CreatedAt.UTC().Format(time.RFC3339))

	return utils.Retry(ctx, e.logger, 3, e.delay, func() error {
		if err := e.send(e.server, e.to, subject, body); err != nil {
			return fmt.Errorf("failed to send email to %s: %w", strings.Join(e.to, ","), err)
		}
		return nil
	})
}
