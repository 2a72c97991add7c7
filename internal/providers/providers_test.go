package providers

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-service/internal/logging"
	"fleet-service/internal/models"
	"fleet-service/pkg/email"
)

var sample = models.Alert{
	Level:     models.AlertCritical,
	DeviceID:  "dev-1",
	RobotID:   "R-001",
	Message:   "Robot R-001 battery critical (8%)",
	CreatedAt: time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC),
}

func TestTelegramText(t *testing.T) {
	text := TelegramText(sample)
	assert.Contains(t, text, "*Critical alert* on device dev-1")
	assert.Contains(t, text, "*Robot:* R-001")
	assert.Contains(t, text, "2026-04-01T09:30:00Z")
}

func TestNewTelegramValidates(t *testing.T) {
	_, err := NewTelegram(TelegramConfig{ChatID: 1}, logging.NewTest(io.Discard))
	assert.Error(t, err)
	_, err = NewTelegram(TelegramConfig{BotToken: "x"}, logging.NewTest(io.Discard))
	assert.Error(t, err)
}

func TestEmailSendRetries(t *testing.T) {
	e, err := NewEmail(email.Server{Host: "smtp.local", Port: 25, Username: "fleet@example.com"}, []string{"ops@example.com"}, logging.NewTest(io.Discard))
	require.NoError(t, err)

	e.delay = time.Millisecond
	var subjects []string
	e.send = func(_ email.Server, to []string, subject, body string) error {
		subjects = append(subjects, subject)
		assert.Equal(t, []string{"ops@example.com"}, to)
		assert.Contains(t, body, sample.Message)
		if len(subjects) == 1 {
			return errors.New("temporary failure")
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.Send(ctx, sample))
	assert.Equal(t, []string{"Critical: dev-1", "Critical: dev-1"}, subjects)
}

func TestNewEmailRequiresServer(t *testing.T) {
	_, err := NewEmail(email.Server{}, []string{"ops@example.com"}, logging.NewTest(io.Discard))
	assert.Error(t, err)
}
