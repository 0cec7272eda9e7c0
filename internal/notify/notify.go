// Package notify delivers rendered reminders to their recipients.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Payload is a rendered reminder.
type Payload struct {
	EventID   string    `json:"eventId"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	StartTime time.Time `json:"startTime"`
}

// Sink delivers a payload to a recipient. Implementations must honor ctx cancellation.
type Sink interface {
	Notify(ctx context.Context, recipientID int64, p Payload) error
}

// LogSink writes reminders to a logger. It is the default sink when no webhook is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(ctx context.Context, recipientID int64, p Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("Reminder", "recipientID", recipientID, "eventID", p.EventID, "subject", p.Subject, "body", p.Body)
	return nil
}
