package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSink writes events to a logger. Used when no broker is configured.
type LogSink struct {
	logger logrus.FieldLogger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger logrus.FieldLogger) *LogSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogSink{logger: logger.WithField("component", "notify")}
}

// Publish logs the event.
func (s *LogSink) Publish(_ context.Context, ev Event) error {
	fields := logrus.Fields{
		"event_id": ev.ID,
		"type":     ev.Type,
	}
	if ev.SessionID != "" {
		fields["session"] = ev.SessionID
	}
	if ev.CohortID != "" {
		fields["cohort"] = ev.CohortID
	}
	if ev.SourceTradeID != "" {
		fields["source_trade_id"] = ev.SourceTradeID
	}
	if ev.TokenAddress != "" {
		fields["token"] = ev.TokenAddress
	}
	if ev.Reason != "" {
		fields["reason"] = ev.Reason
	}
	for k, v := range ev.Attributes {
		fields[k] = v
	}
	s.logger.WithFields(fields).Info("notification")
	return nil
}
