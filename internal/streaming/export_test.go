package streaming

import "log/slog"

func newEventPublisherWithWriter(w messageWriter, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{writer: w, logger: logger, enabled: true}
}
