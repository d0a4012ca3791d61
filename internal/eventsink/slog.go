package eventsink

import "log/slog"

// LogHandler returns a Handler that writes every event to logger at Info
// level, with event data flattened into structured slog attributes. Wire
// it with Subscribe("", eventsink.LogHandler(logger)) for a complete
// activity log of a workflow run.
func LogHandler(logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(e Event) {
		attrs := make([]any, 0, len(e.Data)*2+2)
		attrs = append(attrs, "event", e.Name, "at", e.Timestamp)
		for k, v := range e.Data {
			attrs = append(attrs, k, v)
		}
		logger.Info("workflow event", attrs...)
	}
}
