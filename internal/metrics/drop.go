package metrics

import "marketfeed/logger"

// DropReason identifies why a live frame never reached subscribers.
type DropReason string

const (
	// DropMalformed records frames that failed to decode.
	DropMalformed DropReason = "malformed"
	// DropUnsupported records frames for a venue without a parser.
	DropUnsupported DropReason = "unsupported"
)

// EmitDropMetric counts a dropped frame. The metric value is always one so
// callers invoke it once per frame. Empty labels are left off the event.
func EmitDropMetric(log *logger.Log, reason DropReason, exchange, channel, symbol string) {
	RecordFeedEvent(exchange, channel, EventDropped)

	fields := logger.Fields{"reason": string(reason)}
	if exchange != "" {
		fields["exchange"] = exchange
	}
	if channel != "" {
		fields["channel"] = channel
	}
	if symbol != "" {
		fields["symbol"] = symbol
	}
	EmitMetric(log, "subscription", "frames_dropped", 1, "counter", fields)
}
