package stream

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"
)

// DataPrefix starts every event line.
const DataPrefix = "data: "

// ParseLine decodes a "data: <json>" line. It returns false for blank
// lines, lines without the prefix, and payloads that are not a JSON object
// with a type. A bad payload is logged and dropped.
func ParseLine(line string) (*Event, bool) {
	if !strings.HasPrefix(line, DataPrefix) {
		return nil, false
	}
	payload := line[len(DataPrefix):]

	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		log.Warn().Err(err).Str("payload", truncate(payload, 200)).Msg("dropping malformed stream event")
		return nil, false
	}
	if ev.Type == "" {
		log.Warn().Str("payload", truncate(payload, 200)).Msg("dropping stream event without type")
		return nil, false
	}
	return &ev, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
