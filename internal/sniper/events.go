package sniper

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dgnsrekt/trade_sniper/internal/relay"
)

// Event kinds written to the journal and streamed over SSE.
const (
	EventAction     = "action"
	EventPause      = "pause"
	EventResume     = "resume"
	EventDisconnect = "disconnect"
	EventReconnect  = "reconnect"
)

// Event is one journaled lifecycle record.
type Event struct {
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Target  string    `json:"target,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	Actions int64     `json:"actions,omitempty"`
}

// emit journals an event and publishes it to SSE subscribers. Both sinks are
// optional and best-effort.
func (s *Service) emit(ev Event) {
	ev.Time = time.Now().UTC()

	if s.journal != nil {
		if err := s.journal.Write(ev); err != nil {
			slog.Debug("event journal write failed", "kind", ev.Kind, "error", err)
		}
	}
	if s.broker != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			slog.Debug("event marshal failed", "kind", ev.Kind, "error", err)
			return
		}
		s.broker.Publish(relay.Event{Feed: ev.Kind, Payload: string(payload)})
	}
}
