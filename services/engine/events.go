package engine

import "strconv"

type EventType int

const (
	EventEntry EventType = iota
	EventEntryRejected
	EventStopMoved
	EventExit
	EventCandleSkipped
)

var eventNames = [...]string{"entry", "entry_rejected", "stop_moved", "exit", "candle_skipped"}

func (t EventType) String() string {
	if int(t) < len(eventNames) {
		return eventNames[t]
	}
	return "event_" + strconv.Itoa(int(t))
}

func (t EventType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Event is one state-machine transition. Ts is the candle time in Unix ms.
type Event struct {
	Ts      int64             `json:"ts"`
	Index   int               `json:"index"`
	Type    EventType         `json:"type"`
	Details map[string]string `json:"details,omitempty"`
}

// EventLog is an append-only record of a run. A nil log discards events.
type EventLog struct {
	Events []Event `json:"events"`
}

func (l *EventLog) Append(e Event) {
	if l == nil {
		return
	}
	l.Events = append(l.Events, e)
}

func (l *EventLog) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Events)
}

// Count returns how many events of type t were recorded.
func (l *EventLog) Count(t EventType) int {
	if l == nil {
		return 0
	}
	n := 0
	for _, e := range l.Events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func fmtFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
