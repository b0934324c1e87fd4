package scanner

// EventType discriminates stream events
type EventType string

const (
	EventProgress EventType = "progress"
	EventResult   EventType = "result"
	EventDone     EventType = "done"
)

// Event is one element of a scan stream
//
//	{"type":"progress","progress":42}
//	{"type":"result","result":{"port":22,"state":"open","banner":"SSH-2.0-OpenSSH_9.6"}}
//	{"type":"done","summary":{...}}
type Event struct {
	Type     EventType `json:"type"`
	Progress *int      `json:"progress,omitempty"`
	Result   any       `json:"result,omitempty"`
	Summary  *Summary  `json:"summary,omitempty"`
}

// EmitFunc delivers one event to the consumer
// A non-nil error means the consumer is gone and the sweep must stop.
type EmitFunc func(Event) error

// ProgressEvent builds a progress tick
func ProgressEvent(percent int) Event {
	return Event{Type: EventProgress, Progress: &percent}
}

// ResultEvent builds a result event from a result record
func ResultEvent(record any) Event {
	return Event{Type: EventResult, Result: record}
}

// DoneEvent builds the terminating event
func DoneEvent(s Summary) Event {
	return Event{Type: EventDone, Summary: &s}
}
