package ws

import "encoding/json"

// Envelope is the top-level message format on a run stream.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// RunLinePayload is one line of tool output.
type RunLinePayload struct {
	Stream string `json:"stream"` // "stdout" or "stderr"
	Line   string `json:"line"`
}

// RunExitPayload closes a stream after the tool finishes.
type RunExitPayload struct {
	ExitCode   int   `json:"exitCode"`
	Terminated bool  `json:"terminated"`
	DurationMS int64 `json:"durationMS"`
}

// RunErrorPayload reports a launch failure.
type RunErrorPayload struct {
	Error string `json:"error"`
}

const (
	TypeRunLine  = "run.line"
	TypeRunExit  = "run.exit"
	TypeRunError = "run.error"
)

// MakeEnvelope creates an Envelope with the given type and payload.
func MakeEnvelope(msgType string, payload interface{}) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: p})
}
