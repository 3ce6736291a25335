package stream

import (
	"encoding/json"

	"group-chat/internal/domain"
)

// Sink recibe frames SSE ya formateados. Cada Write debe llegar al cliente
// (escritura + flush) antes de devolver.
type Sink interface {
	Write(frame []byte) error
}

type connectedFrame struct {
	Type    string   `json:"type"`
	GroupID string   `json:"group_uuid,omitempty"`
	Groups  []string `json:"groups,omitempty"`
}

type errorFrame struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

var pingFrame = []byte(": ping\n\n")

func dataFrame(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	return append(frame, '\n', '\n')
}

func jsonFrame(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return dataFrame(raw), nil
}

// ErrorFrame arma el frame de error que cierra un stream.
func ErrorFrame(err error) []byte {
	frame, _ := jsonFrame(errorFrame{Error: publicMessage(err), Kind: domain.ErrorKind(err)})
	return frame
}

func publicMessage(err error) string {
	if domain.ErrorKind(err) == "internal" {
		return "stream error occurred"
	}
	return domain.PublicMessage(err)
}
