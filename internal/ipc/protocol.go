// Package ipc carries newline-delimited JSON commands over the owner's unix socket.
package ipc

import "encoding/json"

const (
	CommandStatus = "status"
	CommandScan   = "scan"
	CommandCancel = "cancel"
	CommandText   = "text"
)

type Request struct {
	Command string `json:"command"`
	Text    string `json:"text,omitempty"`
}

// Response carries the owner's phase plus, when useful, the full state value.
type Response struct {
	OK      bool            `json:"ok"`
	State   string          `json:"state,omitempty"`
	Session json.RawMessage `json:"session,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// DecodeSession unmarshals the embedded state into v. It reports false when absent.
func (r Response) DecodeSession(v any) (bool, error) {
	if len(r.Session) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(r.Session, v); err != nil {
		return false, err
	}
	return true, nil
}
