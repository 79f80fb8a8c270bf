package gateway

import "encoding/json"

// Frame types on the wire.
const (
	FrameRequest  = "req"
	FrameResponse = "res"
	FrameEvent    = "event"
)

// RPC methods the gateway dispatches.
const (
	MethodSubmit          = "chat.submit"
	MethodConfirmPurchase = "chat.confirm_purchase"
	MethodHistory         = "chat.history"
	MethodListChats       = "chat.list"
)

// Frame is the WebSocket message envelope. Requests carry an ID the
// client chooses; the matching response echoes it. Events carry no ID
// and are pushed as live fragments update.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *FrameError     `json:"error,omitempty"`
}

// FrameError is the wire form of a failed request.
type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes sent to clients. Internal detail stays in the server log.
const (
	CodeInvalidPayload = "invalid_payload"
	CodeUnknownMethod  = "unknown_method"
	CodeRateLimited    = "rate_limited"
	CodeUnavailable    = "unavailable"
	CodeInternal       = "internal"
)

func responseFrame(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameResponse, ID: id, Payload: raw}, nil
}

func errorFrame(id, code, message string) Frame {
	return Frame{
		Type:  FrameResponse,
		ID:    id,
		Error: &FrameError{Code: code, Message: message},
	}
}

func eventFrame(payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameEvent, Payload: raw}, nil
}
