package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Event is a decoded inbound frame. The set of implementations is closed;
// frames with an unknown command decode to UnrecognizedEvent.
type Event interface {
	Command() Command
	Raw() json.RawMessage
	isEvent()
}

type rawPayload struct {
	raw json.RawMessage
}

func (p rawPayload) Raw() json.RawMessage { return p.raw }

func (rawPayload) isEvent() {}

type AuthEvent struct{ rawPayload }

type HeartbeatEvent struct{ rawPayload }

// ForceOfflineEvent means the server ended this session, usually because the
// account signed in elsewhere.
type ForceOfflineEvent struct{ rawPayload }

type PrivateMessageEvent struct {
	rawPayload
	Message Message
}

type GroupMessageEvent struct {
	rawPayload
	Message Message
}

type SystemMessageEvent struct {
	rawPayload
	Payload map[string]any
}

type UnrecognizedEvent struct {
	rawPayload
	Code Command
}

func (AuthEvent) Command() Command           { return CmdAuth }
func (HeartbeatEvent) Command() Command      { return CmdHeartbeat }
func (ForceOfflineEvent) Command() Command   { return CmdForceOffline }
func (PrivateMessageEvent) Command() Command { return CmdPrivateMessage }
func (GroupMessageEvent) Command() Command   { return CmdGroupMessage }
func (SystemMessageEvent) Command() Command  { return CmdSystemMessage }
func (e UnrecognizedEvent) Command() Command { return e.Code }

// DecodeError describes a frame that could not be parsed.
type DecodeError struct {
	Reason string
	Frame  string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode frame: %s: %v", e.Reason, e.Err)
	}
	return "decode frame: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

type inboundFrame struct {
	Cmd  *json.Number    `json:"cmd"`
	Data json.RawMessage `json:"data"`
}

// Decode parses one text frame.
func Decode(raw []byte) (Event, error) {
	var frame inboundFrame
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&frame); err != nil {
		return nil, &DecodeError{Reason: "not a JSON object", Frame: clip(raw), Err: err}
	}
	if frame.Cmd == nil {
		return nil, &DecodeError{Reason: "missing cmd", Frame: clip(raw)}
	}
	code, err := frame.Cmd.Int64()
	if err != nil {
		return nil, &DecodeError{Reason: "cmd is not an integer", Frame: clip(raw), Err: err}
	}
	data := frame.Data
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		data = json.RawMessage("{}")
	}
	payload := rawPayload{raw: data}

	switch cmd := Command(code); cmd {
	case CmdAuth:
		return AuthEvent{payload}, nil
	case CmdHeartbeat:
		return HeartbeatEvent{payload}, nil
	case CmdForceOffline:
		return ForceOfflineEvent{payload}, nil
	case CmdPrivateMessage, CmdGroupMessage:
		msg, err := decodeMessage(data)
		if err != nil {
			return nil, &DecodeError{Reason: cmd.String() + " data", Frame: clip(raw), Err: err}
		}
		if cmd == CmdPrivateMessage {
			return PrivateMessageEvent{rawPayload: payload, Message: msg}, nil
		}
		return GroupMessageEvent{rawPayload: payload, Message: msg}, nil
	case CmdSystemMessage:
		fields := map[string]any{}
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, &DecodeError{Reason: "system message data", Frame: clip(raw), Err: err}
		}
		return SystemMessageEvent{rawPayload: payload, Payload: fields}, nil
	default:
		return UnrecognizedEvent{rawPayload: payload, Code: cmd}, nil
	}
}

func clip(raw []byte) string {
	const limit = 512
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}
