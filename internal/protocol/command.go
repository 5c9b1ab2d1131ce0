// Package protocol encodes and decodes the {cmd, data} frames exchanged on
// the chat WebSocket.
package protocol

import (
	"encoding/json"
	"fmt"
)

type Command int

const (
	CmdAuth           Command = 0
	CmdHeartbeat      Command = 1
	CmdForceOffline   Command = 2
	CmdPrivateMessage Command = 3
	CmdGroupMessage   Command = 4
	CmdSystemMessage  Command = 5
)

func (c Command) String() string {
	switch c {
	case CmdAuth:
		return "auth"
	case CmdHeartbeat:
		return "heartbeat"
	case CmdForceOffline:
		return "force_offline"
	case CmdPrivateMessage:
		return "private_message"
	case CmdGroupMessage:
		return "group_message"
	case CmdSystemMessage:
		return "system_message"
	default:
		return fmt.Sprintf("cmd(%d)", int(c))
	}
}

// Frame is the envelope of every WebSocket text message.
type Frame struct {
	Cmd  Command         `json:"cmd"`
	Data json.RawMessage `json:"data"`
}

type authData struct {
	AccessToken string `json:"accessToken"`
}

// AuthFrame is sent once, right after the socket opens.
func AuthFrame(accessToken string) ([]byte, error) {
	data, err := json.Marshal(authData{AccessToken: accessToken})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Cmd: CmdAuth, Data: data})
}

var heartbeatFrame = []byte(`{"cmd":1,"data":{}}`)

func HeartbeatFrame() []byte {
	out := make([]byte, len(heartbeatFrame))
	copy(out, heartbeatFrame)
	return out
}
