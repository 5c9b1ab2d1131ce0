package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type MessageType int

const (
	TypeText            MessageType = 0
	TypeImage           MessageType = 1
	TypeFile            MessageType = 2
	TypeVoice           MessageType = 3
	TypeVideo           MessageType = 4
	TypeUserCard        MessageType = 5
	TypeGroupCard       MessageType = 6
	TypeSticker         MessageType = 7
	TypeQuote           MessageType = 8
	TypeRecall          MessageType = 10
	TypeReceipt         MessageType = 12
	TypeSystem          MessageType = 21
	TypeNotice          MessageType = 23
	TypeOnlineStatus    MessageType = 82
	TypeJoinGroup       MessageType = 90
	TypeLeaveGroup      MessageType = 91
	TypeGroupInfoUpdate MessageType = 92
	TypeGroupAllMute    MessageType = 95
	TypeGroupUserMute   MessageType = 96
	TypeAudioCallInit   MessageType = 200
	TypeAudioCallMember MessageType = 204
	TypeAudioCallStatus MessageType = 212
)

var messageTypeNames = map[MessageType]string{
	TypeText:            "TEXT",
	TypeImage:           "IMAGE",
	TypeFile:            "FILE",
	TypeVoice:           "VOICE",
	TypeVideo:           "VIDEO",
	TypeUserCard:        "USER_CARD",
	TypeGroupCard:       "GROUP_CARD",
	TypeSticker:         "STICKER",
	TypeQuote:           "QUOTE",
	TypeRecall:          "RECALL",
	TypeReceipt:         "MESSAGE_RECEIPT",
	TypeSystem:          "SYSTEM",
	TypeNotice:          "NOTICE",
	TypeOnlineStatus:    "ONLINE_STATUS",
	TypeJoinGroup:       "JOIN_GROUP",
	TypeLeaveGroup:      "LEAVE_GROUP",
	TypeGroupInfoUpdate: "GROUP_INFO_UPDATE",
	TypeGroupAllMute:    "GROUP_ALL_MUTE",
	TypeGroupUserMute:   "GROUP_USER_MUTE",
	TypeAudioCallInit:   "AUDIO_CALL_INIT",
	TypeAudioCallMember: "AUDIO_CALL_MEMBER",
	TypeAudioCallStatus: "AUDIO_CALL_STATUS",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(t))
}

func (t MessageType) Known() bool {
	_, ok := messageTypeNames[t]
	return ok
}

// Conversational reports whether the type carries user-authored content, as
// opposed to membership, mute, receipt or call signalling.
func (t MessageType) Conversational() bool {
	switch t {
	case TypeText, TypeImage, TypeFile, TypeVoice, TypeVideo,
		TypeUserCard, TypeGroupCard, TypeSticker, TypeQuote:
		return true
	default:
		return false
	}
}

// OptionalID is an id-like field the server sends as a number, a numeric
// string, null, or one of the strings "none", "null" and "undefined".
type OptionalID struct {
	Value int64
	Valid bool
}

func ID(v int64) OptionalID { return OptionalID{Value: v, Valid: true} }

func (id OptionalID) String() string {
	if !id.Valid {
		return "<none>"
	}
	return strconv.FormatInt(id.Value, 10)
}

func (id *OptionalID) UnmarshalJSON(data []byte) error {
	*id = parseOptionalID(data)
	return nil
}

func (id OptionalID) MarshalJSON() ([]byte, error) {
	if !id.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(id.Value, 10)), nil
}

// parseOptionalID never fails: anything that is not an integer is absent.
func parseOptionalID(data []byte) OptionalID {
	text := strings.TrimSpace(string(data))
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = strings.TrimSpace(unquoted)
	}
	switch strings.ToLower(text) {
	case "", "none", "null", "undefined":
		return OptionalID{}
	}
	if v, err := strconv.ParseInt(text, 10, 64); err == nil {
		return ID(v)
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil && f == float64(int64(f)) {
		return ID(int64(f))
	}
	return OptionalID{}
}

// Message is a private or group chat message.
type Message struct {
	ID           OptionalID      `json:"id"`
	Type         MessageType     `json:"-"`
	Content      string          `json:"content"`
	SendID       OptionalID      `json:"sendId"`
	RecvID       OptionalID      `json:"recvId"`
	GroupID      OptionalID      `json:"groupId"`
	SendTime     OptionalID      `json:"sendTime"`
	SendNickName string          `json:"sendNickName"`
	QuoteMessage json.RawMessage `json:"quoteMessage,omitempty"`
}

type messageWire struct {
	Message
	RawType OptionalID      `json:"type"`
	Content json.RawMessage `json:"content"`
}

func decodeMessage(data []byte) (Message, error) {
	var wire messageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Message{}, err
	}
	msg := wire.Message
	if wire.RawType.Valid {
		msg.Type = MessageType(wire.RawType.Value)
	}
	msg.Content = contentText(wire.Content)
	if bytes.Equal(bytes.TrimSpace(msg.QuoteMessage), []byte("null")) {
		msg.QuoteMessage = nil
	}
	return msg, nil
}

// contentText keeps strings as-is and renders any other JSON value as text.
func contentText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}

// SentAt converts the millisecond send time; zero when absent.
func (m Message) SentAt() time.Time {
	if !m.SendTime.Valid || m.SendTime.Value <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.SendTime.Value)
}

// RecalledID is the id of the message a RECALL refers to.
func (m Message) RecalledID() OptionalID {
	if m.Type != TypeRecall {
		return OptionalID{}
	}
	return parseOptionalID([]byte(m.Content))
}
