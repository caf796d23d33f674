package model

import "encoding/json"

// FrameType identifies a chat protocol frame.
type FrameType string

const (
	FrameJoin    FrameType = "join"
	FrameMessage FrameType = "message"
	FrameHistory FrameType = "history"
	FrameError   FrameType = "error"
)

// InboundFrame is a frame sent by the chat widget.
type InboundFrame struct {
	Type      FrameType `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	Content   string    `json:"content,omitempty"`
}

// OutboundFrame is a frame sent to the chat widget. Exactly one of the
// payload fields is set, according to Type.
type OutboundFrame struct {
	Type     FrameType `json:"type"`
	Messages []Message `json:"messages,omitempty"`
	Message  *Message  `json:"message,omitempty"`
	Content  string    `json:"content,omitempty"`
}

// MarshalJSON encodes only the payload field that belongs to the frame type,
// so a history frame always carries a messages array, even an empty one.
func (f OutboundFrame) MarshalJSON() ([]byte, error) {
	switch f.Type {
	case FrameHistory:
		messages := f.Messages
		if messages == nil {
			messages = []Message{}
		}
		return json.Marshal(struct {
			Type     FrameType `json:"type"`
			Messages []Message `json:"messages"`
		}{f.Type, messages})
	case FrameMessage:
		return json.Marshal(struct {
			Type    FrameType `json:"type"`
			Message *Message  `json:"message"`
		}{f.Type, f.Message})
	default:
		return json.Marshal(struct {
			Type    FrameType `json:"type"`
			Content string    `json:"content"`
		}{f.Type, f.Content})
	}
}

// HistoryFrame builds a history frame. messages is never encoded as null.
func HistoryFrame(messages []Message) *OutboundFrame {
	if messages == nil {
		messages = []Message{}
	}
	return &OutboundFrame{Type: FrameHistory, Messages: messages}
}

// MessageFrame builds a frame carrying one assistant turn.
func MessageFrame(msg *Message) *OutboundFrame {
	return &OutboundFrame{Type: FrameMessage, Message: msg}
}

// ErrorFrame builds an error frame.
func ErrorFrame(content string) *OutboundFrame {
	return &OutboundFrame{Type: FrameError, Content: content}
}
