package events

import (
	"encoding/json"
	"fmt"
)

// Event type tags delivered by the BlueBubbles webhook.
const (
	TypeNewMessage      = "new-message"
	TypeUpdatedMessage  = "updated-message"
	TypeTypingIndicator = "typing-indicator"
	TypeChatRead        = "chat-read-status-changed"
)

// WebhookPayload is the raw BlueBubbles webhook body.
type WebhookPayload struct {
	Type string      `json:"type"`
	Data MessageData `json:"data"`
}

// MessageData carries the message fields the bridge cares about. BlueBubbles
// sends many more; unknown fields are ignored.
type MessageData struct {
	GUID     string `json:"guid"`
	Text     string `json:"text"`
	IsFromMe bool   `json:"isFromMe"`
	Handle   Handle `json:"handle"`
	Chats    []Chat `json:"chats"`
}

// Handle identifies the sender of a message.
type Handle struct {
	Address string `json:"address"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	GUID string `json:"guid"`
}

// InboundEvent is the normalized result of parsing a webhook payload.
// It lives for the duration of one request and is never persisted.
type InboundEvent struct {
	Type      string
	MessageID string
	ChatGUID  string
	Sender    string
	Text      string
	IsFromMe  bool
}

// ParseWebhook decodes a raw webhook body into an InboundEvent.
func ParseWebhook(body []byte) (InboundEvent, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return InboundEvent{}, fmt.Errorf("events: decode webhook body: %w", err)
	}
	if payload.Type == "" {
		return InboundEvent{}, fmt.Errorf("events: webhook body missing type tag")
	}

	ev := InboundEvent{
		Type:      payload.Type,
		MessageID: payload.Data.GUID,
		Sender:    payload.Data.Handle.Address,
		Text:      payload.Data.Text,
		IsFromMe:  payload.Data.IsFromMe,
	}
	if len(payload.Data.Chats) > 0 {
		ev.ChatGUID = payload.Data.Chats[0].GUID
	}
	return ev, nil
}
