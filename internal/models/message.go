package models

import "time"

// MessageType says how a message body should be rendered.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeFile  MessageType = "file"
	MessageTypeImage MessageType = "image"
	MessageTypeAI    MessageType = "ai"
)

// Valid reports whether t is one of the known types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeFile, MessageTypeImage, MessageTypeAI:
		return true
	}
	return false
}

// NeedsBody reports whether messages of this type must carry text.
func (t MessageType) NeedsBody() bool {
	return t == MessageTypeText || t == MessageTypeAI
}

// NeedsAttachment reports whether messages of this type must carry a payload.
func (t MessageType) NeedsAttachment() bool {
	return t == MessageTypeImage || t == MessageTypeFile
}

// Status is the delivery state of a message. It only moves forward:
// sent -> delivered -> read.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// Rank orders statuses; unknown values rank below sent.
func (s Status) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.Rank() > 0
}

// CanAdvanceTo reports whether moving from s to next goes strictly forward.
func (s Status) CanAdvanceTo(next Status) bool {
	return next.Valid() && next.Rank() > s.Rank()
}

// Message is a direct message. Everything except Status and IsRead is
// immutable after the store accepts it.
type Message struct {
	ID        string      `json:"id"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"time"`
	Type      MessageType `json:"type"`
	IsRead    bool        `json:"isRead"`
	Status    Status      `json:"status,omitempty"`
	// Attachment is a data URI or URL for image/file messages.
	Attachment string `json:"fileData,omitempty"`
}

// Between reports whether m belongs to the conversation of a and b.
func (m Message) Between(a, b string) bool {
	return (m.From == a && m.To == b) || (m.From == b && m.To == a)
}

// Advance applies a status move if it goes forward; IsRead follows the
// read status and never flips back. It reports whether m changed.
func (m *Message) Advance(next Status) bool {
	if !m.Status.CanAdvanceTo(next) {
		return false
	}
	m.Status = next
	if next == StatusRead {
		m.IsRead = true
	}
	return true
}

// Draft is a message before the store assigns id, time and status.
type Draft struct {
	From       string      `json:"from"`
	To         string      `json:"to"`
	Text       string      `json:"text"`
	Type       MessageType `json:"type"`
	Attachment string      `json:"fileData,omitempty"`
	// IsRead pre-marks the message read (assistant replies).
	IsRead bool `json:"isRead"`
	// Track asks the lifecycle engine to schedule delivered/read
	// transitions once the store accepts the message. Never persisted.
	Track bool `json:"-"`
}

// Materialize turns the draft into a stored message with initial status sent.
func (d Draft) Materialize(id string, at time.Time) Message {
	return Message{
		ID:         id,
		From:       d.From,
		To:         d.To,
		Text:       d.Text,
		CreatedAt:  at,
		Type:       d.Type,
		IsRead:     d.IsRead,
		Status:     StatusSent,
		Attachment: d.Attachment,
	}
}
