// Package messages implements direct user-to-user messaging.
package messages

import (
	"fmt"
	"time"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/shared"
)

// Message is a direct message between two users.
type Message struct {
	ID            int64      `json:"id"`
	SenderID      int64      `json:"sender_id"`
	SenderName    string     `json:"sender_name"`
	RecipientID   int64      `json:"recipient_id"`
	RecipientName string     `json:"recipient_name"`
	Subject       string     `json:"subject"`
	Body          string     `json:"body"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Involves reports whether userID sent or received the message.
func (m Message) Involves(userID int64) bool {
	return userID != 0 && (m.SenderID == userID || m.RecipientID == userID)
}

// SendInput is the payload of a new message.
type SendInput struct {
	RecipientID int64  `json:"recipient_id" validate:"required,gt=0"`
	Subject     string `json:"subject" validate:"max=255"`
	Body        string `json:"body" validate:"required,max=5000"`
}

// Box selects which side of the conversation a listing shows.
type Box string

const (
	BoxInbox Box = "inbox"
	BoxSent  Box = "sent"
)

// ParseBox defaults to the inbox.
func ParseBox(raw string) (Box, error) {
	switch Box(raw) {
	case "", BoxInbox:
		return BoxInbox, nil
	case BoxSent:
		return BoxSent, nil
	}
	return "", &httpx.FieldErrors{Fields: map[string]string{"box": "must be inbox or sent"}}
}

// ListFilter narrows a mailbox listing.
type ListFilter struct {
	shared.ListFilters
	Box Box
}

// EventType is the realtime event carrying a new message.
const EventType = "message"

var (
	ErrMessageNotFound = fmt.Errorf("message %w", httpx.ErrNotFound)
	// ErrNotParticipant hides other users' conversations.
	ErrNotParticipant = fmt.Errorf("%w: not a participant of this message", httpx.ErrForbidden)
	// ErrNotRecipient is returned when someone other than the recipient marks a message read.
	ErrNotRecipient  = fmt.Errorf("%w: only the recipient can mark a message read", httpx.ErrForbidden)
	ErrSelfMessage   = fmt.Errorf("%w: cannot send a message to yourself", httpx.ErrValidation)
	ErrRecipientGone = fmt.Errorf("%w: recipient is not an active user", httpx.ErrValidation)
)
