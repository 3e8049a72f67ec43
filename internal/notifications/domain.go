// Package notifications stores per-user notifications and pushes them to
// connected browsers.
package notifications

import (
	"fmt"
	"time"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/shared"
)

// Notification is one entry of a user's notification feed.
type Notification struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Link      string     `json:"link,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Read reports whether the notification was read.
func (n Notification) Read() bool { return n.ReadAt != nil }

// Input describes a notification to fan out.
type Input struct {
	Type  string `json:"type" validate:"required,max=64"`
	Title string `json:"title" validate:"required,max=255"`
	Body  string `json:"body" validate:"max=2000"`
	Link  string `json:"link" validate:"max=255"`
}

// ListFilter narrows a user's feed.
type ListFilter struct {
	shared.ListFilters
	UnreadOnly bool
}

// EventType is the realtime event carrying a new notification.
const EventType = "notification"

var ErrNotificationNotFound = fmt.Errorf("notification %w", httpx.ErrNotFound)
