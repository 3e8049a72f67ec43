package messages

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/realtime"
	"github.com/depotline/depot/internal/users"
)

// Directory looks up message recipients.
type Directory interface {
	Get(ctx context.Context, id int64) (users.User, error)
}

// Pusher delivers realtime events to connected users.
type Pusher interface {
	SendToUser(userID int64, evt realtime.Event) int
}

// Service sends and reads direct messages.
type Service struct {
	repo      Repository
	directory Directory
	pusher    Pusher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs Service. pusher may be nil.
func NewService(repo Repository, directory Directory, pusher Pusher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, directory: directory, pusher: pusher, logger: logger, now: time.Now}
}

// Send stores a message from senderID and pushes it to the recipient.
func (s *Service) Send(ctx context.Context, senderID int64, in SendInput) (Message, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Body = strings.TrimSpace(in.Body)
	if err := httpx.Validate(in); err != nil {
		return Message{}, err
	}
	if in.RecipientID == senderID {
		return Message{}, ErrSelfMessage
	}
	recipient, err := s.directory.Get(ctx, in.RecipientID)
	if errors.Is(err, users.ErrUserNotFound) || (err == nil && !recipient.IsActive) {
		return Message{}, ErrRecipientGone
	}
	if err != nil {
		return Message{}, err
	}
	id, err := s.repo.Insert(ctx, senderID, in, s.now().UTC())
	if err != nil {
		return Message{}, err
	}
	msg, err := s.repo.Get(ctx, id)
	if err != nil {
		return Message{}, err
	}
	if s.pusher != nil {
		s.pusher.SendToUser(msg.RecipientID, realtime.Event{Type: EventType, Data: msg})
	}
	s.logger.Info("message sent", slog.Int64("id", msg.ID), slog.Int64("sender_id", senderID), slog.Int64("recipient_id", msg.RecipientID))
	return msg, nil
}

// List returns the inbox or sent box of userID.
func (s *Service) List(ctx context.Context, userID int64, filter ListFilter) ([]Message, int, error) {
	if filter.Box == "" {
		filter.Box = BoxInbox
	}
	return s.repo.List(ctx, userID, filter)
}

// Get returns a message visible to viewerID.
func (s *Service) Get(ctx context.Context, viewerID, id int64) (Message, error) {
	msg, err := s.repo.Get(ctx, id)
	if err != nil {
		return Message{}, err
	}
	if !msg.Involves(viewerID) {
		return Message{}, ErrNotParticipant
	}
	return msg, nil
}

// MarkRead marks a message read on behalf of its recipient.
func (s *Service) MarkRead(ctx context.Context, viewerID, id int64) (Message, error) {
	msg, err := s.Get(ctx, viewerID, id)
	if err != nil {
		return Message{}, err
	}
	if msg.RecipientID != viewerID {
		return Message{}, ErrNotRecipient
	}
	if msg.ReadAt != nil {
		return msg, nil
	}
	at := s.now().UTC()
	if err := s.repo.MarkRead(ctx, id, at); err != nil {
		return Message{}, err
	}
	msg.ReadAt = &at
	return msg, nil
}
