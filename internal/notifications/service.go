package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/realtime"
)

// RoleResolver finds the roles granting a permission.
type RoleResolver interface {
	RolesGranting(ctx context.Context, perm string) ([]string, error)
}

// Directory lists active users by role.
type Directory interface {
	ActiveIDsByRoles(ctx context.Context, roles []string) ([]int64, error)
}

// Pusher delivers realtime events to connected users.
type Pusher interface {
	SendToUser(userID int64, evt realtime.Event) int
}

// Service manages notification feeds.
type Service struct {
	repo      Repository
	roles     RoleResolver
	directory Directory
	pusher    Pusher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs Service. pusher may be nil.
func NewService(repo Repository, roles RoleResolver, directory Directory, pusher Pusher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: roles, directory: directory, pusher: pusher, logger: logger, now: time.Now}
}

// NotifyPermission sends in to every active user whose role grants perm.
func (s *Service) NotifyPermission(ctx context.Context, perm string, in Input) (int, error) {
	roles, err := s.roles.RolesGranting(ctx, perm)
	if err != nil {
		return 0, fmt.Errorf("notifications: roles granting %s: %w", perm, err)
	}
	if len(roles) == 0 {
		return 0, nil
	}
	ids, err := s.directory.ActiveIDsByRoles(ctx, roles)
	if err != nil {
		return 0, fmt.Errorf("notifications: users of roles: %w", err)
	}
	return s.Notify(ctx, ids, in)
}

// Notify stores one notification per user and pushes it to those online.
func (s *Service) Notify(ctx context.Context, userIDs []int64, in Input) (int, error) {
	in.Type = strings.TrimSpace(in.Type)
	in.Title = strings.TrimSpace(in.Title)
	if err := httpx.Validate(in); err != nil {
		return 0, err
	}
	ids := slices.Clone(userIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	ids = slices.DeleteFunc(ids, func(id int64) bool { return id <= 0 })
	if len(ids) == 0 {
		return 0, nil
	}
	created, err := s.repo.Insert(ctx, ids, in, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if s.pusher != nil {
		for _, n := range created {
			s.pusher.SendToUser(n.UserID, realtime.Event{Type: EventType, Data: n})
		}
	}
	s.logger.Debug("notifications created", slog.String("type", in.Type), slog.Int("recipients", len(created)))
	return len(created), nil
}

func (s *Service) List(ctx context.Context, userID int64, filter ListFilter) ([]Notification, int, error) {
	return s.repo.List(ctx, userID, filter)
}

func (s *Service) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}

// MarkRead marks one notification of userID as read.
func (s *Service) MarkRead(ctx context.Context, userID, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid notification id", httpx.ErrValidation)
	}
	return s.repo.MarkRead(ctx, userID, id, s.now().UTC())
}

// MarkAllRead marks every unread notification of userID and returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID, s.now().UTC())
}
