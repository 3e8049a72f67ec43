package notifications

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/realtime"
	"github.com/depotline/depot/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   []Notification
}

func (m *memoryRepo) Insert(_ context.Context, userIDs []int64, in Input, at time.Time) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, 0, len(userIDs))
	for _, uid := range userIDs {
		m.nextID++
		n := Notification{ID: m.nextID, UserID: uid, Type: in.Type, Title: in.Title, Body: in.Body, Link: in.Link, CreatedAt: at}
		m.rows = append(m.rows, n)
		out = append(out, n)
	}
	return out, nil
}

func (m *memoryRepo) List(_ context.Context, userID int64, filter ListFilter) ([]Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []Notification{}
	for _, n := range m.rows {
		if n.UserID != userID || (filter.UnreadOnly && n.Read()) {
			continue
		}
		list = append(list, n)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	total := len(list)
	if filter.Limit > 0 {
		start := min(filter.Offset(), len(list))
		end := min(start+filter.Limit, len(list))
		list = list[start:end]
	}
	return list, total, nil
}

func (m *memoryRepo) UnreadCount(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.rows {
		if row.UserID == userID && !row.Read() {
			n++
		}
	}
	return n, nil
}

func (m *memoryRepo) MarkRead(_ context.Context, userID, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id && m.rows[i].UserID == userID {
			if m.rows[i].ReadAt == nil {
				m.rows[i].ReadAt = &at
			}
			return nil
		}
	}
	return ErrNotificationNotFound
}

func (m *memoryRepo) MarkAllRead(_ context.Context, userID int64, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.rows {
		if m.rows[i].UserID == userID && m.rows[i].ReadAt == nil {
			m.rows[i].ReadAt = &at
			n++
		}
	}
	return n, nil
}

type staticRoles map[string][]string

func (s staticRoles) RolesGranting(_ context.Context, perm string) ([]string, error) {
	return s[perm], nil
}

type staticDirectory map[string][]int64

func (s staticDirectory) ActiveIDsByRoles(_ context.Context, roles []string) ([]int64, error) {
	var ids []int64
	for _, role := range roles {
		ids = append(ids, s[role]...)
	}
	return ids, nil
}

type recordingPusher struct {
	mu   sync.Mutex
	sent map[int64][]realtime.Event
}

func (p *recordingPusher) SendToUser(userID int64, evt realtime.Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent == nil {
		p.sent = map[int64][]realtime.Event{}
	}
	p.sent[userID] = append(p.sent[userID], evt)
	return 1
}

type failingRoles struct{}

func (failingRoles) RolesGranting(context.Context, string) ([]string, error) {
	return nil, errors.New("matrix unavailable")
}

type fixture struct {
	repo   *memoryRepo
	pusher *recordingPusher
	svc    *Service
}

func newFixture() fixture {
	repo := &memoryRepo{}
	pusher := &recordingPusher{}
	roles := staticRoles{
		shared.PermDispatchView: {"admin", "dispatcher"},
	}
	directory := staticDirectory{"admin": {1}, "dispatcher": {4, 1, 6}}
	svc := NewService(repo, roles, directory, pusher, nil)
	svc.now = func() time.Time { return time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC) }
	return fixture{repo: repo, pusher: pusher, svc: svc}
}

func TestNotifyPermissionFansOutOncePerUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	n, err := f.svc.NotifyPermission(ctx, shared.PermDispatchView, Input{
		Type: "dispatch.create", Title: " New dispatch DSP-20261019-0001 ", Link: "/dispatch/1",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, uid := range []int64{1, 4, 6} {
		count, err := f.svc.UnreadCount(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "user %d", uid)
		require.Len(t, f.pusher.sent[uid], 1)
		evt := f.pusher.sent[uid][0]
		assert.Equal(t, EventType, evt.Type)
		pushed, ok := evt.Data.(Notification)
		require.True(t, ok)
		assert.Equal(t, "New dispatch DSP-20261019-0001", pushed.Title)
		assert.Equal(t, uid, pushed.UserID)
	}
}

func TestNotifyPermissionWithoutRoles(t *testing.T) {
	f := newFixture()
	n, err := f.svc.NotifyPermission(context.Background(), shared.PermMessagesSend, Input{Type: "x", Title: "y"})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.repo.rows)

	svc := NewService(f.repo, failingRoles{}, staticDirectory{}, nil, nil)
	_, err = svc.NotifyPermission(context.Background(), shared.PermDispatchView, Input{Type: "x", Title: "y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matrix unavailable")
}

func TestNotifyValidatesInput(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Notify(context.Background(), []int64{1}, Input{Type: "dispatch.create", Title: "   "})
	require.Error(t, err)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	n, err := f.svc.Notify(context.Background(), []int64{0, -2}, Input{Type: "x", Title: "y"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMarkReadFlow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Notify(ctx, []int64{4}, Input{Type: "a", Title: "first"})
	require.NoError(t, err)
	_, err = f.svc.Notify(ctx, []int64{4}, Input{Type: "a", Title: "second"})
	require.NoError(t, err)

	list, total, err := f.svc.List(ctx, 4, ListFilter{ListFilters: shared.ListFilters{Page: 1, Limit: 20}})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "second", list[0].Title)

	require.NoError(t, f.svc.MarkRead(ctx, 4, list[0].ID))
	require.NoError(t, f.svc.MarkRead(ctx, 4, list[0].ID))
	assert.ErrorIs(t, f.svc.MarkRead(ctx, 1, list[1].ID), httpx.ErrNotFound)
	assert.ErrorIs(t, f.svc.MarkRead(ctx, 4, 0), httpx.ErrValidation)

	unread, total, err := f.svc.List(ctx, 4, ListFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "first", unread[0].Title)

	changed, err := f.svc.MarkAllRead(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)
	count, err := f.svc.UnreadCount(ctx, 4)
	require.NoError(t, err)
	assert.Zero(t, count)
}
