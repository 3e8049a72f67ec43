package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotline/depot/internal/roles"
	"github.com/depotline/depot/internal/users"
	"github.com/depotline/depot/jobs"
)

type stubEnqueuer struct {
	types []string
}

func (s *stubEnqueuer) EnqueueByType(_ context.Context, typ string) (*asynq.TaskInfo, error) {
	for _, known := range jobs.TaskTypes {
		if known == typ {
			s.types = append(s.types, typ)
			return &asynq.TaskInfo{ID: "t-1", Type: typ, Queue: jobs.QueueDefault}, nil
		}
	}
	return nil, jobs.ErrUnknownTask
}

type stubInspector struct {
	info      *asynq.QueueInfo
	scheduled []*asynq.TaskInfo
	err       error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func (s stubInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.scheduled, s.err
}

func TestTriggerEnqueuesKnownTask(t *testing.T) {
	enq := &stubEnqueuer{}
	out := new(bytes.Buffer)
	c := NewJobsCLI(enq, nil, out)

	require.NoError(t, c.Trigger(context.Background(), jobs.TaskLowStockScan))
	assert.Equal(t, []string{jobs.TaskLowStockScan}, enq.types)
	assert.Contains(t, out.String(), "enqueued inventory:low_stock_scan id=t-1")

	err := c.Trigger(context.Background(), "finance:close")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported job")
}

func TestInspectQueueCopiesCounters(t *testing.T) {
	c := NewJobsCLI(nil, stubInspector{info: &asynq.QueueInfo{Pending: 3, Active: 1, Retry: 2, Paused: true}}, new(bytes.Buffer))
	stats, err := c.InspectQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Queue: jobs.QueueDefault, Pending: 3, Active: 1, Retry: 2, Paused: true}, stats)

	out := new(bytes.Buffer)
	c = NewJobsCLI(nil, stubInspector{info: &asynq.QueueInfo{Pending: 3}}, out)
	require.NoError(t, c.PrintStats(context.Background()))
	assert.Contains(t, out.String(), "PENDING")
	assert.Contains(t, out.String(), jobs.QueueDefault)
}

func TestListScheduled(t *testing.T) {
	out := new(bytes.Buffer)
	c := NewJobsCLI(nil, stubInspector{}, out)
	require.NoError(t, c.ListScheduled(context.Background(), 0))
	assert.Equal(t, "no scheduled tasks\n", out.String())

	out.Reset()
	next := time.Date(2026, 3, 1, 2, 30, 0, 0, time.UTC)
	c = NewJobsCLI(nil, stubInspector{scheduled: []*asynq.TaskInfo{{ID: "abc", Type: jobs.TaskSearchReindex, NextProcessAt: next}}}, out)
	require.NoError(t, c.ListScheduled(context.Background(), 5))
	assert.Contains(t, out.String(), "abc")
	assert.Contains(t, out.String(), "2026-03-01T02:30:00Z")

	c = NewJobsCLI(nil, stubInspector{err: errors.New("redis down")}, out)
	assert.EqualError(t, c.ListScheduled(context.Background(), 5), "redis down")
}

func TestJobsCLIWithoutCollaborators(t *testing.T) {
	c := NewJobsCLI(nil, nil, new(bytes.Buffer))
	assert.Error(t, c.Trigger(context.Background(), jobs.TaskSearchReindex))
	_, err := c.InspectQueue(context.Background())
	assert.Error(t, err)
}

type stubUsers struct {
	got users.CreateInput
}

func (s *stubUsers) Create(_ context.Context, in users.CreateInput) (users.User, error) {
	s.got = in
	return users.User{ID: 9, Email: in.Email, RoleID: in.RoleID, IsActive: *in.IsActive}, nil
}

type stubRoles []roles.Role

func (s stubRoles) ListRoles(context.Context) ([]roles.Role, error) { return s, nil }

func TestCreateUserResolvesRoleByName(t *testing.T) {
	created := &stubUsers{}
	out := new(bytes.Buffer)
	c := NewAdminCLI(created, stubRoles{{ID: 1, Name: "admin"}, {ID: 4, Name: "dispatcher"}}, out)

	user, err := c.CreateUser(context.Background(), AdminOptions{Name: "Ops", Email: "ops@depot.test", Password: "secret123", Role: "Dispatcher"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), user.ID)
	assert.Equal(t, int64(4), created.got.RoleID)
	assert.True(t, *created.got.IsActive)
	assert.Contains(t, out.String(), "role=Dispatcher")

	_, err = c.CreateUser(context.Background(), AdminOptions{Email: "x@depot.test", Role: "auditor"})
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestCreateUserDefaultsToAdmin(t *testing.T) {
	created := &stubUsers{}
	c := NewAdminCLI(created, stubRoles{{ID: 1, Name: "admin"}}, new(bytes.Buffer))
	_, err := c.CreateUser(context.Background(), AdminOptions{Email: "root@depot.test", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.got.RoleID)
}
