package audit

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

type stubTimelineRepo struct {
	rows       []TimelineRow
	lastOffset int
	lastLimit  int
	lastFilter TimelineFilters
}

func (s *stubTimelineRepo) Window(_ context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	s.lastFilter = filters
	s.lastOffset = offset
	s.lastLimit = limit
	if len(s.rows) > limit {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

func row(at string, action string, id int64) TimelineRow {
	ts, _ := time.Parse(time.RFC3339, at)
	return TimelineRow{ID: id, At: ts, ActorID: 1, Actor: "Administrator", Action: action, Entity: "dispatch", EntityID: "12"}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		row("2026-03-10T10:00:00Z", "dispatch.create", 3),
		row("2026-03-09T09:00:00Z", "dispatch.ship", 2),
		row("2026-03-08T08:00:00Z", "dispatch.cancel", 1),
	}}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("expected a next page, got %+v", result.Paging)
	}
	if repo.lastLimit != 3 || repo.lastOffset != 0 {
		t.Fatalf("expected limit 3 offset 0, got %d %d", repo.lastLimit, repo.lastOffset)
	}
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 500})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if result.Paging.PageSize != maxPageSize {
		t.Fatalf("expected page size %d, got %d", maxPageSize, result.Paging.PageSize)
	}
	if repo.lastOffset != 2*maxPageSize {
		t.Fatalf("expected offset %d, got %d", 2*maxPageSize, repo.lastOffset)
	}
	if result.Paging.PrevPage != 2 || result.Paging.HasNext {
		t.Fatalf("unexpected paging %+v", result.Paging)
	}
}

func TestServiceExportUsesLimit(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{row("2026-03-10T10:00:00Z", "dispatch.create", 1)}}
	rows, err := NewService(repo).Export(context.Background(), TimelineFilters{Entity: "dispatch"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(rows) != 1 || repo.lastLimit != ExportLimit || repo.lastFilter.Entity != "dispatch" {
		t.Fatalf("unexpected export call: rows=%d limit=%d", len(rows), repo.lastLimit)
	}
}

func TestServiceWithoutRepository(t *testing.T) {
	if _, err := NewService(nil).Timeline(context.Background(), TimelineFilters{}); err == nil {
		t.Fatal("expected error without repository")
	}
}

func TestWriteCSV(t *testing.T) {
	r := row("2026-03-10T10:00:00Z", "dispatch.create", 1)
	r.Meta = json.RawMessage(`{"lines":2}`)
	system := row("2026-03-10T11:00:00Z", "maintenance.cleanup", 2)
	system.ActorID = 0
	system.Actor = ""

	out, err := WriteCSV([]TimelineRow{r, system})
	if err != nil {
		t.Fatalf("write csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 lines, got %d", len(lines))
	}
	if lines[0] != "at,actor_id,actor,action,entity,entity_id,meta" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if lines[1] != `2026-03-10T10:00:00Z,1,Administrator,dispatch.create,dispatch,12,"{""lines"":2}"` {
		t.Fatalf("unexpected row %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "2026-03-10T11:00:00Z,,,maintenance.cleanup") {
		t.Fatalf("unexpected system row %q", lines[2])
	}
}
