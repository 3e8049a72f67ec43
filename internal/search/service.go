package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/depotline/depot/internal/platform/httpx"
)

const (
	defaultLimit = 10
	maxLimit     = 50
)

// Service indexes documents and answers queries.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Index upserts doc.
func (s *Service) Index(ctx context.Context, doc Document) error {
	if !doc.EntityType.Valid() || doc.EntityID <= 0 {
		return fmt.Errorf("%w: invalid search document", httpx.ErrValidation)
	}
	return s.repo.Upsert(ctx, doc, content(doc))
}

// Remove drops the document of an entity.
func (s *Service) Remove(ctx context.Context, entityType EntityType, id int64) error {
	return s.repo.Delete(ctx, entityType, id)
}

// Search returns hits for q. Queries shorter than MinQueryLength runes
// yield an empty slice without touching the database.
func (s *Service) Search(ctx context.Context, q Query) ([]Result, error) {
	text := Normalize(q.Text)
	if utf8.RuneCountInString(text) < MinQueryLength {
		return []Result{}, nil
	}
	if q.Type != "" && !q.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", httpx.ErrValidation, q.Type)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	t := terms(text)
	if len(t) == 0 {
		return []Result{}, nil
	}
	return s.repo.Search(ctx, t, q.Type, limit)
}

// Reindex rebuilds the documents of every source and returns how many were written.
func (s *Service) Reindex(ctx context.Context, sources map[EntityType]Source) (int, error) {
	total := 0
	for typ, src := range sources {
		docs, err := src.SearchDocuments(ctx)
		if err != nil {
			return total, fmt.Errorf("search: collect %s documents: %w", typ, err)
		}
		if err := s.repo.Replace(ctx, typ, docs, content); err != nil {
			return total, fmt.Errorf("search: replace %s documents: %w", typ, err)
		}
		s.logger.Info("search index rebuilt", slog.String("entity_type", string(typ)), slog.Int("documents", len(docs)))
		total += len(docs)
	}
	return total, nil
}

func content(doc Document) string {
	return Normalize(strings.Join([]string{doc.Title, doc.Subtitle, doc.Body}, " "))
}
