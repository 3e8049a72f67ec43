package warehouses

import (
	"context"
	"log/slog"
	"strconv"

	mdshared "github.com/depotline/depot/internal/masterdata/shared"
	"github.com/depotline/depot/internal/search"
	"github.com/depotline/depot/internal/shared"
)

// Service implements warehouse business rules.
type Service struct {
	repo    Repository
	indexer search.Indexer
	audit   shared.Auditor
	logger  *slog.Logger
}

// NewService constructs Service. indexer and audit may be nil.
func NewService(repo Repository, indexer search.Indexer, audit shared.Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, indexer: indexer, audit: audit, logger: logger}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Warehouse, int, error) {
	return s.repo.List(ctx, filters)
}

// ListActive returns warehouses selectable on the dispatch form.
func (s *Service) ListActive(ctx context.Context) ([]Warehouse, error) {
	return s.repo.ListActive(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, mdshared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, in WarehouseInput) (Warehouse, error) {
	if err := s.validate(&in); err != nil {
		return Warehouse{}, err
	}
	w := Warehouse{Code: in.Code, Name: in.Name, Address: in.Address, IsActive: true}
	if in.IsActive != nil {
		w.IsActive = *in.IsActive
	}
	created, err := s.repo.Create(ctx, w)
	if err != nil {
		return Warehouse{}, err
	}
	s.after(ctx, "warehouse.create", created)
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, in WarehouseInput) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, mdshared.ErrInvalidID
	}
	if err := s.validate(&in); err != nil {
		return Warehouse{}, err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Warehouse{}, err
	}
	current.Code = in.Code
	current.Name = in.Name
	current.Address = in.Address
	if in.IsActive != nil {
		current.IsActive = *in.IsActive
	}
	if err := s.repo.Update(ctx, current); err != nil {
		return Warehouse{}, err
	}
	updated, err := s.repo.Get(ctx, id)
	if err != nil {
		return Warehouse{}, err
	}
	s.after(ctx, "warehouse.update", updated)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return mdshared.ErrInvalidID
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	mdshared.Unindex(ctx, s.logger, s.indexer, search.EntityWarehouse, id)
	mdshared.Record(ctx, s.logger, s.audit, shared.AuditLog{Action: "warehouse.delete", Entity: "warehouse", EntityID: strconv.FormatInt(id, 10)})
	return nil
}

// SearchDocuments lists every warehouse for a search rebuild.
func (s *Service) SearchDocuments(ctx context.Context) ([]search.Document, error) {
	list, _, err := s.repo.List(ctx, ListFilters{})
	if err != nil {
		return nil, err
	}
	docs := make([]search.Document, 0, len(list))
	for _, w := range list {
		docs = append(docs, w.Document())
	}
	return docs, nil
}

func (s *Service) after(ctx context.Context, action string, w Warehouse) {
	mdshared.Reindex(ctx, s.logger, s.indexer, w.Document())
	mdshared.Record(ctx, s.logger, s.audit, shared.AuditLog{
		Action:   action,
		Entity:   "warehouse",
		EntityID: strconv.FormatInt(w.ID, 10),
		Meta:     map[string]any{"code": w.Code, "is_active": w.IsActive},
	})
}
