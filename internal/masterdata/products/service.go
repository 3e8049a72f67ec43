package products

import (
	"context"
	"log/slog"
	"strconv"

	mdshared "github.com/depotline/depot/internal/masterdata/shared"
	"github.com/depotline/depot/internal/search"
	"github.com/depotline/depot/internal/shared"
)

// Service implements product business rules.
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

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, mdshared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

// Create stores a new product. Prices are rounded to two decimals.
func (s *Service) Create(ctx context.Context, in ProductInput) (Product, error) {
	if err := s.validate(&in); err != nil {
		return Product{}, err
	}
	p := Product{
		SKU:          in.SKU,
		Name:         in.Name,
		Description:  in.Description,
		Unit:         in.Unit,
		Price:        money(in.Price),
		Cost:         money(in.Cost),
		ReorderLevel: in.ReorderLevel,
		IsActive:     true,
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return Product{}, err
	}
	s.after(ctx, "product.create", created)
	return created, nil
}

// Update replaces the product fields. Omitted price and cost keep their values.
func (s *Service) Update(ctx context.Context, id int64, in ProductInput) (Product, error) {
	if id <= 0 {
		return Product{}, mdshared.ErrInvalidID
	}
	if err := s.validate(&in); err != nil {
		return Product{}, err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	current.SKU = in.SKU
	current.Name = in.Name
	current.Description = in.Description
	current.Unit = in.Unit
	current.ReorderLevel = in.ReorderLevel
	if in.Price != nil {
		current.Price = money(in.Price)
	}
	if in.Cost != nil {
		current.Cost = money(in.Cost)
	}
	if in.IsActive != nil {
		current.IsActive = *in.IsActive
	}
	if err := s.repo.Update(ctx, current); err != nil {
		return Product{}, err
	}
	updated, err := s.repo.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	s.after(ctx, "product.update", updated)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return mdshared.ErrInvalidID
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	mdshared.Unindex(ctx, s.logger, s.indexer, search.EntityProduct, id)
	mdshared.Record(ctx, s.logger, s.audit, shared.AuditLog{Action: "product.delete", Entity: "product", EntityID: strconv.FormatInt(id, 10)})
	return nil
}

// SearchDocuments lists every product for a search rebuild.
func (s *Service) SearchDocuments(ctx context.Context) ([]search.Document, error) {
	list, _, err := s.repo.List(ctx, ListFilters{})
	if err != nil {
		return nil, err
	}
	docs := make([]search.Document, 0, len(list))
	for _, p := range list {
		docs = append(docs, p.Document())
	}
	return docs, nil
}

func (s *Service) after(ctx context.Context, action string, p Product) {
	mdshared.Reindex(ctx, s.logger, s.indexer, p.Document())
	mdshared.Record(ctx, s.logger, s.audit, shared.AuditLog{
		Action:   action,
		Entity:   "product",
		EntityID: strconv.FormatInt(p.ID, 10),
		Meta:     map[string]any{"sku": p.SKU, "price": p.Price.StringFixed(2), "is_active": p.IsActive},
	})
}
