// Package search maintains the global search_index table and answers
// search-as-you-type queries over products, warehouses and dispatches.
package search

import (
	"context"
	"time"
)

// EntityType identifies the kind of record a document points at.
type EntityType string

const (
	EntityProduct   EntityType = "product"
	EntityWarehouse EntityType = "warehouse"
	EntityDispatch  EntityType = "dispatch"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityProduct, EntityWarehouse, EntityDispatch:
		return true
	}
	return false
}

// MinQueryLength is the shortest query that reaches the database.
const MinQueryLength = 2

// Document is one row of search_index.
type Document struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`
	Title      string     `json:"title"`
	Subtitle   string     `json:"subtitle,omitempty"`
	Body       string     `json:"-"`
}

// Result is a ranked search hit.
type Result struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`
	Title      string     `json:"title"`
	Subtitle   string     `json:"subtitle,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Query filters a search.
type Query struct {
	Text  string
	Type  EntityType
	Limit int
}

// Indexer keeps search documents in sync with their source records.
type Indexer interface {
	Index(ctx context.Context, doc Document) error
	Remove(ctx context.Context, entityType EntityType, id int64) error
}

// Source enumerates every document of one entity type for a full rebuild.
type Source interface {
	SearchDocuments(ctx context.Context) ([]Document, error)
}
