package products

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/rbac"
	"github.com/depotline/depot/internal/search"
	"github.com/depotline/depot/internal/shared"
)

type memoryRepo struct {
	nextID int64
	rows   map[int64]Product
}

func newMemoryRepo() *memoryRepo { return &memoryRepo{rows: map[int64]Product{}} }

func (m *memoryRepo) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	out := []Product{}
	for id := int64(1); id <= m.nextID; id++ {
		if p, ok := m.rows[id]; ok {
			out = append(out, p)
		}
	}
	total := len(out)
	if filters.Limit > 0 {
		start := min(filters.Offset(), total)
		out = out[start:min(start+filters.Limit, total)]
	}
	return out, total, nil
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (Product, error) {
	p, ok := m.rows[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (m *memoryRepo) Create(ctx context.Context, p Product) (Product, error) {
	for _, existing := range m.rows {
		if existing.SKU == p.SKU {
			return Product{}, ErrSKUTaken
		}
	}
	m.nextID++
	p.ID = m.nextID
	m.rows[p.ID] = p
	return p, nil
}

func (m *memoryRepo) Update(ctx context.Context, p Product) error {
	if _, ok := m.rows[p.ID]; !ok {
		return ErrProductNotFound
	}
	m.rows[p.ID] = p
	return nil
}

func (m *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.rows[id]; !ok {
		return ErrProductNotFound
	}
	delete(m.rows, id)
	return nil
}

type recordingAuditor struct{ actions []string }

func (r *recordingAuditor) Record(ctx context.Context, log shared.AuditLog) error {
	r.actions = append(r.actions, log.Action)
	return nil
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCreateProductDefaults(t *testing.T) {
	audit := &recordingAuditor{}
	svc := NewService(newMemoryRepo(), nil, audit, nil)

	p, err := svc.Create(context.Background(), ProductInput{SKU: " kp-001 ", Name: "Kopi", Price: dec("12500.456")})
	require.NoError(t, err)
	assert.Equal(t, "KP-001", p.SKU)
	assert.Equal(t, DefaultUnit, p.Unit)
	assert.Equal(t, "12500.46", p.Price.StringFixed(2))
	assert.True(t, p.Cost.IsZero())
	assert.True(t, p.IsActive)
	assert.Equal(t, []string{"product.create"}, audit.actions)
}

func TestSearchDocumentsListsEveryProduct(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	total := shared.DefaultLimit + 4
	for i := 1; i <= total; i++ {
		_, err := svc.Create(context.Background(), ProductInput{SKU: fmt.Sprintf("SKU-%03d", i), Name: fmt.Sprintf("Item %d", i), Description: "rak A"})
		require.NoError(t, err)
	}

	docs, err := svc.SearchDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, total)
	assert.Equal(t, search.EntityProduct, docs[0].EntityType)
	assert.Equal(t, "Item 1", docs[0].Title)
	assert.Equal(t, "SKU-001", docs[0].Subtitle)
	assert.Equal(t, "rak A", docs[0].Body)
	assert.Equal(t, fmt.Sprintf("SKU-%03d", total), docs[total-1].Subtitle)
}

func TestRepositoryListEscapesSearch(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM products WHERE 1=1 AND (name LIKE ? OR sku LIKE ?)`)).
		WithArgs(`%100\%%`, `%100\%%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM products WHERE 1=1 AND (name LIKE ? OR sku LIKE ?)`)).
		WithArgs(`%100\%%`, `%100\%%`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	filters := ListFilters{}
	filters.Search = "100%"
	_, total, err := NewRepository(conn).List(context.Background(), filters)
	require.NoError(t, err)
	assert.Zero(t, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProductValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)

	_, err := svc.Create(context.Background(), ProductInput{SKU: "X", Name: "Y", Price: dec("-1")})
	var fe *httpx.FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Fields, "price")

	_, err = svc.Create(context.Background(), ProductInput{SKU: "X", Name: "Y", ReorderLevel: -3})
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Fields, "reorder_level")

	_, err = svc.Create(context.Background(), ProductInput{Name: "No SKU"})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestUpdateKeepsOmittedPrices(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	p, err := svc.Create(context.Background(), ProductInput{SKU: "A", Name: "A", Price: dec("10"), Cost: dec("7")})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), p.ID, ProductInput{SKU: "A", Name: "A2", ReorderLevel: 5})
	require.NoError(t, err)
	assert.Equal(t, "A2", updated.Name)
	assert.True(t, updated.Price.Equal(decimal.NewFromInt(10)))
	assert.True(t, updated.Cost.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, int64(5), updated.ReorderLevel)
}

func TestHandlerCreateAcceptsNumericAndStringPrices(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := &shared.Principal{UserID: 1, Permissions: []string{shared.PermissionAll}}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
		})
	})
	r.Route("/api/products", NewHandler(nil, svc, rbac.Middleware{}).MountRoutes)

	for i, body := range []string{
		`{"sku":"p-1","name":"One","price":19.9}`,
		`{"sku":"p-2","name":"Two","price":"19.90"}`,
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/products", strings.NewReader(body)))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var env struct {
			Data Product `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		assert.Equal(t, int64(i+1), env.Data.ID)
		assert.Equal(t, "19.9", env.Data.Price.String())
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/products", strings.NewReader(`{"sku":"P-1","name":"Dup"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/products", strings.NewReader(`{"sku":"Z","name":"Z","colour":"red"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRepositoryGetScansDecimals(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, sku, name, description, unit, price, cost, reorder_level, is_active, created_at, updated_at FROM products WHERE id = ?`)).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sku", "name", "description", "unit", "price", "cost", "reorder_level", "is_active", "created_at", "updated_at"}).
			AddRow(5, "KP-5", "Kopi", nil, "pcs", "12500.50", "9000.00", 10, true, now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM products WHERE id = ?`)).WithArgs(int64(6)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewRepository(conn)
	p, err := repo.Get(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "12500.5", p.Price.String())
	assert.Equal(t, int64(10), p.ReorderLevel)
	assert.Empty(t, p.Description)

	_, err = repo.Get(context.Background(), 6)
	assert.ErrorIs(t, err, ErrProductNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
