package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/depotline/depot/internal/inventory"
	"github.com/depotline/depot/internal/masterdata/products"
	"github.com/depotline/depot/internal/masterdata/warehouses"
	"github.com/depotline/depot/internal/platform/db"
	"github.com/depotline/depot/internal/rbac"
	"github.com/depotline/depot/internal/search"
)

func main() {
	dsn := getenv("MYSQL_DSN", "depot:depot@tcp(127.0.0.1:3306)/depot?charset=utf8mb4")
	ctx := context.Background()
	pool, err := db.New(ctx, dsn, db.PoolOptions{MaxOpenConns: 4, MaxIdleConns: 2, ConnMaxLifetime: time.Minute})
	if err != nil {
		log.Fatalf("connect mysql: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Seeding roles and permissions...")
	if err := seedRBAC(ctx, pool); err != nil {
		log.Fatalf("seed rbac: %v", err)
	}
	fmt.Println("→ Seeding users...")
	if err := seedUsers(ctx, pool); err != nil {
		log.Fatalf("seed users: %v", err)
	}
	fmt.Println("→ Seeding warehouses, products and opening stock...")
	if err := seedCatalog(ctx, pool); err != nil {
		log.Fatalf("seed catalog: %v", err)
	}
	fmt.Println("✓ Seed complete")
}

func seedRBAC(ctx context.Context, pool *sql.DB) error {
	matrix, err := rbac.DefaultMatrix()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, role := range matrix.Roles() {
		_, err := pool.ExecContext(ctx, `
			INSERT INTO roles (name, description, is_system, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE description = VALUES(description), is_system = VALUES(is_system)`,
			role.Name, role.Description, role.System, now, now)
		if err != nil {
			return err
		}
	}
	added, err := rbac.NewService(rbac.NewRepository(pool), matrix, nil, nil).SyncPermissions(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("  %d new permissions\n", added)
	return nil
}

func seedUsers(ctx context.Context, pool *sql.DB) error {
	users := []struct {
		name     string
		email    string
		password string
		role     string
	}{
		{"Administrator", "admin@depot.local", "admin12345", "admin"},
		{"Maya Manager", "manager@depot.local", "manager12345", "manager"},
		{"Dion Dispatcher", "dispatcher@depot.local", "dispatch12345", "dispatcher"},
		{"Sari Staff", "staff@depot.local", "staff12345", "warehouse_staff"},
	}

	now := time.Now().UTC()
	for _, u := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		_, err = pool.ExecContext(ctx, `
			INSERT IGNORE INTO users (name, email, password_hash, role_id, is_active, created_at, updated_at)
			SELECT ?, ?, ?, id, 1, ?, ? FROM roles WHERE name = ?`,
			u.name, u.email, string(hash), now, now, u.role)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedCatalog(ctx context.Context, pool *sql.DB) error {
	index := search.NewService(search.NewRepository(pool), nil)
	whService := warehouses.NewService(warehouses.NewRepository(pool), index, nil, nil)
	productService := products.NewService(products.NewRepository(pool), index, nil, nil)
	stock := inventory.NewService(inventory.NewRepository(pool), nil, nil, inventory.ServiceConfig{}, nil)

	whInputs := []warehouses.WarehouseInput{
		{Code: "JKT-01", Name: "Jakarta Central", Address: "Jl. Gatot Subroto 12, Jakarta"},
		{Code: "SBY-01", Name: "Surabaya Hub", Address: "Jl. Rungkut Industri 3, Surabaya"},
	}
	var whIDs []int64
	for _, in := range whInputs {
		wh, err := whService.Create(ctx, in)
		if errors.Is(err, warehouses.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return fmt.Errorf("warehouse %s: %w", in.Code, err)
		}
		whIDs = append(whIDs, wh.ID)
	}

	productInputs := []struct {
		in      products.ProductInput
		opening int64
	}{
		{products.ProductInput{SKU: "BOX-S", Name: "Shipping Box Small", Unit: "pcs", Price: money("4500"), Cost: money("2800"), ReorderLevel: 200}, 1500},
		{products.ProductInput{SKU: "BOX-L", Name: "Shipping Box Large", Unit: "pcs", Price: money("9000"), Cost: money("6100"), ReorderLevel: 100}, 80},
		{products.ProductInput{SKU: "TAPE-48", Name: "Packing Tape 48mm", Unit: "roll", Price: money("12500"), Cost: money("8000"), ReorderLevel: 50}, 400},
		{products.ProductInput{SKU: "WRAP-50", Name: "Bubble Wrap 50m", Unit: "roll", Price: money("85000"), Cost: money("61000"), ReorderLevel: 10}, 6},
		{products.ProductInput{SKU: "PLT-STD", Name: "Standard Pallet", Unit: "pcs", Price: money("150000"), Cost: money("110000"), ReorderLevel: 20}, 45},
	}
	for _, p := range productInputs {
		product, err := productService.Create(ctx, p.in)
		if errors.Is(err, products.ErrSKUTaken) {
			continue
		}
		if err != nil {
			return fmt.Errorf("product %s: %w", p.in.SKU, err)
		}
		for _, whID := range whIDs {
			_, err := stock.PostReceipt(ctx, inventory.ReceiptInput{
				WarehouseID: whID,
				ProductID:   product.ID,
				Quantity:    p.opening,
				UnitCost:    *p.in.Cost,
				Note:        "opening balance",
			})
			if err != nil {
				return fmt.Errorf("opening stock %s: %w", p.in.SKU, err)
			}
		}
	}
	return nil
}

func money(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
