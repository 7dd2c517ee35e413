// Package product persists the product catalog. Reads are open to any
// authenticated user; writes are admin-only, enforced at the route
// policy layer.
package product

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/loomworks/loom/pkg/apperr"
)

// Status values for a product
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Product is a catalog entry. Price is stored in cents to avoid
// floating-point money.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	Category    string    `json:"category"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks a product for storage
func (p *Product) Validate() error {
	if p.Name == "" {
		return apperr.Validationf("product name is required")
	}
	if p.PriceCents < 0 {
		return apperr.Validationf("product price cannot be negative")
	}
	if p.Status != "" && p.Status != StatusActive && p.Status != StatusInactive {
		return apperr.Validationf("invalid product status %q", p.Status)
	}
	return nil
}

const productColumns = `id, name, description, price_cents, category, status, created_at, updated_at`

// Store persists products in PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a product store over an existing connection pool
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func scanProduct(row *sql.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Category, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("product")
	} else if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	return &p, nil
}

// Create inserts a new product
func (s *Store) Create(ctx context.Context, p *Product) (*Product, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	status := p.Status
	if status == "" {
		status = StatusActive
	}

	query := `
		INSERT INTO products (name, description, price_cents, category, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + productColumns

	return scanProduct(s.db.QueryRowContext(ctx, query, p.Name, p.Description, p.PriceCents, p.Category, status))
}

// Get returns the product with the given id, or a NotFound error
func (s *Store) Get(ctx context.Context, id int64) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	return scanProduct(s.db.QueryRowContext(ctx, query, id))
}

// List returns products ordered by creation time
func (s *Store) List(ctx context.Context, limit, offset int) ([]*Product, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT ` + productColumns + ` FROM products ORDER BY created_at ASC LIMIT $1 OFFSET $2`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Category, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return products, nil
}

// Update replaces the mutable fields of a product
func (s *Store) Update(ctx context.Context, id int64, p *Product) (*Product, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	status := p.Status
	if status == "" {
		status = StatusActive
	}

	query := `
		UPDATE products
		SET name = $2, description = $3, price_cents = $4, category = $5, status = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + productColumns

	return scanProduct(s.db.QueryRowContext(ctx, query, id, p.Name, p.Description, p.PriceCents, p.Category, status))
}

// Delete removes a product
func (s *Store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check product deletion: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("product")
	}
	return nil
}

// Count returns the number of products, for the dashboard
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}
