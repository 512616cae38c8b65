package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"
)

const productColumns = `id, title, description, price, category, sizes, colors, image, stock, featured, created_at, updated_at`

// CreateProduct inserts p and fills its generated fields.
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (title, description, price, category, sizes, colors, image, stock, featured)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, p, query,
		p.Title, p.Description, p.Price, p.Category, p.Sizes, p.Colors, p.Image, p.Stock, p.Featured)
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts returns products newest first, optionally filtered by category.
func (s *Store) ListProducts(ctx context.Context, category models.Category) ([]models.Product, error) {
	products := []models.Product{}
	var err error
	if category == "" {
		err = s.db.SelectContext(ctx, &products,
			"SELECT "+productColumns+" FROM products ORDER BY created_at DESC")
	} else {
		err = s.db.SelectContext(ctx, &products,
			"SELECT "+productColumns+" FROM products WHERE category = $1 ORDER BY created_at DESC", category)
	}
	return products, err
}

// UpdateProduct overwrites every editable field of p.
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products
		SET title = $1, description = $2, price = $3, category = $4, sizes = $5, colors = $6,
		    image = $7, stock = $8, featured = $9, updated_at = NOW()
		WHERE id = $10
		RETURNING created_at, updated_at`

	err := s.db.GetContext(ctx, p, query,
		p.Title, p.Description, p.Price, p.Category, p.Sizes, p.Colors, p.Image, p.Stock, p.Featured, p.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product %d: %w", p.ID, ErrNotFound)
	}
	return err
}

// DeleteProduct removes a product and returns the deleted row.
func (s *Store) DeleteProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"DELETE FROM products WHERE id = $1 RETURNING "+productColumns, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) CountProducts(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM products")
	return n, err
}
