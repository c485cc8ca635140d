package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const productColumns = `id, name, description, category, image, created_at, updated_at`

// Repository handles all product database operations.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanProduct(row pgx.Row) (*Product, error) {
	p := &Product{}
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Image, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FindByID fetches a product by id.
func (r *Repository) FindByID(ctx context.Context, id int64) (*Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product by id: %w", err)
	}
	return p, nil
}

// Create inserts a new product and returns the created record.
func (r *Repository) Create(ctx context.Context, f Fields) (*Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx,
		`INSERT INTO products (name, description, category, image)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+productColumns,
		f.Name, f.Description, f.Category, f.Image,
	))
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

// Update overwrites the caller-controlled columns of a product.
func (r *Repository) Update(ctx context.Context, id int64, f Fields) (*Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx,
		`UPDATE products
		 SET name = $1, description = $2, category = $3, image = $4, updated_at = NOW()
		 WHERE id = $5
		 RETURNING `+productColumns,
		f.Name, f.Description, f.Category, f.Image, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return p, nil
}

// Delete removes a product and returns the row as it was.
func (r *Repository) Delete(ctx context.Context, id int64) (*Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx,
		`DELETE FROM products WHERE id = $1 RETURNING `+productColumns,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete product: %w", err)
	}
	return p, nil
}

// List returns every product in the given order.
func (r *Repository) List(ctx context.Context, order Order) ([]*Product, error) {
	orderBy := "id ASC"
	if order == OrderByName {
		orderBy = "name ASC, id ASC"
	}

	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY `+orderBy)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []*Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// CountByImage returns how many products are bound to the named asset.
func (r *Repository) CountByImage(ctx context.Context, image string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM products WHERE image = $1`,
		image,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count products by image: %w", err)
	}
	return n, nil
}
