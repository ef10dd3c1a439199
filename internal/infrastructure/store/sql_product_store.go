package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/stock-ledger/internal/domain/product"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const productColumns = `id, name, description, category, price, quantity, version, created_at, updated_at`

// SQLProductStore implements ProductStore on PostgreSQL or MySQL. Queries are written
// with '?' placeholders and rebound for the active driver.
type SQLProductStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLProductStore(db *sqlx.DB) *SQLProductStore {
	return &SQLProductStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQLProductStore) Get(ctx context.Context, id string) (product.Product, error) {
	var p product.Product
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`SELECT `+productColumns+` FROM products WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return product.Product{}, product.ErrNotFound
	}
	if err != nil {
		return product.Product{}, unavailable("get product", err)
	}
	return p, nil
}

func (s *SQLProductStore) List(ctx context.Context) ([]product.Product, error) {
	products := []product.Product{}
	err := s.db.SelectContext(ctx, &products, `SELECT `+productColumns+` FROM products ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, unavailable("list products", err)
	}
	return products, nil
}

func (s *SQLProductStore) Create(ctx context.Context, p product.Product) (product.Product, error) {
	if err := p.Validate(); err != nil {
		return product.Product{}, err
	}

	now := s.now()
	p.ID = uuid.New().String()
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.Name, p.Description, p.Category, p.Price, p.Quantity, p.Version, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return product.Product{}, unavailable("insert product", err)
	}
	return p, nil
}

func (s *SQLProductStore) UpdateDetails(ctx context.Context, id string, d product.Details) (product.Product, error) {
	if err := d.Validate(); err != nil {
		return product.Product{}, err
	}

	p := product.Product{}.WithDetails(d)
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE products
		SET name = ?, description = ?, category = ?, price = ?, version = version + 1, updated_at = ?
		WHERE id = ?`),
		p.Name, p.Description, p.Category, p.Price, s.now(), id,
	)
	if err != nil {
		return product.Product{}, unavailable("update product", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return product.Product{}, product.ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *SQLProductStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM products WHERE id = ?`), id)
	if err != nil {
		return unavailable("delete product", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return product.ErrNotFound
	}
	return nil
}

func (s *SQLProductStore) CompareAndSwapQuantity(ctx context.Context, id string, expected, next int) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE products
		SET quantity = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND quantity = ?`),
		next, s.now(), id, expected,
	)
	if err != nil {
		return false, unavailable("swap quantity", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, unavailable("swap quantity", err)
	}
	if rows == 1 {
		return true, nil
	}

	// Zero rows: either the quantity moved or the product is gone.
	var exists int
	err = s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT 1 FROM products WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, product.ErrNotFound
	}
	if err != nil {
		return false, unavailable("swap quantity", err)
	}
	return false, nil
}
