package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/askcart-ai/assistant/internal/model"
)

// SQLiteCatalog reads products from the products table of a SQLite database.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog prepares the products table on db.
func NewSQLiteCatalog(db *sql.DB) (*SQLiteCatalog, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		price INTEGER NOT NULL,
		image_url TEXT,
		category TEXT,
		specifications TEXT,
		tags TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_products_created ON products(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize products schema: %w", err)
	}
	c := &SQLiteCatalog{db: db}
	if err := c.migrateSearchColumns(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// SQLite lower() only folds ASCII, so folded copies of name and description
// are kept alongside the originals and searched instead.
func (c *SQLiteCatalog) migrateSearchColumns(ctx context.Context) error {
	for _, col := range []string{"search_name", "search_description"} {
		_, err := c.db.ExecContext(ctx, `ALTER TABLE products ADD COLUMN `+col+` TEXT`)
		if err != nil && !strings.Contains(err.Error(), "duplicate column") {
			return fmt.Errorf("failed to add %s column: %w", col, err)
		}
	}

	rows, err := c.db.QueryContext(ctx, `SELECT id, name, COALESCE(description, '') FROM products WHERE search_name IS NULL`)
	if err != nil {
		return fmt.Errorf("failed to read unfolded products: %w", err)
	}
	type unfolded struct{ id, name, description string }
	var pending []unfolded
	for rows.Next() {
		var u unfolded
		if err := rows.Scan(&u.id, &u.name, &u.description); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan product: %w", err)
		}
		pending = append(pending, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, u := range pending {
		if _, err := c.db.ExecContext(ctx, `UPDATE products SET search_name = ?, search_description = ? WHERE id = ?`,
			strings.ToLower(u.name), strings.ToLower(u.description), u.id); err != nil {
			return fmt.Errorf("failed to fold product %s: %w", u.id, err)
		}
	}
	return nil
}

const productColumns = `id, name, COALESCE(description, ''), price, COALESCE(image_url, ''),
	COALESCE(category, ''), specifications, tags, created_at`

func scanProduct(row interface{ Scan(...any) error }) (*model.Product, error) {
	var p model.Product
	var specs, tags sql.NullString
	var createdAt int64
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.ImageURL, &p.Category, &specs, &tags, &createdAt); err != nil {
		return nil, err
	}
	if specs.Valid && specs.String != "" {
		p.Specifications = json.RawMessage(specs.String)
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &p.Tags); err != nil {
			return nil, fmt.Errorf("product %s tags: %w", p.ID, err)
		}
	}
	p.CreatedAt = time.Unix(0, createdAt).UTC()
	return &p, nil
}

func (c *SQLiteCatalog) query(ctx context.Context, q string, args ...any) ([]model.Product, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// List implements Accessor. Newest products come first.
func (c *SQLiteCatalog) List(ctx context.Context) ([]model.Product, error) {
	return c.query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC, id`)
}

// Get implements Accessor.
func (c *SQLiteCatalog) Get(ctx context.Context, id string) (*model.Product, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// Search implements Accessor.
func (c *SQLiteCatalog) Search(ctx context.Context, term string) ([]model.Product, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("search term required: %w", model.ErrInvalidArgument)
	}
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	return c.query(ctx, `SELECT `+productColumns+` FROM products
		WHERE search_name LIKE ? ESCAPE '\' OR search_description LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, id
		LIMIT ?`, pattern, pattern, MaxSearchResults)
}

// Upsert inserts or replaces products, assigning ids where missing.
func (c *SQLiteCatalog) Upsert(ctx context.Context, products []model.Product) ([]model.Product, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	out := make([]model.Product, 0, len(products))
	for _, p := range products {
		if p.ID == "" {
			p.ID = uuid.Must(uuid.NewV7()).String()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
		var specs, tags sql.NullString
		if len(p.Specifications) > 0 {
			specs = sql.NullString{String: string(p.Specifications), Valid: true}
		}
		if len(p.Tags) > 0 {
			data, err := json.Marshal(p.Tags)
			if err != nil {
				return nil, fmt.Errorf("product %s tags: %w", p.ID, err)
			}
			tags = sql.NullString{String: string(data), Valid: true}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, name, description, price, image_url, category, specifications, tags, created_at,
				search_name, search_description)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				search_name = excluded.search_name,
				search_description = excluded.search_description,
				price = excluded.price,
				image_url = excluded.image_url,
				category = excluded.category,
				specifications = excluded.specifications,
				tags = excluded.tags`,
			p.ID, p.Name, p.Description, p.Price, p.ImageURL, p.Category, specs, tags, p.CreatedAt.UnixNano(),
			strings.ToLower(p.Name), strings.ToLower(p.Description))
		if err != nil {
			return nil, fmt.Errorf("failed to upsert product %q: %w", p.Name, err)
		}
		out = append(out, p)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit products: %w", err)
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
