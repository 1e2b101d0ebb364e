package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"laptopmcp/internal/model"
)

// SQLiteStore is the embedded MetadataStore backend. One file, WAL mode,
// keyword and price filters pushed into SQL.
type SQLiteStore struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return err
	}

	schema := `
CREATE TABLE IF NOT EXISTS laptops (
  id INTEGER PRIMARY KEY,
  product_id TEXT NOT NULL DEFAULT '',
  brand TEXT NOT NULL DEFAULT '',
  model TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  price REAL NOT NULL DEFAULT 0,
  original_price REAL NOT NULL DEFAULT 0,
  processor TEXT NOT NULL DEFAULT '',
  memory TEXT NOT NULL DEFAULT '',
  storage TEXT NOT NULL DEFAULT '',
  display TEXT NOT NULL DEFAULT '',
  condition TEXT NOT NULL DEFAULT '',
  seller_name TEXT NOT NULL DEFAULT '',
  seller_rating REAL NOT NULL DEFAULT 0,
  image_url TEXT NOT NULL DEFAULT '',
  product_url TEXT NOT NULL DEFAULT '',
  crawled_unix INTEGER NOT NULL DEFAULT 0,
  created_unix INTEGER NOT NULL DEFAULT 0,
  updated_unix INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS counters (
  name TEXT PRIMARY KEY,
  value INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_laptops_product_id ON laptops(product_id);
CREATE INDEX IF NOT EXISTS idx_laptops_brand ON laptops(brand);
CREATE INDEX IF NOT EXISTS idx_laptops_price ON laptops(price);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

const laptopColumns = `id, product_id, brand, model, title, description, price,
 original_price, processor, memory, storage, display, condition, seller_name,
 seller_rating, image_url, product_url, crawled_unix, created_unix, updated_unix`

func (s *SQLiteStore) Put(ctx context.Context, laptop model.Laptop) error {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(
		ctx,
		`INSERT INTO laptops(id, product_id, brand, model, title, description, price,
		   original_price, processor, memory, storage, display, condition, seller_name,
		   seller_rating, image_url, product_url, crawled_unix, created_unix, updated_unix)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   product_id=excluded.product_id,
		   brand=excluded.brand,
		   model=excluded.model,
		   title=excluded.title,
		   description=excluded.description,
		   price=excluded.price,
		   original_price=excluded.original_price,
		   processor=excluded.processor,
		   memory=excluded.memory,
		   storage=excluded.storage,
		   display=excluded.display,
		   condition=excluded.condition,
		   seller_name=excluded.seller_name,
		   seller_rating=excluded.seller_rating,
		   image_url=excluded.image_url,
		   product_url=excluded.product_url,
		   crawled_unix=excluded.crawled_unix,
		   created_unix=excluded.created_unix,
		   updated_unix=excluded.updated_unix`,
		laptop.ID,
		laptop.ProductID,
		laptop.Brand,
		laptop.Model,
		laptop.Title,
		laptop.Description,
		laptop.Price,
		laptop.OriginalPrice,
		laptop.Processor,
		laptop.Memory,
		laptop.Storage,
		laptop.Display,
		laptop.Condition,
		laptop.SellerName,
		laptop.SellerRating,
		laptop.ImageURL,
		laptop.ProductURL,
		unixOrZero(laptop.CrawledAt),
		unixOrZero(laptop.CreatedAt),
		unixOrZero(laptop.UpdatedAt),
	)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, id uint64) (model.Laptop, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return model.Laptop{}, err
	}

	row := db.QueryRowContext(ctx, `SELECT `+laptopColumns+` FROM laptops WHERE id = ?`, id)
	return scanLaptop(row)
}

func (s *SQLiteStore) GetByProductID(ctx context.Context, productID string) (model.Laptop, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return model.Laptop{}, err
	}

	row := db.QueryRowContext(ctx,
		`SELECT `+laptopColumns+` FROM laptops WHERE product_id = ? ORDER BY id LIMIT 1`,
		productID)
	return scanLaptop(row)
}

func (s *SQLiteStore) All(ctx context.Context) ([]model.Laptop, error) {
	return s.query(ctx, `SELECT `+laptopColumns+` FROM laptops ORDER BY id`)
}

func (s *SQLiteStore) ByBrand(ctx context.Context, brand string) ([]model.Laptop, error) {
	return s.query(ctx,
		`SELECT `+laptopColumns+` FROM laptops WHERE brand = ? COLLATE NOCASE ORDER BY id`,
		brand)
}

// ByKeyword matches a case-insensitive substring of brand, model, title or
// description. LIKE wildcards in the keyword are treated literally.
func (s *SQLiteStore) ByKeyword(ctx context.Context, keyword string) ([]model.Laptop, error) {
	pattern := "%" + escapeLike(keyword) + "%"
	return s.query(ctx,
		`SELECT `+laptopColumns+` FROM laptops
		 WHERE brand LIKE ? ESCAPE '\'
		    OR model LIKE ? ESCAPE '\'
		    OR title LIKE ? ESCAPE '\'
		    OR description LIKE ? ESCAPE '\'
		 ORDER BY id`,
		pattern, pattern, pattern, pattern)
}

func (s *SQLiteStore) ByPriceRange(ctx context.Context, minPrice, maxPrice float64) ([]model.Laptop, error) {
	return s.query(ctx,
		`SELECT `+laptopColumns+` FROM laptops WHERE price >= ? AND price <= ? ORDER BY id`,
		minPrice, maxPrice)
}

func (s *SQLiteStore) Delete(ctx context.Context, id uint64) error {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM laptops WHERE id = ?`, id)
	return err
}

// DeleteAll removes every laptop but keeps the id counter, so ids are never
// reused across a reset.
func (s *SQLiteStore) DeleteAll(ctx context.Context) error {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM laptops`)
	return err
}

func (s *SQLiteStore) NextID(ctx context.Context) (uint64, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return 0, err
	}

	var value uint64
	err = db.QueryRowContext(ctx,
		`INSERT INTO counters(name, value) VALUES('laptop:id:counter', 1)
		 ON CONFLICT(name) DO UPDATE SET value = value + 1
		 RETURNING value`).Scan(&value)
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) ensureDB(ctx context.Context) (*sql.DB, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, errors.New("sqlite db not initialized")
	}
	return s.db, nil
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...interface{}) ([]model.Laptop, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	laptops := make([]model.Laptop, 0)
	for rows.Next() {
		laptop, err := scanLaptop(rows)
		if err != nil {
			return nil, err
		}
		laptops = append(laptops, laptop)
	}
	return laptops, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLaptop(row rowScanner) (model.Laptop, error) {
	var l model.Laptop
	var crawled, created, updated int64
	err := row.Scan(
		&l.ID,
		&l.ProductID,
		&l.Brand,
		&l.Model,
		&l.Title,
		&l.Description,
		&l.Price,
		&l.OriginalPrice,
		&l.Processor,
		&l.Memory,
		&l.Storage,
		&l.Display,
		&l.Condition,
		&l.SellerName,
		&l.SellerRating,
		&l.ImageURL,
		&l.ProductURL,
		&crawled,
		&created,
		&updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Laptop{}, model.ErrNotFound
	}
	if err != nil {
		return model.Laptop{}, err
	}
	l.CrawledAt = timeOrZero(crawled)
	l.CreatedAt = timeOrZero(created)
	l.UpdatedAt = timeOrZero(updated)
	return l, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(unix int64) time.Time {
	if unix <= 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
