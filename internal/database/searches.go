package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bot-vinted/internal/models"
)

const selectSearch = `SELECT id, term, brand, min_price, max_price, sizes, condition, colors, categories,
	max_pages, max_items, last_run, created_at FROM search_configs`

func scanSearch(row rowScanner) (models.SearchConfig, error) {
	var s models.SearchConfig
	var brand, sizes, conditions, colors, categories sql.NullString
	var minPrice, maxPrice sql.NullFloat64
	var maxPages, maxItems sql.NullInt64
	var lastRun, createdAt sql.NullTime

	err := row.Scan(&s.ID, &s.Term, &brand, &minPrice, &maxPrice, &sizes, &conditions, &colors, &categories,
		&maxPages, &maxItems, &lastRun, &createdAt)
	if err != nil {
		return s, err
	}

	s.Brand = brand.String
	s.MinPrice = minPrice.Float64
	s.MaxPrice = maxPrice.Float64
	s.Sizes = splitList(sizes)
	s.Conditions = splitList(conditions)
	s.Colors = splitList(colors)
	s.Categories = splitList(categories)
	s.MaxPages = int(maxPages.Int64)
	s.MaxItems = int(maxItems.Int64)
	if lastRun.Valid {
		s.LastRun = lastRun.Time
	}
	if createdAt.Valid {
		s.CreatedAt = createdAt.Time
	}
	s.Normalize()
	return s, nil
}

// CreateSearch salva uma nova busca, respeitando o limite de buscas configurado
func (db *DB) CreateSearch(ctx context.Context, s models.SearchConfig, maxSearches int) (int64, error) {
	s.Normalize()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if maxSearches > 0 {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM search_configs").Scan(&count); err != nil {
			return 0, err
		}
		if count >= maxSearches {
			return 0, fmt.Errorf("%w (%d)", ErrSearchLimit, maxSearches)
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO search_configs (term, brand, min_price, max_price, sizes, condition, colors, categories,
			max_pages, max_items, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Term, s.Brand, s.MinPrice, s.MaxPrice, joinList(s.Sizes), joinList(s.Conditions),
		joinList(s.Colors), joinList(s.Categories), s.MaxPages, s.MaxItems, time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// GetSearch retorna uma busca pelo ID
func (db *DB) GetSearch(ctx context.Context, id int64) (models.SearchConfig, error) {
	s, err := scanSearch(db.conn.QueryRowContext(ctx, selectSearch+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	return s, err
}

// ListSearches retorna todas as buscas salvas
func (db *DB) ListSearches(ctx context.Context) ([]models.SearchConfig, error) {
	rows, err := db.conn.QueryContext(ctx, selectSearch+" ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var searches []models.SearchConfig
	for rows.Next() {
		s, err := scanSearch(rows)
		if err != nil {
			return nil, err
		}
		searches = append(searches, s)
	}
	return searches, rows.Err()
}

// DeleteSearch remove a busca e, em cascata, os anúncios e históricos dela
func (db *DB) DeleteSearch(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM search_configs WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchSearch grava o horário da última execução
func (db *DB) TouchSearch(ctx context.Context, id int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, "UPDATE search_configs SET last_run = ? WHERE id = ?", at.UTC(), id)
	return err
}
