package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"bot-vinted/internal/models"
)

// Outcome é o resultado de um upsert de anúncio
type Outcome int

const (
	Unchanged Outcome = iota
	Created
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// UpsertResult descreve o que aconteceu com um anúncio no upsert
type UpsertResult struct {
	Outcome       Outcome
	Listing       models.Listing
	HistoryID     int64 // entrada de histórico criada neste evento (0 se Unchanged)
	PreviousPrice float64
}

const selectListing = `SELECT id, search_config_id, url, title, brand, price, size, image_url, state,
	sold_reason, discovered_at, sold_at FROM listings`

func scanListing(row rowScanner) (models.Listing, error) {
	var l models.Listing
	var title, brand, size, imageURL, soldReason sql.NullString
	var state string
	var soldAt sql.NullTime

	err := row.Scan(&l.ID, &l.SearchID, &l.URL, &title, &brand, &l.Price, &size, &imageURL, &state,
		&soldReason, &l.DiscoveredAt, &soldAt)
	if err != nil {
		return l, err
	}
	l.Title = title.String
	l.Brand = brand.String
	l.Size = size.String
	l.ImageURL = imageURL.String
	l.State = models.State(state)
	l.SoldReason = soldReason.String
	if soldAt.Valid {
		l.SoldAt = soldAt.Time
	}
	return l, nil
}

// UpsertListing cria ou atualiza um anúncio pela URL numa única transação curta.
// Um anúncio novo gera uma entrada de histórico; um anúncio existente só é
// alterado quando o preço muda mais que threshold. Anúncios de baixa confiança
// nunca sobrescrevem um preço já gravado.
func (db *DB) UpsertListing(ctx context.Context, searchID int64, raw models.RawListing, threshold float64, now time.Time) (UpsertResult, error) {
	var result UpsertResult
	now = now.UTC()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("erro ao abrir transação: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanListing(tx.QueryRowContext(ctx, selectListing+" WHERE url = ?", raw.URL))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO listings (search_config_id, url, title, brand, price, size, image_url, state, discovered_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			searchID, raw.URL, raw.Title, raw.Brand, raw.Price, raw.Size, raw.ImageURL, models.StateActive, now,
		)
		if err != nil {
			return result, fmt.Errorf("erro ao inserir anúncio: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return result, err
		}
		historyID, err := insertHistory(ctx, tx, id, raw.Price, now)
		if err != nil {
			return result, err
		}

		result = UpsertResult{
			Outcome:   Created,
			HistoryID: historyID,
			Listing: models.Listing{
				ID:           id,
				SearchID:     searchID,
				URL:          raw.URL,
				Title:        raw.Title,
				Brand:        raw.Brand,
				Price:        raw.Price,
				Size:         raw.Size,
				ImageURL:     raw.ImageURL,
				State:        models.StateActive,
				DiscoveredAt: now,
			},
		}
	case err != nil:
		return result, fmt.Errorf("erro ao buscar anúncio: %w", err)
	default:
		result.Listing = existing
		result.PreviousPrice = existing.Price
		if raw.LowConfidence || math.Abs(raw.Price-existing.Price) <= threshold {
			return result, nil
		}

		if _, err := tx.ExecContext(ctx, "UPDATE listings SET price = ? WHERE id = ?", raw.Price, existing.ID); err != nil {
			return result, fmt.Errorf("erro ao atualizar preço: %w", err)
		}
		historyID, err := insertHistory(ctx, tx, existing.ID, raw.Price, now)
		if err != nil {
			return result, err
		}
		result.Outcome = Updated
		result.HistoryID = historyID
		result.Listing.Price = raw.Price
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("erro ao confirmar transação: %w", err)
	}
	return result, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, listingID int64, price float64, at time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO price_history (listing_id, price, recorded_at) VALUES (?, ?, ?)",
		listingID, price, at,
	)
	if err != nil {
		return 0, fmt.Errorf("erro ao inserir histórico: %w", err)
	}
	return res.LastInsertId()
}

// GetListingByURL retorna um anúncio pela URL canônica
func (db *DB) GetListingByURL(ctx context.Context, url string) (models.Listing, error) {
	l, err := scanListing(db.conn.QueryRowContext(ctx, selectListing+" WHERE url = ?", url))
	if errors.Is(err, sql.ErrNoRows) {
		return l, ErrNotFound
	}
	return l, err
}

// ListingsBySearch retorna os anúncios de uma busca, do mais novo para o mais antigo.
// state vazio retorna todos.
func (db *DB) ListingsBySearch(ctx context.Context, searchID int64, state models.State) ([]models.Listing, error) {
	query := selectListing + " WHERE search_config_id = ?"
	args := []any{searchID}
	if state != "" {
		query += " AND state = ?"
		args = append(args, state)
	}
	query += " ORDER BY discovered_at DESC, id DESC"
	return db.queryListings(ctx, query, args...)
}

// ActiveForReconcile retorna até limit anúncios ativos, os descobertos mais recentemente primeiro
func (db *DB) ActiveForReconcile(ctx context.Context, limit int) ([]models.Listing, error) {
	return db.queryListings(ctx,
		selectListing+" WHERE state = ? ORDER BY discovered_at DESC, id DESC LIMIT ?",
		models.StateActive, limit,
	)
}

func (db *DB) queryListings(ctx context.Context, query string, args ...any) ([]models.Listing, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// MarkSold passa um anúncio ativo para vendido. A transição é única:
// retorna false se o anúncio já não estava ativo. soldAt só é gravado
// quando reason é models.SoldReasonSold.
func (db *DB) MarkSold(ctx context.Context, id int64, reason string, at time.Time) (bool, error) {
	var soldAt any
	if reason == models.SoldReasonSold {
		soldAt = at.UTC()
	}
	res, err := db.conn.ExecContext(ctx,
		"UPDATE listings SET state = ?, sold_reason = ?, sold_at = ? WHERE id = ? AND state = ?",
		models.StateSold, reason, soldAt, id, models.StateActive,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ScopePrices retorna os preços conhecidos (> 0) de uma busca, dos anúncios
// mais recentes primeiro, limitados a window quando window > 0
func (db *DB) ScopePrices(ctx context.Context, searchID int64, window int) ([]float64, error) {
	query := "SELECT price FROM listings WHERE search_config_id = ? AND price > 0 ORDER BY discovered_at DESC, id DESC"
	args := []any{searchID}
	if window > 0 {
		query += " LIMIT ?"
		args = append(args, window)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prices := []float64{}
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// PriceHistory retorna o histórico de um anúncio em ordem cronológica
func (db *DB) PriceHistory(ctx context.Context, listingID int64) ([]models.PriceHistory, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, listing_id, price, recorded_at FROM price_history WHERE listing_id = ? ORDER BY id",
		listingID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []models.PriceHistory
	for rows.Next() {
		var h models.PriceHistory
		if err := rows.Scan(&h.ID, &h.ListingID, &h.Price, &h.RecordedAt); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// CountListings retorna o total de anúncios no catálogo
func (db *DB) CountListings(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM listings").Scan(&n)
	return n, err
}
