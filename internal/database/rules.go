package database

import (
	"context"
	"database/sql"
	"time"

	"bot-vinted/internal/models"
)

// CreateRule adiciona uma regra de alerta
func (db *DB) CreateRule(ctx context.Context, r models.AlertRule) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		"INSERT INTO alert_rules (name, brands, max_price, min_discount, max_z, active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		r.Name, r.BrandList(), r.MaxPrice, r.MinDiscount, r.MaxZ, r.Active, time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListRules retorna as regras de alerta; activeOnly filtra as desativadas
func (db *DB) ListRules(ctx context.Context, activeOnly bool) ([]models.AlertRule, error) {
	query := "SELECT id, name, brands, max_price, min_discount, max_z, active, created_at FROM alert_rules"
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY id"

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.AlertRule
	for rows.Next() {
		var r models.AlertRule
		var brands sql.NullString
		var maxPrice, minDiscount, maxZ sql.NullFloat64
		var createdAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.Name, &brands, &maxPrice, &minDiscount, &maxZ, &r.Active, &createdAt); err != nil {
			return nil, err
		}
		r.Brands = splitList(brands)
		r.MaxPrice = maxPrice.Float64
		r.MinDiscount = minDiscount.Float64
		r.MaxZ = maxZ.Float64
		if createdAt.Valid {
			r.CreatedAt = createdAt.Time
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// SetRuleActive ativa ou desativa uma regra
func (db *DB) SetRuleActive(ctx context.Context, id int64, active bool) error {
	res, err := db.conn.ExecContext(ctx, "UPDATE alert_rules SET active = ? WHERE id = ?", active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRule remove uma regra de alerta
func (db *DB) DeleteRule(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM alert_rules WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordAlert registra o envio de um alerta para um evento de histórico.
// Retorna false se o mesmo alerta já foi registrado para esse evento.
func (db *DB) RecordAlert(ctx context.Context, historyID int64, trigger string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		"INSERT OR IGNORE INTO alert_events (history_id, trigger_key, sent_at) VALUES (?, ?, ?)",
		historyID, trigger, time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
