package database

import (
	"context"
	"database/sql"

	"bot-vinted/internal/models"

	"github.com/google/uuid"
)

// SaveRun grava o resumo de uma execução de busca
func (db *DB) SaveRun(ctx context.Context, r models.RunSummary) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO scan_runs (id, search_config_id, started_at, finished_at, pages, found, new_count,
			updated_count, error_count, alert_count, status, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.SearchID, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.Pages, r.Found, r.New,
		r.Updated, r.Errors, r.Alerts, r.Status, r.Error,
	)
	return err
}

// RecentRuns retorna as últimas execuções, da mais recente para a mais antiga
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, search_config_id, started_at, finished_at, pages, found, new_count, updated_count,
			error_count, alert_count, status, error FROM scan_runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.RunSummary
	for rows.Next() {
		var r models.RunSummary
		var id string
		var finishedAt sql.NullTime
		var errText sql.NullString
		if err := rows.Scan(&id, &r.SearchID, &r.StartedAt, &finishedAt, &r.Pages, &r.Found, &r.New,
			&r.Updated, &r.Errors, &r.Alerts, &r.Status, &errText); err != nil {
			return nil, err
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if finishedAt.Valid {
			r.FinishedAt = finishedAt.Time
		}
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
