package database

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"bot-vinted/internal/models"
)

// GetSetting retorna o valor de uma chave
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

// SetSetting grava (ou substitui) o valor de uma chave
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// SeedSetting grava o valor apenas se a chave ainda não existir
func (db *DB) SeedSetting(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx, "INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)", key, value)
	return err
}

// AllSettings retorna todas as chaves gravadas
func (db *DB) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		values[k] = v
	}
	return values, rows.Err()
}

// LoadSettings monta a configuração tipada a partir da tabela settings.
// Valores ausentes ou inválidos ficam com o padrão.
func (db *DB) LoadSettings(ctx context.Context) (models.Settings, error) {
	s := models.DefaultSettings()

	values, err := db.AllSettings(ctx)
	if err != nil {
		return s, err
	}

	for key, raw := range values {
		if err := s.Apply(key, raw); err != nil && !errors.Is(err, models.ErrUnknownSetting) {
			log.Printf("[settings] %v, usando padrão", err)
		}
	}
	return s, nil
}
