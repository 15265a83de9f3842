package models

import (
	"strings"
	"time"
)

// AlertRule é uma condição de notificação configurada pelo usuário.
// Campos zerados não restringem nada.
type AlertRule struct {
	ID          int64
	Name        string
	Brands      []string
	MaxPrice    float64 // 0 = sem teto
	MinDiscount float64 // percentual abaixo da média (0-100), 0 = ignorado
	MaxZ        float64 // z-score máximo (negativo), 0 = ignorado
	Active      bool
	CreatedAt   time.Time
}

// BrandList retorna as marcas no formato armazenado no banco
func (r AlertRule) BrandList() string {
	return strings.Join(r.Brands, ",")
}

// TriggerStatistical identifica o alerta estatístico (z-score)
const TriggerStatistical = "zscore"

// Alert é um alerta produzido para um anúncio em um evento de ingestão
type Alert struct {
	Trigger  string // "rule:<id>" ou TriggerStatistical
	RuleName string
	Listing  Listing
	Mean     float64
	ZScore   float64
}
