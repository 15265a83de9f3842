package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Chaves da tabela settings
const (
	SettingScanIntervalHours  = "scan_interval_hours"
	SettingAutoScanEnabled    = "auto_scan_enabled"
	SettingTelegramChatID     = "telegram_chat_id"
	SettingReconcileBatchSize = "reconcile_batch_size"
	SettingBaselineWindow     = "baseline_window"
	SettingMaxSearches        = "max_searches"
	SettingZThreshold         = "z_threshold"
)

// Settings é a visão tipada da tabela settings, carregada uma vez por ciclo
type Settings struct {
	ScanInterval       time.Duration
	AutoScanEnabled    bool
	TelegramChatID     int64
	ReconcileBatchSize int
	BaselineWindow     int // 0 = todos os preços da busca
	MaxSearches        int
	ZThreshold         float64
}

// DefaultSettings retorna os valores usados quando a chave não existe
func DefaultSettings() Settings {
	return Settings{
		ScanInterval:       24 * time.Hour,
		AutoScanEnabled:    true,
		ReconcileBatchSize: 50,
		BaselineWindow:     0,
		MaxSearches:        15,
		ZThreshold:         -1.5,
	}
}

// ErrUnknownSetting indica uma chave que não faz parte de Settings
var ErrUnknownSetting = errors.New("configuração desconhecida")

// SettingKeys lista as chaves reconhecidas, na ordem de exibição
var SettingKeys = []string{
	SettingScanIntervalHours,
	SettingAutoScanEnabled,
	SettingTelegramChatID,
	SettingReconcileBatchSize,
	SettingBaselineWindow,
	SettingMaxSearches,
	SettingZThreshold,
}

// Apply interpreta o valor bruto de uma chave e o aplica. Em caso de erro
// o campo não é alterado.
func (s *Settings) Apply(key, raw string) error {
	invalid := fmt.Errorf("valor inválido para %s: %q", key, raw)

	switch key {
	case SettingScanIntervalHours:
		v, err := parseFinite(raw)
		if err != nil || v <= 0 {
			return invalid
		}
		s.ScanInterval = time.Duration(v * float64(time.Hour))
	case SettingAutoScanEnabled:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return invalid
		}
		s.AutoScanEnabled = v
	case SettingTelegramChatID:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return invalid
		}
		s.TelegramChatID = v
	case SettingReconcileBatchSize:
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return invalid
		}
		s.ReconcileBatchSize = v
	case SettingBaselineWindow:
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return invalid
		}
		s.BaselineWindow = v
	case SettingMaxSearches:
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return invalid
		}
		s.MaxSearches = v
	case SettingZThreshold:
		v, err := parseFinite(raw)
		if err != nil || v >= 0 {
			return invalid
		}
		s.ZThreshold = v
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	return nil
}

// parseFinite rejeita NaN e infinitos, que strconv aceita
func parseFinite(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("valor não finito: %q", raw)
	}
	return v, nil
}

// Status de uma execução de busca
const (
	RunOK      = "ok"
	RunPartial = "partial"
	RunFailed  = "failed"
)

// RunSummary é o resumo de uma execução de busca
type RunSummary struct {
	ID         uuid.UUID
	SearchID   int64
	StartedAt  time.Time
	FinishedAt time.Time
	Pages      int
	Found      int
	New        int
	Updated    int
	Errors     int
	Alerts     int
	Status     string
	Error      string
}
