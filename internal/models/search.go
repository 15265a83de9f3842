package models

import "time"

// SearchConfig representa uma busca salva que é executada periodicamente.
// Todos os campos opcionais têm um valor vazio definido: string vazia,
// slice vazio ou 0 (preço não limitado).
type SearchConfig struct {
	ID         int64
	Term       string
	Brand      string
	MinPrice   float64 // 0 = sem limite inferior
	MaxPrice   float64 // 0 = sem limite superior
	Sizes      []string
	Conditions []string
	Colors     []string
	Categories []string
	MaxPages   int
	MaxItems   int
	LastRun    time.Time // zero = nunca executada
	CreatedAt  time.Time
}

// Limites padrão de paginação para buscas novas
const (
	DefaultMaxPages = 3
	DefaultMaxItems = 60
)

// Normalize garante limites de paginação válidos
func (s *SearchConfig) Normalize() {
	if s.MaxPages <= 0 {
		s.MaxPages = DefaultMaxPages
	}
	if s.MaxItems <= 0 {
		s.MaxItems = DefaultMaxItems
	}
	if s.MinPrice < 0 {
		s.MinPrice = 0
	}
	if s.MaxPrice < 0 {
		s.MaxPrice = 0
	}
}

// Due indica se a busca deve ser executada novamente
func (s SearchConfig) Due(now time.Time, interval time.Duration) bool {
	if s.LastRun.IsZero() {
		return true
	}
	return now.Sub(s.LastRun) >= interval
}
