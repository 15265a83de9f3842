package models

import "time"

// State é o estado do ciclo de vida de um anúncio
type State string

const (
	StateActive State = "active"
	StateSold   State = "sold"
)

// Motivos gravados quando um anúncio passa para StateSold
const (
	SoldReasonSold    = "sold"
	SoldReasonRemoved = "removed"
)

// RawListing é um anúncio extraído de uma página de resultados, ainda não persistido
type RawListing struct {
	URL           string
	Title         string
	Brand         string
	Price         float64
	Size          string
	ImageURL      string
	LowConfidence bool // preço não pôde ser interpretado
}

// Listing representa um anúncio no catálogo local. A URL é a chave única.
type Listing struct {
	ID           int64
	SearchID     int64
	URL          string
	Title        string
	Brand        string
	Price        float64
	Size         string
	ImageURL     string
	State        State
	SoldReason   string
	DiscoveredAt time.Time
	SoldAt       time.Time // zero enquanto ativo ou quando removido
}

// PriceHistory é uma entrada do histórico de preços de um anúncio
type PriceHistory struct {
	ID         int64
	ListingID  int64
	Price      float64
	RecordedAt time.Time
}
