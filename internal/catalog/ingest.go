package catalog

import (
	"context"
	"log"
	"time"

	"bot-vinted/internal/database"
	"bot-vinted/internal/models"
)

// MaterialityThreshold é a variação mínima (exclusiva) para registrar mudança de preço
const MaterialityThreshold = 0.5

// Store é o catálogo persistido usado pela ingestão
type Store interface {
	UpsertListing(ctx context.Context, searchID int64, raw models.RawListing, threshold float64, now time.Time) (database.UpsertResult, error)
}

// Event é um anúncio criado ou com preço alterado nesta ingestão,
// elegível para avaliação de alertas
type Event struct {
	Listing       models.Listing
	HistoryID     int64
	Outcome       database.Outcome
	PreviousPrice float64
}

// IngestResult resume uma ingestão
type IngestResult struct {
	New       int
	Updated   int
	Unchanged int
	Skipped   int // URLs repetidas dentro do mesmo lote
	Errors    int
	Eligible  []Event
}

// Engine grava anúncios no catálogo, um por transação
type Engine struct {
	store Store
	now   func() time.Time
}

// NewEngine cria o motor de ingestão
func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Ingest grava os anúncios na ordem recebida. Cada URL é processada uma
// única vez por lote; falhas de um anúncio não interrompem os demais.
func (e *Engine) Ingest(ctx context.Context, search models.SearchConfig, listings []models.RawListing) IngestResult {
	var result IngestResult
	seen := make(map[string]bool, len(listings))

	for _, raw := range listings {
		if raw.URL == "" {
			result.Errors++
			continue
		}
		if seen[raw.URL] {
			result.Skipped++
			continue
		}
		seen[raw.URL] = true

		res, err := e.store.UpsertListing(ctx, search.ID, raw, MaterialityThreshold, e.now())
		if err != nil {
			log.Printf("[ingest] erro ao gravar %s: %v", raw.URL, err)
			result.Errors++
			continue
		}

		switch res.Outcome {
		case database.Created:
			result.New++
			if raw.LowConfidence {
				continue
			}
		case database.Updated:
			result.Updated++
			log.Printf("[ingest] preço alterado %s: %.2f -> %.2f", raw.URL, res.PreviousPrice, res.Listing.Price)
		default:
			result.Unchanged++
			continue
		}

		result.Eligible = append(result.Eligible, Event{
			Listing:       res.Listing,
			HistoryID:     res.HistoryID,
			Outcome:       res.Outcome,
			PreviousPrice: res.PreviousPrice,
		})
	}
	return result
}
