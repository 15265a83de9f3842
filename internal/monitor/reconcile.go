package monitor

import (
	"context"
	"log"

	"bot-vinted/internal/models"
	"bot-vinted/internal/scraper"
)

// ReconcileResult resume uma rodada de verificação de anúncios vendidos
type ReconcileResult struct {
	Checked int
	Sold    int
	Removed int
	Active  int
	Errors  int
}

// Reconcile verifica os anúncios ativos mais recentes, até o tamanho de lote
// configurado, e marca como vendidos os que não estão mais disponíveis.
// Anúncios inacessíveis são marcados como removidos, sem data de venda.
func (m *Monitor) Reconcile(ctx context.Context) ReconcileResult {
	var res ReconcileResult
	settings := m.Settings(ctx)

	listings, err := m.db.ActiveForReconcile(ctx, settings.ReconcileBatchSize)
	if err != nil {
		log.Printf("[reconcile] erro ao carregar anúncios ativos: %v", err)
		res.Errors++
		return res
	}

	for _, l := range listings {
		if ctx.Err() != nil {
			log.Printf("[reconcile] interrompido após %d de %d anúncios", res.Checked, len(listings))
			break
		}
		res.Checked++

		var reason string
		switch m.prober.Probe(ctx, l.URL) {
		case scraper.ProbeSold:
			reason = models.SoldReasonSold
		case scraper.ProbeUnreachable:
			reason = models.SoldReasonRemoved
		default:
			res.Active++
			continue
		}

		changed, err := m.db.MarkSold(ctx, l.ID, reason, m.now())
		if err != nil {
			log.Printf("[reconcile] erro ao marcar anúncio %d: %v", l.ID, err)
			res.Errors++
			continue
		}
		if !changed {
			continue
		}
		if reason == models.SoldReasonSold {
			res.Sold++
		} else {
			res.Removed++
		}
		log.Printf("[reconcile] anúncio %d marcado como %s: %s", l.ID, reason, l.URL)
	}

	log.Printf("[reconcile] %d verificados, %d vendidos, %d removidos, %d ativos", res.Checked, res.Sold, res.Removed, res.Active)
	return res
}
