package monitor

import (
	"context"
	"fmt"
	"sort"

	"bot-vinted/internal/analytics"
	"bot-vinted/internal/models"
)

// DealRatio é a fração da média abaixo da qual um anúncio ativo é uma oferta
const DealRatio = 0.8

// Deal é um anúncio ativo com preço bem abaixo da média da sua busca
type Deal struct {
	Listing  models.Listing
	Mean     float64
	Discount float64 // percentual abaixo da média
}

// Deals lista os anúncios ativos abaixo de DealRatio da média da busca,
// do maior desconto para o menor. searchID 0 considera todas as buscas;
// limit <= 0 retorna todos.
func (m *Monitor) Deals(ctx context.Context, searchID int64, limit int) ([]Deal, error) {
	settings := m.Settings(ctx)

	var searches []models.SearchConfig
	if searchID > 0 {
		s, err := m.db.GetSearch(ctx, searchID)
		if err != nil {
			return nil, err
		}
		searches = append(searches, s)
	} else {
		var err error
		searches, err = m.db.ListSearches(ctx)
		if err != nil {
			return nil, fmt.Errorf("erro ao listar buscas: %w", err)
		}
	}

	var deals []Deal
	for _, s := range searches {
		baseline, err := analytics.ForSearch(ctx, m.db, s.ID, settings.BaselineWindow)
		if err != nil {
			return nil, err
		}
		if baseline.Count == 0 || baseline.Mean <= 0 {
			continue
		}

		listings, err := m.db.ListingsBySearch(ctx, s.ID, models.StateActive)
		if err != nil {
			return nil, fmt.Errorf("erro ao listar anúncios da busca %d: %w", s.ID, err)
		}
		for _, l := range listings {
			if l.Price <= 0 || l.Price >= baseline.Mean*DealRatio {
				continue
			}
			discount, _ := baseline.Discount(l.Price)
			deals = append(deals, Deal{Listing: l, Mean: baseline.Mean, Discount: discount})
		}
	}

	sort.Slice(deals, func(i, j int) bool {
		return deals[i].Discount > deals[j].Discount
	})
	if limit > 0 && len(deals) > limit {
		deals = deals[:limit]
	}
	return deals, nil
}
