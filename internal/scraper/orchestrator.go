package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"bot-vinted/internal/models"
)

// ErrNoPages é retornado quando nem a primeira página pôde ser carregada
var ErrNoPages = errors.New("nenhuma página carregada")

// Motivos de parada da paginação
const (
	StopMaxPages   = "max_pages"
	StopMaxItems   = "max_items"
	StopNoNextPage = "no_next_page"
	StopFetchError = "fetch_error"
	StopCancelled  = "cancelled"
	StopConsumer   = "consumer"
)

// RunStats resume uma execução do orquestrador
type RunStats struct {
	Pages   int
	Yielded int
	Stop    string
	Err     error // erro que encerrou a paginação depois da primeira página
}

// OrchestratorConfig define timeout de página e o intervalo do atraso aleatório
type OrchestratorConfig struct {
	FetchTimeout time.Duration
	MinDelay     time.Duration
	MaxDelay     time.Duration
}

// Orchestrator percorre as páginas de uma busca até os limites configurados
type Orchestrator struct {
	fetcher   Fetcher
	builder   *QueryBuilder
	extractor *Extractor
	cfg       OrchestratorConfig

	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator cria um orquestrador
func NewOrchestrator(fetcher Fetcher, builder *QueryBuilder, extractor *Extractor, cfg OrchestratorConfig) *Orchestrator {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 60 * time.Second
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	return &Orchestrator{
		fetcher:   fetcher,
		builder:   builder,
		extractor: extractor,
		cfg:       cfg,
		sleep:     sleepCtx,
	}
}

// Run busca as páginas da busca e entrega cada anúncio a fn, sem repetir URL
// dentro da execução. fn retornando false encerra a execução.
// Só retorna erro quando a primeira página falha ou ctx já estava cancelado
// antes dela; qualquer outra condição de parada é normal e fica registrada
// em RunStats.Stop. O cancelamento só encerra a paginação entre páginas.
func (o *Orchestrator) Run(ctx context.Context, search models.SearchConfig, fn func(models.RawListing) bool) (RunStats, error) {
	var stats RunStats
	search.Normalize()

	spec := o.builder.Build(search)
	next := o.builder.URL(spec, 1)
	seen := make(map[string]bool)

	for page := 1; ; page++ {
		if page > search.MaxPages {
			stats.Stop = StopMaxPages
			return stats, nil
		}
		if stats.Yielded >= search.MaxItems {
			stats.Stop = StopMaxItems
			return stats, nil
		}

		if page == 1 && ctx.Err() != nil {
			stats.Stop = StopCancelled
			stats.Err = ctx.Err()
			return stats, fmt.Errorf("%w: %v", ErrNoPages, ctx.Err())
		}
		if page > 1 {
			if err := o.sleep(ctx, o.delay()); err != nil {
				stats.Stop = StopCancelled
				stats.Err = err
				return stats, nil
			}
		}

		parsed, err := o.fetchPage(ctx, next)
		if err != nil {
			if page == 1 {
				stats.Stop = StopFetchError
				stats.Err = err
				return stats, fmt.Errorf("%w: %v", ErrNoPages, err)
			}
			log.Printf("[scan] página %d falhou, encerrando paginação: %v", page, err)
			stats.Stop = StopFetchError
			stats.Err = err
			return stats, nil
		}
		stats.Pages++
		log.Printf("[scan] página %d: %d itens encontrados", page, parsed.Items)

		for raw := range parsed.Listings {
			if seen[raw.URL] {
				continue
			}
			seen[raw.URL] = true
			stats.Yielded++

			if !fn(raw) {
				stats.Stop = StopConsumer
				return stats, nil
			}
			if stats.Yielded >= search.MaxItems {
				stats.Stop = StopMaxItems
				return stats, nil
			}
		}

		if parsed.NextURL == "" {
			stats.Stop = StopNoNextPage
			return stats, nil
		}
		next = parsed.NextURL
	}
}

// fetchPage busca e interpreta uma página. Depois de iniciada, a busca só
// é interrompida pelo timeout configurado, não pelo cancelamento de ctx.
func (o *Orchestrator) fetchPage(ctx context.Context, url string) (*Page, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.FetchTimeout)
	defer cancel()

	content, err := o.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("erro ao buscar %s: %w", url, err)
	}
	return o.extractor.Parse(content)
}

// delay sorteia o intervalo entre páginas dentro de [MinDelay, MaxDelay]
func (o *Orchestrator) delay() time.Duration {
	span := o.cfg.MaxDelay - o.cfg.MinDelay
	if span <= 0 {
		return o.cfg.MinDelay
	}
	return o.cfg.MinDelay + time.Duration(rand.Int64N(int64(span)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
