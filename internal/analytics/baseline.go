package analytics

import (
	"context"
	"fmt"
	"math"
)

// Baseline é a média e o desvio padrão dos preços conhecidos de uma busca
type Baseline struct {
	Mean   float64
	StdDev float64
	Count  int
}

// Compute calcula a média e o desvio padrão populacional.
// Sem amostras retorna (0, 0); com uma amostra retorna (preço, 0).
func Compute(prices []float64) Baseline {
	n := len(prices)
	if n == 0 {
		return Baseline{}
	}

	var sum float64
	for _, p := range prices {
		sum += p
	}
	mean := sum / float64(n)

	var sq float64
	for _, p := range prices {
		d := p - mean
		sq += d * d
	}

	return Baseline{
		Mean:   mean,
		StdDev: math.Sqrt(sq / float64(n)),
		Count:  n,
	}
}

// ZScore retorna a distância do preço até a média em desvios padrão.
// Com desvio zero o divisor é 1. ok=false quando a média não é positiva.
func (b Baseline) ZScore(price float64) (z float64, ok bool) {
	if b.Mean <= 0 {
		return 0, false
	}
	div := b.StdDev
	if div <= 0 {
		div = 1
	}
	return (price - b.Mean) / div, true
}

// Discount retorna quanto o preço está abaixo da média, em percentual.
// ok=false quando a média não é positiva.
func (b Baseline) Discount(price float64) (pct float64, ok bool) {
	if b.Mean <= 0 {
		return 0, false
	}
	return (b.Mean - price) / b.Mean * 100, true
}

// PriceSource fornece os preços conhecidos de uma busca
type PriceSource interface {
	ScopePrices(ctx context.Context, searchID int64, window int) ([]float64, error)
}

// ForSearch calcula a baseline de uma busca a partir do catálogo,
// limitada aos window anúncios mais recentes quando window > 0
func ForSearch(ctx context.Context, src PriceSource, searchID int64, window int) (Baseline, error) {
	prices, err := src.ScopePrices(ctx, searchID, window)
	if err != nil {
		return Baseline{}, fmt.Errorf("erro ao carregar preços da busca %d: %w", searchID, err)
	}
	return Compute(prices), nil
}
