package alerts

import (
	"context"
	"fmt"
	"log"
	"strings"

	"bot-vinted/internal/analytics"
	"bot-vinted/internal/models"
	"bot-vinted/internal/normalize"
)

// DefaultZThreshold é o z-score a partir do qual um preço é considerado oferta
const DefaultZThreshold = -1.5

// Notifier envia uma mensagem de texto para o canal de notificação
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Ledger registra alertas enviados por evento de ingestão
type Ledger interface {
	RecordAlert(ctx context.Context, historyID int64, trigger string) (bool, error)
}

// Engine avalia regras e a heurística estatística e despacha os alertas
type Engine struct {
	notifier   Notifier
	ledger     Ledger
	zThreshold float64
}

// NewEngine cria o motor de alertas. zThreshold >= 0 usa o padrão.
func NewEngine(notifier Notifier, ledger Ledger, zThreshold float64) *Engine {
	if zThreshold >= 0 {
		zThreshold = DefaultZThreshold
	}
	return &Engine{
		notifier:   notifier,
		ledger:     ledger,
		zThreshold: zThreshold,
	}
}

// Evaluate retorna os alertas disparados por um anúncio: um por regra ativa
// satisfeita e, se o z-score ficar no limite ou abaixo dele, um alerta estatístico.
func Evaluate(listing models.Listing, baseline analytics.Baseline, rules []models.AlertRule, zThreshold float64) []models.Alert {
	if listing.Price <= 0 {
		return nil
	}

	z, hasZ := baseline.ZScore(listing.Price)
	var alerts []models.Alert

	for _, rule := range rules {
		if !rule.Active || !Matches(rule, listing, baseline) {
			continue
		}
		alerts = append(alerts, models.Alert{
			Trigger:  fmt.Sprintf("rule:%d", rule.ID),
			RuleName: rule.Name,
			Listing:  listing,
			Mean:     baseline.Mean,
			ZScore:   z,
		})
	}

	if hasZ && z <= zThreshold {
		alerts = append(alerts, models.Alert{
			Trigger: models.TriggerStatistical,
			Listing: listing,
			Mean:    baseline.Mean,
			ZScore:  z,
		})
	}
	return alerts
}

// Matches verifica se o anúncio satisfaz todas as restrições preenchidas da regra
func Matches(rule models.AlertRule, listing models.Listing, baseline analytics.Baseline) bool {
	if len(rule.Brands) > 0 && !brandAllowed(rule.Brands, listing.Brand) {
		return false
	}
	if rule.MaxPrice > 0 && listing.Price > rule.MaxPrice {
		return false
	}
	if rule.MinDiscount > 0 {
		pct, ok := baseline.Discount(listing.Price)
		if !ok || pct < rule.MinDiscount {
			return false
		}
	}
	if rule.MaxZ < 0 {
		z, ok := baseline.ZScore(listing.Price)
		if !ok || z > rule.MaxZ {
			return false
		}
	}
	return true
}

func brandAllowed(brands []string, brand string) bool {
	for _, b := range brands {
		if normalize.Equal(b, brand) {
			return true
		}
	}
	return false
}

// Evaluate aplica as regras com o limite de z-score do motor
func (e *Engine) Evaluate(listing models.Listing, baseline analytics.Baseline, rules []models.AlertRule) []models.Alert {
	return Evaluate(listing, baseline, rules, e.zThreshold)
}

// Dispatch envia cada alerta no máximo uma vez para o evento historyID.
// Falhas são registradas no log e não são repetidas. Retorna quantos foram enviados.
func (e *Engine) Dispatch(ctx context.Context, historyID int64, alerts []models.Alert) int {
	sent := 0
	for _, a := range alerts {
		first, err := e.ledger.RecordAlert(ctx, historyID, a.Trigger)
		if err != nil {
			log.Printf("[alert] erro ao registrar alerta %s do anúncio %d: %v", a.Trigger, a.Listing.ID, err)
			continue
		}
		if !first {
			continue
		}

		if err := e.notifier.Send(ctx, Format(a)); err != nil {
			log.Printf("[alert] erro ao enviar alerta %s do anúncio %d: %v", a.Trigger, a.Listing.ID, err)
			continue
		}
		log.Printf("[alert] alerta %s enviado para anúncio %d", a.Trigger, a.Listing.ID)
		sent++
	}
	return sent
}

// Format monta o texto da notificação
func Format(a models.Alert) string {
	var b strings.Builder
	if a.Trigger == models.TriggerStatistical {
		b.WriteString("📉 PREÇO FORA DA CURVA!\n\n")
	} else {
		b.WriteString(fmt.Sprintf("🎉 OFERTA DETECTADA! (regra: %s)\n\n", a.RuleName))
	}

	l := a.Listing
	b.WriteString(fmt.Sprintf("Produto: %s\n", l.Title))
	if l.Brand != "" {
		b.WriteString(fmt.Sprintf("Marca: %s\n", l.Brand))
	}
	if l.Size != "" {
		b.WriteString(fmt.Sprintf("Tamanho: %s\n", l.Size))
	}
	b.WriteString(fmt.Sprintf("Preço: %.2f €\n", l.Price))
	if a.Mean > 0 {
		b.WriteString(fmt.Sprintf("Média da busca: %.2f € (z = %.2f)\n", a.Mean, a.ZScore))
	}
	b.WriteString(fmt.Sprintf("\nLink: %s", l.URL))
	return b.String()
}
