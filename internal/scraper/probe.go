package scraper

import (
	"context"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"bot-vinted/internal/normalize"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

// ProbeResult é a classificação da página de um anúncio
type ProbeResult int

const (
	ProbeActive ProbeResult = iota
	ProbeSold
	ProbeUnreachable
)

func (r ProbeResult) String() string {
	switch r {
	case ProbeActive:
		return "active"
	case ProbeSold:
		return "sold"
	default:
		return "unreachable"
	}
}

// Prober verifica o estado atual de um anúncio
type Prober interface {
	Probe(ctx context.Context, url string) ProbeResult
}

var availabilityRe = regexp.MustCompile(`"availability"\s*:\s*"[^"]*(SoldOut|OutOfStock)"`)

// Textos de selo que indicam venda, já normalizados
var soldWords = []string{"vendido", "vendida", "sold"}

// HTTPProber consulta a página do anúncio por HTTP, com limite de taxa
type HTTPProber struct {
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// NewHTTPProber cria um prober com timeout por chamada e até perMinute consultas por minuto
func NewHTTPProber(timeout time.Duration, perMinute int) *HTTPProber {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &HTTPProber{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		timeout: timeout,
	}
}

// Probe classifica o anúncio. Erros, timeouts, 404/410 e qualquer status
// diferente de 200 são tratados como inacessível.
func (p *HTTPProber) Probe(ctx context.Context, url string) ProbeResult {
	if err := p.limiter.Wait(ctx); err != nil {
		return ProbeUnreachable
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := doGet(ctx, p.client, url)
	if err != nil {
		log.Printf("[probe] %s: %v", url, err)
		return ProbeUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[probe] %s: status %d", url, resp.StatusCode)
		return ProbeUnreachable
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return ProbeUnreachable
	}
	return ClassifyItemPage(doc)
}

// ClassifyItemPage procura marcadores de venda na página de um anúncio
func ClassifyItemPage(doc *goquery.Document) ProbeResult {
	detectors := []func(*goquery.Document) bool{
		soldBadge,
		soldStatusText,
		soldMeta,
		soldJSONLD,
	}
	for _, sold := range detectors {
		if sold(doc) {
			return ProbeSold
		}
	}
	return ProbeActive
}

func soldBadge(doc *goquery.Document) bool {
	return doc.Find("[data-testid='item-status--sold'], .item-status--sold").Length() > 0
}

func soldStatusText(doc *goquery.Document) bool {
	found := false
	doc.Find("[data-testid='item-status'], [data-testid='item-status--sold'], .item-status").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := normalize.Key(s.Text())
		for _, w := range soldWords {
			if strings.Contains(text, w) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

func soldMeta(doc *goquery.Document) bool {
	content := doc.Find("meta[property='product:availability'], meta[property='og:availability']").First().AttrOr("content", "")
	content = normalize.Key(content)
	return strings.Contains(content, "out of stock") || content == "oos" || strings.Contains(content, "sold")
}

func soldJSONLD(doc *goquery.Document) bool {
	found := false
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = availabilityRe.MatchString(s.Text())
		return !found
	})
	return found
}
