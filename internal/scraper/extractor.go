package scraper

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"log"
	"net/url"
	"regexp"
	"strings"

	"bot-vinted/internal/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

var (
	errMissingURL = errors.New("item sem link")

	numberPattern = `\d{1,3}(?:[.\x{00A0}\x{202F}]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?`
	numberRe      = regexp.MustCompile(numberPattern)
	moneyRe       = regexp.MustCompile(`(` + numberPattern + `)[\s\x{00A0}\x{202F}]*€|€[\s\x{00A0}\x{202F}]*(` + numberPattern + `)`)
)

// Seletores de item, do mais específico para o mais genérico
var itemSelectors = []string{
	"div[data-testid='grid-item']",
	"div.feed-grid__item",
	"div[data-testid$='--item']",
}

var nextPageSelectors = []string{
	"a[rel='next']",
	"a[data-testid='catalog-pagination--next-page']",
	"a.web_ui__Pagination__next",
}

// firstOf percorre uma cadeia de estratégias de extração. Cada estratégia
// retorna ok=false para passar a vez à próxima; vence o primeiro valor encontrado.
func firstOf[T any](item *goquery.Selection, chain ...func(*goquery.Selection) (T, bool)) (T, bool) {
	for _, strategy := range chain {
		if v, ok := strategy(item); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Page é o resultado da extração de uma página de resultados
type Page struct {
	Listings iter.Seq[models.RawListing]
	NextURL  string
	Items    int // quantidade de itens encontrados na página (inclui os descartados)
}

// Extractor extrai anúncios de uma página de resultados, tolerando
// campos ausentes ou fora de ordem
type Extractor struct {
	origin *url.URL
}

// NewExtractor cria um extrator que torna absolutas as URLs relativas a origin
func NewExtractor(origin string) (*Extractor, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("origem inválida %q: %w", origin, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origem inválida %q: esquema e host obrigatórios", origin)
	}
	return &Extractor{origin: u}, nil
}

// Parse lê o conteúdo de uma página. Os anúncios são produzidos sob demanda,
// numa única passada.
func (e *Extractor) Parse(content []byte) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	items := findItems(doc)
	return &Page{
		Listings: e.listings(items),
		NextURL:  e.nextPage(doc),
		Items:    items.Length(),
	}, nil
}

func findItems(doc *goquery.Document) *goquery.Selection {
	for _, selector := range itemSelectors {
		if items := doc.Find(selector); items.Length() > 0 {
			return items
		}
	}
	return doc.Find(itemSelectors[0])
}

func (e *Extractor) listings(items *goquery.Selection) iter.Seq[models.RawListing] {
	return func(yield func(models.RawListing) bool) {
		for i := range items.Nodes {
			raw, err := e.extractItem(items.Eq(i))
			if err != nil {
				log.Printf("[extract] item %d descartado: %v", i, err)
				continue
			}
			if !yield(raw) {
				return
			}
		}
	}
}

func (e *Extractor) extractItem(item *goquery.Selection) (raw models.RawListing, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic ao extrair item: %v", r)
		}
	}()

	href, ok := firstOf(item, linkToItem, anyLink)
	if !ok {
		return raw, errMissingURL
	}
	raw.URL, err = e.canonicalURL(href)
	if err != nil {
		return raw, err
	}

	raw.Title, ok = firstOf(item, titleFromLink, titleFromImage)
	if !ok {
		raw.Title = "Sin título"
	}

	raw.Price, ok = firstOf(item, priceFromTestID, priceFromTitleClass, priceFromText)
	if !ok {
		raw.Price = 0
		raw.LowConfidence = true
	}

	raw.Brand, _ = firstOf(item, brandFromTestID, brandFromMuted)
	raw.Size, _ = firstOf(item, sizeFromTestID, sizeFromMuted)
	if src, ok := firstOf(item, imageSrc, imageDataSrc, imageSrcset); ok {
		if abs, err := e.absolute(src); err == nil {
			raw.ImageURL = abs
		}
	}
	return raw, nil
}

// canonicalURL torna a URL absoluta e remove query string e fragmento
func (e *Extractor) canonicalURL(href string) (string, error) {
	u, err := e.origin.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("link inválido %q: %w", href, err)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func (e *Extractor) absolute(href string) (string, error) {
	u, err := e.origin.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (e *Extractor) nextPage(doc *goquery.Document) string {
	for _, selector := range nextPageSelectors {
		href, ok := doc.Find(selector).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			continue
		}
		if abs, err := e.absolute(href); err == nil {
			return abs
		}
	}
	return ""
}

// --- estratégias de URL ---

func linkToItem(item *goquery.Selection) (string, bool) {
	return nonEmptyAttr(item.Find("a[href*='/items/']").First(), "href")
}

func anyLink(item *goquery.Selection) (string, bool) {
	return nonEmptyAttr(item.Find("a[href]").First(), "href")
}

// --- estratégias de título ---

func titleFromLink(item *goquery.Selection) (string, bool) {
	return nonEmptyAttr(item.Find("a[title]").First(), "title")
}

func titleFromImage(item *goquery.Selection) (string, bool) {
	return nonEmptyAttr(item.Find("img[alt]").First(), "alt")
}

// --- estratégias de preço ---

func priceFromTestID(item *goquery.Selection) (float64, bool) {
	return parsedText(item.Find("[data-testid$='--price-text']").First())
}

func priceFromTitleClass(item *goquery.Selection) (float64, bool) {
	return parsedText(item.Find("p[class*='web_ui__Text__title']").First())
}

// priceFromText procura um valor monetário no texto do item, linha a linha,
// quando nenhum seletor estrutural funcionou
func priceFromText(item *goquery.Selection) (float64, bool) {
	for _, line := range flatten(item) {
		m := moneyRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		amount := m[1]
		if amount == "" {
			amount = m[2]
		}
		if p, err := parseAmount(amount); err == nil {
			return p, true
		}
	}
	return 0, false
}

func parsedText(s *goquery.Selection) (float64, bool) {
	text := strings.TrimSpace(s.Text())
	if text == "" {
		return 0, false
	}
	p, err := ParsePrice(text)
	if err != nil {
		return 0, false
	}
	return p, true
}

// --- estratégias de marca e tamanho ---

func brandFromTestID(item *goquery.Selection) (string, bool) {
	return nonEmptyText(item.Find("[data-testid$='--description-title']").First())
}

func sizeFromTestID(item *goquery.Selection) (string, bool) {
	text, ok := nonEmptyText(item.Find("[data-testid$='--description-subtitle']").First())
	if !ok {
		return "", false
	}
	// "L · Muy bueno": o tamanho vem antes do separador
	if i := strings.Index(text, "·"); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	return text, text != ""
}

// Nos layouts antigos os textos secundários vêm como tamanho, marca
func mutedTexts(item *goquery.Selection) []string {
	var texts []string
	item.Find("p[class*='web_ui__Text__muted']").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			texts = append(texts, t)
		}
	})
	return texts
}

func brandFromMuted(item *goquery.Selection) (string, bool) {
	texts := mutedTexts(item)
	switch {
	case len(texts) >= 2:
		return texts[1], true
	case len(texts) == 1:
		return texts[0], true
	}
	return "", false
}

func sizeFromMuted(item *goquery.Selection) (string, bool) {
	texts := mutedTexts(item)
	if len(texts) >= 2 {
		return texts[0], true
	}
	return "", false
}

// --- estratégias de imagem ---

func imageSrc(item *goquery.Selection) (string, bool) {
	return nonEmptyAttr(item.Find("img[src]").First(), "src")
}

func imageDataSrc(item *goquery.Selection) (string, bool) {
	return nonEmptyAttr(item.Find("img[data-src]").First(), "data-src")
}

func imageSrcset(item *goquery.Selection) (string, bool) {
	srcset, ok := nonEmptyAttr(item.Find("img[srcset], source[srcset]").First(), "srcset")
	if !ok {
		return "", false
	}
	first := strings.Fields(strings.Split(srcset, ",")[0])
	if len(first) == 0 {
		return "", false
	}
	return first[0], true
}

func nonEmptyAttr(s *goquery.Selection, attr string) (string, bool) {
	v, ok := s.Attr(attr)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func nonEmptyText(s *goquery.Selection) (string, bool) {
	t := strings.TrimSpace(s.Text())
	return t, t != ""
}

// flatten retorna o texto de cada elemento folha do item, um por linha,
// para que números de elementos vizinhos não se juntem
func flatten(item *goquery.Selection) []string {
	var lines []string
	item.Find("*").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 {
			return
		}
		if t := strings.TrimSpace(s.Text()); t != "" {
			lines = append(lines, t)
		}
	})
	return lines
}

// ParsePrice interpreta um texto de preço como "1.234,50 €" ou "12.5".
// Um valor junto do símbolo € tem preferência sobre outros números do texto.
// Espaço comum não separa milhar: "42 150,00 €" é 150, não 42150.
func ParsePrice(text string) (float64, error) {
	if m := moneyRe.FindStringSubmatch(text); m != nil {
		amount := m[1]
		if amount == "" {
			amount = m[2]
		}
		return parseAmount(amount)
	}
	token := numberRe.FindString(text)
	if token == "" {
		return 0, fmt.Errorf("preço não encontrado em %q", text)
	}
	return parseAmount(token)
}

// parseAmount normaliza separadores de milhar e decimal antes de converter
func parseAmount(s string) (float64, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\t', '\n':
			return -1
		}
		return r
	}, s)

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || len(s)-lastDot-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("erro ao parsear preço %q: %w", s, err)
	}
	f, _ := d.Round(2).Float64()
	return f, nil
}
