package scraper

import (
	"net/url"
	"strconv"
	"strings"

	"bot-vinted/internal/models"
)

// OrderNewestFirst é a ordenação fixa das buscas: mais recentes primeiro
const OrderNewestFirst = "newest_first"

// FilterParam é um grupo de IDs de filtro já resolvidos
type FilterParam struct {
	Param string
	IDs   []string
}

// QuerySpec é a busca remota pronta para virar URL
type QuerySpec struct {
	Text      string
	PriceFrom float64 // 0 = omitido
	PriceTo   float64 // 0 = omitido
	Filters   []FilterParam
	Order     string
}

// QueryBuilder traduz uma SearchConfig em parâmetros da busca remota
type QueryBuilder struct {
	filters *FilterCatalog
	baseURL string
}

// NewQueryBuilder cria um builder para a origem baseURL (ex.: https://www.vinted.es)
func NewQueryBuilder(filters *FilterCatalog, baseURL string) *QueryBuilder {
	if filters == nil {
		filters = DefaultFilters()
	}
	return &QueryBuilder{
		filters: filters,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Build monta a QuerySpec de uma busca. Não tem efeitos colaterais.
func (b *QueryBuilder) Build(search models.SearchConfig) QuerySpec {
	text := strings.TrimSpace(search.Term)
	if brand := strings.TrimSpace(search.Brand); brand != "" {
		text = strings.TrimSpace(text + " " + brand)
	}

	q := QuerySpec{
		Text:  text,
		Order: OrderNewestFirst,
	}
	if search.MinPrice > 0 {
		q.PriceFrom = search.MinPrice
	}
	if search.MaxPrice > 0 {
		q.PriceTo = search.MaxPrice
	}

	groups := []struct {
		name   string
		labels []string
	}{
		{GroupSize, search.Sizes},
		{GroupCondition, search.Conditions},
		{GroupColor, search.Colors},
		{GroupCategory, search.Categories},
	}
	for _, g := range groups {
		ids := b.filters.Resolve(g.name, g.labels)
		if len(ids) == 0 {
			continue
		}
		q.Filters = append(q.Filters, FilterParam{Param: b.filters.Groups[g.name].Param, IDs: ids})
	}
	return q
}

// URL retorna a URL da página page (1 = primeira) da busca
func (b *QueryBuilder) URL(q QuerySpec, page int) string {
	return b.baseURL + "/catalog?" + q.Values(page).Encode()
}

// Values codifica a busca em parâmetros de query
func (q QuerySpec) Values(page int) url.Values {
	v := url.Values{}
	if q.Text != "" {
		v.Set("search_text", q.Text)
	}
	if q.PriceFrom > 0 {
		v.Set("price_from", formatPrice(q.PriceFrom))
	}
	if q.PriceTo > 0 {
		v.Set("price_to", formatPrice(q.PriceTo))
	}
	for _, f := range q.Filters {
		for _, id := range f.IDs {
			v.Add(f.Param, id)
		}
	}
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	if page > 1 {
		v.Set("page", strconv.Itoa(page))
	}
	return v
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
