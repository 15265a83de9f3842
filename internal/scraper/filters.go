package scraper

import (
	_ "embed"
	"fmt"
	"sort"

	"bot-vinted/internal/normalize"

	"gopkg.in/yaml.v3"
)

// Grupos de filtros conhecidos
const (
	GroupSize      = "size"
	GroupCondition = "condition"
	GroupColor     = "color"
	GroupCategory  = "category"
)

//go:embed filters.yaml
var defaultFiltersYAML []byte

// FilterGroup mapeia rótulos legíveis para IDs de um parâmetro da busca
type FilterGroup struct {
	Param  string            `yaml:"param"`
	Values map[string]string `yaml:"values"`

	byKey map[string]string // rótulo normalizado -> ID
	ids   map[string]bool
}

// FilterCatalog é a tabela versionada de filtros conhecidos
type FilterCatalog struct {
	Version int                    `yaml:"version"`
	Groups  map[string]FilterGroup `yaml:"groups"`
}

// LoadFilterCatalog interpreta uma tabela de filtros em YAML
func LoadFilterCatalog(data []byte) (*FilterCatalog, error) {
	var c FilterCatalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("erro ao ler tabela de filtros: %w", err)
	}
	for name, g := range c.Groups {
		if g.Param == "" {
			return nil, fmt.Errorf("grupo de filtros %q sem parâmetro", name)
		}
		if err := g.index(); err != nil {
			return nil, fmt.Errorf("grupo de filtros %q: %w", name, err)
		}
		c.Groups[name] = g
	}
	return &c, nil
}

// DefaultFilters retorna a tabela de filtros embutida no binário
func DefaultFilters() *FilterCatalog {
	c, err := LoadFilterCatalog(defaultFiltersYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Resolve converte rótulos em IDs. Aceita também um ID conhecido no lugar
// do rótulo. Rótulos desconhecidos são descartados sem erro.
func (c *FilterCatalog) Resolve(group string, labels []string) []string {
	g, ok := c.Groups[group]
	if !ok {
		return nil
	}

	var ids []string
	seen := make(map[string]bool)
	for _, label := range labels {
		id, ok := g.lookup(label)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// index monta a tabela de busca por rótulo normalizado. Dois rótulos
// com a mesma chave tornam a resolução ambígua e são rejeitados.
func (g *FilterGroup) index() error {
	g.byKey = make(map[string]string, len(g.Values))
	g.ids = make(map[string]bool, len(g.Values))
	for label, id := range g.Values {
		key := normalize.Key(label)
		if key == "" {
			return fmt.Errorf("rótulo vazio")
		}
		if _, dup := g.byKey[key]; dup {
			return fmt.Errorf("rótulo %q duplicado após normalização", label)
		}
		g.byKey[key] = id
		g.ids[id] = true
	}
	return nil
}

func (g FilterGroup) lookup(label string) (string, bool) {
	key := normalize.Key(label)
	if key == "" {
		return "", false
	}
	if id, ok := g.byKey[key]; ok {
		return id, true
	}
	if g.ids[key] {
		return key, true
	}
	return "", false
}

// Labels retorna os rótulos conhecidos de um grupo, em ordem alfabética
func (c *FilterCatalog) Labels(group string) []string {
	g := c.Groups[group]
	labels := make([]string, 0, len(g.Values))
	for name := range g.Values {
		labels = append(labels, name)
	}
	sort.Strings(labels)
	return labels
}
