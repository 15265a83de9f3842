package bot

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"bot-vinted/internal/models"
	"bot-vinted/internal/scraper"
)

// splitCommand separa o comando (sem @nome_do_bot) do restante do texto
func splitCommand(text string) (command, rest string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}

	command, rest, _ = strings.Cut(text, " ")
	command = strings.ToLower(command)
	if idx := strings.Index(command, "@"); idx > 0 {
		command = command[:idx]
	}
	return command, strings.TrimSpace(rest)
}

// parseArgs interpreta argumentos no formato "chave=valor; chave=valor"
func parseArgs(text string) (map[string]string, error) {
	args := make(map[string]string)
	for _, part := range strings.Split(text, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if !ok || key == "" {
			return nil, fmt.Errorf("argumento inválido %q, use chave=valor", part)
		}
		if _, dup := args[key]; dup {
			return nil, fmt.Errorf("argumento %q repetido", key)
		}
		args[key] = strings.TrimSpace(value)
	}
	return args, nil
}

func parseList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// parseNumber aceita "12.5" e "12,5". NaN e infinitos são rejeitados.
func parseNumber(value string) (float64, error) {
	v, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(value), ",", ".", 1), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("valor não finito: %q", value)
	}
	return v, nil
}

// parseAmount é um parseNumber que rejeita valores negativos
func parseAmount(key, value string) (float64, error) {
	v, err := parseNumber(value)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s inválido: %q", key, value)
	}
	return v, nil
}

func parsePositiveInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s deve ser um inteiro positivo: %q", key, value)
	}
	return v, nil
}

// parseSearch monta uma SearchConfig a partir dos argumentos de /addsearch
func parseSearch(args map[string]string) (models.SearchConfig, error) {
	var s models.SearchConfig
	var err error

	for key, value := range args {
		switch key {
		case "term", "termo":
			s.Term = value
		case "brand", "marca":
			s.Brand = value
		case "min":
			s.MinPrice, err = parseAmount("preço mínimo", value)
		case "max":
			s.MaxPrice, err = parseAmount("preço máximo", value)
		case "sizes", "tamanhos":
			s.Sizes = parseList(value)
		case "conditions", "estados":
			s.Conditions = parseList(value)
		case "colors", "cores":
			s.Colors = parseList(value)
		case "categories", "categorias":
			s.Categories = parseList(value)
		case "pages", "paginas":
			s.MaxPages, err = parsePositiveInt("pages", value)
		case "items", "itens":
			s.MaxItems, err = parsePositiveInt("items", value)
		default:
			err = fmt.Errorf("argumento desconhecido %q", key)
		}
		if err != nil {
			return models.SearchConfig{}, err
		}
	}

	if strings.TrimSpace(s.Term) == "" {
		return models.SearchConfig{}, fmt.Errorf("term é obrigatório")
	}
	if s.MinPrice > 0 && s.MaxPrice > 0 && s.MinPrice > s.MaxPrice {
		return models.SearchConfig{}, fmt.Errorf("preço mínimo maior que o máximo")
	}
	s.Normalize()
	return s, nil
}

// unknownLabels retorna os rótulos que a tabela de filtros não reconhece
func unknownLabels(filters *scraper.FilterCatalog, s models.SearchConfig) []string {
	groups := []struct {
		name   string
		labels []string
	}{
		{scraper.GroupSize, s.Sizes},
		{scraper.GroupCondition, s.Conditions},
		{scraper.GroupColor, s.Colors},
		{scraper.GroupCategory, s.Categories},
	}

	var unknown []string
	for _, g := range groups {
		for _, label := range g.labels {
			if len(filters.Resolve(g.name, []string{label})) == 0 {
				unknown = append(unknown, label)
			}
		}
	}
	return unknown
}

// parseRule monta uma AlertRule a partir dos argumentos de /addrule
func parseRule(args map[string]string) (models.AlertRule, error) {
	r := models.AlertRule{Active: true}
	var err error

	for key, value := range args {
		switch key {
		case "name", "nome":
			r.Name = value
		case "brands", "marcas":
			r.Brands = parseList(value)
		case "max":
			r.MaxPrice, err = parseAmount("preço máximo", value)
		case "discount", "desconto":
			r.MinDiscount, err = parseAmount("desconto", strings.TrimSuffix(value, "%"))
			if err == nil && r.MinDiscount > 100 {
				err = fmt.Errorf("desconto deve estar entre 0 e 100")
			}
		case "z":
			r.MaxZ, err = parseNumber(value)
			if err != nil || r.MaxZ >= 0 {
				err = fmt.Errorf("z deve ser negativo: %q", value)
			}
		default:
			err = fmt.Errorf("argumento desconhecido %q", key)
		}
		if err != nil {
			return models.AlertRule{}, err
		}
	}

	if strings.TrimSpace(r.Name) == "" {
		return models.AlertRule{}, fmt.Errorf("name é obrigatório")
	}
	return r, nil
}

func parseID(text string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("ID inválido")
	}
	return id, nil
}
