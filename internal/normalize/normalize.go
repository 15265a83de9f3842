// Package normalize reduz textos digitados por pessoas a uma chave de comparação.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key remove acentos, ignora maiúsculas/minúsculas e colapsa espaços.
// "  Marrón " e "marron" geram a mesma chave.
func Key(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := cases.Fold().String(stripped)
	return strings.Join(strings.Fields(folded), " ")
}

// Equal compara dois textos pela chave normalizada
func Equal(a, b string) bool {
	return Key(a) == Key(b)
}
