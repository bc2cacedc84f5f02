package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	texttransform "golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	suffixRe = regexp.MustCompile(`^(.*)_(\d+)$`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// PadHeader appends prefix_1, prefix_2, ... until header has total names.
// A header that is already wide enough is returned unchanged.
func PadHeader(header []string, prefix string, total int) []string {
	if len(header) >= total {
		return header
	}
	out := make([]string, len(header), total)
	copy(out, header)
	for i := 1; len(out) < total; i++ {
		out = append(out, fmt.Sprintf("%s_%d", prefix, i))
	}
	return out
}

// DedupHeader trims every name and makes duplicated ones unique by
// appending or incrementing a "_N" suffix, left to right:
//
//	[a a a]   -> [a_1 a_2 a_3]
//	[a a_1 a] -> [a_2 a_1 a_3]
//
// Names that occur once are only trimmed.
func DedupHeader(header []string) []string {
	counts := make(map[string]int, len(header))
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		h = strings.TrimSpace(h)
		counts[h]++
		seen[h] = true
	}

	out := make([]string, 0, len(header))
	for _, h := range header {
		name := strings.TrimSpace(h)
		if counts[name] > 1 {
			for seen[name] {
				base, n := name, 0
				if m := suffixRe.FindStringSubmatch(name); m != nil {
					if v, err := strconv.Atoi(m[2]); err == nil {
						base, n = m[1], v
					}
				}
				name = base + "_" + strconv.Itoa(n+1)
			}
		}
		out = append(out, name)
		seen[name] = true
	}
	return out
}

// Normalize folds name to a lower-case ASCII identifier: accents are
// stripped, other non-ASCII runes dropped and whitespace runs become "_".
// "Prénom du Client" becomes "prenom_du_client".
func Normalize(name string) string {
	t := texttransform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	folded, _, err := texttransform.String(t, name)
	if err != nil {
		folded = name
	}
	return strings.ToLower(spaceRe.ReplaceAllString(folded, "_"))
}
