package scorer

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

const mergeKeyLen = 50

// productNamespace seeds deterministic product ids derived from merge keys,
// so the same product scraped twice lands on the same record.
var productNamespace = uuid.MustParse("6f1d0c1e-8a53-4c2e-9d7b-4b1f3c0e5a21")

// NormalizeText lowercases s, drops apostrophes, turns every other
// non-alphanumeric rune into a space and collapses whitespace.
func NormalizeText(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '\'' || r == '’':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// MergeKey is the normalized name truncated to 50 runes.
func MergeKey(name string) string {
	key := []rune(NormalizeText(name))
	if len(key) > mergeKeyLen {
		key = key[:mergeKeyLen]
	}
	return strings.TrimSpace(string(key))
}

var numberRe = regexp.MustCompile(`([0-9]*\.?[0-9]+)\s*([km])?`)

// parseNumber pulls the first number out of s, honouring k/m suffixes.
func parseNumber(s string) (float64, bool) {
	s = strings.ToLower(strings.ReplaceAll(s, ",", ""))
	m := numberRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	switch m[2] {
	case "k":
		v *= 1e3
	case "m":
		v *= 1e6
	}
	return v, true
}

func parsePrice(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' {
			return r
		}
		return -1
	}, strings.ReplaceAll(s, ",", ""))
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parsePercent accepts "15%", "15" and fractional "0.15".
func parsePercent(s string) float64 {
	v, ok := parseNumber(s)
	if !ok {
		return 0
	}
	if !strings.Contains(s, "%") && v > 0 && v < 1 {
		v *= 100
	}
	return v
}

// parseRating normalizes ratings given on a ten-point scale.
func parseRating(s string) float64 {
	v, ok := parseNumber(s)
	if !ok {
		return 0
	}
	if v > 5 {
		v /= 2
	}
	return min(v, 5)
}

func parseGrowth(s string) float64 {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	v, ok := parseNumber(s)
	if !ok {
		return 0
	}
	if strings.HasPrefix(strings.TrimSpace(s), "-") {
		v = -v
	}
	return v
}

// Normalize converts one provider record into a single-source product.
func Normalize(raw domain.RawProduct) (domain.Product, error) {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("record from %s without name: %w", raw.Provider, domain.ErrInvalidInput)
	}
	price, ok := parsePrice(raw.Price)
	if !ok {
		return domain.Product{}, fmt.Errorf("record %q without price: %w", name, domain.ErrInvalidInput)
	}
	key := MergeKey(name)
	if key == "" {
		return domain.Product{}, fmt.Errorf("record %q normalizes to empty key: %w", name, domain.ErrInvalidInput)
	}

	p := domain.Product{
		ID:            uuid.NewSHA1(productNamespace, []byte(key)).String(),
		MergeKey:      key,
		Name:          name,
		Description:   strings.TrimSpace(raw.Description),
		Category:      strings.ToLower(strings.TrimSpace(raw.Category)),
		Price:         price,
		CommissionPct: min(parsePercent(raw.Commission), 100),
		Rating:        parseRating(raw.Rating),
		GrowthRate:    parseGrowth(raw.GrowthRate),
		Competition:   strings.ToLower(strings.TrimSpace(raw.Competition)),
		URL:           raw.URL,
		ScrapedAt:     raw.ScrapedAt,
	}
	if sales, ok := parseNumber(raw.MonthlySales); ok {
		p.MonthlySales = int64(sales)
	}
	if trend, ok := parseNumber(raw.TrendScore); ok {
		p.TrendScore = min(trend, 100)
	}
	if raw.Provider != "" {
		p.Sources = []string{raw.Provider}
	} else {
		p.Sources = []string{"unknown"}
	}
	return p, nil
}

// enrich fills fields of dst that are still unset from src.
func enrich(dst *domain.Product, src domain.Product) {
	if dst.Description == "" {
		dst.Description = src.Description
	}
	if dst.Category == "" {
		dst.Category = src.Category
	}
	if dst.CommissionPct == 0 {
		dst.CommissionPct = src.CommissionPct
	}
	if dst.Rating == 0 {
		dst.Rating = src.Rating
	}
	if dst.MonthlySales == 0 {
		dst.MonthlySales = src.MonthlySales
	}
	if dst.GrowthRate == 0 {
		dst.GrowthRate = src.GrowthRate
	}
	if dst.TrendScore == 0 {
		dst.TrendScore = src.TrendScore
	}
	if dst.Competition == "" {
		dst.Competition = src.Competition
	}
	if dst.URL == "" {
		dst.URL = src.URL
	}
	for _, s := range src.Sources {
		if !slices.Contains(dst.Sources, s) {
			dst.Sources = append(dst.Sources, s)
		}
	}
}
