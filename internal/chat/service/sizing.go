package service

import (
	_ "embed"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ============================================================
// Size charts
// ============================================================

//go:embed size_charts.yaml
var sizeChartsYAML []byte

// Garment categories with their own chart.
const (
	CategoryCrewneck   = "CREWNECK"
	CategorySweatshirt = "SWEATSHIRT"
	CategoryHoodie     = "HOODIE"
	CategoryPolo       = "POLO"
)

// SizeChart is the measurement table of one garment category.
type SizeChart struct {
	ProductType  string        `yaml:"productType" json:"productType"`
	Sizes        []string      `yaml:"sizes" json:"sizes"`
	Measurements []Measurement `yaml:"measurements" json:"measurements"`
}

// Measurement is one measured dimension across sizes.
type Measurement struct {
	Name   string             `yaml:"name" json:"name"`
	Unit   string             `yaml:"unit" json:"unit"`
	Values map[string]float64 `yaml:"values" json:"values"`
}

// LoadSizeCharts parses the embedded chart table.
func LoadSizeCharts() (map[string]*SizeChart, error) {
	return parseSizeCharts(sizeChartsYAML)
}

func parseSizeCharts(raw []byte) (map[string]*SizeChart, error) {
	charts := make(map[string]*SizeChart)
	if err := yaml.Unmarshal(raw, &charts); err != nil {
		return nil, fmt.Errorf("parse size charts: %w", err)
	}
	for name, chart := range charts {
		if len(chart.Sizes) == 0 {
			return nil, fmt.Errorf("size chart %s has no sizes", name)
		}
	}
	if _, ok := charts[CategoryCrewneck]; !ok {
		return nil, fmt.Errorf("size charts: missing default %s chart", CategoryCrewneck)
	}
	return charts, nil
}

// CategoryForTitle picks the chart category by case-insensitive substring.
func CategoryForTitle(title string) string {
	upper := strings.ToUpper(title)
	switch {
	case strings.Contains(upper, CategoryHoodie):
		return CategoryHoodie
	case strings.Contains(upper, CategorySweatshirt):
		return CategorySweatshirt
	case strings.Contains(upper, CategoryPolo):
		return CategoryPolo
	default:
		return CategoryCrewneck
	}
}

// ============================================================
// Recommendation
// ============================================================

// Fit preferences.
const (
	FitTight   = "tight"
	FitRegular = "regular"
	FitLoose   = "loose"
)

// Height bands, both bounds inclusive in the medium band.
const (
	heightMediumMin = 165
	heightMediumMax = 175
)

// ParseHeightCM reads "170", "170cm", "170 cm", "1.70", "1,70m". The value is
// not rounded to whole centimetres.
func ParseHeightCM(raw string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, "cm")
	s = strings.TrimSuffix(s, "m")
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	if v < 3 {
		// metres, kept to the millimetre
		v = math.Round(v*1000) / 10
	}
	if v < 50 || v > 250 {
		return 0, false
	}
	return v, true
}

// NormalizeFit maps free text to tight, regular or loose.
// Anything unrecognized counts as regular.
func NormalizeFit(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "tight"), strings.Contains(s, "ajustad"), strings.Contains(s, "slim"), strings.Contains(s, "ceñid"):
		return FitTight
	case strings.Contains(s, "loose"), strings.Contains(s, "holgad"), strings.Contains(s, "oversize"), strings.Contains(s, "ancho"), strings.Contains(s, "baggy"):
		return FitLoose
	default:
		return FitRegular
	}
}

// RecommendSize starts from the chart's M entry, moves one size down below
// 165cm and up above 175cm, then one more for tight/loose, clamped to the chart.
func RecommendSize(chart *SizeChart, heightCM float64, fit string) string {
	idx := len(chart.Sizes) / 2
	for i, size := range chart.Sizes {
		if size == "M" {
			idx = i
			break
		}
	}

	switch {
	case heightCM < heightMediumMin:
		idx--
	case heightCM > heightMediumMax:
		idx++
	}
	switch fit {
	case FitTight:
		idx--
	case FitLoose:
		idx++
	}

	if idx < 0 {
		idx = 0
	}
	if idx >= len(chart.Sizes) {
		idx = len(chart.Sizes) - 1
	}
	return chart.Sizes[idx]
}

// ============================================================
// Size tokens (restock)
// ============================================================

var sizeSynonyms = map[string]string{
	"XS": "XS", "EXTRA SMALL": "XS", "EXTRA PEQUEÑA": "XS", "EXTRA PEQUEÑO": "XS", "TALLA XS": "XS",
	"S": "S", "SMALL": "S", "PEQUEÑA": "S", "PEQUEÑO": "S", "TALLA S": "S",
	"M": "M", "MEDIUM": "M", "MEDIANA": "M", "MEDIANO": "M", "MEDIA": "M", "TALLA M": "M",
	"L": "L", "LARGE": "L", "GRANDE": "L", "TALLA L": "L",
	"XL": "XL", "EXTRA LARGE": "XL", "EXTRA GRANDE": "XL", "TALLA XL": "XL",
	"XXL": "XXL", "2XL": "XXL", "XX LARGE": "XXL", "XX-LARGE": "XXL", "TALLA XXL": "XXL",
}

// NormalizeSize maps a size mention to XS, S, M, L, XL or XXL.
func NormalizeSize(raw string) (string, bool) {
	key := strings.ToUpper(strings.Join(strings.Fields(raw), " "))
	if key == "" {
		return "", false
	}
	size, ok := sizeSynonyms[key]
	return size, ok
}
