package service_test

import (
	"testing"

	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSizeCharts(t *testing.T) {
	charts, err := service.LoadSizeCharts()
	require.NoError(t, err)

	for _, cat := range []string{service.CategoryCrewneck, service.CategorySweatshirt, service.CategoryHoodie, service.CategoryPolo} {
		chart, ok := charts[cat]
		require.True(t, ok, cat)
		assert.NotEmpty(t, chart.Sizes, cat)
		assert.NotEmpty(t, chart.Measurements, cat)
	}
	assert.Equal(t, []string{"XS", "S", "M", "L", "XL"}, charts[service.CategoryCrewneck].Sizes)
}

func TestCategoryForTitle(t *testing.T) {
	tests := map[string]string{
		"Without Shame Crewneck":     service.CategoryCrewneck,
		"Shameless Hoodie Black":     service.CategoryHoodie,
		"Oversized sweatshirt":       service.CategorySweatshirt,
		"Classic polo":               service.CategoryPolo,
		"Hoodie sweatshirt bundle":   service.CategoryHoodie,
		"Something without category": service.CategoryCrewneck,
	}
	for title, want := range tests {
		assert.Equal(t, want, service.CategoryForTitle(title), title)
	}
}

func TestRecommendSize_HeightBands(t *testing.T) {
	chart := &service.SizeChart{Sizes: []string{"XS", "S", "M", "L", "XL"}}

	tests := []struct {
		height float64
		fit    string
		want   string
	}{
		{164, service.FitRegular, "S"},
		{164.5, service.FitRegular, "S"},
		{175.5, service.FitRegular, "L"},
		{165, service.FitRegular, "M"},
		{175, service.FitRegular, "M"},
		{176, service.FitRegular, "L"},
		{170, service.FitTight, "S"},
		{170, service.FitLoose, "L"},
		{150, service.FitTight, "XS"},
		{190, service.FitLoose, "XL"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, service.RecommendSize(chart, tt.height, tt.fit), "%gcm %s", tt.height, tt.fit)
	}
}

func TestRecommendSize_ClampsToChart(t *testing.T) {
	chart := &service.SizeChart{Sizes: []string{"M", "L"}}
	assert.Equal(t, "M", service.RecommendSize(chart, 150, service.FitTight))
	assert.Equal(t, "L", service.RecommendSize(chart, 200, service.FitLoose))

	noM := &service.SizeChart{Sizes: []string{"S", "L", "XL"}}
	assert.Equal(t, "L", service.RecommendSize(noM, 170, service.FitRegular))
}

func TestParseHeightCM(t *testing.T) {
	valid := map[string]float64{
		"170":     170,
		"170cm":   170,
		"170 cm":  170,
		"1.70":    170,
		"1,85m":   185,
		"1.65":    165,
		" 165 ":   165,
		"164.5cm": 164.5,
	}
	for in, want := range valid {
		got, ok := service.ParseHeightCM(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "tall", "0", "-170", "999"} {
		_, ok := service.ParseHeightCM(in)
		assert.False(t, ok, in)
	}
}

func TestNormalizeFit(t *testing.T) {
	assert.Equal(t, "", service.NormalizeFit(""))
	assert.Equal(t, service.FitTight, service.NormalizeFit("Ajustado"))
	assert.Equal(t, service.FitTight, service.NormalizeFit("slim fit"))
	assert.Equal(t, service.FitLoose, service.NormalizeFit("oversize please"))
	assert.Equal(t, service.FitLoose, service.NormalizeFit("holgada"))
	assert.Equal(t, service.FitRegular, service.NormalizeFit("normal"))
}

func TestNormalizeSize(t *testing.T) {
	valid := map[string]string{
		"s":           "S",
		"Small":       "S",
		"talla  m":    "M",
		"mediana":     "M",
		"extra large": "XL",
		"2xl":         "XXL",
		"XS":          "XS",
	}
	for in, want := range valid {
		got, ok := service.NormalizeSize(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "huge", "not_found"} {
		_, ok := service.NormalizeSize(in)
		assert.False(t, ok, in)
	}
}
