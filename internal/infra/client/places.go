package client

import (
	"context"
	"net/http"
	"strings"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"googlemaps.github.io/maps"
)

const placesService = "geocoder"

// PlacesGeocoder validates free-text addresses with the Google Places
// Find Place From Text API.
type PlacesGeocoder struct {
	maps   *maps.Client
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewPlacesGeocoder creates a geocoder. baseURL overrides the Google host
// (tests, proxies); empty keeps the default.
func NewPlacesGeocoder(httpClient *http.Client, apiKey, baseURL string, cb *gobreaker.CircuitBreaker, logger *zap.Logger) (*PlacesGeocoder, error) {
	opts := []maps.ClientOption{
		maps.WithAPIKey(apiKey),
		maps.WithHTTPClient(httpClient),
	}
	if baseURL != "" {
		opts = append(opts, maps.WithBaseURL(strings.TrimRight(baseURL, "/")))
	}
	mc, err := maps.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return &PlacesGeocoder{maps: mc, cb: cb, logger: logger}, nil
}

// ValidateAddress returns the formatted candidates for address. An empty
// FormattedAddress means nothing matched.
func (g *PlacesGeocoder) ValidateAddress(ctx context.Context, address string) (*domain.AddressValidation, error) {
	ctx, span := tracer.Start(ctx, "PlacesGeocoder.ValidateAddress")
	defer span.End()

	address = strings.TrimSpace(address)
	if address == "" {
		return &domain.AddressValidation{}, nil
	}

	resp, err := execute(g.cb, placesService, func() (maps.FindPlaceFromTextResponse, error) {
		return g.maps.FindPlaceFromText(ctx, &maps.FindPlaceFromTextRequest{
			Input:     address,
			InputType: maps.FindPlaceFromTextInputTypeTextQuery,
			Fields:    []maps.PlaceSearchFieldMask{maps.PlaceSearchFieldMaskFormattedAddress},
		})
	})
	if err != nil {
		g.logger.Warn("address lookup failed", zap.Error(err))
		return nil, err
	}

	result := &domain.AddressValidation{}
	seen := make(map[string]bool, len(resp.Candidates))
	for _, c := range resp.Candidates {
		if c.FormattedAddress == "" || seen[c.FormattedAddress] {
			continue
		}
		seen[c.FormattedAddress] = true
		result.Candidates = append(result.Candidates, c.FormattedAddress)
	}
	if len(result.Candidates) > 0 {
		result.FormattedAddress = result.Candidates[0]
	}
	span.SetAttributes(attribute.Int("address.candidates", len(result.Candidates)))
	return result, nil
}
