package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrAddressNotFound = errors.New("address not found")

// Geocoder resolves a postal address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Coordinates, error)
}

// AddressAPI queries the French national address API (BAN) /search endpoint.
type AddressAPI struct {
	client *resty.Client
}

type banResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"` // [lon, lat]
		} `json:"geometry"`
		Properties struct {
			Score float64 `json:"score"`
			Label string  `json:"label"`
		} `json:"properties"`
	} `json:"features"`
}

func NewAddressAPI(baseURL string) *AddressAPI {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetHeader("Accept", "application/json")
	return &AddressAPI{client: client}
}

func (g *AddressAPI) Geocode(ctx context.Context, address string) (Coordinates, error) {
	var out banResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"q": address, "limit": "1"}).
		SetResult(&out).
		Get("/search/")
	if err != nil {
		return Coordinates{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	if resp.IsError() {
		return Coordinates{}, fmt.Errorf("geocode %q: status %d", address, resp.StatusCode())
	}
	if len(out.Features) == 0 || len(out.Features[0].Geometry.Coordinates) < 2 {
		return Coordinates{}, fmt.Errorf("geocode %q: %w", address, ErrAddressNotFound)
	}
	c := out.Features[0].Geometry.Coordinates
	return Coordinates{Lat: c[1], Lon: c[0]}, nil
}
