package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/antonholmquist/jason"
	"golang.org/x/time/rate"
)

const (
	DefaultNominatimURL       = "https://nominatim.openstreetmap.org"
	DefaultNominatimUserAgent = "LocalWeatherApp/1.0"
)

// Place is one geocoding result. Address holds the provider's address components
// (city, town, village, county, state, country, ...) as plain strings.
type Place struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
	Address     map[string]string
}

// Geocoder performs forward and reverse geocoding.
type Geocoder interface {
	Search(ctx context.Context, query string, limit int) ([]Place, error)
	Reverse(ctx context.Context, lat, lng float64) (Place, error)
}

// NominatimClient talks to an OpenStreetMap Nominatim instance. Nominatim's usage policy
// requires an identifying User-Agent and at most one request per second.
type NominatimClient struct {
	baseURL string
	r       *requester
}

// NewNominatimClient creates a client. rps <= 0 uses the policy limit of 1 request per second.
func NewNominatimClient(baseURL string, cfg Config, rps float64) *NominatimClient {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultNominatimUserAgent
	}
	if rps <= 0 {
		rps = 1
	}
	limiter := rate.NewLimiter(rate.Every(time.Duration(float64(time.Second)/rps)), 1)
	return &NominatimClient{baseURL: baseURL, r: newRequester(UpstreamGeocoding, cfg, limiter)}
}

// Search returns up to limit places in provider rank order.
func (c *NominatimClient) Search(ctx context.Context, query string, limit int) ([]Place, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("addressdetails", "1")

	body, err := c.r.get(ctx, c.baseURL+"/search", params)
	if err != nil {
		return nil, err
	}

	v, err := jason.NewValueFromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse search: %v", ErrMalformedResponse, err)
	}
	vals, err := v.Array()
	if err != nil {
		return nil, fmt.Errorf("%w: search result is not an array: %v", ErrMalformedResponse, err)
	}

	places := make([]Place, 0, len(vals))
	for _, val := range vals {
		obj, err := val.Object()
		if err != nil {
			return nil, fmt.Errorf("%w: search result is not an object: %v", ErrMalformedResponse, err)
		}
		p, err := parsePlace(obj)
		if err != nil {
			return nil, err
		}
		places = append(places, p)
		if limit > 0 && len(places) == limit {
			break
		}
	}
	return places, nil
}

// Reverse returns the place at the given coordinates. ErrNotFound when Nominatim has no match.
func (c *NominatimClient) Reverse(ctx context.Context, lat, lng float64) (Place, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	params.Set("format", "json")
	params.Set("addressdetails", "1")

	body, err := c.r.get(ctx, c.baseURL+"/reverse", params)
	if err != nil {
		return Place{}, err
	}

	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return Place{}, fmt.Errorf("%w: parse reverse: %v", ErrMalformedResponse, err)
	}
	// Nominatim reports "Unable to geocode" as a 200 with an error field.
	if msg, err := obj.GetString("error"); err == nil {
		return Place{}, fmt.Errorf("%w: %s", ErrNotFound, msg)
	}
	return parsePlace(obj)
}

// parsePlace reads lat/lon (strings in Nominatim output), display_name and address.
func parsePlace(obj *jason.Object) (Place, error) {
	latStr, err := obj.GetString("lat")
	if err != nil {
		return Place{}, fmt.Errorf("%w: place missing lat", ErrMalformedResponse)
	}
	lonStr, err := obj.GetString("lon")
	if err != nil {
		return Place{}, fmt.Errorf("%w: place missing lon", ErrMalformedResponse)
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return Place{}, fmt.Errorf("%w: bad lat %q", ErrMalformedResponse, latStr)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return Place{}, fmt.Errorf("%w: bad lon %q", ErrMalformedResponse, lonStr)
	}

	p := Place{Latitude: lat, Longitude: lon, Address: map[string]string{}}
	p.DisplayName, _ = obj.GetString("display_name")
	if addr, err := obj.GetObject("address"); err == nil {
		for k, v := range addr.Map() {
			if s, err := v.String(); err == nil {
				p.Address[k] = s
			}
		}
	}
	return p, nil
}
