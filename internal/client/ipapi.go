package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/antonholmquist/jason"
)

const DefaultIPAPIURL = "https://ipapi.co"

// IPLocation is an approximate position for a public IP address.
type IPLocation struct {
	Latitude  float64
	Longitude float64
	City      string
	Region    string
	Country   string
}

// IPLocator resolves a public IP address to an approximate location.
type IPLocator interface {
	Locate(ctx context.Context, ip string) (IPLocation, error)
}

// IPAPIClient talks to ipapi.co.
type IPAPIClient struct {
	baseURL string
	r       *requester
}

func NewIPAPIClient(baseURL string, cfg Config) *IPAPIClient {
	if baseURL == "" {
		baseURL = DefaultIPAPIURL
	}
	return &IPAPIClient{baseURL: strings.TrimRight(baseURL, "/"), r: newRequester(UpstreamIPLocation, cfg, nil)}
}

// Locate looks up ip. An empty ip asks for the caller's own address.
func (c *IPAPIClient) Locate(ctx context.Context, ip string) (IPLocation, error) {
	endpoint := c.baseURL + "/json/"
	if ip != "" {
		endpoint = c.baseURL + "/" + url.PathEscape(ip) + "/json/"
	}
	body, err := c.r.get(ctx, endpoint, url.Values{})
	if err != nil {
		return IPLocation{}, err
	}

	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return IPLocation{}, fmt.Errorf("%w: parse ip location: %v", ErrMalformedResponse, err)
	}
	// ipapi.co reports reserved ranges and quota exhaustion as a 200 with error=true.
	if failed, err := obj.GetBoolean("error"); err == nil && failed {
		reason, _ := obj.GetString("reason")
		return IPLocation{}, fmt.Errorf("%w: ip lookup: %s", ErrUpstreamFailure, reason)
	}

	lat, err := obj.GetFloat64("latitude")
	if err != nil {
		return IPLocation{}, fmt.Errorf("%w: ip location missing latitude", ErrMalformedResponse)
	}
	lng, err := obj.GetFloat64("longitude")
	if err != nil {
		return IPLocation{}, fmt.Errorf("%w: ip location missing longitude", ErrMalformedResponse)
	}
	loc := IPLocation{Latitude: lat, Longitude: lng}
	loc.City, _ = obj.GetString("city")
	loc.Region, _ = obj.GetString("region")
	loc.Country, _ = obj.GetString("country_name")
	return loc, nil
}
