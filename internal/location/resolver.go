// Package location turns search queries, client IP addresses and coordinates into
// normalized location records.
package location

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/validation"
)

// ErrSearchFailed is returned when the geocoding provider cannot serve a search.
var ErrSearchFailed = errors.New("location search failed")

// MaxSearchResults caps the number of search results returned.
const MaxSearchResults = 5

var (
	// Address fields tried in order for a search result's city.
	searchCityFields = []string{"city", "town", "village"}
	// Reverse geocoding also falls back to the county for rural coordinates.
	reverseCityFields = []string{"city", "town", "village", "county"}
)

// DefaultLocation is the fixed fallback used when no better location is known.
func DefaultLocation() models.Location {
	return models.Location{
		Latitude:  47.6062,
		Longitude: -122.3321,
		City:      "Seattle",
		State:     "WA",
		Country:   "US",
		Source:    models.SourceDefault,
	}
}

// Resolver resolves locations from free text, IP addresses and coordinates.
type Resolver struct {
	geocoder   client.Geocoder
	ipLocator  client.IPLocator
	defaultLoc models.Location
	logger     *zap.Logger
}

// NewResolver creates a Resolver. A zero defaultLoc uses DefaultLocation().
func NewResolver(geocoder client.Geocoder, ipLocator client.IPLocator, defaultLoc models.Location, logger *zap.Logger) *Resolver {
	if defaultLoc == (models.Location{}) {
		defaultLoc = DefaultLocation()
	}
	defaultLoc.Source = models.SourceDefault
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{geocoder: geocoder, ipLocator: ipLocator, defaultLoc: defaultLoc, logger: logger}
}

// Default returns the configured fallback location.
func (r *Resolver) Default() models.Location {
	return r.defaultLoc
}

// ValidateCoordinates reports whether lat and lng are finite numbers in range.
func (r *Resolver) ValidateCoordinates(lat, lng string) bool {
	return validation.ValidateCoordinates(lat, lng)
}

// SearchLocations returns up to MaxSearchResults matches in provider rank order.
// Provider failure is returned as ErrSearchFailed; an empty slice means no matches.
func (r *Resolver) SearchLocations(ctx context.Context, query string) ([]models.Location, error) {
	places, err := r.geocoder.Search(ctx, query, MaxSearchResults)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}

	out := make([]models.Location, 0, len(places))
	for _, p := range places {
		c := models.Coordinates{Latitude: p.Latitude, Longitude: p.Longitude}
		if !validation.InRange(c) {
			r.logger.Warn("dropping search result with out-of-range coordinates",
				zap.Float64("latitude", p.Latitude), zap.Float64("longitude", p.Longitude))
			continue
		}
		out = append(out, models.Location{
			Latitude:    p.Latitude,
			Longitude:   p.Longitude,
			City:        FirstNonEmpty(p.Address, searchCityFields...),
			State:       p.Address["state"],
			Country:     p.Address["country"],
			DisplayName: p.DisplayName,
			Source:      models.SourceManual,
		})
		if len(out) == MaxSearchResults {
			break
		}
	}
	return out, nil
}

// GetLocationFromIP approximates the caller's location from its IP address. Loopback,
// private, link-local and unparseable addresses resolve to the default location without
// an upstream call. Provider failures also yield the default; this never returns an error.
func (r *Resolver) GetLocationFromIP(ctx context.Context, ip string) models.Location {
	if !IsPublicIP(ip) {
		return r.defaultLoc
	}
	return r.locate(ctx, ip)
}

// LocateCaller asks the IP provider for the location of this process's own public address.
// Used outside a request, where there is no client address to look up.
func (r *Resolver) LocateCaller(ctx context.Context) models.Location {
	return r.locate(ctx, "")
}

func (r *Resolver) locate(ctx context.Context, ip string) models.Location {
	found, err := r.ipLocator.Locate(ctx, ip)
	if err != nil {
		observability.SoftFailuresTotal.WithLabelValues("ipLocation").Inc()
		observability.LoggerFromContext(ctx).Warn("ip location failed, using default",
			zap.String("category", string(client.CategorizeError(err))), zap.Error(err))
		return r.defaultLoc
	}
	if !validation.InRange(models.Coordinates{Latitude: found.Latitude, Longitude: found.Longitude}) {
		observability.SoftFailuresTotal.WithLabelValues("ipLocation").Inc()
		return r.defaultLoc
	}
	return models.Location{
		Latitude:  found.Latitude,
		Longitude: found.Longitude,
		City:      found.City,
		State:     found.Region,
		Country:   found.Country,
		Source:    models.SourceIP,
	}
}

// ReverseGeocode returns the place name at the given coordinates, or nil on any failure.
func (r *Resolver) ReverseGeocode(ctx context.Context, lat, lng float64) *models.LocationInfo {
	p, err := r.geocoder.Reverse(ctx, lat, lng)
	if err != nil {
		observability.SoftFailuresTotal.WithLabelValues("reverseGeocode").Inc()
		observability.LoggerFromContext(ctx).Debug("reverse geocode failed",
			zap.String("category", string(client.CategorizeError(err))), zap.Error(err))
		return nil
	}
	info := models.LocationInfo{
		City:    FirstNonEmpty(p.Address, reverseCityFields...),
		State:   p.Address["state"],
		Country: p.Address["country"],
	}
	if info == (models.LocationInfo{}) {
		return nil
	}
	return &info
}

// FirstNonEmpty returns the value of the first candidate key with a non-blank value in fields.
func FirstNonEmpty(fields map[string]string, candidates ...string) string {
	for _, k := range candidates {
		if v := strings.TrimSpace(fields[k]); v != "" {
			return v
		}
	}
	return ""
}

// IsPublicIP reports whether ip parses and is routable on the public internet.
func IsPublicIP(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	return !(parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsLinkLocalUnicast() ||
		parsed.IsLinkLocalMulticast() || parsed.IsUnspecified())
}
