// Package lookup runs a one-shot dashboard load: pick a location, fetch the current report and
// forecast for it, and remember the location for next time.
package lookup

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/validation"
)

// DefaultDays is the forecast length a dashboard load asks for.
const DefaultDays = 7

// Locator approximates a location from an IP address.
type Locator interface {
	GetLocationFromIP(ctx context.Context, ip string) models.Location
	LocateCaller(ctx context.Context) models.Location
}

// SavedLocations persists the last location used.
type SavedLocations interface {
	Load() (models.Location, bool, error)
	Save(loc models.Location) error
}

// Weather fetches the two dashboard payloads.
type Weather interface {
	GetCurrentReport(ctx context.Context, lat, lng float64) (models.CurrentReport, error)
	GetForecast(ctx context.Context, lat, lng float64, days int) (models.Forecast, error)
}

// Request selects where to look. Coordinates, when set, skip the rest of the chain. IP, when
// set, is located instead of this machine's own address.
type Request struct {
	Coordinates *models.Coordinates
	IP          string
	Days        int
	IgnoreSaved bool
}

// Result is what a dashboard load shows.
type Result struct {
	Location models.Location      `json:"location"`
	Current  models.CurrentReport `json:"current"`
	Forecast models.Forecast      `json:"forecast"`
}

type Runner struct {
	locator Locator
	saved   SavedLocations
	weather Weather
	logger  *zap.Logger
}

// New creates a Runner. saved may be nil to disable persistence.
func New(locator Locator, saved SavedLocations, weather Weather, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{locator: locator, saved: saved, weather: weather, logger: logger}
}

// Resolve walks the chain explicit coordinates -> saved location -> IP -> default. Every step
// but the first degrades to the next; the IP step already falls back to the default location.
func (r *Runner) Resolve(ctx context.Context, req Request) (models.Location, error) {
	if req.Coordinates != nil {
		if !validation.InRange(*req.Coordinates) {
			return models.Location{}, validation.ErrInvalidCoordinates
		}
		return models.Location{
			Latitude:  req.Coordinates.Latitude,
			Longitude: req.Coordinates.Longitude,
			Source:    models.SourceManual,
		}, nil
	}

	if r.saved != nil && !req.IgnoreSaved {
		loc, ok, err := r.saved.Load()
		switch {
		case err != nil:
			r.logger.Warn("saved location unreadable, ignoring", zap.Error(err))
		case ok && validation.InRange(models.Coordinates{Latitude: loc.Latitude, Longitude: loc.Longitude}):
			return loc, nil
		}
	}

	if req.IP != "" {
		return r.locator.GetLocationFromIP(ctx, req.IP), nil
	}
	return r.locator.LocateCaller(ctx), nil
}

// Run resolves a location, fetches both payloads concurrently and saves the location once
// both succeed. A failed save is logged, not returned.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	loc, err := r.Resolve(ctx, req)
	if err != nil {
		return Result{}, err
	}
	days := req.Days
	if days <= 0 {
		days = DefaultDays
	}

	res := Result{Location: loc}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		current, err := r.weather.GetCurrentReport(gctx, loc.Latitude, loc.Longitude)
		if err != nil {
			return fmt.Errorf("current weather: %w", err)
		}
		res.Current = current
		return nil
	})
	g.Go(func() error {
		forecast, err := r.weather.GetForecast(gctx, loc.Latitude, loc.Longitude, days)
		if err != nil {
			return fmt.Errorf("forecast: %w", err)
		}
		res.Forecast = forecast
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	if r.saved != nil {
		if err := r.saved.Save(loc); err != nil {
			r.logger.Warn("failed to save location", zap.Error(err))
		}
	}
	return res, nil
}
