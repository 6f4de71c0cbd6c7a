// Package suntimes computes sunrise and sunset locally for days the forecast provider
// reports without them.
package suntimes

import (
	"fmt"
	"time"

	"github.com/sj14/astral/pkg/astral"
)

// Layout matches the provider's local-time sunrise/sunset format.
const Layout = "2006-01-02T15:04"

// Compute returns sunrise and sunset for date ("YYYY-MM-DD") at the given coordinates,
// formatted in the fixed zone utcOffsetSeconds east of UTC. Days without a sunrise and
// sunset pair (polar day or night) return an error.
func Compute(lat, lng float64, date string, utcOffsetSeconds int) (sunrise, sunset string, err error) {
	zone := time.FixedZone("", utcOffsetSeconds)
	day, err := time.ParseInLocation("2006-01-02", date, zone)
	if err != nil {
		return "", "", fmt.Errorf("parse date %q: %w", date, err)
	}
	// Noon local keeps the UTC date aligned with the local date for any offset within +/-12h.
	day = day.Add(12 * time.Hour)

	observer := astral.Observer{Latitude: lat, Longitude: lng}
	rise, err := astral.Sunrise(observer, day)
	if err != nil {
		return "", "", fmt.Errorf("failed to calculate sunrise: %w", err)
	}
	set, err := astral.Sunset(observer, day)
	if err != nil {
		return "", "", fmt.Errorf("failed to calculate sunset: %w", err)
	}
	if !set.After(rise) || set.Sub(rise) > 24*time.Hour {
		return "", "", fmt.Errorf("no sunrise/sunset pair on %s", date)
	}
	return rise.In(zone).Format(Layout), set.In(zone).Format(Layout), nil
}
