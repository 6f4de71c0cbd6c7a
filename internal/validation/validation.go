package validation

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

var (
	// ErrMissingCoordinates is returned when lat or lng is absent.
	ErrMissingCoordinates = errors.New("latitude and longitude required")
	// ErrInvalidCoordinates is returned when lat or lng is not a finite number in range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrQueryRequired is returned when a search query is empty or whitespace-only.
	ErrQueryRequired = errors.New("search query required")
	// ErrQueryTooLong is returned when a search query exceeds the maximum length.
	ErrQueryTooLong = errors.New("search query too long")
	// ErrQueryInvalidChars is returned when a search query contains disallowed characters.
	ErrQueryInvalidChars = errors.New("search query contains invalid characters")
	// ErrInvalidDays is returned when the forecast day count is not an integer in range.
	ErrInvalidDays = errors.New("invalid days")
)

// Forecast day bounds accepted by the provider.
const (
	DefaultForecastDays = 14
	MinForecastDays     = 1
	MaxForecastDays     = 16
)

var validate = validator.New()

type coordinateInput struct {
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`
}

type daysInput struct {
	Days int `validate:"gte=1,lte=16"`
}

// ValidateCoordinates reports whether lat and lng parse as finite numbers within
// [-90,90] and [-180,180]. It never fails, only reports.
func ValidateCoordinates(lat, lng string) bool {
	_, err := ParseCoordinates(lat, lng)
	return err == nil
}

// ParseCoordinates parses and range-checks raw coordinate strings. Leading and trailing
// whitespace is ignored; trailing garbage ("47abc") is rejected.
func ParseCoordinates(lat, lng string) (models.Coordinates, error) {
	lat, lng = strings.TrimSpace(lat), strings.TrimSpace(lng)
	if lat == "" || lng == "" {
		return models.Coordinates{}, ErrMissingCoordinates
	}
	la, err := parseFinite(lat)
	if err != nil {
		return models.Coordinates{}, ErrInvalidCoordinates
	}
	lo, err := parseFinite(lng)
	if err != nil {
		return models.Coordinates{}, ErrInvalidCoordinates
	}
	if err := validate.Struct(coordinateInput{Latitude: la, Longitude: lo}); err != nil {
		return models.Coordinates{}, ErrInvalidCoordinates
	}
	return models.Coordinates{Latitude: la, Longitude: lo}, nil
}

// InRange reports whether already-parsed coordinates are finite and within bounds.
func InRange(c models.Coordinates) bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) || math.IsInf(c.Latitude, 0) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return validate.Struct(coordinateInput{Latitude: c.Latitude, Longitude: c.Longitude}) == nil
}

func parseFinite(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidCoordinates
	}
	return f, nil
}

// ParseDays parses the forecast day count. Empty input yields DefaultForecastDays.
func ParseDays(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultForecastDays, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, ErrInvalidDays
	}
	if err := validate.Struct(daysInput{Days: n}); err != nil {
		return 0, ErrInvalidDays
	}
	return n, nil
}

// ValidateQuery trims the input, enforces maxLen (in runes; 0 disables the check), and
// rejects control characters and invalid UTF-8. Any printable text is passed to the geocoder.
// Returns the trimmed string or an error suitable for a 400 response.
func ValidateQuery(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrQueryRequired
	}
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrQueryTooLong
	}
	if !utf8.ValidString(s) {
		return "", ErrQueryInvalidChars
	}
	for _, c := range r {
		if unicode.IsControl(c) {
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}
