package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

const (
	DefaultForecastURL   = "https://api.open-meteo.com/v1/forecast"
	DefaultAirQualityURL = "https://air-quality-api.open-meteo.com/v1/air-quality"
)

// ForecastClient fetches current-instant and daily-aggregate data in imperial units.
type ForecastClient interface {
	Current(ctx context.Context, lat, lng float64) (CurrentConditions, error)
	Daily(ctx context.Context, lat, lng float64, days int) (DailySeries, error)
}

// AirQualityClient fetches the current air-quality index and particulate concentrations.
type AirQualityClient interface {
	AirQuality(ctx context.Context, lat, lng float64) (AirQualityReading, error)
}

// CurrentConditions is the provider's current-instant reading, not yet normalized.
type CurrentConditions struct {
	Temperature      float64
	WeatherCode      int
	WindSpeed        float64
	WindDirection    float64
	IsDay            bool
	Time             string
	UTCOffsetSeconds int
}

// DailySeries holds parallel per-day arrays. Nil elements are values the provider reported as null.
type DailySeries struct {
	Time                     []string
	WeatherCode              []*int
	TempMax                  []*float64
	TempMin                  []*float64
	PrecipitationProbability []*float64
	HumidityMean             []*float64
	Sunrise                  []*string
	Sunset                   []*string
	UTCOffsetSeconds         int
	Timezone                 string
}

// AirQualityReading is the provider's current air-quality payload. AQI is nil when unreported.
type AirQualityReading struct {
	EuropeanAQI *float64
	PM10        *float64
	PM25        *float64
}

// OpenMeteoClient talks to the Open-Meteo forecast and air-quality APIs. It implements
// ForecastClient and AirQualityClient.
type OpenMeteoClient struct {
	forecastURL   string
	airQualityURL string
	forecast      *requester
	airQuality    *requester
}

// NewOpenMeteoClient creates a client. Empty URLs use the public Open-Meteo endpoints.
func NewOpenMeteoClient(forecastURL, airQualityURL string, cfg Config) *OpenMeteoClient {
	if forecastURL == "" {
		forecastURL = DefaultForecastURL
	}
	if airQualityURL == "" {
		airQualityURL = DefaultAirQualityURL
	}
	return &OpenMeteoClient{
		forecastURL:   forecastURL,
		airQualityURL: airQualityURL,
		forecast:      newRequester(UpstreamForecast, cfg, nil),
		airQuality:    newRequester(UpstreamAirQuality, cfg, nil),
	}
}

func coordParams(lat, lng float64) url.Values {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lng, 'f', -1, 64))
	return params
}

type currentResponse struct {
	UTCOffsetSeconds int `json:"utc_offset_seconds"`
	Current          *struct {
		Time          string   `json:"time"`
		Temperature   *float64 `json:"temperature_2m"`
		WeatherCode   *int     `json:"weathercode"`
		WindSpeed     *float64 `json:"windspeed_10m"`
		WindDirection *float64 `json:"winddirection_10m"`
		IsDay         *int     `json:"is_day"`
	} `json:"current"`
}

func (c *OpenMeteoClient) Current(ctx context.Context, lat, lng float64) (CurrentConditions, error) {
	params := coordParams(lat, lng)
	params.Set("current", "temperature_2m,weathercode,windspeed_10m,winddirection_10m,is_day")
	params.Set("temperature_unit", "fahrenheit")
	params.Set("wind_speed_unit", "mph")
	params.Set("timezone", "auto")

	body, err := c.forecast.get(ctx, c.forecastURL, params)
	if err != nil {
		return CurrentConditions{}, err
	}

	var resp currentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return CurrentConditions{}, fmt.Errorf("%w: parse current: %v", ErrMalformedResponse, err)
	}
	cur := resp.Current
	if cur == nil || cur.Temperature == nil || cur.WeatherCode == nil {
		return CurrentConditions{}, fmt.Errorf("%w: current block missing temperature or weather code", ErrMalformedResponse)
	}

	out := CurrentConditions{
		Temperature:      *cur.Temperature,
		WeatherCode:      *cur.WeatherCode,
		Time:             cur.Time,
		UTCOffsetSeconds: resp.UTCOffsetSeconds,
	}
	if cur.WindSpeed != nil {
		out.WindSpeed = *cur.WindSpeed
	}
	if cur.WindDirection != nil {
		out.WindDirection = *cur.WindDirection
	}
	// Missing is_day is treated as daytime.
	out.IsDay = cur.IsDay == nil || *cur.IsDay == 1
	return out, nil
}

type dailyResponse struct {
	UTCOffsetSeconds int    `json:"utc_offset_seconds"`
	Timezone         string `json:"timezone"`
	Daily            *struct {
		Time        []string   `json:"time"`
		WeatherCode []*int     `json:"weathercode"`
		TempMax     []*float64 `json:"temperature_2m_max"`
		TempMin     []*float64 `json:"temperature_2m_min"`
		Precip      []*float64 `json:"precipitation_probability_max"`
		Humidity    []*float64 `json:"relative_humidity_2m_mean"`
		Sunrise     []*string  `json:"sunrise"`
		Sunset      []*string  `json:"sunset"`
	} `json:"daily"`
}

func (c *OpenMeteoClient) Daily(ctx context.Context, lat, lng float64, days int) (DailySeries, error) {
	params := coordParams(lat, lng)
	params.Set("daily", "weathercode,temperature_2m_max,temperature_2m_min,precipitation_probability_max,relative_humidity_2m_mean,sunrise,sunset")
	params.Set("temperature_unit", "fahrenheit")
	params.Set("timezone", "auto")
	params.Set("forecast_days", strconv.Itoa(days))

	body, err := c.forecast.get(ctx, c.forecastURL, params)
	if err != nil {
		return DailySeries{}, err
	}

	var resp dailyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return DailySeries{}, fmt.Errorf("%w: parse daily: %v", ErrMalformedResponse, err)
	}
	if resp.Daily == nil || resp.Daily.Time == nil {
		return DailySeries{}, fmt.Errorf("%w: daily block missing time series", ErrMalformedResponse)
	}
	d := resp.Daily
	return DailySeries{
		Time:                     d.Time,
		WeatherCode:              d.WeatherCode,
		TempMax:                  d.TempMax,
		TempMin:                  d.TempMin,
		PrecipitationProbability: d.Precip,
		HumidityMean:             d.Humidity,
		Sunrise:                  d.Sunrise,
		Sunset:                   d.Sunset,
		UTCOffsetSeconds:         resp.UTCOffsetSeconds,
		Timezone:                 resp.Timezone,
	}, nil
}

type airQualityResponse struct {
	Current *struct {
		EuropeanAQI *float64 `json:"european_aqi"`
		PM10        *float64 `json:"pm10"`
		PM25        *float64 `json:"pm2_5"`
	} `json:"current"`
}

func (c *OpenMeteoClient) AirQuality(ctx context.Context, lat, lng float64) (AirQualityReading, error) {
	params := coordParams(lat, lng)
	params.Set("current", "european_aqi,pm10,pm2_5")

	body, err := c.airQuality.get(ctx, c.airQualityURL, params)
	if err != nil {
		return AirQualityReading{}, err
	}

	var resp airQualityResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return AirQualityReading{}, fmt.Errorf("%w: parse air quality: %v", ErrMalformedResponse, err)
	}
	if resp.Current == nil {
		return AirQualityReading{}, fmt.Errorf("%w: air quality current block missing", ErrMalformedResponse)
	}
	return AirQualityReading{
		EuropeanAQI: resp.Current.EuropeanAQI,
		PM10:        resp.Current.PM10,
		PM25:        resp.Current.PM25,
	}, nil
}
