package client

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/weather-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

const testForecastURL = "https://forecast.test/v1/forecast"
const testAirURL = "https://air.test/v1/air-quality"

func newMockConfig() (Config, *httpmock.MockTransport) {
	mt := httpmock.NewMockTransport()
	return Config{
		HTTPClient:              &http.Client{Transport: mt},
		Timeout:                 time.Second,
		RetryAttempts:           3,
		RetryBaseDelay:          time.Millisecond,
		RetryMaxDelay:           2 * time.Millisecond,
		BreakerFailureThreshold: 10,
	}, mt
}

const currentBody = `{
	"latitude": 47.6, "longitude": -122.33, "utc_offset_seconds": -25200, "timezone": "America/Los_Angeles",
	"current": {"time": "2026-10-15T09:00", "temperature_2m": 72.4, "weathercode": 0,
		"windspeed_10m": 5.3, "winddirection_10m": 180, "is_day": 1}
}`

// TestOpenMeteoClient_Current_Success verifies request parameters and mapping of the current block.
func TestOpenMeteoClient_Current_Success(t *testing.T) {
	cfg, mt := newMockConfig()
	var gotQuery map[string][]string
	mt.RegisterResponder("GET", testForecastURL, func(req *http.Request) (*http.Response, error) {
		gotQuery = req.URL.Query()
		return httpmock.NewStringResponse(200, currentBody), nil
	})
	c := NewOpenMeteoClient(testForecastURL, testAirURL, cfg)

	cur, err := c.Current(context.Background(), 47.6062, -122.3321)
	require.NoError(t, err)

	assert.Equal(t, 72.4, cur.Temperature)
	assert.Equal(t, 0, cur.WeatherCode)
	assert.Equal(t, 5.3, cur.WindSpeed)
	assert.Equal(t, 180.0, cur.WindDirection)
	assert.True(t, cur.IsDay)
	assert.Equal(t, -25200, cur.UTCOffsetSeconds)

	assert.Equal(t, "47.6062", gotQuery["latitude"][0])
	assert.Equal(t, "-122.3321", gotQuery["longitude"][0])
	assert.Equal(t, "fahrenheit", gotQuery["temperature_unit"][0])
	assert.Equal(t, "mph", gotQuery["wind_speed_unit"][0])
	assert.Equal(t, "auto", gotQuery["timezone"][0])
	assert.Contains(t, gotQuery["current"][0], "is_day")
}

// TestOpenMeteoClient_Current_IsNight verifies is_day=0 maps to false.
func TestOpenMeteoClient_Current_IsNight(t *testing.T) {
	cfg, mt := newMockConfig()
	mt.RegisterResponder("GET", testForecastURL, httpmock.NewStringResponder(200,
		`{"current":{"temperature_2m":40,"weathercode":3,"is_day":0}}`))
	c := NewOpenMeteoClient(testForecastURL, testAirURL, cfg)

	cur, err := c.Current(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.False(t, cur.IsDay)
}

// TestOpenMeteoClient_Current_Malformed verifies missing fields and bad JSON are reported as malformed.
func TestOpenMeteoClient_Current_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>oops</html>`},
		{"no current block", `{"latitude": 1}`},
		{"missing temperature", `{"current":{"weathercode":0}}`},
		{"missing code", `{"current":{"temperature_2m":50}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, mt := newMockConfig()
			mt.RegisterResponder("GET", testForecastURL, httpmock.NewStringResponder(200, tt.body))
			c := NewOpenMeteoClient(testForecastURL, testAirURL, cfg)

			_, err := c.Current(context.Background(), 1, 2)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

// TestOpenMeteoClient_Daily_Success verifies arrays pass through with nulls preserved.
func TestOpenMeteoClient_Daily_Success(t *testing.T) {
	cfg, mt := newMockConfig()
	var days string
	mt.RegisterResponder("GET", testForecastURL, func(req *http.Request) (*http.Response, error) {
		days = req.URL.Query().Get("forecast_days")
		return httpmock.NewStringResponse(200, `{
			"utc_offset_seconds": 3600, "timezone": "Europe/Berlin",
			"daily": {
				"time": ["2026-10-15", "2026-10-16"],
				"weathercode": [61, 0],
				"temperature_2m_max": [60.4, 65.6],
				"temperature_2m_min": [48.1, 50.0],
				"precipitation_probability_max": [80, null],
				"relative_humidity_2m_mean": [90, 70],
				"sunrise": ["2026-10-15T07:25", "2026-10-16T07:27"],
				"sunset": ["2026-10-15T18:20", null]
			}
		}`), nil
	})
	c := NewOpenMeteoClient(testForecastURL, testAirURL, cfg)

	d, err := c.Daily(context.Background(), 52.52, 13.41, 7)
	require.NoError(t, err)

	assert.Equal(t, "7", days)
	assert.Equal(t, []string{"2026-10-15", "2026-10-16"}, d.Time)
	require.Len(t, d.PrecipitationProbability, 2)
	assert.Equal(t, 80.0, *d.PrecipitationProbability[0])
	assert.Nil(t, d.PrecipitationProbability[1])
	assert.Nil(t, d.Sunset[1])
	assert.Equal(t, 3600, d.UTCOffsetSeconds)
	assert.Equal(t, "Europe/Berlin", d.Timezone)
}

// TestOpenMeteoClient_Daily_MissingSeries verifies a response without a time series is malformed.
func TestOpenMeteoClient_Daily_MissingSeries(t *testing.T) {
	cfg, mt := newMockConfig()
	mt.RegisterResponder("GET", testForecastURL, httpmock.NewStringResponder(200, `{"daily":{}}`))
	c := NewOpenMeteoClient(testForecastURL, testAirURL, cfg)

	_, err := c.Daily(context.Background(), 1, 2, 14)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

// TestOpenMeteoClient_AirQuality verifies index and particulates, and a null index.
func TestOpenMeteoClient_AirQuality(t *testing.T) {
	cfg, mt := newMockConfig()
	mt.RegisterResponder("GET", testAirURL, httpmock.NewStringResponder(200,
		`{"current":{"european_aqi":null,"pm10":12.5,"pm2_5":7.1}}`))
	c := NewOpenMeteoClient(testForecastURL, testAirURL, cfg)

	aq, err := c.AirQuality(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Nil(t, aq.EuropeanAQI)
	require.NotNil(t, aq.PM10)
	assert.Equal(t, 12.5, *aq.PM10)
	assert.Equal(t, 7.1, *aq.PM25)
}

// TestRequester_RetriesServerErrors verifies 5xx responses are retried until success.
func TestRequester_RetriesServerErrors(t *testing.T) {
	cfg, mt := newMockConfig()
	var calls atomic.Int32
	mt.RegisterResponder("GET", testForecastURL, func(req *http.Request) (*http.Response, error) {
		if calls.Add(1) < 3 {
			return httpmock.NewStringResponse(503, "unavailable"), nil
		}
		return httpmock.NewStringResponse(200, currentBody), nil
	})
	c := NewOpenMeteoClient(testForecastURL, testAirURL, cfg)

	_, err := c.Current(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

// TestRequester_ExhaustsRetries verifies the last upstream error is wrapped after all attempts fail.
func TestRequester_ExhaustsRetries(t *testing.T) {
	cfg, mt := newMockConfig()
	mt.RegisterResponder("GET", testForecastURL, httpmock.NewStringResponder(502, "bad gateway"))
	c := NewOpenMeteoClient(testForecastURL, testAirURL, cfg)

	_, err := c.Current(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrUpstreamFailure)
	assert.Contains(t, err.Error(), "exhausted retries")
}

// TestRequester_DoesNotRetryClientErrors verifies a 400 fails immediately.
func TestRequester_DoesNotRetryClientErrors(t *testing.T) {
	cfg, mt := newMockConfig()
	var calls atomic.Int32
	mt.RegisterResponder("GET", testForecastURL, func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return httpmock.NewStringResponse(400, `{"error":true,"reason":"bad latitude"}`), nil
	})
	c := NewOpenMeteoClient(testForecastURL, testAirURL, cfg)

	_, err := c.Current(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrBadStatus)
	assert.Equal(t, int32(1), calls.Load())
}

// TestRequester_TransportError verifies network failures are retried and then surfaced.
func TestRequester_TransportError(t *testing.T) {
	cfg, mt := newMockConfig()
	mt.RegisterResponder("GET", testForecastURL, httpmock.NewErrorResponder(errors.New("connection refused")))
	c := NewOpenMeteoClient(testForecastURL, testAirURL, cfg)

	_, err := c.Current(context.Background(), 1, 2)
	require.Error(t, err)
	assert.Equal(t, ErrorCategoryNetwork, CategorizeError(err))
}

// TestRequester_CircuitOpens verifies repeated failures open the breaker and short-circuit later calls.
func TestRequester_CircuitOpens(t *testing.T) {
	cfg, mt := newMockConfig()
	cfg.RetryAttempts = 1
	cfg.BreakerFailureThreshold = 2
	cfg.BreakerTimeout = time.Minute
	var calls atomic.Int32
	mt.RegisterResponder("GET", testForecastURL, func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return httpmock.NewStringResponse(500, "boom"), nil
	})
	c := NewOpenMeteoClient(testForecastURL, testAirURL, cfg)

	for i := 0; i < 2; i++ {
		_, _ = c.Current(context.Background(), 1, 2)
	}
	_, err := c.Current(context.Background(), 1, 2)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, int32(2), calls.Load())
}

// TestRequester_PropagatesCorrelationID verifies the request correlation ID is forwarded upstream.
func TestRequester_PropagatesCorrelationID(t *testing.T) {
	cfg, mt := newMockConfig()
	var got string
	mt.RegisterResponder("GET", testForecastURL, func(req *http.Request) (*http.Response, error) {
		got = req.Header.Get("X-Correlation-ID")
		return httpmock.NewStringResponse(200, currentBody), nil
	})
	c := NewOpenMeteoClient(testForecastURL, testAirURL, cfg)

	ctx := observability.WithCorrelationID(context.Background(), "corr-42")
	_, err := c.Current(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "corr-42", got)
}

// TestRequester_ContextCanceled verifies a canceled context stops without retrying.
func TestRequester_ContextCanceled(t *testing.T) {
	cfg, mt := newMockConfig()
	var calls atomic.Int32
	mt.RegisterResponder("GET", testForecastURL, func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return httpmock.NewStringResponse(200, currentBody), nil
	})
	c := NewOpenMeteoClient(testForecastURL, testAirURL, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Current(ctx, 1, 2)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), calls.Load())
}

// TestStatusLabel verifies metric labels for response status classes.
func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "success", statusLabel(200))
	assert.Equal(t, "rate_limited", statusLabel(429))
	assert.Equal(t, "client_error", statusLabel(404))
	assert.Equal(t, "server_error", statusLabel(503))
	assert.Equal(t, "error", statusLabel(102))
}
