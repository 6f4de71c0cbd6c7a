package client

import (
	"context"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIPAPIURL = "https://ip.test"

// TestIPAPIClient_Locate verifies the per-IP path and field mapping.
func TestIPAPIClient_Locate(t *testing.T) {
	cfg, mt := newMockConfig()
	mt.RegisterResponder("GET", testIPAPIURL+"/8.8.8.8/json/", httpmock.NewStringResponder(200,
		`{"ip":"8.8.8.8","city":"Mountain View","region":"California","country_name":"United States","latitude":37.42,"longitude":-122.08}`))
	c := NewIPAPIClient(testIPAPIURL+"/", cfg)

	loc, err := c.Locate(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, 37.42, loc.Latitude)
	assert.Equal(t, -122.08, loc.Longitude)
	assert.Equal(t, "Mountain View", loc.City)
	assert.Equal(t, "California", loc.Region)
	assert.Equal(t, "United States", loc.Country)
}

// TestIPAPIClient_Locate_Self verifies an empty address uses the caller's-own-IP path.
func TestIPAPIClient_Locate_Self(t *testing.T) {
	cfg, mt := newMockConfig()
	mt.RegisterResponder("GET", testIPAPIURL+"/json/", httpmock.NewStringResponder(200,
		`{"city":"Lisbon","region":"Lisbon","country_name":"Portugal","latitude":38.72,"longitude":-9.14}`))
	c := NewIPAPIClient(testIPAPIURL, cfg)

	loc, err := c.Locate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", loc.City)
}

// TestIPAPIClient_Locate_ErrorBody verifies error=true in a 200 body is a failure.
func TestIPAPIClient_Locate_ErrorBody(t *testing.T) {
	cfg, mt := newMockConfig()
	cfg.RetryAttempts = 1
	mt.RegisterResponder("GET", testIPAPIURL+"/1.2.3.4/json/", httpmock.NewStringResponder(200,
		`{"ip":"1.2.3.4","error":true,"reason":"RateLimited"}`))
	c := NewIPAPIClient(testIPAPIURL, cfg)

	_, err := c.Locate(context.Background(), "1.2.3.4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RateLimited")
}

// TestIPAPIClient_Locate_MissingCoordinates verifies a body without coordinates is malformed.
func TestIPAPIClient_Locate_MissingCoordinates(t *testing.T) {
	cfg, mt := newMockConfig()
	mt.RegisterResponder("GET", testIPAPIURL+"/1.2.3.4/json/", httpmock.NewStringResponder(200, `{"city":"Nowhere"}`))
	c := NewIPAPIClient(testIPAPIURL, cfg)

	_, err := c.Locate(context.Background(), "1.2.3.4")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}
