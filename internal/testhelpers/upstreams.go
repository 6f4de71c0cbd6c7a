// Package testhelpers provides an in-process fake of every upstream provider and a fully
// wired service stack pointed at it, for end-to-end tests.
package testhelpers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

// Route names accepted by Respond and Calls.
const (
	RouteCurrent    = "current"
	RouteDaily      = "daily"
	RouteAirQuality = "airQuality"
	RouteSearch     = "search"
	RouteReverse    = "reverse"
	RouteIP         = "ip"
)

// CurrentBody is an Open-Meteo current response: 72.4°F, clear sky, daytime.
const CurrentBody = `{"utc_offset_seconds":-25200,"current":{"time":"2026-10-15T12:00","temperature_2m":72.4,"weathercode":0,"windspeed_10m":5.2,"winddirection_10m":180,"is_day":1}}`

// AirQualityBody is an Open-Meteo air-quality response with a Good index.
const AirQualityBody = `{"current":{"european_aqi":42,"pm10":12.5,"pm2_5":6.1}}`

// SearchBody is a Nominatim search response with one Seattle result.
const SearchBody = `[{"lat":"47.6038321","lon":"-122.330062","display_name":"Seattle, King County, Washington, United States","address":{"city":"Seattle","county":"King County","state":"Washington","country":"United States"}}]`

// ReverseBody is a Nominatim reverse response for Seattle.
const ReverseBody = `{"lat":"47.6062","lon":"-122.3321","display_name":"Seattle","address":{"city":"Seattle","state":"Washington","country":"United States"}}`

// IPBody is an ipapi.co response for a public address in New York.
const IPBody = `{"ip":"8.8.8.8","city":"New York","region":"New York","country_name":"United States","latitude":40.7128,"longitude":-74.006}`

type response struct {
	status int
	body   string
	delay  time.Duration
}

// FakeUpstreams serves Open-Meteo, Nominatim and ipapi.co endpoints from one httptest server.
// Responses are configurable per route; unconfigured routes return the defaults above.
type FakeUpstreams struct {
	Server *httptest.Server

	mu        sync.Mutex
	responses map[string]response
	calls     map[string]int
	userAgent map[string]string
}

// NewFakeUpstreams starts the fake and closes it when t finishes.
func NewFakeUpstreams(t testing.TB) *FakeUpstreams {
	t.Helper()
	f := &FakeUpstreams{
		responses: map[string]response{
			RouteCurrent:    {status: http.StatusOK, body: CurrentBody},
			RouteDaily:      {status: http.StatusOK, body: DailyBody(time.Now(), 3)},
			RouteAirQuality: {status: http.StatusOK, body: AirQualityBody},
			RouteSearch:     {status: http.StatusOK, body: SearchBody},
			RouteReverse:    {status: http.StatusOK, body: ReverseBody},
			RouteIP:         {status: http.StatusOK, body: IPBody},
		},
		calls:     map[string]int{},
		userAgent: map[string]string{},
	}

	r := mux.NewRouter()
	r.HandleFunc("/v1/forecast", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Has("daily") {
			f.serve(RouteDaily, w, req)
			return
		}
		f.serve(RouteCurrent, w, req)
	})
	r.HandleFunc("/v1/air-quality", f.handler(RouteAirQuality))
	r.HandleFunc("/nominatim/search", f.handler(RouteSearch))
	r.HandleFunc("/nominatim/reverse", f.handler(RouteReverse))
	r.HandleFunc("/ipapi/{ip}/json/", f.handler(RouteIP))
	r.HandleFunc("/ipapi/json/", f.handler(RouteIP))

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// Respond sets the status and body served for route.
func (f *FakeUpstreams) Respond(route string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[route] = response{status: status, body: body}
}

// Delay makes route wait d before responding, or until the request is canceled.
func (f *FakeUpstreams) Delay(route string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := f.responses[route]
	resp.delay = d
	f.responses[route] = resp
}

// Calls returns how many requests route has received.
func (f *FakeUpstreams) Calls(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[route]
}

// UserAgent returns the User-Agent of the last request to route.
func (f *FakeUpstreams) UserAgent(route string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userAgent[route]
}

func (f *FakeUpstreams) ForecastURL() string   { return f.Server.URL + "/v1/forecast" }
func (f *FakeUpstreams) AirQualityURL() string { return f.Server.URL + "/v1/air-quality" }
func (f *FakeUpstreams) NominatimURL() string  { return f.Server.URL + "/nominatim" }
func (f *FakeUpstreams) IPAPIURL() string      { return f.Server.URL + "/ipapi" }

func (f *FakeUpstreams) handler(route string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) { f.serve(route, w, r) }
}

func (f *FakeUpstreams) serve(route string, w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls[route]++
	f.userAgent[route] = r.UserAgent()
	resp := f.responses[route]
	f.mu.Unlock()

	if resp.delay > 0 {
		select {
		case <-time.After(resp.delay):
		case <-r.Context().Done():
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = w.Write([]byte(resp.body))
}

// DailyBody builds an Open-Meteo daily response of n days starting at start's date, with
// rain on every other day.
func DailyBody(start time.Time, n int) string {
	var dates, codes, maxes, mins, precip, humidity, sunrise, sunset []string
	for i := 0; i < n; i++ {
		d := start.AddDate(0, 0, i).Format("2006-01-02")
		dates = append(dates, fmt.Sprintf("%q", d))
		code := "0"
		if i%2 == 1 {
			code = "61"
		}
		codes = append(codes, code)
		maxes = append(maxes, fmt.Sprintf("%.1f", 65.0+float64(i)))
		mins = append(mins, fmt.Sprintf("%.1f", 45.0+float64(i)))
		precip = append(precip, fmt.Sprintf("%d", i*10))
		humidity = append(humidity, "70")
		sunrise = append(sunrise, fmt.Sprintf("%q", d+"T07:15"))
		sunset = append(sunset, fmt.Sprintf("%q", d+"T18:30"))
	}
	join := func(s []string) string { return "[" + strings.Join(s, ",") + "]" }
	return fmt.Sprintf(`{"utc_offset_seconds":-25200,"timezone":"America/Los_Angeles","daily":{"time":%s,"weathercode":%s,"temperature_2m_max":%s,"temperature_2m_min":%s,"precipitation_probability_max":%s,"relative_humidity_2m_mean":%s,"sunrise":%s,"sunset":%s}}`,
		join(dates), join(codes), join(maxes), join(mins), join(precip), join(humidity), join(sunrise), join(sunset))
}
