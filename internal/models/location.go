package models

// LocationSource records how a Location was obtained; the client shows it as an indicator.
type LocationSource string

const (
	SourceGPS     LocationSource = "gps"
	SourceIP      LocationSource = "ip"
	SourceManual  LocationSource = "manual"
	SourceDefault LocationSource = "default"
)

// Location is a resolved place. Treated as immutable: replace, don't mutate.
type Location struct {
	Latitude    float64        `json:"latitude"`
	Longitude   float64        `json:"longitude"`
	City        string         `json:"city,omitempty"`
	State       string         `json:"state,omitempty"`
	Country     string         `json:"country,omitempty"`
	DisplayName string         `json:"displayName,omitempty"`
	Source      LocationSource `json:"source"`
}

// LocationInfo is the place-name fragment produced by reverse geocoding.
type LocationInfo struct {
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
}
