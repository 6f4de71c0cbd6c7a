package models

// Condition is the normalized weather category served to clients. Never a raw upstream code.
type Condition string

const (
	ConditionClear        Condition = "clear"
	ConditionPartlyCloudy Condition = "partly_cloudy"
	ConditionCloudy       Condition = "cloudy"
	ConditionFog          Condition = "fog"
	ConditionLightRain    Condition = "light_rain"
	ConditionRain         Condition = "rain"
	ConditionHeavyRain    Condition = "heavy_rain"
	ConditionLightSnow    Condition = "light_snow"
	ConditionSnow         Condition = "snow"
	ConditionHeavySnow    Condition = "heavy_snow"
	ConditionThunderstorm Condition = "thunderstorm"
)

// AQICategory is a human-readable air quality band.
type AQICategory string

const (
	AQIUnknown                     AQICategory = "Unknown"
	AQIGood                        AQICategory = "Good"
	AQIModerate                    AQICategory = "Moderate"
	AQIUnhealthyForSensitiveGroups AQICategory = "Unhealthy for Sensitive Groups"
	AQIUnhealthy                   AQICategory = "Unhealthy"
	AQIVeryUnhealthy               AQICategory = "Very Unhealthy"
	AQIHazardous                   AQICategory = "Hazardous"
)

// Coordinates is the request point echoed back in CurrentWeather.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type CurrentWeather struct {
	Temperature   int         `json:"temperature"`
	Condition     Condition   `json:"condition"`
	WindSpeed     float64     `json:"windSpeed"`
	WindDirection float64     `json:"windDirection"`
	IsDay         bool        `json:"isDay"`
	Timestamp     string      `json:"timestamp"`
	Location      Coordinates `json:"location"`
}

type ForecastDay struct {
	Date                string    `json:"date"`
	TempMax             int       `json:"tempMax"`
	TempMin             int       `json:"tempMin"`
	Condition           Condition `json:"condition"`
	PrecipitationChance int       `json:"precipitationChance"`
	Humidity            int       `json:"humidity"`
	Sunrise             string    `json:"sunrise"`
	Sunset              string    `json:"sunset"`
}

// Forecast holds days in ascending date order, none before the server's local today.
type Forecast struct {
	Days []ForecastDay `json:"days"`
}

// AirQuality is an optional enrichment. AQI is nil when the provider reports no index.
type AirQuality struct {
	AQI      *float64    `json:"aqi"`
	PM10     float64     `json:"pm10"`
	PM25     float64     `json:"pm25"`
	Category AQICategory `json:"category"`
}

type BackgroundType string

const (
	BackgroundImage    BackgroundType = "image"
	BackgroundGradient BackgroundType = "gradient"
)

// BackgroundChoice is an image path plus the CSS gradient used if the image fails to load.
type BackgroundChoice struct {
	Type          BackgroundType `json:"type"`
	Source        string         `json:"source"`
	Fallback      string         `json:"fallback"`
	Variant       int            `json:"variant,omitempty"`
	BaseCondition string         `json:"baseCondition,omitempty"`
}

// CurrentReport is the /api/weather/current response: current conditions flattened with
// enrichments. AirQuality and LocationInfo are null when their sub-fetch failed.
type CurrentReport struct {
	CurrentWeather
	BackgroundImage BackgroundChoice `json:"backgroundImage"`
	AirQuality      *AirQuality      `json:"airQuality"`
	LocationInfo    *LocationInfo    `json:"locationInfo"`
}
