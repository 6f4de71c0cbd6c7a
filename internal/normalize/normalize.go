// Package normalize maps upstream vocabularies onto the dashboard's closed enums.
package normalize

import "github.com/kjstillabower/weather-dashboard/internal/models"

// weatherCodes maps WMO weather interpretation codes (as reported by Open-Meteo) to conditions.
var weatherCodes = map[int]models.Condition{
	0:  models.ConditionClear,
	1:  models.ConditionPartlyCloudy,
	2:  models.ConditionPartlyCloudy,
	3:  models.ConditionCloudy,
	45: models.ConditionFog,
	48: models.ConditionFog,
	51: models.ConditionLightRain,
	53: models.ConditionLightRain,
	55: models.ConditionRain,
	61: models.ConditionRain,
	63: models.ConditionRain,
	65: models.ConditionHeavyRain,
	71: models.ConditionLightSnow,
	73: models.ConditionSnow,
	75: models.ConditionHeavySnow,
	77: models.ConditionSnow,
	80: models.ConditionRain,
	81: models.ConditionRain,
	82: models.ConditionHeavyRain,
	85: models.ConditionSnow,
	86: models.ConditionHeavySnow,
	95: models.ConditionThunderstorm,
	96: models.ConditionThunderstorm,
	99: models.ConditionThunderstorm,
}

// MapWeatherCode returns the condition for an upstream weather code. Codes outside the table
// map to clear.
func MapWeatherCode(code int) models.Condition {
	if c, ok := weatherCodes[code]; ok {
		return c
	}
	return models.ConditionClear
}

// CategorizeAirQuality bands an air quality index. A nil index is Unknown.
func CategorizeAirQuality(aqi *float64) models.AQICategory {
	if aqi == nil {
		return models.AQIUnknown
	}
	v := *aqi
	switch {
	case v <= 50:
		return models.AQIGood
	case v <= 100:
		return models.AQIModerate
	case v <= 150:
		return models.AQIUnhealthyForSensitiveGroups
	case v <= 200:
		return models.AQIUnhealthy
	case v <= 300:
		return models.AQIVeryUnhealthy
	default:
		return models.AQIHazardous
	}
}
