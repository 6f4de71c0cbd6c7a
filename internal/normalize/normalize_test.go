package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

func ptr(v float64) *float64 { return &v }

// TestMapWeatherCode verifies the fixed lookup table and the clear default for unknown codes.
func TestMapWeatherCode(t *testing.T) {
	tests := []struct {
		code int
		want models.Condition
	}{
		{0, models.ConditionClear},
		{1, models.ConditionPartlyCloudy},
		{2, models.ConditionPartlyCloudy},
		{3, models.ConditionCloudy},
		{45, models.ConditionFog},
		{48, models.ConditionFog},
		{51, models.ConditionLightRain},
		{55, models.ConditionRain},
		{61, models.ConditionRain},
		{65, models.ConditionHeavyRain},
		{71, models.ConditionLightSnow},
		{73, models.ConditionSnow},
		{75, models.ConditionHeavySnow},
		{77, models.ConditionSnow},
		{80, models.ConditionRain},
		{82, models.ConditionHeavyRain},
		{85, models.ConditionSnow},
		{86, models.ConditionHeavySnow},
		{95, models.ConditionThunderstorm},
		{96, models.ConditionThunderstorm},
		{99, models.ConditionThunderstorm},
		{12345, models.ConditionClear},
		{-1, models.ConditionClear},
		{4, models.ConditionClear},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapWeatherCode(tt.code), "code %d", tt.code)
	}
}

// isKnownCondition reports whether c appears in the weather code table.
func isKnownCondition(c models.Condition) bool {
	for _, known := range weatherCodes {
		if known == c {
			return true
		}
	}
	return false
}

// TestMapWeatherCode_AlwaysKnown verifies no code ever leaks outside the closed condition set.
func TestMapWeatherCode_AlwaysKnown(t *testing.T) {
	for code := -5; code < 200; code++ {
		assert.True(t, isKnownCondition(MapWeatherCode(code)), "code %d", code)
	}
	assert.False(t, isKnownCondition("drizzle"))
}

// TestCategorizeAirQuality verifies band boundaries and the Unknown case for a missing index.
func TestCategorizeAirQuality(t *testing.T) {
	tests := []struct {
		name string
		aqi  *float64
		want models.AQICategory
	}{
		{"nil", nil, models.AQIUnknown},
		{"zero", ptr(0), models.AQIGood},
		{"50", ptr(50), models.AQIGood},
		{"51", ptr(51), models.AQIModerate},
		{"100", ptr(100), models.AQIModerate},
		{"150", ptr(150), models.AQIUnhealthyForSensitiveGroups},
		{"151", ptr(151), models.AQIUnhealthy},
		{"200", ptr(200), models.AQIUnhealthy},
		{"300", ptr(300), models.AQIVeryUnhealthy},
		{"301", ptr(301), models.AQIHazardous},
		{"fractional", ptr(50.5), models.AQIModerate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeAirQuality(tt.aqi))
		})
	}
}
