// Package background picks a background image and CSS gradient fallback for a weather condition.
package background

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// Gradient fallbacks, one per gradient family.
const (
	GradientClear        = "linear-gradient(180deg, #87CEEB, #98D8E8)"
	GradientCloudy       = "linear-gradient(180deg, #606c88, #3f4c6b)"
	GradientRain         = "linear-gradient(180deg, #4B79A1, #283E51)"
	GradientSnow         = "linear-gradient(180deg, #e6f3ff, #b8d4f0)"
	GradientThunderstorm = "linear-gradient(180deg, #2c3e50, #4a6741)"
	GradientFog          = "linear-gradient(180deg, #bdc3c7, #95a5a6)"
)

const (
	DefaultBasePath = "/assets/backgrounds"
	DefaultVariants = 4
)

// RandomSource yields a uniform integer in [0, n).
type RandomSource interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

type mapping struct {
	day      string
	night    string
	gradient string
}

// Mist is not produced by the weather-code table but has its own images.
var mappings = map[string]mapping{
	string(models.ConditionClear):        {"sunny-blue-sky", "starry-night", GradientClear},
	string(models.ConditionPartlyCloudy): {"partly-cloudy-day", "cloudy-night", GradientCloudy},
	string(models.ConditionCloudy):       {"overcast-clouds", "cloudy-night", GradientCloudy},
	string(models.ConditionLightRain):    {"heavy-rain", "heavy-rain", GradientRain},
	string(models.ConditionRain):         {"heavy-rain", "heavy-rain", GradientRain},
	string(models.ConditionHeavyRain):    {"heavy-rain", "heavy-rain", GradientRain},
	string(models.ConditionThunderstorm): {"lightning-storm", "lightning-storm", GradientThunderstorm},
	string(models.ConditionLightSnow):    {"gentle-snowfall", "gentle-snowfall", GradientSnow},
	string(models.ConditionSnow):         {"heavy-snow", "heavy-snow", GradientSnow},
	string(models.ConditionHeavySnow):    {"heavy-snow", "heavy-snow", GradientSnow},
	string(models.ConditionFog):          {"misty-fog", "misty-fog", GradientFog},
	"mist":                               {"morning-mist", "morning-mist", GradientFog},
}

// sortedKeys fixes the order of substring matching so results are deterministic.
var sortedKeys = func() []string {
	keys := make([]string, 0, len(mappings))
	for k := range mappings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}()

// Selector chooses backgrounds. Safe for concurrent use if its RandomSource is.
type Selector struct {
	basePath string
	variants int
	rng      RandomSource
}

// New creates a Selector serving basePath/<image>-<variant>.jpg. variants <= 0 uses
// DefaultVariants; a nil rng uses the process-wide generator.
func New(basePath string, variants int, rng RandomSource) *Selector {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	if variants <= 0 {
		variants = DefaultVariants
	}
	if rng == nil {
		rng = globalRand{}
	}
	return &Selector{basePath: strings.TrimRight(basePath, "/"), variants: variants, rng: rng}
}

// Choose returns the background for condition. Unknown conditions are matched by substring
// against known keys, then fall back to clear. Never fails.
func (s *Selector) Choose(condition models.Condition, isDay bool) models.BackgroundChoice {
	key, m := resolve(string(condition))
	base := m.night
	if isDay {
		base = m.day
	}
	variant := 1
	if s.variants > 1 {
		variant = s.rng.IntN(s.variants) + 1
	}
	return models.BackgroundChoice{
		Type:          models.BackgroundImage,
		Source:        s.path(base, variant),
		Fallback:      m.gradient,
		Variant:       variant,
		BaseCondition: key,
	}
}

// Variants lists every image path Choose can return for condition at the given time of day.
func (s *Selector) Variants(condition models.Condition, isDay bool) []string {
	_, m := resolve(string(condition))
	base := m.night
	if isDay {
		base = m.day
	}
	out := make([]string, 0, s.variants)
	for v := 1; v <= s.variants; v++ {
		out = append(out, s.path(base, v))
	}
	return out
}

// Available lists every distinct image path across all conditions, sorted.
func (s *Selector) Available() []string {
	seen := map[string]struct{}{}
	for _, m := range mappings {
		for _, base := range []string{m.day, m.night} {
			for v := 1; v <= s.variants; v++ {
				seen[s.path(base, v)] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// GradientFor returns the fallback gradient for condition.
func GradientFor(condition models.Condition) string {
	_, m := resolve(string(condition))
	return m.gradient
}

func (s *Selector) path(base string, variant int) string {
	if s.variants > 1 {
		return fmt.Sprintf("%s/%s-%d.jpg", s.basePath, base, variant)
	}
	return fmt.Sprintf("%s/%s.jpg", s.basePath, base)
}

func resolve(condition string) (string, mapping) {
	c := strings.ToLower(strings.TrimSpace(condition))
	if m, ok := mappings[c]; ok {
		return c, m
	}
	if c != "" {
		for _, k := range sortedKeys {
			if strings.Contains(c, k) || strings.Contains(k, c) {
				return k, mappings[k]
			}
		}
	}
	fallback := string(models.ConditionClear)
	return fallback, mappings[fallback]
}
