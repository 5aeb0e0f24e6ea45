// Package render turns analysis records and view states into terminal text,
// JSON and YAML. All display transforms (clamping, rounding, labels) live
// here; records are never modified.
package render

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Format is an output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts text, json or yaml in any case. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", eris.Errorf("render: unknown format %q (want text, json or yaml)", s)
	}
}

// ClampProbability bounds p to [0, 1].
func ClampProbability(p float64) float64 {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

// Percent renders a 0-1 probability as a whole percentage.
func Percent(p float64) string {
	return fmt.Sprintf("%.0f%%", ClampProbability(p)*100)
}

// Score10 maps a 0-1 probability onto the 0-10 score shown beside it,
// rounded to one decimal.
func Score10(p float64) float64 {
	return Round1(ClampProbability(p) * 10)
}

// Round1 rounds to one decimal place.
func Round1(f float64) float64 {
	return math.Round(f*10) / 10
}

// FormatValue renders a metric value. Numbers get one decimal; anything else
// is shown as the service sent it.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case float64:
		return strconv.FormatFloat(Round1(x), 'f', 1, 64)
	case float32:
		return strconv.FormatFloat(Round1(float64(x)), 'f', 1, 64)
	case int:
		return strconv.FormatFloat(float64(x), 'f', 1, 64)
	case int64:
		return strconv.FormatFloat(float64(x), 'f', 1, 64)
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// Label turns a metric key such as "knee_angle" into "Knee Angle".
func Label(key string) string {
	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(key))
	return cases.Title(language.English).String(strings.Join(words, " "))
}
