// Package features holds the feature registry that pairwise strengths are
// fitted against.
//
// Every Feature carries three identifiers. FeatureName is the canonical
// name from the header row, ItemKey is its dense position handed to the
// optimizer, and SurveyName is the label comparison logs refer to it by.
// Lookups by any identifier scan the registry in order and return the
// first match.
package features

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Unfit is the strength of a feature that has not been fitted yet.
const Unfit = -1.0

// Feature is one rankable item
type Feature struct {
	FeatureName string  `json:"feature_name" yaml:"feature_name"`
	ItemKey     int     `json:"item_key" yaml:"item_key"`
	SurveyName  string  `json:"survey_name" yaml:"survey_name"`
	Strength    float64 `json:"strength" yaml:"strength"`
}

// NewFeature creates an unfitted feature whose survey label equals its name
func NewFeature(name string, key int) *Feature {
	return &Feature{
		FeatureName: name,
		ItemKey:     key,
		SurveyName:  name,
		Strength:    Unfit,
	}
}

// IsFit reports whether a strength has been written
func (f *Feature) IsFit() bool {
	return f.Strength != Unfit
}

func (f *Feature) String() string {
	strength := "-1"
	if f.IsFit() {
		strength = formatStrength(f.Strength)
	}
	return fmt.Sprintf("%s/%s - %d : %s", f.FeatureName, f.SurveyName, f.ItemKey, strength)
}

// formatStrength prints the shortest round-tripping decimal. Whole values
// keep a trailing ".0" and only magnitudes below 1e-4 or from 1e16 up use
// exponent form.
func formatStrength(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
