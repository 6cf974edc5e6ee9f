package database

import (
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/btrank/internal/features"
)

// FitRun is one persisted fit with the strengths it produced
type FitRun struct {
	ID              string           `json:"id" db:"id"`
	Source          string           `json:"source" db:"source"`
	Method          string           `json:"method" db:"method"`
	Alpha           float64          `json:"alpha" db:"alpha"`
	FeatureCount    int              `json:"feature_count" db:"feature_count"`
	ComparisonCount int              `json:"comparison_count" db:"comparison_count"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	Strengths       []StrengthRecord `json:"strengths,omitempty"`
}

// StrengthRecord is the fitted strength of one feature in a run
type StrengthRecord struct {
	ItemKey     int     `json:"item_key" db:"item_key"`
	FeatureName string  `json:"feature_name" db:"feature_name"`
	SurveyName  string  `json:"survey_name" db:"survey_name"`
	Strength    float64 `json:"strength" db:"strength"`
}

// NewFitRun snapshots a fitted feature set under a fresh ID
func NewFitRun(set *features.FeatureSet, source, method string, alpha float64, comparisons int) *FitRun {
	run := &FitRun{
		ID:              uuid.New().String(),
		Source:          source,
		Method:          method,
		Alpha:           alpha,
		FeatureCount:    set.Len(),
		ComparisonCount: comparisons,
		CreatedAt:       time.Now().UTC(),
		Strengths:       make([]StrengthRecord, 0, set.Len()),
	}

	for _, f := range set.Features() {
		run.Strengths = append(run.Strengths, StrengthRecord{
			ItemKey:     f.ItemKey,
			FeatureName: f.FeatureName,
			SurveyName:  f.SurveyName,
			Strength:    f.Strength,
		})
	}

	return run
}

// FeatureSet rebuilds a fitted feature set from the stored strengths
func (r *FitRun) FeatureSet() (*features.FeatureSet, error) {
	names := make([]string, len(r.Strengths))
	for i, s := range r.Strengths {
		names[i] = s.FeatureName
	}

	set, err := features.New(names, nil)
	if err != nil {
		return nil, err
	}

	for _, s := range r.Strengths {
		f, ok := set.ByItemKey(s.ItemKey)
		if !ok {
			continue
		}
		f.SurveyName = s.SurveyName
		f.Strength = s.Strength
	}
	return set, nil
}
