// Package types holds the request and response bodies of the HTTP API.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/btrank/internal/cache"
	apperrors "github.com/ZanzyTHEbar/btrank/internal/errors"
	"github.com/ZanzyTHEbar/btrank/internal/features"
)

// ExcludeList is a JSON array mixing integer positions and feature names,
// e.g. [0, "Age"]. Entries are applied in order.
type ExcludeList []features.Exclusion

// UnmarshalJSON accepts an array of integers and strings, or a single
// integer or string.
func (l *ExcludeList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	var raw []json.RawMessage
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		raw = []json.RawMessage{data}
	}

	out := make(ExcludeList, 0, len(raw))
	for i, item := range raw {
		ex, err := parseExcludeItem(item)
		if err != nil {
			return fmt.Errorf("exclude[%d]: %w", i, err)
		}
		out = append(out, ex)
	}
	*l = out
	return nil
}

// MarshalJSON writes indices as numbers and names as strings
func (l ExcludeList) MarshalJSON() ([]byte, error) {
	items := make([]interface{}, len(l))
	for i, ex := range l {
		switch v := ex.(type) {
		case features.ByIndex:
			items[i] = int(v)
		default:
			items[i] = ex.String()
		}
	}
	return json.Marshal(items)
}

func parseExcludeItem(item json.RawMessage) (features.Exclusion, error) {
	var name string
	if err := json.Unmarshal(item, &name); err == nil {
		return features.ByName(name), nil
	}

	var num json.Number
	if err := json.Unmarshal(item, &num); err != nil {
		return nil, apperrors.NewMalformedError(
			"exclude entries must be integers or strings",
			map[string]interface{}{"value": string(item)},
		)
	}
	i, err := strconv.Atoi(num.String())
	if err != nil {
		return nil, apperrors.NewMalformedError(
			"exclude index must be an integer",
			map[string]interface{}{"value": num.String()},
		)
	}
	return features.ByIndex(i), nil
}

// Exclusion returns the list as one exclusion, nil when empty
func (l ExcludeList) Exclusion() features.Exclusion {
	switch len(l) {
	case 0:
		return nil
	case 1:
		return l[0]
	default:
		return features.Many(l)
	}
}

// Rename sets the survey label of a feature before fitting
type Rename struct {
	Feature string `json:"feature" yaml:"feature" binding:"required"`
	Survey  string `json:"survey" yaml:"survey" binding:"required"`
}

// FitRequest is the body of POST /api/v1/fit. Exactly one of Features and
// Header names the features; Header is a comma separated row.
type FitRequest struct {
	Features    []string    `json:"features,omitempty"`
	Header      string      `json:"header,omitempty"`
	Exclude     ExcludeList `json:"exclude,omitempty"`
	Renames     []Rename    `json:"renames,omitempty"`
	Comparisons string      `json:"comparisons"`
	Method      string      `json:"method,omitempty"`
	Alpha       *float64    `json:"alpha,omitempty"`
	Unique      bool        `json:"unique,omitempty"`
	Ranked      bool        `json:"ranked,omitempty"`
	Save        bool        `json:"save,omitempty"`
}

// Validate checks the fields that cannot be checked by binding tags
func (r *FitRequest) Validate() error {
	problems := map[string]string{}

	switch {
	case len(r.Features) == 0 && strings.TrimSpace(r.Header) == "":
		problems["features"] = "one of features or header is required"
	case len(r.Features) > 0 && r.Header != "":
		problems["features"] = "features and header are mutually exclusive"
	}
	if r.Alpha != nil && *r.Alpha <= 0 {
		problems["alpha"] = "must be positive"
	}
	for i, rn := range r.Renames {
		if rn.Feature == "" || rn.Survey == "" {
			problems[fmt.Sprintf("renames[%d]", i)] = "feature and survey are required"
		}
	}

	if len(problems) > 0 {
		return apperrors.NewValidationErrorWithMap(problems)
	}
	return nil
}

// BuildSet constructs the feature set the request describes and applies
// its renames in order.
func (r *FitRequest) BuildSet() (*features.FeatureSet, error) {
	var opts []features.Option
	if r.Unique {
		opts = append(opts, features.WithUniqueNames())
	}

	var (
		set *features.FeatureSet
		err error
	)
	if len(r.Features) > 0 {
		set, err = features.New(r.Features, r.Exclude.Exclusion(), opts...)
	} else {
		set, err = features.FromReader(strings.NewReader(r.Header), r.Exclude.Exclusion(), opts...)
	}
	if err != nil {
		return nil, err
	}

	for _, rn := range r.Renames {
		if err := set.Rename(rn.Feature, rn.Survey); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// CacheKey identifies the fit a request asks for. Save is left out since
// it does not change the result.
func (r *FitRequest) CacheKey(method string, alpha float64) string {
	parts := append([]string{"features", strconv.Itoa(len(r.Features))}, r.Features...)
	parts = append(parts,
		"header", r.Header,
		"method", method,
		"alpha", strconv.FormatFloat(alpha, 'g', -1, 64),
		"unique", strconv.FormatBool(r.Unique),
		"ranked", strconv.FormatBool(r.Ranked),
	)
	for _, ex := range r.Exclude {
		parts = append(parts, fmt.Sprintf("exclude:%T", ex), ex.String())
	}
	for _, rn := range r.Renames {
		parts = append(parts, "rename", rn.Feature, rn.Survey)
	}
	parts = append(parts, "comparisons", r.Comparisons)
	return cache.Key(parts...)
}

// FitResponse is the result of a fit
type FitResponse struct {
	RunID       string             `json:"run_id,omitempty"`
	Method      string             `json:"method"`
	Alpha       float64            `json:"alpha"`
	Comparisons int                `json:"comparisons"`
	Ranked      bool               `json:"ranked"`
	Features    []features.Feature `json:"features"`
	CacheHit    bool               `json:"cache_hit"`
}

// NewFitResponse copies the features of a fitted set, ranked by strength
// when ranked is set and in item key order otherwise.
func NewFitResponse(set *features.FeatureSet, method string, alpha float64, comparisons int, ranked bool) *FitResponse {
	list := set.Features()
	if ranked {
		list = set.Ranked()
	}

	resp := &FitResponse{
		Method:      method,
		Alpha:       alpha,
		Comparisons: comparisons,
		Ranked:      ranked,
		Features:    make([]features.Feature, len(list)),
	}
	for i, f := range list {
		resp.Features[i] = *f
	}
	return resp
}
