package features

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	apperrors "github.com/ZanzyTHEbar/btrank/internal/errors"
)

// HeaderSeparator splits the names of a feature header row.
const HeaderSeparator = ","

// FeatureSet is an ordered registry of features. Insertion order, item key
// order and iteration order are the same. Features are never added or
// removed after construction.
type FeatureSet struct {
	features    []*Feature
	uniqueNames bool
}

// Option configures a FeatureSet at construction
type Option func(*FeatureSet)

// WithUniqueNames rejects duplicate feature names at construction and
// survey labels that would collide on Rename.
func WithUniqueNames() Option {
	return func(s *FeatureSet) {
		s.uniqueNames = true
	}
}

// New builds a FeatureSet from names after applying exclude. A nil
// exclude keeps every name. Item keys are the post-exclusion positions.
func New(names []string, exclude Exclusion, opts ...Option) (*FeatureSet, error) {
	working := append([]string(nil), names...)

	if exclude != nil {
		var err error
		if working, err = exclude.apply(working); err != nil {
			return nil, err
		}
	}

	s := &FeatureSet{features: make([]*Feature, 0, len(working))}
	for _, opt := range opts {
		opt(s)
	}

	for i, name := range working {
		s.features = append(s.features, NewFeature(name, i))
	}

	if s.uniqueNames {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// FromReader builds a FeatureSet from the first line of r, a comma
// separated header. Only surrounding whitespace of the line is stripped;
// the names themselves are kept verbatim.
func FromReader(r io.Reader, exclude Exclusion, opts ...Option) (*FeatureSet, error) {
	reader := bufio.NewReader(r)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read feature header: %w", err)
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return nil, apperrors.NewMalformedError("feature header is empty", nil)
	}

	return New(strings.Split(line, HeaderSeparator), exclude, opts...)
}

// FromFile opens path and builds a FeatureSet from its header row.
func FromFile(path string, exclude Exclusion, opts ...Option) (*FeatureSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.WrapError(err, "failed to open feature file")
	}
	defer apperrors.SafeClose(file, "feature file")

	s, err := FromReader(file, exclude, opts...)
	if err != nil {
		return nil, apperrors.WrapError(err, "%s", path)
	}
	return s, nil
}

// Len returns the number of features
func (s *FeatureSet) Len() int { return len(s.features) }

// Features returns the features in item key order. The slice is a copy;
// the features are shared.
func (s *FeatureSet) Features() []*Feature {
	return append([]*Feature(nil), s.features...)
}

// Names returns the feature names in item key order
func (s *FeatureSet) Names() []string {
	names := make([]string, len(s.features))
	for i, f := range s.features {
		names[i] = f.FeatureName
	}
	return names
}

// ByFeatureName returns the first feature with the given canonical name
func (s *FeatureSet) ByFeatureName(name string) (*Feature, bool) {
	for _, f := range s.features {
		if f.FeatureName == name {
			return f, true
		}
	}
	return nil, false
}

// BySurveyName returns the first feature with the given survey label
func (s *FeatureSet) BySurveyName(label string) (*Feature, bool) {
	for _, f := range s.features {
		if f.SurveyName == label {
			return f, true
		}
	}
	return nil, false
}

// ByItemKey returns the feature with the given item key
func (s *FeatureSet) ByItemKey(key int) (*Feature, bool) {
	for _, f := range s.features {
		if f.ItemKey == key {
			return f, true
		}
	}
	return nil, false
}

// Rename sets the survey label of the feature called featureName.
func (s *FeatureSet) Rename(featureName, surveyName string) error {
	f, ok := s.ByFeatureName(featureName)
	if !ok {
		return apperrors.NewNotFoundError("feature_name", featureName)
	}

	if s.uniqueNames {
		if other, taken := s.BySurveyName(surveyName); taken && other != f {
			return apperrors.NewValidationError(
				fmt.Sprintf("survey name %q already belongs to feature %q", surveyName, other.FeatureName),
			)
		}
	}

	f.SurveyName = surveyName
	return nil
}

// Validate reports duplicate feature names and duplicate survey labels.
func (s *FeatureSet) Validate() error {
	problems := map[string]string{}
	seenNames := make(map[string]int, len(s.features))
	seenLabels := make(map[string]int, len(s.features))

	for _, f := range s.features {
		if first, dup := seenNames[f.FeatureName]; dup {
			problems["feature_name:"+f.FeatureName] = fmt.Sprintf("item keys %d and %d share this name", first, f.ItemKey)
		} else {
			seenNames[f.FeatureName] = f.ItemKey
		}
		if first, dup := seenLabels[f.SurveyName]; dup {
			problems["survey_name:"+f.SurveyName] = fmt.Sprintf("item keys %d and %d share this label", first, f.ItemKey)
		} else {
			seenLabels[f.SurveyName] = f.ItemKey
		}
	}

	if len(problems) > 0 {
		return apperrors.NewValidationErrorWithMap(problems)
	}
	return nil
}

// IsFit reports whether every feature carries a fitted strength. An empty
// set is never fit.
func (s *FeatureSet) IsFit() bool {
	if len(s.features) == 0 {
		return false
	}
	for _, f := range s.features {
		if !f.IsFit() {
			return false
		}
	}
	return true
}

// Ranked returns the features ordered by descending strength, ties kept in
// item key order.
func (s *FeatureSet) Ranked() []*Feature {
	ranked := s.Features()
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Strength > ranked[j].Strength
	})
	return ranked
}

func (s *FeatureSet) String() string {
	var b strings.Builder
	b.WriteString("\n")
	for _, f := range s.features {
		b.WriteString("\t")
		b.WriteString(f.String())
		b.WriteString("\n")
	}
	return b.String()
}
