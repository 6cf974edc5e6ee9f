// Package report renders fitted feature sets for people and pipelines.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/ZanzyTHEbar/btrank/internal/errors"
	"github.com/ZanzyTHEbar/btrank/internal/features"
)

// Format selects how a feature set is rendered
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

// Formats lists every supported format
var Formats = []Format{FormatText, FormatJSON, FormatYAML, FormatCSV}

// ParseFormat validates a user supplied format name
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatText, nil
	}
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", apperrors.NewValidationError(fmt.Sprintf("unknown output format %q", s), Formats)
}

// Document is the structured form written by the json and yaml formats
type Document struct {
	Method   string             `json:"method,omitempty" yaml:"method,omitempty"`
	Features []features.Feature `json:"features" yaml:"features"`
}

// Options tweak rendering
type Options struct {
	// Ranked orders features by descending strength instead of item key.
	Ranked bool
	// Method is recorded in structured output.
	Method string
}

// Render writes set to w in the given format
func Render(w io.Writer, set *features.FeatureSet, format Format, opts Options) error {
	list := set.Features()
	if opts.Ranked {
		list = set.Ranked()
	}

	switch format {
	case FormatText, "":
		return renderText(w, set, list, opts.Ranked)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(newDocument(list, opts.Method))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(newDocument(list, opts.Method)); err != nil {
			return fmt.Errorf("failed to encode yaml report: %w", err)
		}
		return enc.Close()
	case FormatCSV:
		return renderCSV(w, list)
	default:
		return apperrors.NewValidationError(fmt.Sprintf("unknown output format %q", format))
	}
}

func newDocument(list []*features.Feature, method string) Document {
	doc := Document{Method: method, Features: make([]features.Feature, len(list))}
	for i, f := range list {
		doc.Features[i] = *f
	}
	return doc
}

func renderText(w io.Writer, set *features.FeatureSet, list []*features.Feature, ranked bool) error {
	if !ranked {
		_, err := io.WriteString(w, set.String())
		return err
	}
	var b strings.Builder
	b.WriteString("\n")
	for rank, f := range list {
		fmt.Fprintf(&b, "\t%d. %s\n", rank+1, f)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderCSV(w io.Writer, list []*features.Feature) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"item_key", "feature_name", "survey_name", "strength"}); err != nil {
		return err
	}
	for _, f := range list {
		record := []string{
			strconv.Itoa(f.ItemKey),
			f.FeatureName,
			f.SurveyName,
			strconv.FormatFloat(f.Strength, 'g', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
