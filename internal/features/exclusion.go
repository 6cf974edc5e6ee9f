package features

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/ZanzyTHEbar/btrank/internal/errors"
)

// Exclusion removes entries from a header before features are built.
// The variants are ByIndex, ByName and Many.
type Exclusion interface {
	apply(names []string) ([]string, error)
	fmt.Stringer
}

// ByIndex removes the name at a position of the list as it stands when
// the removal runs.
type ByIndex int

// ByName removes the first occurrence of a name.
type ByName string

// Many applies its exclusions one after another, each against the list
// left by the previous one.
type Many []Exclusion

func (e ByIndex) apply(names []string) ([]string, error) {
	i := int(e)
	if i < 0 || i >= len(names) {
		return nil, apperrors.NewOutOfRangeError("exclude", i, len(names))
	}
	return append(names[:i:i], names[i+1:]...), nil
}

func (e ByIndex) String() string { return strconv.Itoa(int(e)) }

func (e ByName) apply(names []string) ([]string, error) {
	for i, name := range names {
		if name == string(e) {
			return append(names[:i:i], names[i+1:]...), nil
		}
	}
	return nil, apperrors.NewNotFoundError("feature_name", string(e))
}

func (e ByName) String() string { return string(e) }

func (e Many) apply(names []string) ([]string, error) {
	var err error
	for _, ex := range e {
		if ex == nil {
			continue
		}
		if names, err = ex.apply(names); err != nil {
			return nil, fmt.Errorf("exclude %s: %w", ex, err)
		}
	}
	return names, nil
}

func (e Many) String() string {
	parts := make([]string, len(e))
	for i, ex := range e {
		parts[i] = ex.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// ParseExclusions turns command-line tokens into an Exclusion. Tokens made
// only of digits become ByIndex, everything else ByName. Empty tokens are
// dropped. It returns nil when nothing is left.
func ParseExclusions(tokens []string) Exclusion {
	var many Many
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if isDigits(tok) {
			if i, err := strconv.Atoi(tok); err == nil {
				many = append(many, ByIndex(i))
				continue
			}
		}
		many = append(many, ByName(tok))
	}

	switch len(many) {
	case 0:
		return nil
	case 1:
		return many[0]
	default:
		return many
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
