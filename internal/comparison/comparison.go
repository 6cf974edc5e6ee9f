// Package comparison parses pairwise outcome logs into item-key pairs.
//
// A log holds one observation per line, "<winner> > <loser>". Labels are
// trimmed and handed to a ResolveFunc, which maps them onto dense item keys.
package comparison

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "github.com/ZanzyTHEbar/btrank/internal/errors"
)

// Separator splits the winner label from the loser label.
const Separator = ">"

// Pair is one observation: the item at Winner beat the item at Loser.
type Pair struct {
	Winner int `json:"winner"`
	Loser  int `json:"loser"`
}

func (p Pair) String() string {
	return fmt.Sprintf("%d > %d", p.Winner, p.Loser)
}

// ResolveFunc maps a trimmed label onto an item key.
type ResolveFunc func(label string) (int, error)

// ParseLine parses a single observation. Anything after a second
// separator is ignored.
func ParseLine(line string, resolve ResolveFunc) (Pair, error) {
	parts := strings.Split(line, Separator)
	if len(parts) < 2 {
		return Pair{}, apperrors.NewMalformedError(
			fmt.Sprintf("comparison %q has no %q separator", strings.TrimSpace(line), Separator),
			map[string]interface{}{"line_text": line},
		)
	}

	winner, err := resolve(strings.TrimSpace(parts[0]))
	if err != nil {
		return Pair{}, err
	}
	loser, err := resolve(strings.TrimSpace(parts[1]))
	if err != nil {
		return Pair{}, err
	}

	return Pair{Winner: winner, Loser: loser}, nil
}

// Parse reads every line of r. Input order and duplicate observations
// are preserved. The first bad line aborts parsing.
func Parse(r io.Reader, resolve ResolveFunc) ([]Pair, error) {
	var pairs []Pair

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		pair, err := ParseLine(scanner.Text(), resolve)
		if err != nil {
			return nil, fmt.Errorf("comparison log line %d: %w", lineNo, err)
		}
		pairs = append(pairs, pair)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read comparison log: %w", err)
	}

	return pairs, nil
}

// ParseFile opens path and parses it with Parse. Errors carry the path.
func ParseFile(path string, resolve ResolveFunc) ([]Pair, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.WrapError(err, "failed to open comparison log")
	}
	defer apperrors.SafeClose(file, "comparison log")

	pairs, err := Parse(file, resolve)
	if err != nil {
		return nil, apperrors.WrapError(err, "%s", path)
	}
	return pairs, nil
}
