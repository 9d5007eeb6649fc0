// Package resolver picks collision-free names for uploaded files.
package resolver

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Placeholder is replaced by the counter (or a uuid) in a file pattern.
const Placeholder = "$"

var ErrInvalidPattern = errors.New("invalid file pattern")

// ErrCounterExhausted means a matching name already carries the largest
// representable counter, so no higher one can be issued.
var ErrCounterExhausted = errors.New("file counter exhausted")

// Pattern is a file name template such as "img$.png". A pattern without the
// placeholder names a single file that is overwritten on every upload.
type Pattern struct {
	raw    string
	prefix string
	suffix string
	fixed  bool
	re     *regexp.Regexp
}

func ParsePattern(p string) (Pattern, error) {
	if strings.TrimSpace(p) == "" {
		return Pattern{}, fmt.Errorf("%w: empty", ErrInvalidPattern)
	}
	if strings.ContainsAny(p, `/\`) || p == "." || p == ".." {
		return Pattern{}, fmt.Errorf("%w: %q must be a plain file name", ErrInvalidPattern, p)
	}
	switch strings.Count(p, Placeholder) {
	case 0:
		return Pattern{raw: p, fixed: true}, nil
	case 1:
	default:
		return Pattern{}, fmt.Errorf("%w: %q has more than one %s", ErrInvalidPattern, p, Placeholder)
	}

	i := strings.Index(p, Placeholder)
	prefix, suffix := p[:i], p[i+1:]
	re := regexp.MustCompile("^" + regexp.QuoteMeta(prefix) + `(\d+)` + regexp.QuoteMeta(suffix) + "$")
	return Pattern{raw: p, prefix: prefix, suffix: suffix, re: re}, nil
}

// MustParsePattern is ParsePattern for constants; it panics on error.
func MustParsePattern(p string) Pattern {
	pat, err := ParsePattern(p)
	if err != nil {
		panic(err)
	}
	return pat
}

func (p Pattern) String() string { return p.raw }

// Fixed reports whether the pattern has no placeholder.
func (p Pattern) Fixed() bool { return p.fixed }

// Format substitutes token for the placeholder.
func (p Pattern) Format(token string) string {
	if p.fixed {
		return p.raw
	}
	return p.prefix + token + p.suffix
}

// Match returns the counter embedded in name, if name fits the pattern.
func (p Pattern) Match(name string) (int, bool) {
	if p.fixed {
		return 0, false
	}
	m := p.re.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// MaxIndex is the largest counter among names, or 0.
func (p Pattern) MaxIndex(names []string) int {
	highest := 0
	for _, name := range names {
		if n, ok := p.Match(name); ok && n > highest {
			highest = n
		}
	}
	return highest
}

// Resolve returns the name the next upload should get given the entries
// already present: the fixed name, or the pattern with max+1 substituted.
// Counters too large for an int never match, so they are ignored.
func Resolve(p Pattern, existing []string) (string, error) {
	if p.fixed {
		return p.raw, nil
	}
	highest := p.MaxIndex(existing)
	if highest == math.MaxInt {
		return "", fmt.Errorf("%w: %s", ErrCounterExhausted, p.Format(strconv.Itoa(highest)))
	}
	return p.Format(strconv.Itoa(highest + 1)), nil
}
