package pattern

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Kind selects how a pattern expression is evaluated.
type Kind string

const (
	KindGlob  Kind = "glob"
	KindRegex Kind = "regex"
	KindExact Kind = "exact"
)

// Pattern is one residual-file matching rule. Patterns are loaded once per
// session and are immutable during a run.
type Pattern struct {
	ID          string
	OS          string
	Kind        Kind
	Expression  string
	Description string
	Enabled     bool

	re *regexp.Regexp // compiled form for KindRegex, set by Compile
}

// SyntaxError reports an invalid pattern expression. It is raised at load
// time, before any scan starts.
type SyntaxError struct {
	ID         string
	Expression string
	Err        error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("pattern %q: invalid expression %q: %v", e.ID, e.Expression, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// Compile validates the pattern expression and prepares it for matching.
func (p *Pattern) Compile() error {
	switch p.Kind {
	case KindGlob:
		if _, err := filepath.Match(p.Expression, "probe"); err != nil {
			return &SyntaxError{ID: p.ID, Expression: p.Expression, Err: err}
		}
	case KindRegex:
		re, err := regexp.Compile(p.Expression)
		if err != nil {
			return &SyntaxError{ID: p.ID, Expression: p.Expression, Err: err}
		}
		p.re = re
	case KindExact:
		if p.Expression == "" {
			return &SyntaxError{ID: p.ID, Expression: p.Expression, Err: fmt.Errorf("empty expression")}
		}
	default:
		return &SyntaxError{ID: p.ID, Expression: p.Expression, Err: fmt.Errorf("unknown kind %q", p.Kind)}
	}
	return nil
}

// matches reports whether the base name matches this pattern. It never
// touches the filesystem.
func (p *Pattern) matches(name string) bool {
	switch p.Kind {
	case KindGlob:
		ok, _ := filepath.Match(p.Expression, name)
		return ok
	case KindRegex:
		return p.re != nil && p.re.MatchString(name)
	case KindExact:
		return name == p.Expression
	}
	return false
}

// Matcher evaluates an enabled pattern set against paths. Matching is a pure
// function of (path, pattern set) so it can run in parallel with hashing.
type Matcher struct {
	patterns []Pattern // enabled, compiled
}

// NewMatcher compiles the enabled subset of patterns. Disabled patterns take
// no part in matching for the rest of the session.
func NewMatcher(patterns []Pattern) (*Matcher, error) {
	enabled := make([]Pattern, 0, len(patterns))
	for _, p := range patterns {
		if !p.Enabled {
			continue
		}
		if err := p.Compile(); err != nil {
			return nil, err
		}
		enabled = append(enabled, p)
	}
	return &Matcher{patterns: enabled}, nil
}

// Match returns the subset of enabled patterns the path's base name matches.
// A path may match several patterns; order of evaluation does not matter.
func (m *Matcher) Match(path string) []Pattern {
	name := filepath.Base(strings.TrimSuffix(path, string(filepath.Separator)))
	var matched []Pattern
	for _, p := range m.patterns {
		if p.matches(name) {
			matched = append(matched, p)
		}
	}
	return matched
}

// MatchIDs is Match reduced to pattern identifiers, the form stored per file.
func (m *Matcher) MatchIDs(path string) []string {
	matched := m.Match(path)
	if len(matched) == 0 {
		return nil
	}
	ids := make([]string, len(matched))
	for i, p := range matched {
		ids[i] = p.ID
	}
	return ids
}

// Len returns the number of enabled patterns.
func (m *Matcher) Len() int { return len(m.patterns) }
