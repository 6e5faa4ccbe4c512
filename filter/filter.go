package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// Options captures the reference filtering configuration.
type Options struct {
	Include []string
	Exclude []string
}

// Filter holds compiled regex patterns for filtering attachment references.
type Filter struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	include, err := compilePatterns(opts.Include)
	if err != nil {
		return nil, fmt.Errorf("compile include-ref pattern: %w", err)
	}
	exclude, err := compilePatterns(opts.Exclude)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-ref pattern: %w", err)
	}

	if len(include) > 0 && len(exclude) > 0 {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}

	return &Filter{include: include, exclude: exclude}, nil
}

// Active reports whether any pattern was configured.
func (f *Filter) Active() bool {
	return f != nil && (len(f.include) > 0 || len(f.exclude) > 0)
}

// Allows returns true if the reference passes the filter criteria. A nil
// Filter allows everything.
func (f *Filter) Allows(ref string) bool {
	if f == nil {
		return true
	}
	if len(f.include) > 0 {
		return matchAny(f.include, ref)
	}
	if len(f.exclude) > 0 {
		return !matchAny(f.exclude, ref)
	}
	return true
}

// Apply returns the references f allows, in order, and the ones it dropped.
func (f *Filter) Apply(refs []string) (kept, dropped []string) {
	if !f.Active() {
		return refs, nil
	}
	kept = make([]string, 0, len(refs))
	for _, ref := range refs {
		if f.Allows(ref) {
			kept = append(kept, ref)
		} else {
			dropped = append(dropped, ref)
		}
	}
	return kept, dropped
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
