package scripting

import (
	"log/slog"
	"regexp"
	"sync"
)

// filter implements spec §4.4's URL pattern matching: a pattern is
// compiled as a regex and cached; a plain literal like "pximg" is
// already a valid (unanchored) regex, so it behaves as a substring
// match for free. Compilation failures are logged once and the
// handler falls back to "never match", per spec — not to a literal
// substring fallback.
type filter struct {
	pattern string
	re      *regexp.Regexp // nil means "never match"
}

var (
	regexCacheMu sync.Mutex
	regexCache   = map[string]*regexp.Regexp{}
)

func compileCached(pattern string, logger *slog.Logger) *regexp.Regexp {
	regexCacheMu.Lock()
	defer regexCacheMu.Unlock()
	if re, ok := regexCache[pattern]; ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		if logger != nil {
			logger.Warn("script filter failed to compile, handler will never match", "pattern", pattern, "error", err)
		}
		regexCache[pattern] = nil
		return nil
	}
	regexCache[pattern] = re
	return re
}

// newFilter builds a filter for pattern. An empty pattern matches
// everything.
func newFilter(pattern string, logger *slog.Logger) *filter {
	if pattern == "" {
		return &filter{pattern: pattern}
	}
	return &filter{pattern: pattern, re: compileCached(pattern, logger)}
}

func (f *filter) matches(url string) bool {
	if f.pattern == "" {
		return true
	}
	if f.re == nil {
		return false
	}
	return f.re.MatchString(url)
}
