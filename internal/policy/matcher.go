package policy

import (
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// compiledPattern wraps a gobwas/glob matcher for a tool pattern. The
// pattern grammar is deliberately narrower than general glob syntax
// (exact name, `prefix.*`, or `*suffix`); gobwas/glob is used anyway
// since the teacher already depends on it for exactly this kind of
// tool-pattern matching in its permission engine, and it correctly
// handles the `.` separator semantics `prefix.*` needs (e.g. `git.*`
// must match `git.status` but the call site never wants it to match
// across an unrelated `.` boundary it wasn't given).
type compiledPattern struct {
	g glob.Glob
}

func compilePattern(pattern string) (compiledPattern, error) {
	g, err := glob.Compile(pattern, '.')
	if err != nil {
		return compiledPattern{}, err
	}
	return compiledPattern{g: g}, nil
}

func (p compiledPattern) matches(tool string) bool {
	return p.g.Match(tool)
}

// matchArgsPattern reports whether the args pattern regex matches the
// serialized (JSON) representation of a tool call's arguments. An empty
// pattern always matches.
func matchArgsPattern(pattern, serializedArgs string) (bool, error) {
	if pattern == "" {
		return true, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(serializedArgs), nil
}

func modeAllowed(modes []Mode, mode Mode) bool {
	if len(modes) == 0 {
		return true
	}
	for _, m := range modes {
		if m == mode {
			return true
		}
	}
	return false
}
