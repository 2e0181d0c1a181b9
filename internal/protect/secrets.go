package protect

import (
	"regexp"
	"strings"
)

type compiledSecret struct {
	re     *regexp.Regexp
	reason string
}

// secretScanner looks for credentials written directly into source.
type secretScanner struct {
	patterns []compiledSecret
}

func newSecretScanner(patterns []SecretPattern) *secretScanner {
	s := &secretScanner{}
	for _, p := range patterns {
		s.patterns = append(s.patterns, compiledSecret{re: regexp.MustCompile(p.Pattern), reason: p.Reason})
	}
	return s
}

// scan returns the reason for the first line that matches a pattern.
func (s *secretScanner) scan(content string) (string, bool) {
	if content == "" {
		return "", false
	}
	for _, line := range strings.Split(content, "\n") {
		for _, p := range s.patterns {
			if p.re.MatchString(line) {
				return p.reason, true
			}
		}
	}
	return "", false
}
