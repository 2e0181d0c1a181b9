package protect

import (
	"path/filepath"
	"regexp"
	"strings"
)

// sensitiveImport is an import pattern for one language.
type sensitiveImport struct {
	lang    string
	pattern string
	reason  string
}

var sensitiveImports = []sensitiveImport{
	{"go", `"crypto/`, "cryptography"},
	{"go", `"golang\.org/x/crypto/`, "cryptography"},
	{"go", `"golang\.org/x/oauth2`, "OAuth2"},
	{"go", `"github\.com/[^"]*/jwt`, "JWT"},
	{"go", `"database/sql"`, "database access"},

	{"script", `['"]crypto['"]`, "cryptography"},
	{"script", `['"]bcrypt(js)?['"]`, "password hashing"},
	{"script", `['"]jsonwebtoken['"]`, "JWT"},
	{"script", `['"]passport[^'"]*['"]`, "authentication"},
	{"script", `['"]express-session['"]`, "session management"},
	{"script", `['"]@aws-sdk/client-secrets-manager['"]`, "secrets management"},

	{"python", `^\s*(import|from)\s+cryptography`, "cryptography"},
	{"python", `^\s*(import|from)\s+jwt\b`, "JWT"},
	{"python", `^\s*import\s+(secrets|hashlib|bcrypt)\b`, "password hashing"},
	{"python", `^\s*from\s+passlib`, "password hashing"},
	{"python", `^\s*from\s+django\.contrib\.auth`, "authentication"},
	{"python", `^\s*(import|from)\s+sqlalchemy`, "database access"},

	{"rust", `^\s*use\s+(ring|crypto)::`, "cryptography"},
	{"rust", `^\s*use\s+(bcrypt|argon2)`, "password hashing"},
	{"rust", `^\s*use\s+jsonwebtoken`, "JWT"},
	{"rust", `^\s*use\s+(diesel|sqlx)`, "database access"},
}

// maxScanLines bounds how far into proposed content imports are looked for.
const maxScanLines = 200

type compiledImport struct {
	re     *regexp.Regexp
	reason string
}

type importScanner struct {
	byLang map[string][]compiledImport
}

func newImportScanner() *importScanner {
	s := &importScanner{byLang: make(map[string][]compiledImport)}
	for _, imp := range sensitiveImports {
		s.byLang[imp.lang] = append(s.byLang[imp.lang], compiledImport{
			re:     regexp.MustCompile(imp.pattern),
			reason: imp.reason,
		})
	}
	return s
}

// scan returns the first sensitive import found in content.
func (s *importScanner) scan(file, content string) (string, bool) {
	patterns := s.byLang[languageOf(file)]
	if len(patterns) == 0 || content == "" {
		return "", false
	}
	for i, line := range strings.Split(content, "\n") {
		if i >= maxScanLines {
			break
		}
		if !importLine(line) {
			continue
		}
		for _, p := range patterns {
			if p.re.MatchString(line) {
				return p.reason, true
			}
		}
	}
	return "", false
}

// importLine is a cheap prefilter; Go import blocks put bare paths on
// their own lines, so quoted lines pass too.
func importLine(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "import") ||
		strings.HasPrefix(t, "from ") ||
		strings.HasPrefix(t, "use ") ||
		strings.HasPrefix(t, `"`) ||
		strings.Contains(t, "require(") ||
		strings.Contains(t, " from ")
}

func languageOf(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".go":
		return "go"
	case ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs":
		return "script"
	case ".py":
		return "python"
	case ".rs":
		return "rust"
	default:
		return ""
	}
}
