package depgraph

import (
	"path"
	"regexp"
	"strings"
)

// ParseResult is the static import/export surface of one source file.
type ParseResult struct {
	// Imports are module specifiers in source order, deduplicated.
	Imports []string `json:"imports"`
	// Exports are the symbols the file makes available to importers.
	Exports []string `json:"exports"`
	// Symbols are all top-level declarations, exported or not.
	Symbols []string `json:"symbols"`
}

// SourceParser extracts the import/export surface from file content.
// Implementations must be safe for concurrent use.
type SourceParser interface {
	Parse(content string) ParseResult
}

// The parsers below are shallow and pattern based. They do not build a
// syntax tree; commented-out imports are picked up like real ones.

// ScriptParser handles JavaScript and TypeScript (ES modules and CommonJS).
type ScriptParser struct{}

// PythonParser handles Python modules.
type PythonParser struct{}

// GoParser handles Go source files.
type GoParser struct{}

// DefaultParsers maps each supported extension to its parser.
func DefaultParsers() map[string]SourceParser {
	script := ScriptParser{}
	return map[string]SourceParser{
		".ts":  script,
		".tsx": script,
		".js":  script,
		".jsx": script,
		".mjs": script,
		".cjs": script,
		".py":  PythonParser{},
		".go":  GoParser{},
	}
}

// ParserFor returns the parser registered for the file's extension, or nil.
func ParserFor(parsers map[string]SourceParser, file string) SourceParser {
	return parsers[strings.ToLower(path.Ext(file))]
}

var (
	esImportFrom    = regexp.MustCompile(`\bimport\s+(?:type\s+)?[^'";]*?\s*from\s*['"]([^'"]+)['"]`)
	esImportBare    = regexp.MustCompile(`(?m)^\s*import\s+['"]([^'"]+)['"]`)
	esExportFrom    = regexp.MustCompile(`\bexport\s+(?:type\s+)?(?:\*(?:\s+as\s+[\w$]+)?|\{[^}]*\})\s*from\s*['"]([^'"]+)['"]`)
	esDynamicImport = regexp.MustCompile(`\bimport\(\s*['"]([^'"]+)['"]\s*\)`)
	cjsRequire      = regexp.MustCompile(`\brequire\(\s*['"]([^'"]+)['"]\s*\)`)

	esExportDecl    = regexp.MustCompile(`(?m)^\s*export\s+(?:default\s+)?(?:declare\s+)?(?:abstract\s+)?(?:async\s+)?(?:function\*?|class|const|let|var|interface|type|enum)\s+([A-Za-z_$][\w$]*)`)
	esExportDefault = regexp.MustCompile(`(?m)^\s*export\s+default\b`)
	esExportList    = regexp.MustCompile(`\bexport\s+(?:type\s+)?\{([^}]*)\}`)
	cjsExportsProp  = regexp.MustCompile(`(?m)^\s*(?:module\.)?exports\.([A-Za-z_$][\w$]*)\s*=`)
	cjsModuleExport = regexp.MustCompile(`(?m)^\s*module\.exports\s*=`)
	esLocalDecl     = regexp.MustCompile(`(?m)^(?:async\s+)?(?:function\*?|class|const|let|var|interface|type|enum)\s+([A-Za-z_$][\w$]*)`)

	pyFromImport   = regexp.MustCompile(`(?m)^\s*from\s+(\.*[\w.]*)\s+import\s+`)
	pyImport       = regexp.MustCompile(`(?m)^\s*import\s+([A-Za-z_][\w.]*(?:\s*,\s*[A-Za-z_][\w.]*)*)\s*$`)
	pyTopLevelDecl = regexp.MustCompile(`(?m)^(?:async\s+)?(?:def|class)\s+([A-Za-z_]\w*)`)
	pyAllList      = regexp.MustCompile(`(?m)^__all__\s*=\s*[\[(]([^\])]*)[\])]`)

	goImportSingle = regexp.MustCompile(`(?m)^import\s+(?:[\w.]+\s+)?"([^"]+)"`)
	goImportBlock  = regexp.MustCompile(`(?ms)^import\s*\(\s*(.*?)\)`)
	goImportLine   = regexp.MustCompile(`(?m)^\s*(?:[\w.]+\s+)?"([^"]+)"`)
	goFunc         = regexp.MustCompile(`(?m)^func\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)`)
	goDecl         = regexp.MustCompile(`(?m)^(?:type|var|const)\s+([A-Za-z_]\w*)`)
)

// Parse implements SourceParser.
func (ScriptParser) Parse(content string) ParseResult {
	imports, exports, symbols := newOrderedSet(), newOrderedSet(), newOrderedSet()

	for _, re := range []*regexp.Regexp{esImportFrom, esImportBare, esExportFrom, esDynamicImport, cjsRequire} {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			imports.add(m[1])
		}
	}

	for _, m := range esExportDecl.FindAllStringSubmatch(content, -1) {
		exports.add(m[1])
		symbols.add(m[1])
	}
	if esExportDefault.MatchString(content) || cjsModuleExport.MatchString(content) {
		exports.add("default")
	}
	for _, m := range esExportList.FindAllStringSubmatch(content, -1) {
		for _, name := range splitExportList(m[1]) {
			exports.add(name)
		}
	}
	for _, m := range cjsExportsProp.FindAllStringSubmatch(content, -1) {
		exports.add(m[1])
	}
	for _, m := range esLocalDecl.FindAllStringSubmatch(content, -1) {
		symbols.add(m[1])
	}

	return ParseResult{Imports: imports.items, Exports: exports.items, Symbols: symbols.items}
}

// Parse implements SourceParser. Without __all__, every top-level def or
// class not starting with an underscore counts as exported.
func (PythonParser) Parse(content string) ParseResult {
	imports, exports, symbols := newOrderedSet(), newOrderedSet(), newOrderedSet()

	for _, m := range pyFromImport.FindAllStringSubmatch(content, -1) {
		imports.add(pythonModuleToPath(m[1]))
	}
	for _, m := range pyImport.FindAllStringSubmatch(content, -1) {
		for _, mod := range strings.Split(m[1], ",") {
			imports.add(strings.TrimSpace(mod))
		}
	}

	for _, m := range pyTopLevelDecl.FindAllStringSubmatch(content, -1) {
		symbols.add(m[1])
	}

	if m := pyAllList.FindStringSubmatch(content); m != nil {
		for _, name := range strings.Split(m[1], ",") {
			exports.add(strings.Trim(strings.TrimSpace(name), `'"`))
		}
	} else {
		for _, s := range symbols.items {
			if !strings.HasPrefix(s, "_") {
				exports.add(s)
			}
		}
	}

	return ParseResult{Imports: imports.items, Exports: exports.items, Symbols: symbols.items}
}

// Parse implements SourceParser. Capitalized top-level identifiers are exports.
func (GoParser) Parse(content string) ParseResult {
	imports, exports, symbols := newOrderedSet(), newOrderedSet(), newOrderedSet()

	for _, m := range goImportSingle.FindAllStringSubmatch(content, -1) {
		imports.add(m[1])
	}
	for _, block := range goImportBlock.FindAllStringSubmatch(content, -1) {
		for _, m := range goImportLine.FindAllStringSubmatch(block[1], -1) {
			imports.add(m[1])
		}
	}

	for _, re := range []*regexp.Regexp{goFunc, goDecl} {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			name := m[1]
			symbols.add(name)
			if name[0] >= 'A' && name[0] <= 'Z' {
				exports.add(name)
			}
		}
	}

	return ParseResult{Imports: imports.items, Exports: exports.items, Symbols: symbols.items}
}

// splitExportList turns "a, b as c, type T" into [a c T].
func splitExportList(list string) []string {
	var names []string
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(part, "type ")
		if idx := strings.LastIndex(part, " as "); idx >= 0 {
			part = strings.TrimSpace(part[idx+len(" as "):])
		}
		if part != "" {
			names = append(names, part)
		}
	}
	return names
}

// pythonModuleToPath maps relative module names onto path-style specifiers:
// ".models" -> "./models", "..pkg.mod" -> "../pkg/mod". Absolute modules are
// returned unchanged.
func pythonModuleToPath(mod string) string {
	dots := 0
	for dots < len(mod) && mod[dots] == '.' {
		dots++
	}
	if dots == 0 {
		return mod
	}
	rest := strings.ReplaceAll(mod[dots:], ".", "/")
	prefix := "./"
	if dots > 1 {
		prefix = strings.Repeat("../", dots-1)
	}
	if rest == "" {
		return strings.TrimSuffix(prefix, "/")
	}
	return prefix + rest
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{}), items: []string{}}
}

func (s *orderedSet) add(v string) {
	if v == "" {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}
