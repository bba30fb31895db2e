package scanner

import (
	"path"
	"strings"
)

// Tier is a context-inclusion priority, 1 (highest) to 7.
type Tier int

const (
	TierEntryPoint Tier = iota + 1
	TierBusinessLogic
	TierModels
	TierTests
	TierDocs
	TierFrontend
	TierOther
)

// NumTiers is the number of priority buckets.
const NumTiers = int(TierOther)

var excludeDirs = set(
	"node_modules", ".git", "__pycache__", ".venv", "venv", "dist", "build",
	".next", ".nuxt", "coverage", ".pytest_cache", ".conclave", ".code-conclave",
	".review-council", ".claude", "vendor", "bin", "obj", ".vs", ".idea",
)

var includeExtensions = set(
	".ps1", ".py", ".js", ".ts", ".jsx", ".tsx", ".cs", ".java", ".go", ".rs",
	".rb", ".php", ".swift", ".kt", ".scala", ".vue", ".svelte", ".html", ".css",
	".scss", ".sql", ".yaml", ".yml", ".json", ".toml", ".md",
)

// Names accepted even though their extension is not in includeExtensions.
var bypassNames = set(
	"dockerfile", "makefile", "rakefile", "gemfile", "vagrantfile", "nginx.conf",
	"requirements.txt", ".env.example", ".gitignore", "procfile", "brewfile",
)

var excludePatterns = []string{
	"*.min.js", "*.min.css", "*.map", "*.lock", "package-lock.json",
	"*.generated.*", "*.g.cs", "*.designer.cs",
}

var tier1Names = set(
	"main.py", "main.go", "app.py", "server.js", "server.ts", "nginx.conf",
	"dockerfile", "manage.py", "wsgi.py", "asgi.py", ".env.example",
	"requirements.txt", "package.json", "pyproject.toml", "setup.cfg",
	"makefile", "rakefile", "gemfile", "go.mod", "cargo.toml", "pom.xml",
	"build.gradle",
)

var (
	apiDirs      = set("services", "core", "lib", "utils", "middleware", "api", "hooks", "controllers", "handlers", "routes", "endpoints")
	modelDirs    = set("models", "schemas", "entities", "types")
	testDirs     = set("tests", "test", "__tests__", "spec", "specs")
	docDirs      = set("docs", "documentation", "doc")
	frontendDirs = set("components", "pages", "views", "screens", "layouts", "templates")
)

var docPrefixes = []string{
	"readme", "contributing", "changelog", "license", "rollback", "migration",
	"deployment", "backup", "operations", "runbook", "install", "architecture",
}

// tierFileCaps bounds how many files pass 1 takes from each tier.
var tierFileCaps = map[Tier]int{
	TierEntryPoint:    15,
	TierBusinessLogic: 15,
	TierModels:        8,
	TierTests:         10,
	TierDocs:          8,
	TierFrontend:      10,
	TierOther:         5,
}

// Classify assigns rel (a slash-separated path relative to the project root)
// to exactly one tier, using the first rule that matches.
func Classify(rel string) Tier {
	parts := strings.Split(strings.ToLower(path.Clean(rel)), "/")
	name := parts[len(parts)-1]
	dirs := parts[:len(parts)-1]

	inAPI := anyIn(dirs, apiDirs)
	if tier1Names[name] ||
		strings.HasPrefix(name, "docker-compose.") ||
		(isAmbiguousConfig(name) && !inAPI) ||
		((name == "index.js" || name == "index.ts") && len(parts) <= 3) {
		return TierEntryPoint
	}

	test := isTestName(name) || anyIn(dirs, testDirs)
	if inAPI && !test {
		return TierBusinessLogic
	}
	if anyIn(dirs, modelDirs) {
		return TierModels
	}
	if test {
		return TierTests
	}
	if isDocName(name) || (strings.HasSuffix(name, ".md") && anyIn(dirs, docDirs)) {
		return TierDocs
	}
	if anyIn(dirs, frontendDirs) {
		return TierFrontend
	}
	return TierOther
}

func isAmbiguousConfig(name string) bool {
	return name == "settings.py" || name == "setup.py" || strings.HasPrefix(name, "config.")
}

func isTestName(name string) bool {
	return strings.HasPrefix(name, "test_") ||
		strings.Contains(name, "_test.") ||
		strings.Contains(name, ".test.") ||
		strings.Contains(name, ".tests.") ||
		strings.Contains(name, ".spec.") ||
		name == "conftest.py"
}

func isDocName(name string) bool {
	for _, p := range docPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Eligible reports whether a file name passes the extension allowlist and
// the generated-file denylist.
func Eligible(name string) bool {
	lower := strings.ToLower(name)
	if !includeExtensions[path.Ext(lower)] && !bypassNames[lower] {
		return false
	}
	for _, pattern := range excludePatterns {
		if ok, _ := path.Match(pattern, lower); ok {
			return false
		}
	}
	return true
}

// ExcludedDir reports whether a directory name is pruned from every walk.
func ExcludedDir(name string) bool {
	return excludeDirs[strings.ToLower(name)]
}

func anyIn(parts []string, s map[string]bool) bool {
	for _, p := range parts {
		if s[p] {
			return true
		}
	}
	return false
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
