package agents

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed data/contracts.md data/validator.md data/agents/*.md data/mock/*.md
var bundled embed.FS

// Definition describes one review agent.
type Definition struct {
	Key   string
	Name  string
	Role  string
	Color string
}

var definitions = []Definition{
	{Key: "guardian", Name: "GUARDIAN", Role: "Security", Color: "9"},
	{Key: "sentinel", Name: "SENTINEL", Role: "Quality & Testing", Color: "11"},
	{Key: "architect", Name: "ARCHITECT", Role: "Code Health", Color: "12"},
	{Key: "navigator", Name: "NAVIGATOR", Role: "UX & Workflows", Color: "10"},
	{Key: "herald", Name: "HERALD", Role: "Documentation", Color: "13"},
	{Key: "operator", Name: "OPERATOR", Role: "Production Readiness", Color: "14"},
}

// ValidatorKey names the validator's instruction file.
const ValidatorKey = "validator"

// ErrUnknownAgent is returned for a key outside the canonical set.
var ErrUnknownAgent = errors.New("unknown agent")

// All returns the agents in canonical order.
func All() []Definition {
	return append([]Definition(nil), definitions...)
}

// Keys returns the agent keys in canonical order.
func Keys() []string {
	keys := make([]string, len(definitions))
	for i, d := range definitions {
		keys[i] = d.Key
	}
	return keys
}

// Lookup returns the definition for key, ignoring case.
func Lookup(key string) (Definition, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, d := range definitions {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}

// Resolve validates requested keys against the canonical set and allowed,
// keeping the requested order and dropping duplicates. An empty request means
// every allowed agent in canonical order. Unknown keys are returned
// separately so callers can warn about them.
func Resolve(requested, allowed []string) (resolved, unknown []string) {
	allow := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		allow[strings.ToLower(k)] = true
	}
	if len(requested) == 0 {
		requested = Keys()
	}
	seen := map[string]bool{}
	for _, raw := range requested {
		for _, part := range strings.Split(raw, ",") {
			key := strings.ToLower(strings.TrimSpace(part))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			if _, ok := Lookup(key); !ok {
				unknown = append(unknown, key)
				continue
			}
			if allow[key] {
				resolved = append(resolved, key)
			}
		}
	}
	return resolved, unknown
}

// StartFrom drops every agent before key. It returns keys unchanged when key
// is empty and an error when key is not in the list.
func StartFrom(keys []string, key string) ([]string, error) {
	if key == "" {
		return keys, nil
	}
	key = strings.ToLower(key)
	for i, k := range keys {
		if k == key {
			return keys[i:], nil
		}
	}
	return nil, fmt.Errorf("%w: start-from %q is not in the agent list", ErrUnknownAgent, key)
}

// Instructions returns the agent's instruction markdown. stateDir is the
// project's .conclave directory; a file at agents/<key>.md inside it
// overrides the bundled copy.
func Instructions(stateDir, key string) string {
	if key == ValidatorKey {
		return ValidatorInstructions(stateDir)
	}
	if data, ok := readOverride(filepath.Join(stateDir, "agents", key+".md")); ok {
		return data
	}
	if data, err := bundled.ReadFile(path.Join("data", "agents", key+".md")); err == nil {
		return string(data)
	}
	return fmt.Sprintf("# %s Agent\n\nReview the code for issues in your domain.\n", strings.ToUpper(key))
}

// ValidatorInstructions returns the validator's instructions, honoring
// .conclave/agents/validator.md.
func ValidatorInstructions(stateDir string) string {
	if data, ok := readOverride(filepath.Join(stateDir, "agents", ValidatorKey+".md")); ok {
		return data
	}
	data, _ := bundled.ReadFile("data/validator.md")
	return string(data)
}

// Contracts returns the output contract shared by every agent. A file at
// .conclave/CONTRACTS.md overrides the bundled copy.
func Contracts(stateDir string) string {
	if data, ok := readOverride(filepath.Join(stateDir, "CONTRACTS.md")); ok {
		return data
	}
	data, _ := bundled.ReadFile("data/contracts.md")
	return string(data)
}

// MockFindings returns canned markdown used by dry runs. Keys without a
// canned report get an empty one.
func MockFindings(key string) string {
	data, err := bundled.ReadFile(path.Join("data", "mock", key+".md"))
	if err != nil {
		return fmt.Sprintf("# %s Review\n\nNo findings.\n\nCOMPLETE: 0 BLOCKER, 0 HIGH, 0 MEDIUM, 0 LOW\n", strings.ToUpper(key))
	}
	return string(data)
}

// SystemPrompt builds an agent's system prompt from its instructions and any
// calibration context.
func SystemPrompt(d Definition, instructions, calibration string) string {
	prompt := fmt.Sprintf("You are %s, the %s specialist.\n\n%s", d.Name, d.Role, instructions)
	if calibration != "" {
		prompt += "\n\n" + calibration
	}
	return prompt
}

// UserPrompt is the per-agent instruction sent alongside the shared context.
const UserPrompt = "Review this project and provide findings in the exact format specified in CONTRACTS.\n\n" +
	"End with: COMPLETE: X BLOCKER, Y HIGH, Z MEDIUM, W LOW"

// Export writes the bundled instructions and contract into stateDir so a
// project can customize them. Existing files are kept unless overwrite is
// set. It returns the paths written.
func Export(stateDir string, overwrite bool) ([]string, error) {
	agentsDir := filepath.Join(stateDir, "agents")
	if err := os.MkdirAll(agentsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating agents dir: %w", err)
	}

	files := map[string]string{
		filepath.Join(stateDir, "CONTRACTS.md"):      "data/contracts.md",
		filepath.Join(agentsDir, ValidatorKey+".md"): "data/validator.md",
	}
	for _, d := range definitions {
		files[filepath.Join(agentsDir, d.Key+".md")] = path.Join("data", "agents", d.Key+".md")
	}

	var written []string
	for _, target := range sortedKeys(files) {
		if !overwrite {
			if _, err := os.Stat(target); err == nil {
				continue
			}
		}
		data, err := bundled.ReadFile(files[target])
		if err != nil {
			return written, fmt.Errorf("reading embedded %s: %w", files[target], err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return written, fmt.Errorf("writing %s: %w", target, err)
		}
		written = append(written, target)
	}
	return written, nil
}

func readOverride(p string) (string, bool) {
	data, err := os.ReadFile(p)
	if err != nil {
		return "", false
	}
	return strings.TrimPrefix(string(data), "\ufeff"), true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
