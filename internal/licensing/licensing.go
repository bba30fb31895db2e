package licensing

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Tier is a licensing level.
type Tier string

const (
	Free       Tier = "free"
	Pro        Tier = "pro"
	Compliance Tier = "compliance"
	Enterprise Tier = "enterprise"
)

// Tiers lists every tier from least to most capable.
var Tiers = []Tier{Free, Pro, Compliance, Enterprise}

// Feature names a gated capability.
type Feature string

const (
	PromptCaching     Feature = "prompt_caching"
	DiffScoping       Feature = "diff_scoping"
	JUnitOutput       Feature = "junit_output"
	ComplianceMapping Feature = "compliance_mapping"
	SixAgents         Feature = "six_agents"
)

var (
	freeAgents = []string{"guardian", "sentinel"}
	allAgents  = []string{"guardian", "sentinel", "architect", "navigator", "herald", "operator"}
)

var features = map[Feature]map[Tier]bool{
	PromptCaching:     {Pro: true, Compliance: true, Enterprise: true},
	DiffScoping:       {Pro: true, Compliance: true, Enterprise: true},
	JUnitOutput:       {Pro: true, Compliance: true, Enterprise: true},
	ComplianceMapping: {Compliance: true, Enterprise: true},
	SixAgents:         {Pro: true, Compliance: true, Enterprise: true},
}

// Inputs is everything tier resolution depends on.
type Inputs struct {
	TierOverride string // CONCLAVE_TIER
	LicenseKey   string // CONCLAVE_LICENSE_KEY
	LicenseFile  []byte // contents of ~/.conclave/license.json, if any
}

// Resolve picks the tier: a valid override wins, then the license key, then
// the key in the license file. Anything else is Free.
func Resolve(in Inputs) Tier {
	override := Tier(strings.ToLower(strings.TrimSpace(in.TierOverride)))
	if override.Valid() {
		return override
	}

	key := strings.TrimSpace(in.LicenseKey)
	if key == "" && len(in.LicenseFile) > 0 {
		var file struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal(in.LicenseFile, &file); err == nil {
			key = strings.TrimSpace(file.Key)
		}
	}
	return tierForKey(key)
}

func tierForKey(key string) Tier {
	switch {
	case strings.HasPrefix(key, "ccl-ent-"):
		return Enterprise
	case strings.HasPrefix(key, "ccl-comp-"):
		return Compliance
	case strings.HasPrefix(key, "ccl-pro-"):
		return Pro
	}
	return Free
}

// FromEnvironment gathers Inputs from getenv and the license file under home.
// An unreadable file is treated as absent.
func FromEnvironment(getenv func(string) string, home string) Inputs {
	in := Inputs{
		TierOverride: getenv("CONCLAVE_TIER"),
		LicenseKey:   getenv("CONCLAVE_LICENSE_KEY"),
	}
	if in.LicenseKey == "" && home != "" {
		if data, err := os.ReadFile(filepath.Join(home, ".conclave", "license.json")); err == nil {
			in.LicenseFile = data
		}
	}
	return in
}

// Current resolves the tier for this process.
func Current() Tier {
	home, _ := os.UserHomeDir()
	return Resolve(FromEnvironment(os.Getenv, home))
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	for _, known := range Tiers {
		if t == known {
			return true
		}
	}
	return false
}

// Has reports whether t includes feature f.
func (t Tier) Has(f Feature) bool {
	return features[f][t]
}

// AllowedAgents returns the agent keys t may run, in canonical order.
func (t Tier) AllowedAgents() []string {
	if t.Has(SixAgents) {
		return append([]string(nil), allAgents...)
	}
	return append([]string(nil), freeAgents...)
}

// MaxAgents is the number of agents t may run.
func (t Tier) MaxAgents() int {
	return len(t.AllowedAgents())
}
