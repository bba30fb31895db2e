package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// VersionStatus compares a project's conclave_version with the running binary.
type VersionStatus int

const (
	VersionCurrent VersionStatus = iota
	VersionMissing
	VersionMajorBehind
	VersionMinorBehind
	VersionNewer
)

// VersionCheck is the outcome of CheckVersion.
type VersionCheck struct {
	Status  VersionStatus
	Project string
	Running string
	Stamped bool
}

// Message returns the console line for the check, or "" when nothing needs
// saying. warn is true for the cases a user should act on.
func (v VersionCheck) Message() (msg string, warn bool) {
	switch v.Status {
	case VersionMissing:
		return "No conclave_version in config (created before v3.0.0). Stamping current version.", true
	case VersionMajorBehind:
		return fmt.Sprintf("Project config is v%s, running v%s (major upgrade). Review config for breaking changes.",
			v.Project, v.Running), true
	case VersionMinorBehind:
		return fmt.Sprintf("Project config is v%s, running v%s. Updating version stamp.", v.Project, v.Running), false
	case VersionNewer:
		return fmt.Sprintf("Project config is v%s, but running older v%s. Some features may not be available.",
			v.Project, v.Running), true
	}
	return "", false
}

// CheckVersion compares the project's conclave_version with running and
// re-stamps config.yaml when the project is missing a version or is behind.
func CheckVersion(projectPath, running string) (VersionCheck, error) {
	file, err := readFile(Path(projectPath))
	if err != nil {
		return VersionCheck{}, err
	}
	project := ""
	if v, ok := file["conclave_version"]; ok && v != nil {
		project = fmt.Sprint(v)
	}
	check := VersionCheck{Project: project, Running: running}

	if project == "" {
		check.Status = VersionMissing
	} else {
		cur, existing := parseVersion(running), parseVersion(project)
		switch {
		case existing[0] < cur[0]:
			check.Status = VersionMajorBehind
		case existing[0] == cur[0] && existing[1] < cur[1]:
			check.Status = VersionMinorBehind
		case compareVersions(existing, cur) > 0:
			check.Status = VersionNewer
		}
	}

	switch check.Status {
	case VersionMissing, VersionMajorBehind, VersionMinorBehind:
		stamped, err := StampVersion(projectPath, running)
		if err != nil {
			return check, err
		}
		check.Stamped = stamped
	}
	return check, nil
}

// parseVersion reads "X.Y.Z" as integers. Anything unparsable is 0.0.0.
func parseVersion(v string) [3]int {
	var out [3]int
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(v), "v"), ".")
	if len(parts) > 3 {
		return out
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return [3]int{}
		}
		out[i] = n
	}
	return out
}

func compareVersions(a, b [3]int) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

var versionLineRe = regexp.MustCompile(`(?m)^conclave_version:.*$`)

// StampVersion writes conclave_version into config.yaml, replacing an
// existing line or inserting one after the leading comment block. It reports
// false when the file does not exist.
func StampVersion(projectPath, version string) (bool, error) {
	path := Path(projectPath)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading config file: %w", err)
	}
	content := strings.ReplaceAll(string(data), "\ufeff", "")
	line := fmt.Sprintf("conclave_version: %q", version)

	if loc := versionLineRe.FindStringIndex(content); loc != nil {
		content = content[:loc[0]] + line + content[loc[1]:]
	} else {
		lines := strings.Split(content, "\n")
		at := 0
		for i, l := range lines {
			if strings.HasPrefix(l, "#") || strings.TrimSpace(l) == "" {
				at = i + 1
				continue
			}
			break
		}
		tail := append([]string{line, ""}, lines[at:]...)
		content = strings.Join(append(lines[:at:at], tail...), "\n")
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("writing config file: %w", err)
	}
	return true, nil
}

// Initialized reports whether projectPath has a .conclave directory.
func Initialized(projectPath string) bool {
	info, err := os.Stat(Dir(projectPath))
	return err == nil && info.IsDir()
}

// Init creates the .conclave layout and a starter config.yaml. An existing
// config file is left alone.
func Init(projectPath, version string) error {
	for _, dir := range []string{
		ReviewsDir(projectPath),
		filepath.Join(ReviewsDir(projectPath), "archive"),
		AgentsDir(projectPath),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	path := Path(projectPath)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	name := filepath.Base(filepath.Clean(projectPath))
	if abs, err := filepath.Abs(projectPath); err == nil {
		name = filepath.Base(abs)
	}

	var buf bytes.Buffer
	buf.WriteString("# Code Conclave project configuration\n")
	buf.WriteString("# See docs/CONFIGURATION.md for full reference\n\n")
	fmt.Fprintf(&buf, "conclave_version: %q\n\n", version)
	fmt.Fprintf(&buf, "project:\n  name: %q\n\n", name)
	buf.WriteString("ai:\n  provider: anthropic\n")

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
