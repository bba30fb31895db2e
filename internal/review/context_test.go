package review

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/conclave/internal/config"
	"github.com/dshills/conclave/internal/ui"
)

func TestDetectCI(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want bool
	}{
		{"none", nil, false},
		{"github", map[string]string{"GITHUB_ACTIONS": "true"}, true},
		{"azure", map[string]string{"TF_BUILD": "True"}, true},
		{"jenkins", map[string]string{"JENKINS_URL": "http://ci"}, true},
		{"generic", map[string]string{"CI": "1"}, true},
		{"empty value", map[string]string{"CI": ""}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := func(k string) string { return tt.env[k] }
			if got := DetectCI(getenv); got != tt.want {
				t.Errorf("DetectCI = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveDepth(t *testing.T) {
	tests := []struct {
		depth   string
		ci      bool
		want    string
		wantErr bool
	}{
		{"", false, DepthStandard, false},
		{"", true, DepthLight, false},
		{"Deep", false, DepthDeep, false},
		{"light", false, DepthLight, false},
		{"standard", true, DepthStandard, false},
		{"huge", false, "", true},
	}
	for _, tt := range tests {
		got, err := ResolveDepth(tt.depth, tt.ci)
		if (err != nil) != tt.wantErr {
			t.Errorf("ResolveDepth(%q, %v) err = %v, wantErr %v", tt.depth, tt.ci, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveDepth(%q, %v) = %q, want %q", tt.depth, tt.ci, got, tt.want)
		}
	}
}

func TestSnapshot_SharedContext(t *testing.T) {
	snap := &Snapshot{
		Contracts: "contract text",
		Tree:      "demo\n",
		Source:    `password = "my-super-secret-password-123"`,
		FileCount: 2,
	}

	got := snap.SharedContext(false)
	for _, want := range []string{
		"# CONTRACTS\n\ncontract text",
		"\n\n# PROJECT FILE STRUCTURE\n\ndemo\n",
		"\n\n# SOURCE FILES\n\n",
		"\n\n---\nCONTEXT SUMMARY: You have been provided 2 source files.",
		"cap severity at MEDIUM and note it is unverified.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("shared context missing %q", want)
		}
	}
	if strings.Contains(got, "# GIT DIFF") {
		t.Error("shared context has a diff section without a diff")
	}
	if !strings.HasPrefix(got, "# CONTRACTS") {
		t.Errorf("shared context should start with contracts, got %q", got[:20])
	}

	snap.Diff = "diff --git a/x b/x"
	if got := snap.SharedContext(false); !strings.Contains(got, "\n\n# GIT DIFF\n\ndiff --git a/x b/x\n\n---\n") {
		t.Errorf("diff section missing or misplaced:\n%s", got)
	}

	if got := snap.SharedContext(true); strings.Contains(got, "my-super-secret-password-123") {
		t.Error("secret survived redaction")
	}
}

func TestTakeSnapshot_LightFallsBackOutsideGit(t *testing.T) {
	t.Setenv("GITHUB_BASE_REF", "")
	t.Setenv("SYSTEM_PULLREQUEST_TARGETBRANCH", "")
	root := t.TempDir()
	src := "package main\n\nfunc main() {\n\tprintln(\"hello from the snapshot test\")\n}\n"
	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()

	snap, err := takeSnapshot(context.Background(), scanInput{
		root:        root,
		depth:       DepthLight,
		baseBranch:  "main",
		diffAllowed: true,
		cfg:         &cfg,
	}, "contracts", ui.Discard())
	if err != nil {
		t.Fatalf("takeSnapshot: %v", err)
	}
	if snap.Depth != DepthStandard {
		t.Errorf("depth = %q, want fallback to %q", snap.Depth, DepthStandard)
	}
	if snap.FileCount != 1 {
		t.Errorf("FileCount = %d, want 1", snap.FileCount)
	}
	if !strings.Contains(snap.Source, "hello from the snapshot test") {
		t.Errorf("source missing main.go content:\n%s", snap.Source)
	}
}

func TestTakeSnapshot_LightNeedsLicense(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	var buf strings.Builder
	snap, err := takeSnapshot(context.Background(), scanInput{
		root:  root,
		depth: DepthLight,
		cfg:   &cfg,
	}, "", ui.New(&buf))
	if err != nil {
		t.Fatal(err)
	}
	if snap.Depth != DepthStandard {
		t.Errorf("depth = %q, want %q", snap.Depth, DepthStandard)
	}
	if !strings.Contains(buf.String(), "Diff scoping requires a Pro license") {
		t.Errorf("missing license warning in:\n%s", buf.String())
	}
}
