package scanner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	body := strings.Repeat("x := 1\n", 20)
	writeFile(t, root, "main.go", "package main\n"+body)
	writeFile(t, root, "src/services/svc.py", "def handler():\n"+body+body)
	writeFile(t, root, "node_modules/lib/index.js", "module.exports = {}\n"+body)
	writeFile(t, root, "tiny.py", "x = 1\n")
	writeFile(t, root, "blank.md", strings.Repeat(" \n", 40))
	writeFile(t, root, "binary.js", "abc\x00"+body)
	writeFile(t, root, "logo.png", body)

	res, err := Scan(context.Background(), root, Options{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.FileCount != 2 {
		t.Fatalf("FileCount = %d, want 2 (files %v)", res.FileCount, res.Files)
	}
	if res.TotalEligible != 5 {
		t.Errorf("TotalEligible = %d, want 5", res.TotalEligible)
	}
	if !strings.HasPrefix(res.Content, "# Source Files (2 files, ") {
		t.Errorf("unexpected header: %q", res.Content[:40])
	}
	mainAt := strings.Index(res.Content, "## File: main.go\n```go\n")
	svcAt := strings.Index(res.Content, "## File: src/services/svc.py\n```py\n")
	if mainAt < 0 || svcAt < 0 || mainAt > svcAt {
		t.Errorf("expected main.go before svc.py in:\n%s", res.Content)
	}
	if strings.Contains(res.Content, "node_modules") {
		t.Error("excluded directory leaked into content")
	}
	if res.TotalKB <= 0 {
		t.Errorf("TotalKB = %v", res.TotalKB)
	}
}

func TestScan_RedactPaths(t *testing.T) {
	root := t.TempDir()
	body := strings.Repeat("password: hunter2\n", 10)
	writeFile(t, root, "deploy/app_secrets.yaml", body)
	writeFile(t, root, "deploy/app.yaml", strings.Repeat("replicas: 2\n", 10))

	res, err := Scan(context.Background(), root, Options{RedactPaths: []string{"**/*secrets*"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.FileCount != 2 {
		t.Fatalf("FileCount = %d, want 2", res.FileCount)
	}
	if strings.Contains(res.Content, "hunter2") {
		t.Error("content of a redacted path leaked")
	}
	if !strings.Contains(res.Content, "redacted by path policy") || !strings.Contains(res.Content, "replicas: 2") {
		t.Errorf("unexpected content:\n%s", res.Content)
	}
}

func TestScan_Empty(t *testing.T) {
	res, err := Scan(context.Background(), t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Content != NoFilesPlaceholder || res.FileCount != 0 || res.TotalEligible != 0 {
		t.Errorf("got %+v", res)
	}
}

func TestScan_MissingRoot(t *testing.T) {
	_, err := Scan(context.Background(), filepath.Join(t.TempDir(), "nope"), Options{})
	if err == nil {
		t.Error("expected error for missing root")
	}
}

func TestScan_RespectsFileCap(t *testing.T) {
	root := t.TempDir()
	body := strings.Repeat("line\n", 20)
	for _, name := range []string{"a.go", "b.go", "c.go", "d.go"} {
		writeFile(t, root, "lib/"+name, body)
	}
	res, err := Scan(context.Background(), root, Options{MaxFiles: 3})
	if err != nil {
		t.Fatal(err)
	}
	if res.FileCount != 3 || res.TotalEligible != 4 {
		t.Errorf("FileCount = %d, TotalEligible = %d", res.FileCount, res.TotalEligible)
	}
}

func TestFileTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.txt", "b")
	writeFile(t, root, "a/c.go", "c")
	writeFile(t, root, "node_modules/x.js", "x")

	want := filepath.Base(root) + "\n" +
		"|-- a\n" +
		"|   +-- c.go\n" +
		"+-- b.txt\n"
	if got := FileTree(root, 4); got != want {
		t.Errorf("FileTree =\n%s\nwant\n%s", got, want)
	}
}

func TestFileTree_Depth(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/b/c.go", "c")
	got := FileTree(root, 1)
	if strings.Contains(got, "b") && strings.Contains(got, "c.go") {
		t.Errorf("depth 1 should not descend:\n%s", got)
	}
}

func TestDiffScan_NoBase(t *testing.T) {
	t.Setenv("GITHUB_BASE_REF", "")
	t.Setenv("SYSTEM_PULLREQUEST_TARGETBRANCH", "")
	_, err := DiffScan(context.Background(), t.TempDir(), DiffOptions{})
	if !errors.Is(err, ErrNoDiffContext) {
		t.Errorf("err = %v, want ErrNoDiffContext", err)
	}
}

func TestDiffScan_NotRepository(t *testing.T) {
	_, err := DiffScan(context.Background(), t.TempDir(), DiffOptions{BaseBranch: "main"})
	if !errors.Is(err, ErrNoDiffContext) {
		t.Errorf("err = %v, want ErrNoDiffContext", err)
	}
}

func TestBaseFromEnv(t *testing.T) {
	t.Setenv("GITHUB_BASE_REF", "")
	t.Setenv("SYSTEM_PULLREQUEST_TARGETBRANCH", "refs/heads/release")
	if got := BaseFromEnv(); got != "release" {
		t.Errorf("BaseFromEnv = %q", got)
	}
	t.Setenv("GITHUB_BASE_REF", "main")
	if got := BaseFromEnv(); got != "main" {
		t.Errorf("BaseFromEnv = %q", got)
	}
}

func TestDiffScan(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	root := t.TempDir()
	git := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = root
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	git("init")
	git("checkout", "-b", "main")
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	git("add", "-A")
	git("commit", "-m", "init")
	git("checkout", "-b", "feature")
	writeFile(t, root, "util.go", "package main\n\nfunc helper() {}\n")
	writeFile(t, root, "main.go", "package main\n\nfunc main() { helper() }\n")
	writeFile(t, root, "logo.png", "not text")
	git("add", "-A")
	git("commit", "-m", "feature")

	dc, err := DiffScan(context.Background(), root, DiffOptions{BaseBranch: "main"})
	if err != nil {
		t.Fatalf("DiffScan: %v", err)
	}
	if dc.BaseRef != "main" {
		t.Errorf("BaseRef = %q", dc.BaseRef)
	}
	if len(dc.ChangedFiles) != 3 {
		t.Errorf("ChangedFiles = %v", dc.ChangedFiles)
	}
	if dc.FileCount != 2 {
		t.Errorf("FileCount = %d, want 2", dc.FileCount)
	}
	if !strings.HasPrefix(dc.FileContents, "# Changed Files (2 files, ") {
		t.Errorf("FileContents header: %q", dc.FileContents)
	}
	if !strings.Contains(dc.Diff, "+func helper() {}") || dc.Truncated {
		t.Errorf("unexpected diff (truncated=%v):\n%s", dc.Truncated, dc.Diff)
	}

	git("checkout", "main")
	if _, err := DiffScan(context.Background(), root, DiffOptions{BaseBranch: "main"}); !errors.Is(err, ErrNoDiffContext) {
		t.Errorf("no changes: err = %v, want ErrNoDiffContext", err)
	}
}
