package gitctx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNotRepository is returned when the directory is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// ErrUnknownRef is returned when a base ref cannot be resolved.
var ErrUnknownRef = errors.New("unknown git ref")

// Repo runs git commands against one working directory.
type Repo struct {
	Dir string
}

// Open returns a Repo for dir after confirming it is inside a work tree.
func Open(ctx context.Context, dir string) (*Repo, error) {
	r := &Repo{Dir: dir}
	out, err := r.output(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil || strings.TrimSpace(out) != "true" {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotRepository)
	}
	return r, nil
}

// RepoMeta contains git repository metadata.
type RepoMeta struct {
	Root   string
	Head   string
	Branch string
}

// Meta collects repository metadata. Head and Branch are empty in a repo
// without commits.
func (r *Repo) Meta(ctx context.Context) (RepoMeta, error) {
	root, err := r.output(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return RepoMeta{}, fmt.Errorf("%w: %v", ErrNotRepository, err)
	}
	head, _ := r.output(ctx, "rev-parse", "HEAD")
	branch, _ := r.output(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	return RepoMeta{
		Root:   strings.TrimSpace(root),
		Head:   strings.TrimSpace(head),
		Branch: strings.TrimSpace(branch),
	}, nil
}

// ResolveBase finds a usable ref for base, preferring the remote-tracking
// branch origin/<base> over the local one.
func (r *Repo) ResolveBase(ctx context.Context, base string) (string, error) {
	base = strings.TrimPrefix(base, "refs/heads/")
	if base == "" {
		return "", fmt.Errorf("empty base: %w", ErrUnknownRef)
	}
	for _, ref := range []string{"origin/" + base, base} {
		if _, err := r.output(ctx, "rev-parse", "--verify", "--quiet", ref); err == nil {
			return ref, nil
		}
	}
	return "", fmt.Errorf("%s: %w", base, ErrUnknownRef)
}

// ChangedFiles lists paths that differ between ref and the working tree.
func (r *Repo) ChangedFiles(ctx context.Context, ref string) ([]string, error) {
	out, err := r.output(ctx, "diff", "--name-only", ref)
	if err != nil {
		return nil, fmt.Errorf("git diff --name-only: %w", err)
	}
	var files []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		f := strings.TrimSpace(line)
		if f != "" && !seen[f] {
			seen[f] = true
			files = append(files, f)
		}
	}
	return files, nil
}

// Diff returns the unified diff between ref and the working tree.
func (r *Repo) Diff(ctx context.Context, ref string) (string, error) {
	out, err := r.output(ctx, "diff", ref)
	if err != nil {
		return "", fmt.Errorf("git diff: %w", err)
	}
	return out, nil
}

// HookPath returns the path of the named git hook, honoring core.hooksPath.
func (r *Repo) HookPath(ctx context.Context, name string) (string, error) {
	out, err := r.output(ctx, "rev-parse", "--git-path", "hooks/"+name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotRepository, err)
	}
	p := strings.TrimSpace(out)
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.Dir, p)
	}
	return p, nil
}

// TruncateDiff keeps whole per-file sections while they fit in maxBytes. If
// even the first section is too large it is cut at maxBytes. The second
// return reports whether anything was dropped.
func TruncateDiff(diff string, maxBytes int) (string, bool) {
	if maxBytes <= 0 || len(diff) <= maxBytes {
		return diff, false
	}
	var b strings.Builder
	for _, section := range splitDiffSections(diff) {
		if b.Len()+len(section) > maxBytes {
			break
		}
		b.WriteString(section)
	}
	if b.Len() == 0 {
		return diff[:maxBytes], true
	}
	return b.String(), true
}

func splitDiffSections(diff string) []string {
	var sections []string
	lines := strings.Split(diff, "\n")
	var current strings.Builder
	for i, line := range lines {
		if strings.HasPrefix(line, "diff --git") && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		current.WriteString(line)
		if i < len(lines)-1 {
			current.WriteString("\n")
		}
	}
	if current.Len() > 0 {
		sections = append(sections, current.String())
	}
	return sections
}

func (r *Repo) output(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return string(out), fmt.Errorf("%w: %s", err, msg)
		}
		return string(out), err
	}
	return string(out), nil
}
