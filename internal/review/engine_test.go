package review

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/dshills/conclave/internal/agents"
	"github.com/dshills/conclave/internal/config"
	"github.com/dshills/conclave/internal/findings"
	"github.com/dshills/conclave/internal/licensing"
	"github.com/dshills/conclave/internal/providers"
	"github.com/dshills/conclave/internal/synthesis"
	"github.com/dshills/conclave/internal/ui"
)

const testVersion = "3.0.0"

func noEnv(string) string { return "" }

func clearConclaveEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONCLAVE_AI_PROVIDER", "CONCLAVE_AI_MODEL", "CONCLAVE_LOG_LEVEL", "CONCLAVE_LOG_JSON",
		"GITHUB_BASE_REF", "SYSTEM_PULLREQUEST_TARGETBRANCH",
	} {
		t.Setenv(k, "")
	}
}

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"main.go":        "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"conclave test project\")\n}\n",
		"README.md":      "# Demo\n\nA small project used by the review engine tests.\n",
		"lib/handler.go": "package lib\n\n// Handle echoes its input back to the caller unchanged.\nfunc Handle(s string) string { return s }\n",
	}
	for rel, content := range files {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func exists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	return err == nil
}

// scripted answers agent calls with canned findings and validator calls
// with a fixed decision list.
type scripted struct {
	mu         sync.Mutex
	agentErr   error
	validation string
	requests   []providers.Request
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Complete(ctx context.Context, req providers.Request) (providers.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if strings.Contains(req.SystemPrompt, "You are VALIDATOR,") {
		return providers.Response{Content: s.validation}, nil
	}
	if s.agentErr != nil {
		return providers.Response{}, s.agentErr
	}
	m := agentNameRe.FindStringSubmatch(req.SystemPrompt)
	if m == nil {
		return providers.Response{}, errors.New("no agent in system prompt")
	}
	return providers.Response{
		Content: agents.MockFindings(strings.ToLower(m[1])),
		Usage:   &providers.Usage{Input: 1000, Output: 200},
	}, nil
}

var agentNameRe = regexp.MustCompile(`You are ([A-Z]+), the `)

func factoryFor(p providers.Provider) ProviderFactory {
	return func(*config.Config, string, *zap.SugaredLogger) (providers.Provider, error) {
		return p, nil
	}
}

func TestRun_DryRun(t *testing.T) {
	clearConclaveEnv(t)
	root := newProject(t)
	var buf bytes.Buffer
	e := &Engine{Console: ui.New(&buf)}

	out, err := e.Run(context.Background(), Options{
		ProjectPath: root,
		Version:     testVersion,
		DryRun:      true,
		Tier:        licensing.Free,
		Getenv:      noEnv,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if out.Verdict != synthesis.VerdictHold {
		t.Errorf("verdict = %s, want HOLD", out.Verdict)
	}
	if out.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", out.ExitCode)
	}
	if got := out.ProcessExitCode(); got != 0 {
		t.Errorf("process exit code outside CI = %d, want 0", got)
	}
	if len(out.Results) != 2 {
		t.Fatalf("results = %d, want 2 (free tier)", len(out.Results))
	}
	if out.Validation != nil {
		t.Error("dry run should skip validation")
	}

	reviews := config.ReviewsDir(root)
	for _, name := range []string{
		"guardian-findings.md", "guardian-findings.json",
		"sentinel-findings.md", "sentinel-findings.json",
		findings.ReportFile,
	} {
		if !exists(t, filepath.Join(reviews, name)) {
			t.Errorf("%s not written", name)
		}
	}
	if exists(t, filepath.Join(reviews, findings.JUnitFile)) {
		t.Error("JUnit written outside CI without junit format")
	}
	archives, _ := filepath.Glob(filepath.Join(reviews, findings.ArchiveDir, "*.json"))
	if len(archives) != 1 {
		t.Errorf("archives = %d, want 1", len(archives))
	}

	r, err := findings.ReadJSON(findings.JSONPath(reviews, "guardian"))
	if err != nil {
		t.Fatal(err)
	}
	if r.Summary.Blockers != 1 || r.Summary.Total != 3 || !r.Run.DryRun {
		t.Errorf("guardian json summary = %+v dryRun=%v", r.Summary, r.Run.DryRun)
	}

	report, err := os.ReadFile(filepath.Join(reviews, findings.ReportFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(report), "HOLD") {
		t.Error("report does not state the HOLD verdict")
	}

	console := buf.String()
	for _, want := range []string{
		"Mode:    DRY RUN",
		"OK Initialized .conclave/",
		"OK Tier scan: ",
		"Running GUARDIAN...",
		"OK GUARDIAN: 3 findings (1B/1H/1M/0L)",
		"Verdict: HOLD",
	} {
		if !strings.Contains(console, want) {
			t.Errorf("console missing %q in:\n%s", want, console)
		}
	}
	if !config.Initialized(root) {
		t.Error("dry run should auto-initialize the project")
	}
}

func TestRun_CIWritesJUnitAndExitsWithVerdict(t *testing.T) {
	clearConclaveEnv(t)
	root := newProject(t)
	ciEnv := func(k string) string {
		if k == "GITHUB_ACTIONS" {
			return "true"
		}
		return ""
	}
	var buf bytes.Buffer
	out, err := (&Engine{Console: ui.New(&buf)}).Run(context.Background(), Options{
		ProjectPath: root,
		Version:     testVersion,
		DryRun:      true,
		Tier:        licensing.Pro,
		Getenv:      ciEnv,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Results) != 6 {
		t.Errorf("results = %d, want 6 (pro tier)", len(out.Results))
	}
	if got := out.ProcessExitCode(); got != 1 {
		t.Errorf("process exit code in CI = %d, want 1", got)
	}
	if !exists(t, filepath.Join(out.ReviewsDir, findings.JUnitFile)) {
		t.Error("CI run did not write JUnit results")
	}
	console := buf.String()
	for _, want := range []string{"OK JUnit XML: ", "CI Mode: Exiting with code 1"} {
		if !strings.Contains(console, want) {
			t.Errorf("console missing %q in:\n%s", want, console)
		}
	}
}

func TestRun_AgentSelection(t *testing.T) {
	clearConclaveEnv(t)
	root := newProject(t)
	out, err := (&Engine{}).Run(context.Background(), Options{
		ProjectPath: root,
		Version:     testVersion,
		DryRun:      true,
		Tier:        licensing.Enterprise,
		Getenv:      noEnv,
		Agents:      []string{"herald,architect", "operator"},
		StartFrom:   "architect",
		Format:      "json",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var got []string
	for _, r := range out.Results {
		got = append(got, r.Agent.ID)
	}
	if strings.Join(got, ",") != "architect,operator" {
		t.Errorf("agents run = %v, want [architect operator]", got)
	}
	if out.Verdict != synthesis.VerdictShip {
		t.Errorf("verdict = %s, want SHIP", out.Verdict)
	}
	if !exists(t, filepath.Join(out.ReviewsDir, JSONFile)) {
		t.Error("json format did not write the results file")
	}
}

func TestRun_SkipSynthesis(t *testing.T) {
	clearConclaveEnv(t)
	root := newProject(t)
	out, err := (&Engine{}).Run(context.Background(), Options{
		ProjectPath:   root,
		Version:       testVersion,
		DryRun:        true,
		Tier:          licensing.Free,
		Getenv:        noEnv,
		SkipSynthesis: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Synthesized || out.ExitCode != 0 {
		t.Errorf("outcome = %+v, want no synthesis", out)
	}
	if exists(t, filepath.Join(out.ReviewsDir, findings.ReportFile)) {
		t.Error("report written despite skip")
	}
	if !exists(t, findings.JSONPath(out.ReviewsDir, "guardian")) {
		t.Error("agent files should still be written")
	}
}

func TestRun_ExitErrors(t *testing.T) {
	clearConclaveEnv(t)

	initialized := func(t *testing.T) string {
		root := newProject(t)
		if err := config.Init(root, testVersion); err != nil {
			t.Fatal(err)
		}
		return root
	}

	tests := []struct {
		name     string
		setup    func(t *testing.T) Options
		factory  ProviderFactory
		wantCode int
	}{
		{
			name: "missing path",
			setup: func(t *testing.T) Options {
				return Options{ProjectPath: filepath.Join(t.TempDir(), "nope"), DryRun: true}
			},
			wantCode: ExitInvalidProject,
		},
		{
			name: "not initialized",
			setup: func(t *testing.T) Options {
				return Options{ProjectPath: newProject(t)}
			},
			wantCode: ExitInvalidProject,
		},
		{
			name: "invalid config",
			setup: func(t *testing.T) Options {
				root := initialized(t)
				if err := os.WriteFile(config.Path(root), []byte("ai: [broken\n"), 0o644); err != nil {
					t.Fatal(err)
				}
				return Options{ProjectPath: root, DryRun: true}
			},
			wantCode: ExitInvalidProject,
		},
		{
			name: "no agents for tier",
			setup: func(t *testing.T) Options {
				return Options{ProjectPath: initialized(t), DryRun: true, Agents: []string{"herald"}}
			},
			wantCode: ExitNoAgents,
		},
		{
			name: "bad start-from",
			setup: func(t *testing.T) Options {
				return Options{ProjectPath: initialized(t), DryRun: true, StartFrom: "herald"}
			},
			wantCode: ExitUsage,
		},
		{
			name: "bad scan depth",
			setup: func(t *testing.T) Options {
				return Options{ProjectPath: initialized(t), DryRun: true, ScanDepth: "huge"}
			},
			wantCode: ExitUsage,
		},
		{
			name: "provider init",
			setup: func(t *testing.T) Options {
				return Options{ProjectPath: initialized(t)}
			},
			factory: func(*config.Config, string, *zap.SugaredLogger) (providers.Provider, error) {
				return nil, errors.New("missing key sk-ant-REDACTED")
			},
			wantCode: ExitProviderInit,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.setup(t)
			opts.Version = testVersion
			opts.Tier = licensing.Free
			opts.Getenv = noEnv
			_, err := (&Engine{NewProvider: tt.factory}).Run(context.Background(), opts)
			var exitErr *ExitError
			if !errors.As(err, &exitErr) {
				t.Fatalf("err = %v, want *ExitError", err)
			}
			if exitErr.Code != tt.wantCode {
				t.Errorf("code = %d, want %d (%v)", exitErr.Code, tt.wantCode, err)
			}
			if strings.Contains(err.Error(), "sk-ant-") {
				t.Errorf("error leaked a credential: %v", err)
			}
		})
	}
}

func TestRun_ProviderWithValidation(t *testing.T) {
	clearConclaveEnv(t)
	root := newProject(t)
	if err := config.Init(root, testVersion); err != nil {
		t.Fatal(err)
	}
	p := &scripted{validation: "### VALIDATE: GUARDIAN-001 - BLOCKER -> REJECTED\n" +
		"**Reason:** Test fixture key, never deployed.\n\n" +
		"### VALIDATE: GUARDIAN-002 - HIGH -> LOW\n" +
		"**Reason:** Token auth, not cookies.\n\n" +
		"VALIDATION COMPLETE: 0 confirmed, 1 downgraded, 1 rejected out of 2 total\n"}

	out, err := (&Engine{NewProvider: factoryFor(p)}).Run(context.Background(), Options{
		ProjectPath: root,
		Version:     testVersion,
		Tier:        licensing.Pro,
		Getenv:      noEnv,
		Agents:      []string{"guardian"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(p.requests) != 2 {
		t.Fatalf("provider calls = %d, want agent + validator", len(p.requests))
	}
	agentReq := p.requests[0]
	if agentReq.SharedContext == "" || !strings.HasPrefix(agentReq.SharedContext, "# CONTRACTS") {
		t.Error("pro tier should send the shared context as a separate block")
	}
	if !strings.Contains(agentReq.SharedContext, "conclave test project") {
		t.Error("shared context missing project source")
	}
	if agentReq.UserPrompt != agents.UserPrompt {
		t.Errorf("user prompt = %q", agentReq.UserPrompt)
	}

	if out.Validation == nil {
		t.Fatal("validation stats missing")
	}
	if v := *out.Validation; v.Rejected != 1 || v.Downgraded != 1 || v.Total != 2 {
		t.Errorf("validation = %+v, want 1 rejected, 1 downgraded of 2", v)
	}
	if out.Verdict != synthesis.VerdictShip {
		t.Errorf("verdict = %s, want SHIP after rejection", out.Verdict)
	}

	r, err := findings.ReadJSON(findings.JSONPath(out.ReviewsDir, "guardian"))
	if err != nil {
		t.Fatal(err)
	}
	if r.Summary.Total != 2 || r.Summary.Blockers != 0 || r.Summary.Low != 1 {
		t.Errorf("re-exported summary = %+v, want 2 findings with 1 LOW", r.Summary)
	}
	if len(r.Rejected) != 1 || r.Rejected[0].ID != "GUARDIAN-001" {
		t.Errorf("rejected = %+v, want GUARDIAN-001", r.Rejected)
	}
	if r.Tokens == nil || r.Tokens.Input != 1000 {
		t.Errorf("tokens = %+v, want input 1000", r.Tokens)
	}
	if !exists(t, filepath.Join(out.ReviewsDir, findings.ValidatorFile)) {
		t.Error("validator output not written")
	}
}

func TestRun_FreeTierInlinesContext(t *testing.T) {
	clearConclaveEnv(t)
	root := newProject(t)
	if err := config.Init(root, testVersion); err != nil {
		t.Fatal(err)
	}
	p := &scripted{}
	_, err := (&Engine{NewProvider: factoryFor(p)}).Run(context.Background(), Options{
		ProjectPath:    root,
		Version:        testVersion,
		Tier:           licensing.Free,
		Getenv:         noEnv,
		Agents:         []string{"sentinel"},
		SkipValidation: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(p.requests) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(p.requests))
	}
	req := p.requests[0]
	if req.SharedContext != "" {
		t.Error("free tier should not send a separate shared context")
	}
	if !strings.Contains(req.SystemPrompt, "# CONTRACTS") {
		t.Error("free tier system prompt should carry the shared context")
	}
}

func TestRun_AgentFailureContinues(t *testing.T) {
	clearConclaveEnv(t)
	root := newProject(t)
	if err := config.Init(root, testVersion); err != nil {
		t.Fatal(err)
	}
	p := &scripted{agentErr: errors.New("HTTP 400: bad request")}
	var buf bytes.Buffer
	out, err := (&Engine{Console: ui.New(&buf), NewProvider: factoryFor(p)}).Run(context.Background(), Options{
		ProjectPath: root,
		Version:     testVersion,
		Tier:        licensing.Free,
		Getenv:      noEnv,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(out.Results))
	}
	for _, r := range out.Results {
		if r.Status != findings.StatusError || r.Error == "" {
			t.Errorf("%s status = %q error = %q, want error result", r.Agent.ID, r.Status, r.Error)
		}
	}
	if out.Verdict != synthesis.VerdictShip {
		t.Errorf("verdict = %s, want SHIP with no findings", out.Verdict)
	}
	if !strings.Contains(buf.String(), "FAILED GUARDIAN: HTTP 400: bad request") {
		t.Errorf("console missing failure line:\n%s", buf.String())
	}
}

func TestRun_MetricsTextfile(t *testing.T) {
	clearConclaveEnv(t)
	root := newProject(t)
	out, err := (&Engine{}).Run(context.Background(), Options{
		ProjectPath: root,
		Version:     testVersion,
		DryRun:      true,
		Tier:        licensing.Free,
		Getenv:      noEnv,
		Metrics:     true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out.ReviewsDir, MetricsFile))
	if err != nil {
		t.Fatalf("metrics textfile: %v", err)
	}
	if !strings.Contains(string(data), "conclave_runs_total") {
		t.Errorf("metrics textfile missing run counter:\n%s", data)
	}
}
