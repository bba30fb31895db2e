package review

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/conclave/internal/agents"
	"github.com/dshills/conclave/internal/calibration"
	"github.com/dshills/conclave/internal/compliance"
	"github.com/dshills/conclave/internal/config"
	"github.com/dshills/conclave/internal/findings"
	"github.com/dshills/conclave/internal/licensing"
	"github.com/dshills/conclave/internal/metrics"
	"github.com/dshills/conclave/internal/output"
	"github.com/dshills/conclave/internal/providers"
	"github.com/dshills/conclave/internal/redact"
	"github.com/dshills/conclave/internal/synthesis"
	"github.com/dshills/conclave/internal/ui"
	"github.com/dshills/conclave/internal/validator"
)

// Files written under .conclave/reviews next to those named in findings.
const (
	JSONFile    = "conclave-results.json"
	MetricsFile = "metrics.prom"
)

// DryRunProvider is the provider name recorded for dry runs.
const DryRunProvider = "dry-run"

const runTimestamp = "2006-01-02T15:04:05"

// Options configures one review run. Zero values take the project config.
type Options struct {
	ProjectPath string
	Version     string

	CI     bool
	DryRun bool
	// Format selects an extra report: markdown, json or junit.
	Format string

	Provider string
	Model    string
	Endpoint string
	NoCache  bool
	Metrics  bool
	// Timeout bounds each agent call. Zero uses agents.timeout minutes.
	Timeout time.Duration

	BaseBranch string
	ScanDepth  string

	Agents    []string
	StartFrom string

	SkipSynthesis  bool
	SkipValidation bool

	Standard      string
	Profile       string
	AddStandards  []string
	SkipStandards []string

	// Tier overrides the licensing tier resolved from the environment.
	Tier licensing.Tier
	// Getenv reads the environment for CI detection. Nil uses os.Getenv.
	Getenv func(string) string
}

// Outcome is the result of a completed run.
type Outcome struct {
	RunID       string
	Verdict     synthesis.Verdict
	ExitCode    int
	CI          bool
	Synthesized bool
	ReviewsDir  string
	Results     []*findings.AgentResult
	Validation  *validator.Stats
	Report      *synthesis.Report
}

// ProcessExitCode is the code the CLI exits with: the verdict code in CI,
// 0 otherwise.
func (o *Outcome) ProcessExitCode() int {
	if o == nil || !o.CI || !o.Synthesized {
		return 0
	}
	return o.ExitCode
}

// Engine runs reviews. The zero value prints nothing, logs nothing and
// builds providers with NewProvider.
type Engine struct {
	Console     *ui.Console
	Log         *zap.SugaredLogger
	NewProvider ProviderFactory
}

func (e *Engine) console() *ui.Console {
	if e.Console == nil {
		return ui.Discard()
	}
	return e.Console
}

func (e *Engine) logger() *zap.SugaredLogger {
	if e.Log == nil {
		return zap.NewNop().Sugar()
	}
	return e.Log
}

// run carries the state of one Run call between its stages.
type run struct {
	id        string
	start     time.Time
	opts      Options
	root      string
	name      string
	ci        bool
	tier      licensing.Tier
	cfg       *config.Config
	keys      []string
	reviews   string
	shared    string
	provider  providers.Provider
	calib     *calibration.Data
	results   []*findings.AgentResult
	validated *validator.Stats
}

// Run executes a review of opts.ProjectPath.
func (e *Engine) Run(ctx context.Context, opts Options) (*Outcome, error) {
	con, log := e.console(), e.logger()
	r := &run{id: uuid.NewString(), start: time.Now(), opts: opts}

	if err := e.prepare(r); err != nil {
		return nil, err
	}
	log.Debugw("review starting", "run_id", r.id, "project", r.root, "agents", r.keys, "tier", r.tier)

	con.PrintBanner(ui.Banner{
		Version: opts.Version,
		Project: r.name,
		Agents:  r.keys,
		Tier:    string(r.tier),
		DryRun:  opts.DryRun,
	})

	depth, err := ResolveDepth(opts.ScanDepth, r.ci)
	if err != nil {
		return nil, &ExitError{Code: ExitUsage, Err: err}
	}
	con.Info("Scanning project...")
	snap, err := takeSnapshot(ctx, scanInput{
		root:        r.root,
		depth:       depth,
		baseBranch:  opts.BaseBranch,
		diffAllowed: r.tier.Has(licensing.DiffScoping),
		cfg:         r.cfg,
	}, agents.Contracts(config.Dir(r.root)), con)
	if err != nil {
		return nil, err
	}
	r.shared = snap.SharedContext(r.cfg.Privacy.RedactSecrets)

	if !opts.DryRun {
		factory := e.NewProvider
		if factory == nil {
			factory = NewProvider
		}
		p, err := factory(r.cfg, r.root, log)
		if err != nil {
			return nil, &ExitError{Code: ExitProviderInit, Err: fmt.Errorf("failed to initialize AI provider: %w", redact.Error(err))}
		}
		r.provider = p
		con.OK("Provider: %s", p.Name())
	}

	if err := findings.RemoveWorking(r.reviews); err != nil {
		return nil, err
	}

	r.calib = e.loadCalibration(r)
	for _, key := range r.keys {
		res, err := e.runAgent(ctx, r, key)
		if err != nil {
			return nil, err
		}
		r.results = append(r.results, res)
	}

	if err := e.validate(ctx, r); err != nil {
		return nil, err
	}

	out := &Outcome{
		RunID:      r.id,
		CI:         r.ci,
		ReviewsDir: r.reviews,
		Results:    r.results,
		Validation: r.validated,
	}
	for _, res := range r.results {
		for _, sev := range findings.Severities {
			metrics.ObserveFindings(res.Agent.ID, string(sev), res.Summary.Count(sev))
		}
	}

	if opts.SkipSynthesis || len(r.results) == 0 {
		return out, e.writeMetrics(r)
	}
	report, err := e.synthesize(r, snap)
	if err != nil {
		return nil, err
	}
	out.Report = report
	out.Verdict = report.Verdict
	out.ExitCode = report.ExitCode
	out.Synthesized = true

	metrics.ObserveRun(string(report.Verdict), time.Since(r.start))
	if err := e.writeMetrics(r); err != nil {
		return nil, err
	}

	con.Verdict(string(report.Verdict))
	con.Info("Results: %s", r.reviews)
	con.Blank()
	if r.ci {
		con.Info("CI Mode: Exiting with code %d", report.ExitCode)
	}
	log.Infow("review finished", "run_id", r.id, "verdict", report.Verdict, "duration", time.Since(r.start))
	return out, nil
}

// prepare resolves the project, its config and the agent list.
func (e *Engine) prepare(r *run) error {
	con, opts := e.console(), r.opts

	path := opts.ProjectPath
	if path == "" {
		path = "."
	}
	root, err := filepath.Abs(path)
	if err != nil {
		return &ExitError{Code: ExitInvalidProject, Err: err}
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return exitErrorf(ExitInvalidProject, "project path does not exist: %s", root)
	}
	r.root = root

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	r.ci = opts.CI || DetectCI(getenv)

	if !config.Initialized(root) {
		if !r.ci && !opts.DryRun {
			return exitErrorf(ExitInvalidProject, "project not initialized. Run: conclave init -p %s", path)
		}
		if err := config.Init(root, opts.Version); err != nil {
			return err
		}
		con.OK("Initialized %s/ in %s", config.DirName, filepath.Base(root))
	}

	check, err := config.CheckVersion(root, opts.Version)
	if err != nil {
		return configError(err)
	}
	if msg, warn := check.Message(); msg != "" {
		if warn {
			con.Warn("%s", msg)
		} else {
			con.Dim("%s", msg)
		}
	}

	cfg, err := config.Load(root, config.Overrides{
		Provider: opts.Provider,
		Model:    opts.Model,
		Endpoint: opts.Endpoint,
		NoCache:  opts.NoCache,
		Metrics:  opts.Metrics,
	})
	if err != nil {
		return configError(err)
	}
	r.cfg = cfg
	r.name = cfg.Project.Name
	if r.name == "" {
		r.name = filepath.Base(root)
	}

	r.reviews = config.ReviewsDir(root)
	if err := os.MkdirAll(r.reviews, 0o755); err != nil {
		return fmt.Errorf("creating reviews dir: %w", err)
	}

	r.tier = opts.Tier
	if !r.tier.Valid() {
		r.tier = licensing.Current()
	}
	keys, unknown := agents.Resolve(opts.Agents, r.tier.AllowedAgents())
	for _, k := range unknown {
		con.Warn("Unknown agent %q ignored", k)
	}
	if len(opts.Agents) == 0 {
		enabled := keys[:0:0]
		for _, k := range keys {
			if cfg.AgentEnabled(k) {
				enabled = append(enabled, k)
			}
		}
		keys = enabled
	}
	if len(keys) == 0 {
		return exitErrorf(ExitNoAgents, "no valid agents to run (tier %s allows %s)",
			r.tier, strings.Join(r.tier.AllowedAgents(), ", "))
	}
	keys, err = agents.StartFrom(keys, opts.StartFrom)
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}
	r.keys = keys
	return nil
}

func configError(err error) error {
	if errors.Is(err, config.ErrInvalidConfig) {
		return &ExitError{Code: ExitInvalidProject, Err: err}
	}
	return err
}

// loadCalibration reads calibration.yaml once per run. An unreadable file
// is logged and treated as empty.
func (e *Engine) loadCalibration(r *run) *calibration.Data {
	d, err := calibration.New(config.CalibrationPath(r.root)).Load()
	if err != nil {
		e.logger().Warnw("ignoring unreadable calibration file", "error", err)
		return &calibration.Data{}
	}
	return d
}

func (e *Engine) agentTier(r *run, key string) string {
	if t := r.cfg.Agents.Agents[key].Tier; t != "" {
		return t
	}
	return string(providers.TierPrimary)
}

func (e *Engine) agentTimeout(r *run) time.Duration {
	if r.opts.Timeout > 0 {
		return r.opts.Timeout
	}
	return time.Duration(r.cfg.Agents.Timeout) * time.Minute
}

// runAgent runs one agent and writes its working files. A provider failure
// becomes an error result; only persistence failures return an error.
func (e *Engine) runAgent(ctx context.Context, r *run, key string) (*findings.AgentResult, error) {
	con, log := e.console(), e.logger()
	def, _ := agents.Lookup(key)
	tier := e.agentTier(r, key)
	con.Running(def.Name, def.Color)

	start := time.Now()
	var (
		raw    string
		tokens map[string]int
	)
	if r.opts.DryRun {
		raw = agents.MockFindings(key)
	} else {
		req := providers.Request{
			SharedContext: r.shared,
			SystemPrompt:  agents.SystemPrompt(def, agents.Instructions(config.Dir(r.root), key), r.calib.Context(key)),
			UserPrompt:    agents.UserPrompt,
			Tier:          providers.Tier(tier),
		}
		if !r.tier.Has(licensing.PromptCaching) {
			req = req.Inline()
		}

		callCtx := ctx
		if d := e.agentTimeout(r); d > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		resp, err := r.provider.Complete(callCtx, req)
		if err != nil {
			msg := redact.SanitizeError(err.Error())
			con.Failed("%s: %s", def.Name, msg)
			log.Warnw("agent failed", "agent", key, "error", msg)
			metrics.ObserveAgent(key, metrics.OutcomeError, time.Since(start))
			return errorResult(r, def, tier, msg, time.Since(start)), nil
		}
		raw = resp.Content
		if resp.Usage != nil {
			tokens = resp.Usage.Map()
		}
	}
	elapsed := time.Since(start)

	res := findings.ParseMarkdown(raw, findings.Meta{
		AgentKey:    key,
		AgentName:   def.Name,
		AgentRole:   def.Role,
		Tier:        tier,
		Timestamp:   r.start.Format(runTimestamp),
		Project:     r.name,
		ProjectPath: r.root,
		Duration:    elapsed,
		Tokens:      tokens,
		DryRun:      r.opts.DryRun,
	})
	metrics.ObserveAgent(key, metrics.OutcomeSuccess, elapsed)

	if err := os.WriteFile(findings.MarkdownPath(r.reviews, key), []byte(raw), 0o644); err != nil {
		return nil, fmt.Errorf("writing %s findings: %w", key, err)
	}
	if err := findings.WriteJSON(findings.JSONPath(r.reviews, key), res); err != nil {
		return nil, err
	}

	s := res.Summary
	con.OK("%s: %d findings (%dB/%dH/%dM/%dL) in %.1fs",
		def.Name, s.Total, s.Blockers, s.High, s.Medium, s.Low, elapsed.Seconds())
	return res, nil
}

func errorResult(r *run, def agents.Definition, tier, msg string, d time.Duration) *findings.AgentResult {
	return &findings.AgentResult{
		Version: findings.FormatVersion,
		Agent:   findings.AgentInfo{ID: def.Key, Name: def.Name, Role: def.Role, Tier: tier},
		Run: findings.RunInfo{
			Timestamp:       r.start.Format(runTimestamp),
			Project:         r.name,
			ProjectPath:     r.root,
			DurationSeconds: findings.RoundSeconds(d),
		},
		Status:   findings.StatusError,
		Findings: []findings.Finding{},
		Error:    msg,
	}
}

// validate stress-tests BLOCKER and HIGH findings and re-exports any
// agent file whose findings changed.
func (e *Engine) validate(ctx context.Context, r *run) error {
	if r.opts.SkipValidation || r.opts.DryRun || r.provider == nil || len(r.results) == 0 {
		return nil
	}
	con := e.console()
	stateDir := config.Dir(r.root)

	res := validator.Run(ctx, r.provider, r.results, validator.Options{
		Instructions:  agents.ValidatorInstructions(stateDir),
		Calibration:   r.calib.Context,
		SharedContext: r.shared,
		CacheShared:   r.tier.Has(licensing.PromptCaching),
		Logger:        e.logger(),
	})
	if res.Skipped() {
		con.Dim("Validator: no BLOCKER or HIGH findings to validate")
		return nil
	}
	r.validated = &res.Stats

	if res.Raw != "" {
		if err := os.WriteFile(filepath.Join(r.reviews, findings.ValidatorFile), []byte(res.Raw), 0o644); err != nil {
			return fmt.Errorf("writing validator output: %w", err)
		}
	}
	st := res.Stats
	con.OK("Validator: %d confirmed, %d downgraded, %d rejected of %d", st.Confirmed, st.Downgraded, st.Rejected, st.Total)

	if !st.Changed() {
		return nil
	}
	for _, ar := range r.results {
		if ar.Status != findings.StatusComplete {
			continue
		}
		if err := findings.WriteJSON(findings.JSONPath(r.reviews, ar.Agent.ID), ar); err != nil {
			return err
		}
	}
	return nil
}

// synthesize writes the report, optional JUnit and JSON results, the
// compliance mapping and the run archive.
func (e *Engine) synthesize(r *run, snap *Snapshot) (*synthesis.Report, error) {
	con, cfg := e.console(), r.cfg
	con.Blank()
	con.Info("Generating synthesis report...")

	providerName := cfg.AI.Provider
	if r.opts.DryRun {
		providerName = DryRunProvider
	}
	meta := synthesis.Meta{
		RunID:       r.id,
		Project:     r.name,
		ProjectPath: r.root,
		Provider:    providerName,
		DryRun:      r.opts.DryRun,
		Version:     r.opts.Version,
		Codes: &synthesis.Codes{
			Ship:        cfg.CI.ExitCodes.Ship,
			Conditional: cfg.CI.ExitCodes.Conditional,
			Hold:        cfg.CI.ExitCodes.Hold,
		},
		Validation: r.validated,
	}

	meta.Standard = e.standard(r)
	if meta.Standard != "" {
		m, err := e.mapCompliance(r, meta.Standard)
		if err != nil {
			return nil, err
		}
		meta.Compliance = m
	}

	meta.Timestamp = time.Now()
	meta.Duration = meta.Timestamp.Sub(r.start)
	report := synthesis.Build(r.results, meta)

	md := &output.MarkdownWriter{
		IncludeEvidence:    cfg.Output.IncludeEvidence,
		IncludeRemediation: cfg.Output.IncludeRemediation,
	}
	if err := output.WriteFile(filepath.Join(r.reviews, findings.ReportFile), md, report); err != nil {
		return nil, err
	}

	format := strings.ToLower(r.opts.Format)
	if format == "" {
		format = cfg.Output.Format
	}
	if format == "junit" && !r.ci && !r.tier.Has(licensing.JUnitOutput) {
		con.Warn("JUnit output requires a Pro license; skipping %s", findings.JUnitFile)
	} else if format == "junit" || r.ci {
		failOn := output.ParseFailOn(cfg.Output.JUnitFailOn)
		if err := output.WriteFile(filepath.Join(r.reviews, findings.JUnitFile), &output.JUnitWriter{FailOn: failOn}, report); err != nil {
			return nil, err
		}
		suites := output.BuildJUnit(report, failOn)
		con.OK("JUnit XML: %d tests, %d failures", suites.Tests, suites.Failures)
	}
	if format == "json" {
		jw := &output.JSONWriter{AgentsRequested: r.keys, BaseBranch: snap.BaseRef}
		if err := output.WriteFile(filepath.Join(r.reviews, JSONFile), jw, report); err != nil {
			return nil, err
		}
	}

	if _, err := findings.WriteArchive(r.reviews, r.results, findings.ArchiveMeta{
		RunID:           r.id,
		Timestamp:       report.Timestamp,
		Project:         r.name,
		ProjectPath:     r.root,
		Duration:        report.Duration,
		DryRun:          r.opts.DryRun,
		BaseBranch:      r.opts.BaseBranch,
		Standard:        meta.Standard,
		Provider:        providerName,
		AgentsRequested: r.keys,
		Verdict:         string(report.Verdict),
		ExitCode:        report.ExitCode,
	}); err != nil {
		return nil, err
	}
	return report, nil
}

// standard picks the compliance standard: the explicit flag, else the first
// effective standard from config.
func (e *Engine) standard(r *run) string {
	if r.opts.Standard != "" {
		return r.opts.Standard
	}
	eff := r.cfg.EffectiveStandards(r.opts.Profile, r.opts.AddStandards, r.opts.SkipStandards)
	if len(eff) > 0 {
		return eff[0]
	}
	return ""
}

// mapCompliance maps the final findings onto standard. A missing standard
// or tier without compliance mapping is reported and skipped.
func (e *Engine) mapCompliance(r *run, standard string) (*compliance.Mapping, error) {
	con := e.console()
	if !r.tier.Has(licensing.ComplianceMapping) {
		con.Dim("Compliance mapping for %s requires a Compliance license", standard)
		return nil, nil
	}
	std, err := compliance.Load(r.cfg.StandardsDir(r.root), standard)
	if errors.Is(err, compliance.ErrStandardNotFound) {
		con.Warn("Compliance standard %q not found in %s", standard, r.cfg.StandardsDir(r.root))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var all []findings.Finding
	for _, res := range r.results {
		all = append(all, res.Findings...)
	}
	m := compliance.Map(all, std, time.Now())
	if err := compliance.WriteJSON(filepath.Join(r.reviews, compliance.MappingFile), m); err != nil {
		return nil, err
	}
	con.OK("Compliance: %s %d/%d controls addressed (%.1f%%)", std.ID, m.AddressedControls, m.TotalControls, m.CoveragePercent)
	return m, nil
}

func (e *Engine) writeMetrics(r *run) error {
	if !r.cfg.Metrics.Enabled {
		return nil
	}
	return metrics.WriteTextfile(filepath.Join(r.reviews, MetricsFile))
}
