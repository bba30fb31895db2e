package findings

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FormatVersion is stamped on every persisted agent result.
const FormatVersion = "1.0.0"

const fence = "```"

var (
	codeBlockRe = regexp.MustCompile("(?s)" + fence + ".*?" + fence)
	headingRe   = regexp.MustCompile(`###\s+([A-Z]+-\d+):\s*(.+?)\s*\[(BLOCKER|HIGH|MEDIUM|LOW)\]`)

	locationRe = regexp.MustCompile("(?:\\*\\*)?(?:Location|File)(?:\\*\\*)?:?\\*?\\*?\\s*`?([^\\s`*]+(?::[^\\s`*]*)?)`?")
	pathLineRe = regexp.MustCompile(`^(.+):(\d+)$`)
	lineRe     = regexp.MustCompile(`(?:\*\*)?Line(?:\*\*)?:?\*?\*?\s*(\d+)`)
	effortRe   = regexp.MustCompile(`(?:\*\*)?Effort(?:\*\*)?:?\*?\*?\s*([SML])\b`)

	sectionEndRe    = regexp.MustCompile(`\r?\n(?:\*\*[A-Z]|---|COMPLETE:)`)
	leadingFenceRe  = regexp.MustCompile("^\\s*" + fence + "[A-Za-z0-9_+#.-]*[ \\t]*(?:\\r?\\n|$)")
	trailingFenceRe = regexp.MustCompile("(?:\\r?\\n)?[ \\t]*" + fence + "\\s*$")

	labelLineRe    = regexp.MustCompile(`\*\*(?:Location|File|Line|Effort|Evidence|Recommendation|Remediation|Issue)(?:\*\*)?:?[^\r\n]*`)
	completeLineRe = regexp.MustCompile(`(?m)^COMPLETE:.*$`)
)

// section extracts one labelled prose block. The text may start on the line
// after the label or, for a bold label, inline after it.
type section struct {
	block  *regexp.Regexp
	inline *regexp.Regexp
}

func newSection(labels string) section {
	return section{
		block:  regexp.MustCompile(`(?:\*\*)?(?:` + labels + `)(?:\*\*)?:?\*?\*?[ \t]*\r?\n`),
		inline: regexp.MustCompile(`\*\*(?:` + labels + `)(?::\*\*|\*\*:)[ \t]*(\S)`),
	}
}

var (
	issueSection          = newSection("Issue")
	evidenceSection       = newSection("Evidence")
	recommendationSection = newSection("Recommendation|Remediation")
)

func (s section) extract(body string) string {
	start := -1
	if loc := s.block.FindStringIndex(body); loc != nil {
		start = loc[1]
	}
	if loc := s.inline.FindStringSubmatchIndex(body); loc != nil {
		if start < 0 || loc[0] < start {
			start = loc[2]
		}
	}
	if start < 0 {
		return ""
	}

	rest := body[start:]
	// A leading newline lets a label on the very first line terminate the section.
	if loc := sectionEndRe.FindStringIndex("\n" + rest); loc != nil {
		end := loc[0] - 1
		if end < 0 {
			end = 0
		}
		rest = rest[:end]
	}

	text := strings.TrimSpace(rest)
	text = leadingFenceRe.ReplaceAllString(text, "")
	text = trailingFenceRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

type span struct{ start, end int }

func codeSpans(content string) []span {
	var spans []span
	for _, loc := range codeBlockRe.FindAllStringIndex(content, -1) {
		spans = append(spans, span{loc[0], loc[1]})
	}
	return spans
}

func inSpan(spans []span, pos int) bool {
	for _, s := range spans {
		if pos >= s.start && pos < s.end {
			return true
		}
	}
	return false
}

// nextHeading returns the offset of the next "###" at or after from that is
// not inside a fenced block, or len(content).
func nextHeading(content string, from int, spans []span) int {
	for from < len(content) {
		i := strings.Index(content[from:], "###")
		if i < 0 {
			break
		}
		pos := from + i
		if !inSpan(spans, pos) {
			return pos
		}
		from = pos + 3
	}
	return len(content)
}

// Extract parses every finding heading in content, in document order.
// Headings inside fenced code blocks are ignored. It never fails; content
// without findings yields an empty, non-nil slice.
func Extract(content string) []Finding {
	out := []Finding{}
	if strings.TrimSpace(content) == "" {
		return out
	}

	spans := codeSpans(content)
	for _, m := range headingRe.FindAllStringSubmatchIndex(content, -1) {
		if inSpan(spans, m[0]) {
			continue
		}
		f := Finding{
			ID:       content[m[2]:m[3]],
			Title:    strings.TrimSpace(content[m[4]:m[5]]),
			Severity: Severity(content[m[6]:m[7]]),
		}
		body := content[m[1]:nextHeading(content, m[1], spans)]
		parseBody(&f, body)
		out = append(out, f)
	}
	return out
}

func parseBody(f *Finding, body string) {
	if m := locationRe.FindStringSubmatch(body); m != nil {
		loc := m[1]
		if pl := pathLineRe.FindStringSubmatch(loc); pl != nil {
			f.File = pl[1]
			f.Line, _ = strconv.Atoi(pl[2])
		} else {
			f.File = strings.TrimSuffix(loc, ":")
		}
	}
	if f.File != "" && f.Line == 0 {
		if m := lineRe.FindStringSubmatch(body); m != nil {
			f.Line, _ = strconv.Atoi(m[1])
		}
	}
	if m := effortRe.FindStringSubmatch(body); m != nil {
		f.Effort = Effort(m[1])
	}

	f.Issue = issueSection.extract(body)
	f.Evidence = evidenceSection.extract(body)
	f.Recommendation = recommendationSection.extract(body)

	if f.Issue == "" {
		f.Issue = residualText(body)
	}
}

// residualText is the body with every recognized label line, fenced block,
// separator and the closing COMPLETE tally removed.
func residualText(body string) string {
	text := labelLineRe.ReplaceAllString(body, "")
	text = completeLineRe.ReplaceAllString(text, "")
	text = codeBlockRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "---", "")
	return strings.TrimSpace(text)
}

// Meta carries the run metadata wrapped around parsed findings.
type Meta struct {
	AgentKey    string
	AgentName   string
	AgentRole   string
	Tier        string
	Timestamp   string
	Project     string
	ProjectPath string
	Duration    time.Duration
	Tokens      map[string]int
	DryRun      bool
}

// ParseMarkdown extracts findings from one agent's raw markdown and wraps
// them with run metadata and a freshly computed summary.
func ParseMarkdown(content string, meta Meta) *AgentResult {
	list := Extract(content)

	name := meta.AgentName
	if name == "" {
		name = strings.ToUpper(meta.AgentKey)
	}
	tier := meta.Tier
	if tier == "" {
		tier = "primary"
	}

	return &AgentResult{
		Version: FormatVersion,
		Agent: AgentInfo{
			ID:   meta.AgentKey,
			Name: name,
			Role: meta.AgentRole,
			Tier: tier,
		},
		Run: RunInfo{
			Timestamp:       meta.Timestamp,
			Project:         meta.Project,
			ProjectPath:     meta.ProjectPath,
			DurationSeconds: RoundSeconds(meta.Duration),
			DryRun:          meta.DryRun,
		},
		Status:      StatusComplete,
		Summary:     Summarize(list),
		Findings:    list,
		RawMarkdown: content,
		Tokens:      NormalizeTokens(meta.Tokens),
	}
}

// RoundSeconds converts d to seconds rounded to two decimal places.
func RoundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
