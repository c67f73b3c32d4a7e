package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	cotel "github.com/Strob0t/CodeCouncil/internal/adapter/otel"
	"github.com/Strob0t/CodeCouncil/internal/domain"
	"github.com/Strob0t/CodeCouncil/internal/domain/council"
	"github.com/Strob0t/CodeCouncil/internal/port/llm"
	"github.com/Strob0t/CodeCouncil/internal/port/messagequeue"
)

// Member is one seat of the deliberation council.
type Member struct {
	Role   council.Role
	Model  string
	Client llm.ChatClient
}

// DeliberationConfig tunes the three stages.
type DeliberationConfig struct {
	Temperature        float64
	RankingTemperature float64
	ChairmanModel      string
	ChairmanMaxTokens  int
	CallTimeout        time.Duration
}

// PlanRequest asks the council for an implementation plan.
type PlanRequest struct {
	Request string
	Context string
}

// VerdictRequest asks the council to critique a piece of code.
type VerdictRequest struct {
	Code     string
	Language string
	Context  string
}

// DeliberationPipeline runs perspective collection, anonymized peer ranking
// and chairman synthesis.
type DeliberationPipeline struct {
	members  []Member
	chairman llm.ChatClient
	cfg      DeliberationConfig
	queue    messagequeue.Queue
	metrics  *cotel.Metrics
}

// NewDeliberationPipeline returns a pipeline over members. queue may be nil.
func NewDeliberationPipeline(members []Member, chairman llm.ChatClient, cfg DeliberationConfig, q messagequeue.Queue, metrics *cotel.Metrics) *DeliberationPipeline {
	return &DeliberationPipeline{members: members, chairman: chairman, cfg: cfg, queue: q, metrics: metrics}
}

// deliberation is the shared outcome of stages 1 and 2.
type deliberation struct {
	perspectives []council.Perspective
	rankings     []council.Ranking
	labels       map[string]council.Role
	consensus    float64
}

type labeledText struct {
	Label string
	Text  string
}

type attributedText struct {
	Title string
	Model string
	Text  string
}

type perspectiveData struct {
	Title   string
	Focus   string
	Request string
	Context string
	Code    string
}

type rankingData struct {
	Request      string
	Perspectives []labeledText
}

type chairmanData struct {
	Request      string
	Perspectives []attributedText
	Rankings     []council.Ranking
}

// Plan deliberates on a feature request and returns the chairman's plan.
func (p *DeliberationPipeline) Plan(ctx context.Context, req PlanRequest) (council.Plan, error) {
	if strings.TrimSpace(req.Request) == "" {
		return council.Plan{}, fmt.Errorf("%w: request is required", domain.ErrValidation)
	}
	request := sanitizePromptInput(req.Request)

	d, err := p.deliberate(ctx, "plan", perspectiveData{Request: request, Context: sanitizePromptInput(req.Context)})
	if err != nil {
		p.metrics.Deliberation(ctx, "plan", "error")
		return council.Plan{}, err
	}

	text, err := p.synthesize(ctx, "plan", "council_chairman_plan.tmpl", request, d)
	if err != nil {
		p.metrics.Deliberation(ctx, "plan", "error")
		return council.Plan{}, err
	}

	plan := parsePlanMarkdown(text)
	plan.Consensus = d.consensus
	plan.Ranking = aggregateRanking(d)
	plan.Normalize()
	if len(plan.Features) == 0 {
		slog.WarnContext(ctx, "chairman plan has no parsable features", "response", truncate(text, 200))
	}

	p.metrics.Deliberation(ctx, "plan", "ok")
	p.publish(ctx, messagequeue.SubjectPlanComplete, messagequeue.PlanCompletedPayload{
		Features:   len(plan.Features),
		Consensus:  plan.Consensus,
		Complexity: plan.Complexity,
	})
	return plan, nil
}

// Verdict deliberates on code and returns the chairman's verdict.
func (p *DeliberationPipeline) Verdict(ctx context.Context, req VerdictRequest) (council.Verdict, error) {
	if err := requireCode(req.Code, req.Language); err != nil {
		return council.Verdict{}, err
	}
	request := fmt.Sprintf("Review this %s code for production readiness.", req.Language)
	d, err := p.deliberate(ctx, "verdict", perspectiveData{
		Request: request,
		Context: sanitizePromptInput(req.Context),
		Code:    sanitizePromptInput(req.Code),
	})
	if err != nil {
		p.metrics.Deliberation(ctx, "verdict", "error")
		return council.Verdict{}, err
	}

	text, err := p.synthesize(ctx, "verdict", "council_chairman_verdict.tmpl", request, d)
	if err != nil {
		p.metrics.Deliberation(ctx, "verdict", "error")
		return council.Verdict{}, err
	}

	v := parseVerdict(text)
	v.Consensus = d.consensus
	p.metrics.Deliberation(ctx, "verdict", "ok")
	return v, nil
}

// deliberate runs stages 1 and 2. Only a stage 1 with zero responses fails.
func (p *DeliberationPipeline) deliberate(ctx context.Context, kind string, data perspectiveData) (*deliberation, error) {
	if len(p.members) == 0 {
		return nil, fmt.Errorf("%w: council has no members", domain.ErrProviderUnavailable)
	}

	perspectives, answered := p.collectPerspectives(ctx, kind, data)
	if len(perspectives) == 0 {
		return nil, fmt.Errorf("stage 1: %w: all %d council members failed", domain.ErrTransport, len(p.members))
	}

	d := &deliberation{perspectives: perspectives, labels: make(map[string]council.Role, len(perspectives))}
	anon := make([]labeledText, len(perspectives))
	for i, pv := range perspectives {
		label := perspectiveLabel(i)
		d.labels[label] = pv.Role
		anon[i] = labeledText{Label: label, Text: pv.Text}
	}

	d.rankings = p.collectRankings(ctx, kind, rankingData{Request: data.Request, Perspectives: anon}, answered)
	// Unseated roles count against consensus.
	d.consensus = float64(len(d.rankings)) / float64(len(council.Roles()))
	return d, nil
}

// collectPerspectives fans stage 1 out to every member. Results are stored
// by member index so arrival order never decides attribution.
func (p *DeliberationPipeline) collectPerspectives(ctx context.Context, kind string, data perspectiveData) ([]council.Perspective, []Member) {
	ctx, span := cotel.StartStageSpan(ctx, kind, 1)
	defer span.End()

	slots := make([]*council.Perspective, len(p.members))
	var g errgroup.Group
	for i, m := range p.members {
		g.Go(func() error {
			spec := m.Role.Spec()
			d := data
			d.Title, d.Focus = spec.Title, spec.Focus
			prompt, err := renderPrompt("council_perspective.tmpl", d)
			if err != nil {
				return err
			}
			text, err := p.ask(ctx, m.Client, m.Model, prompt, p.cfg.Temperature, 0)
			if err != nil {
				slog.WarnContext(ctx, "council member dropped", "stage", 1, "role", m.Role, "model", m.Model, "error", err)
				p.metrics.AgentCall(ctx, string(m.Role), m.Model, "error")
				return nil
			}
			p.metrics.AgentCall(ctx, string(m.Role), m.Model, "ok")
			slots[i] = &council.Perspective{Role: m.Role, Model: m.Model, Text: text}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "stage 1 prompt render failed", "error", err)
	}

	var (
		out      []council.Perspective
		answered []Member
	)
	for i, s := range slots {
		if s != nil {
			out = append(out, *s)
			answered = append(answered, p.members[i])
		}
	}
	return out, answered
}

// collectRankings sends one anonymized ranking prompt to every member that
// answered stage 1. Failed or empty answers are dropped.
func (p *DeliberationPipeline) collectRankings(ctx context.Context, kind string, data rankingData, members []Member) []council.Ranking {
	ctx, span := cotel.StartStageSpan(ctx, kind, 2)
	defer span.End()

	prompt, err := renderPrompt("council_ranking.tmpl", data)
	if err != nil {
		slog.ErrorContext(ctx, "stage 2 prompt render failed", "error", err)
		return nil
	}

	slots := make([]*council.Ranking, len(members))
	var g errgroup.Group
	for i, m := range members {
		g.Go(func() error {
			text, err := p.ask(ctx, m.Client, m.Model, prompt, p.cfg.RankingTemperature, 0)
			if err != nil || strings.TrimSpace(text) == "" {
				slog.WarnContext(ctx, "council ranking dropped", "stage", 2, "role", m.Role, "model", m.Model, "error", err)
				return nil
			}
			slots[i] = &council.Ranking{
				Role:  m.Role,
				Model: m.Model,
				Text:  text,
				Order: parseFinalRanking(text, len(data.Perspectives)),
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []council.Ranking
	for _, s := range slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// synthesize runs stage 3. There is no fallback chairman.
func (p *DeliberationPipeline) synthesize(ctx context.Context, kind, tmpl, request string, d *deliberation) (string, error) {
	ctx, span := cotel.StartStageSpan(ctx, kind, 3)
	defer span.End()

	if p.chairman == nil {
		return "", fmt.Errorf("chairman: %w", domain.ErrProviderUnavailable)
	}

	attributed := make([]attributedText, len(d.perspectives))
	for i, pv := range d.perspectives {
		attributed[i] = attributedText{Title: pv.Role.Spec().Title, Model: pv.Model, Text: pv.Text}
	}
	prompt, err := renderPrompt(tmpl, chairmanData{Request: request, Perspectives: attributed, Rankings: d.rankings})
	if err != nil {
		return "", err
	}

	text, err := p.ask(ctx, p.chairman, p.cfg.ChairmanModel, prompt, p.cfg.Temperature, p.cfg.ChairmanMaxTokens)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("chairman: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("chairman: %w: empty response", domain.ErrTransport)
	}
	return text, nil
}

func (p *DeliberationPipeline) ask(ctx context.Context, c llm.ChatClient, model, prompt string, temperature float64, maxTokens int) (string, error) {
	if p.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.CallTimeout)
		defer cancel()
	}
	resp, err := c.Chat(ctx, llm.Request{
		Model:       model,
		Messages:    llm.UserPrompt(prompt),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", asTransport(err)
	}
	return resp.Content, nil
}

func (p *DeliberationPipeline) publish(ctx context.Context, subject string, payload any) {
	if p.queue == nil || !p.queue.IsConnected() {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := p.queue.Publish(ctx, subject, data); err != nil {
		slog.WarnContext(ctx, "event publish failed", "subject", subject, "error", err)
	}
}

// perspectiveLabel maps 0, 1, 2 ... to A, B, C ... then A1, B1 ... past Z.
func perspectiveLabel(i int) string {
	l := string(rune('A' + i%26))
	if i >= 26 {
		l += strconv.Itoa(i / 26)
	}
	return l
}

var (
	finalRankingMark = regexp.MustCompile(`(?i)final ranking:`)
	rankingEntry     = regexp.MustCompile(`Perspective\s+([A-Z]\d*)\b`)
)

// parseFinalRanking returns labels listed after "FINAL RANKING:", best
// first, ignoring repeats and labels that do not exist.
func parseFinalRanking(text string, n int) []string {
	marks := finalRankingMark.FindAllStringIndex(text, -1)
	if marks == nil {
		return nil
	}
	idx := marks[len(marks)-1][1]
	valid := make(map[string]bool, n)
	for i := range n {
		valid[perspectiveLabel(i)] = true
	}
	seen := make(map[string]bool, n)
	var order []string
	for _, m := range rankingEntry.FindAllStringSubmatch(text[idx:], -1) {
		if l := m[1]; valid[l] && !seen[l] {
			seen[l] = true
			order = append(order, l)
		}
	}
	return order
}

// aggregateRanking averages each label's 1-based position across parsed
// rankings and de-anonymizes the result. Lower is better.
func aggregateRanking(d *deliberation) []council.RankedPerspective {
	sums := make(map[string]int)
	votes := make(map[string]int)
	for _, r := range d.rankings {
		for pos, label := range r.Order {
			sums[label] += pos + 1
			votes[label]++
		}
	}
	if len(votes) == 0 {
		return nil
	}

	out := make([]council.RankedPerspective, 0, len(votes))
	for i := range d.perspectives {
		label := perspectiveLabel(i)
		if votes[label] == 0 {
			continue
		}
		out = append(out, council.RankedPerspective{
			Role:            d.labels[label],
			AveragePosition: float64(sums[label]) / float64(votes[label]),
			Votes:           votes[label],
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AveragePosition < out[j].AveragePosition })
	return out
}

// parsePlanMarkdown reads the chairman's sectioned markdown.
func parsePlanMarkdown(text string) council.Plan {
	sections := markdownSections(text)
	plan := council.Plan{
		Architecture:         strings.TrimSpace(sections["architecture"]),
		Features:             []council.FeatureSpec{},
		SecurityRequirements: bulletList(sections["security requirements"]),
		PerformanceTargets:   bulletList(sections["performance targets"]),
		Complexity:           complexityLevel(sections["complexity assessment"]),
	}
	if body, ok := sections["features"]; ok {
		var features []council.FeatureSpec
		raw := extractJSONArray(body)
		if err := json.Unmarshal([]byte(raw), &features); err == nil {
			plan.Features = features
		}
	}
	return plan
}

// markdownSections splits text on "## " headings, keyed by lower-cased title.
func markdownSections(text string) map[string]string {
	sections := make(map[string]string)
	var (
		current string
		body    strings.Builder
		open    bool
	)
	flush := func() {
		if open {
			sections[current] = body.String()
		}
		body.Reset()
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			flush()
			current = strings.ToLower(strings.Trim(strings.TrimPrefix(trimmed, "## "), " *:"))
			open = true
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	flush()
	return sections
}

var arrayFence = regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*?\\])\\s*```")

func extractJSONArray(s string) string {
	if m := arrayFence.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return "[]"
}

var bulletPrefix = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+`)

func bulletList(body string) []string {
	out := []string{}
	for _, line := range strings.Split(body, "\n") {
		if loc := bulletPrefix.FindStringIndex(line); loc != nil {
			if item := strings.TrimSpace(line[loc[1]:]); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

var complexityWord = regexp.MustCompile(`(?i)\b(high|medium|low)\b`)

// complexityLevel returns the first level word of the assessment.
func complexityLevel(body string) string {
	if m := complexityWord.FindStringSubmatch(body); m != nil {
		return strings.ToLower(m[1])
	}
	return "medium"
}

var (
	verdictLine = regexp.MustCompile(`(?im)^\s*\**VERDICT\**:\s*\**\s*\[?(APPROVE|REVISE)`)
	scoreLine   = regexp.MustCompile(`(?im)^\s*\**(SECURITY|PERFORMANCE|COVERAGE)\**:\s*(\d+)`)
	changesLine = regexp.MustCompile(`(?im)^\s*\**CHANGES\**:\s*(.*)$`)
)

// parseVerdict reads the chairman's VERDICT/SECURITY/PERFORMANCE/COVERAGE/
// CHANGES lines. Missing scores stay at the neutral default and a missing
// verdict line means REVISE.
func parseVerdict(text string) council.Verdict {
	v := council.Verdict{
		Security:    council.NeutralScore,
		Performance: council.NeutralScore,
		Coverage:    council.NeutralScore,
		Changes:     []string{},
	}
	if m := verdictLine.FindStringSubmatch(text); m != nil {
		v.Approved = strings.EqualFold(m[1], "APPROVE")
	}
	for _, m := range scoreLine.FindAllStringSubmatch(text, -1) {
		n, _ := strconv.Atoi(m[2])
		n = council.ClampScore(n)
		switch strings.ToUpper(m[1]) {
		case "SECURITY":
			v.Security = n
		case "PERFORMANCE":
			v.Performance = n
		case "COVERAGE":
			v.Coverage = n
		}
	}
	if m := changesLine.FindStringSubmatch(text); m != nil {
		for _, c := range strings.Split(m[1], ";") {
			c = strings.TrimSpace(c)
			if c != "" && !strings.EqualFold(c, "none") {
				v.Changes = append(v.Changes, c)
			}
		}
	}
	if loc := verdictLine.FindStringIndex(text); loc != nil {
		v.Summary = strings.TrimSpace(text[:loc[0]])
	} else {
		v.Summary = strings.TrimSpace(text)
	}
	return v
}
