package agent

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rahul/scout/internal/browser"
	"github.com/rahul/scout/internal/challenge"
	"github.com/rahul/scout/internal/extract"
	"github.com/rahul/scout/internal/governance"
	"github.com/rahul/scout/internal/observability"
	"github.com/rahul/scout/internal/reasoner"
)

type State string

const (
	StatePlanning     State = "PLANNING"
	StateExecuting    State = "EXECUTING"
	StateChallenged   State = "CHALLENGED"
	StateWaiting      State = "WAITING"
	StateExtracting   State = "EXTRACTING"
	StateSummarizing  State = "SUMMARIZING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
	StateAwaitingUser State = "AWAITING_USER"
)

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateAwaitingUser
}

var statePhases = map[State]observability.Phase{
	StatePlanning:    observability.PhasePlanning,
	StateExecuting:   observability.PhaseExecuting,
	StateChallenged:  observability.PhaseChallenged,
	StateWaiting:     observability.PhaseWaiting,
	StateExtracting:  observability.PhaseExtracting,
	StateSummarizing: observability.PhaseSummary,
}

var (
	ErrPolicyDenied = errors.New("navigation denied by policy")
	errNoContent    = errors.New("no readable content on page")
)

var SummarySchema = reasoner.Schema{
	Name:        "summary",
	Description: "Combine extracted pages into one answer.",
	Fields: []reasoner.Field{
		{Name: "summary", Description: "A short combined answer.", Type: reasoner.TypeString, Required: true},
	},
}

var FixIssueSchema = reasoner.Schema{
	Name:        "fix_issue",
	Description: "Suggest a fix for the described problem.",
	Fields: []reasoner.Field{
		{Name: "solution", Description: "The suggested solution.", Type: reasoner.TypeString, Required: true},
		{Name: "steps", Description: "Concrete steps to apply it.", Type: reasoner.TypeArray, Items: &reasoner.Field{Type: reasoner.TypeString}},
	},
}

const (
	DefaultTopResults        = 3
	DefaultMaxChallengeWaits = 2
	summaryInput             = 800
)

type Options struct {
	// TopResults is how many search hits are opened and extracted.
	TopResults int
	// MaxChallengeWaits bounds how often one run waits on a human.
	MaxChallengeWaits int
}

// Deps are the collaborators of an Executor. Driver is required; the rest
// default to lexicon-driven implementations without a reasoner.
type Deps struct {
	Driver     browser.Driver
	Reasoner   reasoner.Reasoner
	Planner    *Planner
	Strategist *Strategist
	Detector   *challenge.Detector
	Waiter     *challenge.Waiter
	Extractor  *extract.Extractor
	Policy     governance.PolicyEngine
	Sessions   *Sessions
	Lexicon    Lexicon
	Prompts    *PromptManager
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// Executor drives one task at a time through the state machine. It is safe
// to run several tasks concurrently; each gets its own browser session.
type Executor struct {
	driver     browser.Driver
	reasoner   reasoner.Reasoner
	planner    *Planner
	strategist *Strategist
	detector   *challenge.Detector
	waiter     *challenge.Waiter
	extractor  *extract.Extractor
	policy     governance.PolicyEngine
	sessions   *Sessions
	lexicon    Lexicon
	prompts    *PromptManager
	logger     *observability.Logger
	metrics    *observability.Metrics
	opts       Options
}

func NewExecutor(d Deps, opts Options) *Executor {
	if d.Logger == nil {
		d.Logger = observability.NewNop()
	}
	if len(d.Lexicon.Engines) == 0 {
		d.Lexicon = DefaultLexicon()
	}
	if d.Prompts == nil {
		d.Prompts = NewPromptManager("")
	}
	if d.Detector == nil {
		d.Detector = challenge.MustDetector(d.Lexicon.Challenge)
	}
	if d.Waiter == nil {
		d.Waiter = challenge.NewWaiter(d.Detector, challenge.DefaultMaxWait, challenge.DefaultInterval)
	}
	if d.Extractor == nil {
		d.Extractor = extract.New(d.Reasoner, extract.Config{KeyPointsPrompt: d.Prompts.PromptOrEmpty(PromptKeyPoints)}, d.Logger)
	}
	if d.Planner == nil {
		d.Planner = NewPlanner(d.Reasoner, d.Lexicon, d.Prompts, d.Logger)
	}
	if d.Strategist == nil {
		d.Strategist = NewStrategist(d.Reasoner, d.Lexicon, d.Prompts, d.Logger, DefaultMaxStrategies)
	}
	if d.Sessions == nil {
		d.Sessions = NewSessions(0, d.Logger, d.Metrics)
	}
	if opts.TopResults <= 0 {
		opts.TopResults = DefaultTopResults
	}
	if opts.MaxChallengeWaits <= 0 {
		opts.MaxChallengeWaits = DefaultMaxChallengeWaits
	}

	return &Executor{
		driver:     d.Driver,
		reasoner:   d.Reasoner,
		planner:    d.Planner,
		strategist: d.Strategist,
		detector:   d.Detector,
		waiter:     d.Waiter,
		extractor:  d.Extractor,
		policy:     d.Policy,
		sessions:   d.Sessions,
		lexicon:    d.Lexicon,
		prompts:    d.Prompts,
		logger:     d.Logger,
		metrics:    d.Metrics,
		opts:       opts,
	}
}

// Outcome is the finished state of one run.
type Outcome struct {
	Task    Task
	State   State
	History *StepHistory
}

type runMode int

const (
	modeSearch runMode = iota
	modeDirect
)

type run struct {
	e       *Executor
	task    Task
	query   string
	history *StepHistory
	session browser.Session
	state   State

	plan     ActionPlan
	mode     runMode
	dispatch string
	page     browser.Snapshot
	signal   challenge.Signal
	hits     []extract.Hit

	siteSearched bool
	challenges   int
	attempted    int
	results      []extract.Result
}

// Run executes task to a terminal state. Every collaborator failure ends up
// as a step; Run itself never fails.
func (e *Executor) Run(ctx context.Context, task Task) *Outcome {
	r := &run{
		e:     e,
		task:  task,
		query: e.lexicon.CorrectTypos(task.Query),
		state: StatePlanning,
	}
	r.history = NewStepHistory(func(s Step) {
		e.metrics.RecordStep(s.Success)
		e.logger.LogStep(task.ID, s)
	})

	observability.TaskStarted(task.Query)
	defer observability.TaskFinished()
	observability.SetStatus(observability.PhasePlanning, task.Query)

	r.execute(ctx)
	return &Outcome{Task: task, State: r.state, History: r.history}
}

func (r *run) execute(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.e.logger.Error("executor panic",
				zap.String("task_id", r.task.ID), zap.Any("panic", p), zap.Stack("stack"))
			r.history.Append(failedStep("Internal error", fmt.Sprintf("unexpected failure: %v", p), ErrNavigationFailed, nil))
			r.transition(StateFailed)
		}
		r.finish()
	}()

	session, err := r.e.driver.Open(ctx)
	if err != nil {
		r.history.Append(failedStep("Open browser session", err.Error(), ErrDriverUnavailable, nil))
		r.transition(StateFailed)
		return
	}
	r.session = session

	for !r.state.Terminal() {
		var next State
		switch r.state {
		case StatePlanning:
			next = r.planning(ctx)
		case StateExecuting:
			next = r.executing(ctx)
		case StateChallenged:
			next = r.challenged()
		case StateWaiting:
			next = r.waiting(ctx)
		case StateExtracting:
			next = r.extracting(ctx)
		case StateSummarizing:
			next = r.summarizing(ctx)
		default:
			panic(fmt.Sprintf("unknown state %s", r.state))
		}
		r.transition(next)
	}
}

func (r *run) transition(next State) {
	if next == r.state {
		return
	}
	r.e.logger.LogState(r.task.ID, string(r.state), string(next))
	r.state = next
	if phase, ok := statePhases[next]; ok {
		observability.SetStatus(phase, r.task.Query)
	}
}

// finish releases the session: closed on DONE and FAILED, parked for the
// human on AWAITING_USER.
func (r *run) finish() {
	if r.session == nil {
		return
	}
	if r.state == StateAwaitingUser {
		r.e.sessions.Park(r.task.ID, r.page.URL, r.session)
		return
	}
	if err := r.session.Close(); err != nil {
		r.e.logger.Warn("failed to close session", zap.String("task_id", r.task.ID), zap.Error(err))
	}
}

func (r *run) planning(ctx context.Context) State {
	r.plan = r.e.planner.Plan(ctx, r.task.Query, map[string]any{
		"task_id":  r.task.ID,
		"agent_id": r.task.AgentID,
		"user_id":  r.task.UserID,
	})
	r.e.logger.LogPlan(r.task.ID, r.plan)
	r.history.Append(okStep(
		"Reasoned about query: "+r.task.Query,
		fmt.Sprintf("Planned %s %s", r.plan.Action, r.plan.Target),
		map[string]any{"plan": r.plan},
	))
	return StateExecuting
}

func (r *run) executing(ctx context.Context) State {
	switch r.plan.Action {
	case ActionFixIssue:
		return r.fixIssue(ctx)
	case ActionOpenURL:
		return r.open(ctx, r.plan.Target, "Open "+r.plan.Target)
	case ActionReadPage:
		if u, ok := r.e.lexicon.URLToken(r.plan.Target); ok {
			return r.open(ctx, u, "Read page "+u)
		}
		// a fresh session has no current page to read
		return r.search(ctx, r.plan.Target)
	default:
		return r.search(ctx, r.plan.Target)
	}
}

// navigate checks policy, loads target in sess and reads the result.
func (r *run) navigate(ctx context.Context, sess browser.Session, target string) (browser.Snapshot, error) {
	if err := r.allow(ctx, target); err != nil {
		return browser.Snapshot{}, err
	}
	if err := sess.Navigate(ctx, target); err != nil {
		return browser.Snapshot{}, fmt.Errorf("navigate to %s: %w", target, err)
	}
	snap, err := sess.Snapshot(ctx)
	if err != nil {
		return browser.Snapshot{}, fmt.Errorf("read %s: %w", target, err)
	}
	return snap, nil
}

func (r *run) allow(ctx context.Context, target string) error {
	if r.e.policy == nil {
		return nil
	}
	res, err := r.e.policy.Evaluate(ctx, governance.Request{Action: "navigate", Target: target, TaskID: r.task.ID})
	if err != nil {
		return fmt.Errorf("policy check: %w", err)
	}
	r.e.logger.LogPolicy(r.task.ID, target, string(res.Effect), res.Reason)
	if !res.Allowed() {
		return fmt.Errorf("%w: %s", ErrPolicyDenied, res.Reason)
	}
	return nil
}

func (r *run) challengeOn(snap browser.Snapshot) bool {
	sig, ok := r.e.detector.Explain(snap)
	if ok {
		r.signal = sig
		r.page = snap
	}
	return ok
}

func (r *run) open(ctx context.Context, target, desc string) State {
	r.mode = modeDirect
	r.dispatch = desc

	snap, err := r.navigate(ctx, r.session, target)
	if err != nil {
		r.history.Append(failedStep(desc, err.Error(), ErrNavigationFailed, map[string]any{"url": target}))
		return r.fallback(ctx, map[string]any{"action": string(r.plan.Action), "target": target, "error": err.Error()})
	}
	if r.challengeOn(snap) {
		return StateChallenged
	}

	r.page = snap
	step := okStep(desc, "Opened "+snap.URL, map[string]any{"title": snap.Title, "url": snap.URL})
	step.Satisfies = true
	r.history.Append(step)
	return StateExtracting
}

func (r *run) search(ctx context.Context, query string) State {
	r.mode = modeSearch
	engine := r.e.lexicon.DefaultEngine
	target := r.e.lexicon.SearchURL(engine, query)
	desc := fmt.Sprintf("Search %s for '%s'", r.e.lexicon.EngineLabel(engine), query)
	r.dispatch = desc
	failure := map[string]any{"action": string(r.plan.Action), "engine": engine, "query": query}

	snap, err := r.navigate(ctx, r.session, target)
	if err != nil {
		r.history.Append(failedStep(desc, err.Error(), ErrNavigationFailed, map[string]any{"url": target}))
		failure["error"] = err.Error()
		return r.fallback(ctx, failure)
	}
	if r.challengeOn(snap) {
		return StateChallenged
	}

	r.page = snap
	hits := extract.ParseListing(snap, r.e.opts.TopResults)
	if len(hits) == 0 {
		r.history.Append(failedStep(desc, "no results", ErrNavigationFailed,
			map[string]any{"title": snap.Title, "url": snap.URL}))
		failure["error"] = "no results"
		return r.fallback(ctx, failure)
	}

	r.hits = hits
	r.history.Append(okStep(desc, fmt.Sprintf("Found %d results", len(hits)),
		map[string]any{"title": snap.Title, "url": snap.URL, "results": hits}))
	return StateExtracting
}

func (r *run) fallback(ctx context.Context, failure map[string]any) State {
	strategies := r.e.strategist.Propose(ctx, r.query, failure)
	r.e.logger.LogFallback(r.task.ID, strategies)
	r.mode = modeSearch

	for i, st := range strategies {
		if ctx.Err() != nil {
			break
		}
		desc := fmt.Sprintf("Fallback attempt %d: %s", i+1, st.Description)
		r.dispatch = desc
		target := r.e.strategist.SearchURL(st)

		snap, err := r.navigate(ctx, r.session, target)
		if err != nil {
			r.history.Append(failedStep(desc, err.Error(), ErrNavigationFailed,
				map[string]any{"url": target, "strategy": st}))
			continue
		}
		if r.challengeOn(snap) {
			return StateChallenged
		}
		hits := extract.ParseListing(snap, r.e.opts.TopResults)
		if len(hits) == 0 {
			r.history.Append(failedStep(desc, "no results", ErrNavigationFailed,
				map[string]any{"title": snap.Title, "url": snap.URL, "strategy": st}))
			continue
		}

		r.page = snap
		r.hits = hits
		r.history.Append(okStep(desc, fmt.Sprintf("Found %d results", len(hits)),
			map[string]any{"title": snap.Title, "url": snap.URL, "strategy": st, "results": hits}))
		return StateExtracting
	}

	r.history.Append(failedStep("All fallback strategies exhausted",
		fmt.Sprintf("Tried %d alternative strategies", len(strategies)), ErrNavigationFailed, nil))
	return StateFailed
}

func (r *run) challenged() State {
	r.challenges++
	r.e.metrics.RecordChallenge("detected")
	r.e.logger.LogChallenge(r.task.ID, r.page.URL, r.signal.String(), "detected")

	wait := r.challenges <= r.e.opts.MaxChallengeWaits && r.e.waiter.MaxWait > 0
	msg := fmt.Sprintf("Human verification required at %s. The browser window is open; "+
		"complete the check there and the task will resume.", r.page.URL)
	if !wait {
		msg = fmt.Sprintf("Human verification required at %s. The browser window is left open; "+
			"complete the check there, then send the task again.", r.page.URL)
	}
	r.history.Append(failedStep(r.dispatch, msg, ErrChallengeDetected, map[string]any{
		"title":            r.page.Title,
		"url":              r.page.URL,
		"browser_open":     true,
		"captcha_detected": true,
		"session_id":       r.session.ID(),
		"signal":           r.signal.String(),
	}))

	if !wait {
		r.e.metrics.RecordChallenge("paused")
		r.e.logger.LogChallenge(r.task.ID, r.page.URL, r.signal.String(), "paused")
		return StateAwaitingUser
	}
	return StateWaiting
}

func (r *run) waiting(ctx context.Context) State {
	outcome := r.e.waiter.Wait(ctx, r.session)
	label := strings.ToLower(string(outcome))
	r.e.metrics.RecordChallenge(label)
	r.e.logger.LogChallenge(r.task.ID, r.page.URL, r.signal.String(), label)
	if !outcome.Resolved() {
		return StateAwaitingUser
	}

	if snap, err := r.session.Snapshot(ctx); err == nil {
		r.page = snap
	}
	r.hits = nil
	r.history.Append(okStep("Challenge resolved, resuming", "Verification cleared at "+r.page.URL,
		map[string]any{"title": r.page.Title, "url": r.page.URL}))
	return StateExtracting
}

func (r *run) extracting(ctx context.Context) State {
	if r.mode == modeDirect {
		return r.extractDirect(ctx)
	}
	return r.extractListing(ctx)
}

func (r *run) extractListing(ctx context.Context) State {
	if len(r.hits) == 0 {
		snap, err := r.session.Snapshot(ctx)
		if err != nil {
			r.record(pageOutcome{url: r.page.URL, title: r.page.Title, err: err})
			return StateSummarizing
		}
		if r.challengeOn(snap) {
			return StateChallenged
		}
		r.page = snap
		r.hits = extract.ParseListing(snap, r.e.opts.TopResults)
		if len(r.hits) == 0 {
			r.record(r.extractSnapshot(ctx, snap))
			return StateSummarizing
		}
	}

	r.extractHits(ctx, r.hits)
	return StateSummarizing
}

func (r *run) extractDirect(ctx context.Context) State {
	snap, err := r.session.Snapshot(ctx)
	if err != nil {
		r.record(pageOutcome{url: r.page.URL, title: r.page.Title, err: err})
		return StateSummarizing
	}
	if r.challengeOn(snap) {
		return StateChallenged
	}

	if !r.siteSearched {
		r.siteSearched = true
		var challenged bool
		if snap, challenged = r.siteSearch(ctx, snap); challenged {
			return StateChallenged
		}
	}

	r.page = snap
	r.record(r.extractSnapshot(ctx, snap))
	return StateSummarizing
}

// siteSearch types the query's remaining terms into the search box of a
// recognised site. It reports whether the results page is challenged.
func (r *run) siteSearch(ctx context.Context, snap browser.Snapshot) (browser.Snapshot, bool) {
	u, err := url.Parse(snap.URL)
	if err != nil {
		return snap, false
	}
	site, ok := r.e.lexicon.SiteForHost(u.Hostname())
	if !ok {
		return snap, false
	}
	terms := r.e.lexicon.SearchTerms(r.query, site)
	if terms == "" {
		return snap, false
	}

	desc := fmt.Sprintf("Search %s for '%s'", site.Name, terms)
	r.dispatch = desc
	if err := r.session.Submit(ctx, r.e.lexicon.SearchBoxes, terms); err != nil {
		if errors.Is(err, browser.ErrNoElement) {
			r.e.logger.Debug("no site search box", zap.String("url", snap.URL))
		} else {
			r.history.Append(failedStep(desc, err.Error(), ErrNavigationFailed,
				map[string]any{"title": snap.Title, "url": snap.URL}))
		}
		return snap, false
	}

	after, err := r.session.Snapshot(ctx)
	if err != nil {
		r.history.Append(failedStep(desc, err.Error(), ErrNavigationFailed,
			map[string]any{"title": snap.Title, "url": snap.URL}))
		return snap, false
	}
	if r.challengeOn(after) {
		return after, true
	}
	r.history.Append(okStep(desc, "Searched within "+site.Name,
		map[string]any{"title": after.Title, "url": after.URL}))
	return after, false
}

type pageOutcome struct {
	rank   int
	title  string
	url    string
	result extract.Result
	err    error
}

func (r *run) extractSnapshot(ctx context.Context, snap browser.Snapshot) pageOutcome {
	o := pageOutcome{title: snap.Title, url: snap.URL}
	res := r.e.extractor.Extract(ctx, snap)
	if !res.Extracted {
		o.err = errNoContent
		return o
	}
	o.result = res
	o.title = res.Title
	return o
}

// extractHits visits each hit in its own tab concurrently. Steps are
// appended in rank order once all visits are done.
func (r *run) extractHits(ctx context.Context, hits []extract.Hit) {
	outcomes := make([]pageOutcome, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.e.opts.TopResults)
	for i, hit := range hits {
		g.Go(func() error {
			outcomes[i] = r.visit(gctx, hit)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(outcomes, func(i, j int) bool { return outcomes[i].rank < outcomes[j].rank })
	for _, o := range outcomes {
		r.record(o)
	}
}

func (r *run) visit(ctx context.Context, hit extract.Hit) (o pageOutcome) {
	o = pageOutcome{rank: hit.Rank, title: hit.Title, url: hit.URL}
	defer func() {
		if p := recover(); p != nil {
			o.err = fmt.Errorf("unexpected failure: %v", p)
		}
	}()

	tab, err := r.session.NewTab(ctx)
	if err != nil {
		o.err = fmt.Errorf("open tab: %w", err)
		return o
	}
	defer tab.Close()

	snap, err := r.navigate(ctx, tab, hit.URL)
	if err != nil {
		o.err = err
		return o
	}
	if sig, ok := r.e.detector.Explain(snap); ok {
		o.err = fmt.Errorf("verification challenge on page (%s)", sig)
		return o
	}

	res := r.e.extractor.Extract(ctx, snap)
	if res.Snippet == "" {
		res.Snippet = hit.Snippet
	}
	if !res.Extracted {
		o.err = errNoContent
		return o
	}
	o.result = res
	o.title = res.Title
	return o
}

func (r *run) record(o pageOutcome) {
	r.attempted++
	data := map[string]any{"title": o.title, "url": o.url}
	if o.rank > 0 {
		data["rank"] = o.rank
	}
	label := o.title
	if label == "" {
		label = o.url
	}

	if o.err != nil {
		data["note"] = o.err.Error()
		r.e.logger.LogExtraction(r.task.ID, o.url, false, 0)
		r.history.Append(failedStep("Extract content from "+label, o.err.Error(), ErrExtractionFailed, data))
		return
	}

	data["extracted"] = o.result
	r.e.logger.LogExtraction(r.task.ID, o.url, true, o.result.ContentLength)
	r.results = append(r.results, o.result)
	step := okStep("Extracted content from "+label,
		fmt.Sprintf("Extracted %d characters", o.result.ContentLength), data)
	step.Satisfies = true
	r.history.Append(step)
}

func (r *run) summarizing(ctx context.Context) State {
	results := r.results
	if results == nil {
		results = []extract.Result{}
	}
	top := make([]map[string]any, 0, len(results))
	for _, res := range results {
		top = append(top, map[string]any{"title": res.Title, "url": res.URL, "snippet": res.Snippet})
	}

	n := len(results)
	data := map[string]any{
		"detailed_results": results,
		"top_results":      top,
		"extraction_summary": map[string]int{
			"attempted": r.attempted,
			"extracted": n,
			"failed":    r.attempted - n,
		},
	}
	if n >= 2 {
		if summary, ok := r.summarize(ctx, results); ok {
			data["aggregate_summary"] = summary
		}
	}

	desc := fmt.Sprintf("Compiled %d extracted results", n)
	if n == 0 {
		r.history.Append(failedStep(desc, "No page content could be extracted", ErrExtractionFailed, data))
	} else {
		r.history.Append(okStep(desc, fmt.Sprintf("Extracted %d of %d pages", n, r.attempted), data))
	}
	return StateDone
}

type summaryAnswer struct {
	Summary string `json:"summary"`
}

func (r *run) summarize(ctx context.Context, results []extract.Result) (string, bool) {
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n", r.task.Query)
	for i, res := range results {
		fmt.Fprintf(&b, "\n[%d] %s (%s)\n%s\n", i+1, res.Title, res.URL, clip(res.Content, summaryInput))
	}
	prompt := reasoner.Prompt{System: r.e.prompts.PromptOrEmpty(PromptSummary), User: b.String()}

	answer, err := reasoner.Decode[summaryAnswer](ctx, r.e.reasoner, prompt, SummarySchema)
	if err != nil {
		r.e.logger.Info("aggregate summary unavailable", zap.Error(err))
		return "", false
	}
	if s := strings.TrimSpace(answer.Summary); s != "" {
		return s, true
	}
	return "", false
}

type fixAnswer struct {
	Solution string   `json:"solution"`
	Steps    []string `json:"steps"`
}

var genericFix = fixAnswer{
	Solution: "No reasoner was available to analyse the problem. General troubleshooting steps follow.",
	Steps: []string{
		"Note the exact error message",
		"Restart the affected application",
		"Install pending updates",
		"Search the exact error message online",
	},
}

func (r *run) fixIssue(ctx context.Context) State {
	prompt := reasoner.Prompt{System: r.e.prompts.PromptOrEmpty(PromptFixIssue), User: "Problem: " + r.plan.Target}
	answer, err := reasoner.Decode[fixAnswer](ctx, r.e.reasoner, prompt, FixIssueSchema)
	source := string(SourceReasoner)
	if err != nil || strings.TrimSpace(answer.Solution) == "" {
		r.e.logger.Info("fix suggestion from rules", zap.Error(err))
		answer = genericFix
		source = string(SourceRules)
	}
	if answer.Steps == nil {
		answer.Steps = []string{}
	}

	step := okStep("Suggest fix for: "+r.plan.Target, answer.Solution, map[string]any{
		"solution": answer.Solution,
		"steps":    answer.Steps,
		"source":   source,
	})
	step.Satisfies = true
	r.history.Append(step)
	return StateDone
}

func clip(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}
