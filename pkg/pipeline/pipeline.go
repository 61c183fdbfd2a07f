// Package pipeline orchestrates one question turn: session recall, text
// normalization, entity extraction, intent classification, routing into the
// retrieval or analytics path, grounded answer assembly, and the session
// update. Stages pass state by value; backends are capabilities injected at
// construction.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/freightwise/shipmentqa/internal/util"
	"github.com/freightwise/shipmentqa/pkg/ai"
	"github.com/freightwise/shipmentqa/pkg/analytics"
	"github.com/freightwise/shipmentqa/pkg/answer"
	"github.com/freightwise/shipmentqa/pkg/filterexpr"
	"github.com/freightwise/shipmentqa/pkg/intent"
	"github.com/freightwise/shipmentqa/pkg/logger"
	"github.com/freightwise/shipmentqa/pkg/retrieval"
	"github.com/freightwise/shipmentqa/pkg/scope"
	"github.com/freightwise/shipmentqa/pkg/search"
	"github.com/freightwise/shipmentqa/pkg/session"
	"github.com/freightwise/shipmentqa/pkg/textproc"
)

const (
	defaultSearchTimeout    = 10 * time.Second
	defaultAnalyticsTimeout = 15 * time.Second
)

// MsgContextReset is recorded when a topic shift clears the sticky slots.
const MsgContextReset = "Previous context cleared for the new topic."

// Phrases that pull back the slots parked by the last topic shift.
var resumeTerms = []string{
	"previous context", "earlier question", "previous question",
	"go back to", "back to the previous",
}

func resumesPriorTopic(question string) bool {
	for _, term := range resumeTerms {
		if strings.Contains(question, term) {
			return true
		}
	}
	return false
}

// Pipeline wires the stages to their backends. All fields except Embedder
// are required; a nil Embedder degrades retrieval to keyword matching.
type Pipeline struct {
	Searcher  search.Searcher
	Embedder  ai.Embedder
	Tabular   analytics.Backend
	Catalog   analytics.Catalog
	Sessions  session.Store
	Hierarchy scope.Hierarchy

	Now              func() time.Time
	SearchTimeout    time.Duration
	AnalyticsTimeout time.Duration
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) searchTimeout() time.Duration {
	if p.SearchTimeout > 0 {
		return p.SearchTimeout
	}
	return defaultSearchTimeout
}

func (p *Pipeline) analyticsTimeout() time.Duration {
	if p.AnalyticsTimeout > 0 {
		return p.AnalyticsTimeout
	}
	return defaultAnalyticsTimeout
}

// Run executes one turn. Scope resolution failures are fatal for the turn
// and return an error alongside the canonical response; every other failure
// is mapped onto a canonical answer and returns nil.
func (p *Pipeline) Run(ctx context.Context, req Request) (Response, error) {
	if req.TraceID == "" {
		req.TraceID = util.NewTraceID()
	}
	if req.ConversationID == "" {
		req.ConversationID = util.NewConversationID()
	}

	st := state{req: req}

	resolved, err := scope.Resolve(ctx, p.Hierarchy, req.Identity, req.ConsigneeCodes)
	if err != nil {
		logger.Warn("scope resolution failed",
			"trace_id", req.TraceID, "identity", req.Identity, "err", err)
		return p.respond(st, answer.Answer{Text: answer.MsgNotAuthorized}), err
	}
	if resolved.IsEmpty() {
		resErr := &scope.ResolutionError{Identity: req.Identity, Reason: "no authorized consignee codes"}
		return p.respond(st, answer.Answer{Text: answer.MsgNotAuthorized}), resErr
	}
	st.scope = resolved

	st = p.loadSession(ctx, st)
	st = p.understand(st)
	st.handler = SelectHandler(st.class)

	ans := p.dispatch(ctx, &st)

	p.saveSession(ctx, st)

	logger.Info("turn complete",
		"trace_id", req.TraceID,
		"conversation_id", req.ConversationID,
		"intent", st.class.Intent.String(),
		"handler", st.handler.String(),
		"evidence", len(ans.Evidence),
	)
	return p.respond(st, ans), nil
}

func (p *Pipeline) respond(st state, ans answer.Answer) Response {
	return Response{
		ConversationID: st.req.ConversationID,
		TraceID:        st.req.TraceID,
		Intent:         st.class.Intent.String(),
		SubIntent:      st.class.Sub.String(),
		Handler:        st.handler.String(),
		Answer:         ans.Text,
		Notices:        ans.Notices,
		Evidence:       ans.Evidence,
		Table:          ans.Table,
	}
}

// loadSession fetches prior slots. A store failure degrades to a fresh
// session rather than failing the turn.
func (p *Pipeline) loadSession(ctx context.Context, st state) state {
	slots, ok, err := p.Sessions.Get(ctx, st.req.ConversationID)
	if err != nil {
		logger.Warn("session load failed",
			"trace_id", st.req.TraceID, "conversation_id", st.req.ConversationID, "err", err)
		return st
	}
	st.slots = slots
	st.hadSession = ok
	return st
}

// understand normalizes, extracts, detects topic shifts against the session,
// and classifies. Sticky identifiers from the previous turn fill in when the
// current question names none and the topic has not shifted.
func (p *Pipeline) understand(st state) state {
	st.normalized = textproc.Normalize(st.req.Question)
	st.entities = textproc.Extract(st.normalized, p.now())
	st.notices = append(st.notices, st.entities.Notices...)

	if st.hadSession {
		if st.slots.Pending != nil && resumesPriorTopic(st.normalized) {
			st.slots.LastIdentifiers = st.slots.Pending.Identifiers
			st.slots.LastQuestion = st.slots.Pending.Question
			st.slots.Pending = nil
		}
		st.shifted = textproc.DetectTopicShift(
			st.slots.IdentifierValues(), st.slots.LastQuestion, st.entities, st.normalized)
		if st.shifted {
			st.slots = st.slots.Reset()
			st.notices = append(st.notices, MsgContextReset)
		} else if st.entities.Count() == 0 && len(st.slots.LastIdentifiers) > 0 {
			for _, stored := range st.slots.LastIdentifiers {
				st.entities.Identifiers = append(st.entities.Identifiers, textproc.Identifier{
					Kind:       textproc.ParseKind(stored.Kind),
					Value:      stored.Value,
					Confidence: 0.5,
				})
			}
		}
	}

	st.class = intent.Classify(st.normalized, st.entities)
	return st
}

func (p *Pipeline) dispatch(ctx context.Context, st *state) answer.Answer {
	switch st.handler {
	case HandlerAnalytics:
		return p.runAnalytics(ctx, st)
	case HandlerStatus, HandlerETAWindow, HandlerDelayReason, HandlerRoute:
		return p.runRetrieval(ctx, st)
	default:
		if intent.IsGreeting(st.normalized) {
			return answer.Assemble(
				[]answer.Fragment{{Text: answer.MsgGreeting}}, nil, st.notices)
		}
		if st.entities.Count() == 0 {
			insErr := &InsufficientIdentifiersError{Question: st.req.Question}
			logger.Debug("clarification needed", "trace_id", st.req.TraceID, "err", insErr)
			return answer.Assemble(
				[]answer.Fragment{{Text: answer.MsgInsufficientIdentifiers}}, nil, st.notices)
		}
		return answer.Assemble(
			[]answer.Fragment{{Text: answer.MsgCouldNotFind}}, nil, st.notices)
	}
}

// runRetrieval executes the narrow-lookup path: plan, one scoped search, and
// a deterministic handler over the hits.
func (p *Pipeline) runRetrieval(ctx context.Context, st *state) answer.Answer {
	plan, err := retrieval.BuildPlan(st.normalized, st.scope, st.entities)
	if err != nil {
		var unsupported *filterexpr.UnsupportedPredicateError
		if errors.As(err, &unsupported) {
			logger.Warn("unsupported predicate", "trace_id", st.req.TraceID, "err", err)
			return answer.Assemble(
				[]answer.Fragment{{Text: answer.MsgCouldNotFind}}, nil, st.notices)
		}
		logger.Error("retrieval planning failed", "trace_id", st.req.TraceID, "err", err)
		return answer.Assemble(
			[]answer.Fragment{{Text: answer.MsgServiceUnavailable}}, nil, st.notices)
	}

	if p.Embedder != nil {
		vec, err := p.Embedder.Embed(ctx, st.normalized)
		if err != nil {
			logger.Warn("embedding failed, falling back to keyword search",
				"trace_id", st.req.TraceID, "err", err)
		} else {
			plan.Params.Vector = vec
		}
	}

	sCtx, cancel := context.WithTimeout(ctx, p.searchTimeout())
	defer cancel()

	hits, err := p.Searcher.Search(sCtx, plan.Filter, plan.QueryText, plan.Params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			toErr := &BackendTimeoutError{Backend: "search", Err: err}
			logger.Error("search timed out", "trace_id", st.req.TraceID, "err", toErr)
		} else {
			logger.Error("search failed", "trace_id", st.req.TraceID, "err", err)
		}
		return answer.Assemble(
			[]answer.Fragment{{Text: answer.MsgServiceUnavailable}}, nil, st.notices)
	}

	in := retrieval.Input{
		Question: st.normalized,
		Hits:     hits,
		Entities: st.entities,
		Now:      p.now(),
	}

	var fragments []answer.Fragment
	switch st.handler {
	case HandlerETAWindow:
		fragments = retrieval.ETAWindow(in)
	case HandlerDelayReason:
		fragments = retrieval.DelayReason(in)
	case HandlerRoute:
		fragments = retrieval.Route(in)
	default:
		fragments = retrieval.Status(in)
	}
	return answer.Assemble(fragments, nil, st.notices)
}

// runAnalytics executes the aggregate path: draft a plan, compile it against
// the catalog with the scope predicate pinned first, and run it. A failed
// execution earns exactly one simplified redraft; a second failure surfaces
// the canonical unavailable message.
func (p *Pipeline) runAnalytics(ctx context.Context, st *state) answer.Answer {
	plan := analytics.Draft(st.normalized, st.entities, p.now())
	scopePred := filterexpr.TabularScope(st.scope)

	result, err := p.compileAndRun(ctx, st, scopePred, plan)
	if err != nil {
		var execErr *analytics.ExecutionError
		if errors.As(err, &execErr) {
			simplified, ok := analytics.Redraft(plan, err)
			if ok {
				logger.Warn("analytics plan failed, retrying simplified",
					"trace_id", st.req.TraceID, "err", err)
				result, err = p.compileAndRun(ctx, st, scopePred, simplified)
			}
		}
	}
	if err != nil {
		return p.analyticsFailure(st, err)
	}

	return p.analyticsAnswer(st, result)
}

func (p *Pipeline) compileAndRun(
	ctx context.Context,
	st *state,
	scopePred analytics.Predicate,
	plan analytics.Plan,
) (analytics.Result, error) {
	compiled, err := analytics.Compile(p.Catalog, []analytics.Predicate{scopePred}, plan)
	if err != nil {
		return analytics.Result{}, err
	}

	aCtx, cancel := context.WithTimeout(ctx, p.analyticsTimeout())
	defer cancel()

	result, err := p.Tabular.Execute(aCtx, compiled)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return analytics.Result{}, &BackendTimeoutError{Backend: "analytics", Err: err}
	}
	return result, err
}

func (p *Pipeline) analyticsFailure(st *state, err error) answer.Answer {
	var (
		schemaErr  *analytics.SchemaViolationError
		emptyErr   *analytics.EmptyResultError
		timeoutErr *BackendTimeoutError
	)
	switch {
	case errors.As(err, &schemaErr):
		logger.Warn("analytics schema violation", "trace_id", st.req.TraceID, "err", err)
		return answer.Assemble(
			[]answer.Fragment{{Text: answer.MsgMetricUnavailable}}, nil, st.notices)
	case errors.As(err, &emptyErr):
		return answer.Assemble(
			[]answer.Fragment{{Text: answer.NoMatchesFor(emptyErr.Subject)}}, nil, st.notices)
	case errors.As(err, &timeoutErr):
		logger.Error("analytics timed out", "trace_id", st.req.TraceID, "err", err)
		return answer.Assemble(
			[]answer.Fragment{{Text: answer.MsgServiceUnavailable}}, nil, st.notices)
	default:
		logger.Error("analytics failed", "trace_id", st.req.TraceID, "err", err)
		return answer.Assemble(
			[]answer.Fragment{{Text: answer.MsgServiceUnavailable}}, nil, st.notices)
	}
}

// analyticsAnswer renders a computed result as a grounded fragment. The
// evidence item references the computation itself since no source document
// backs an aggregate.
func (p *Pipeline) analyticsAnswer(st *state, result analytics.Result) answer.Answer {
	ev := answer.Evidence{SourceID: "computed:" + result.Name}

	var fragments []answer.Fragment
	var table *answer.Table

	switch {
	case result.Scalar != nil:
		fragments = append(fragments, answer.Fragment{
			Text:     fmt.Sprintf("%s: %s.", humanizeName(result.Name), formatScalar(*result.Scalar)),
			HasClaim: true,
			Evidence: []answer.Evidence{ev},
		})
	case result.Table != nil:
		table = &answer.Table{Columns: result.Table.Columns, Rows: result.Table.Rows}
		fragments = append(fragments, answer.Fragment{
			Text: fmt.Sprintf("Found %d matching rows for %s.",
				result.RowCount, humanizeName(result.Name)),
			HasClaim: true,
			Evidence: []answer.Evidence{ev},
		})
	default:
		fragments = append(fragments, answer.Fragment{Text: answer.MsgNoMatches})
	}
	return answer.Assemble(fragments, table, st.notices)
}

// saveSession records this turn's slots. A cancelled turn is not persisted
// so an abandoned request cannot poison the conversation state.
func (p *Pipeline) saveSession(ctx context.Context, st state) {
	if ctx.Err() != nil {
		return
	}
	ids := make([]session.Identifier, 0, len(st.entities.Identifiers))
	for _, id := range st.entities.Identifiers {
		ids = append(ids, session.Identifier{Kind: id.Kind.String(), Value: id.Value})
	}
	err := p.Sessions.Update(ctx, st.req.ConversationID, func(slots session.Slots) session.Slots {
		slots.Identity = st.req.Identity
		slots.LastIntent = st.class.Intent.String()
		slots.LastSubIntent = st.class.Sub.String()
		slots.LastIdentifiers = ids
		slots.LastQuestion = st.normalized
		slots.Turns++
		if !st.shifted {
			slots.Pending = nil
		} else {
			slots.Pending = st.slots.Pending
		}
		return slots
	})
	if err != nil {
		logger.Warn("session save failed",
			"trace_id", st.req.TraceID, "conversation_id", st.req.ConversationID, "err", err)
	}
}

func humanizeName(name string) string {
	if name == "" {
		return "your query"
	}
	return strings.ReplaceAll(name, "_", " ")
}

func formatScalar(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
