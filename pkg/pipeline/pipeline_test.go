package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/freightwise/shipmentqa/pkg/analytics"
	"github.com/freightwise/shipmentqa/pkg/answer"
	"github.com/freightwise/shipmentqa/pkg/scope"
	"github.com/freightwise/shipmentqa/pkg/search"
	"github.com/freightwise/shipmentqa/pkg/session"
)

var testNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

// fakeSearcher returns canned hits and records the filter of the last call.
type fakeSearcher struct {
	hits       []search.Hit
	err        error
	lastFilter search.Filter
	calls      int
}

func (f *fakeSearcher) Search(
	ctx context.Context,
	filter search.Filter,
	queryText string,
	params search.Params,
) ([]search.Hit, error) {
	f.calls++
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func analyticsDataset() *analytics.Dataset {
	columns := []string{
		analytics.ColConsigneeCode, analytics.ColContainer, analytics.ColStatus,
		analytics.ColDischargePort, analytics.DefaultDelayColumn,
	}
	rows := [][]string{
		{"ACME", "MSCU1234567", "IN_TRANSIT", "SAVANNAH", "3"},
		{"ACME", "TCLU7654321", "DELIVERED", "ROTTERDAM", "0"},
		{"OTHER", "OOLU9998887", "IN_TRANSIT", "SAVANNAH", "10"},
	}
	return analytics.NewDataset(columns, rows)
}

func newTestPipeline(searcher *fakeSearcher) *Pipeline {
	catalog := analytics.DefaultCatalog()
	return &Pipeline{
		Searcher: searcher,
		Tabular:  analytics.NewMemoryBackend(catalog, analyticsDataset()),
		Catalog:  catalog,
		Sessions: session.NewMemoryStore(time.Minute),
		Hierarchy: scope.NewStaticHierarchy(map[string][]string{
			"ACME": {"ACME-EU"},
		}),
		Now: func() time.Time { return testNow },
	}
}

func statusHit(container string) search.Hit {
	return search.Hit{
		DocID:           "doc-" + container,
		ContainerNumber: container,
		Content:         "Shipment record for " + container,
		Fields: map[string]string{
			"shipment_status":  "IN_TRANSIT",
			"current_location": "Pacific Ocean",
		},
	}
}

func TestRun_StatusQuestion(t *testing.T) {
	searcher := &fakeSearcher{hits: []search.Hit{statusHit("MSCU1234567")}}
	p := newTestPipeline(searcher)

	res, err := p.Run(context.Background(), Request{
		Identity:       "user@acme",
		Question:       "Where is container MSCU1234567?",
		ConsigneeCodes: []string{"ACME"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Intent != "retrieval" {
		t.Fatalf("expected retrieval intent, got %q", res.Intent)
	}
	if !strings.Contains(res.Answer, "in transit") {
		t.Fatalf("expected status in answer, got %q", res.Answer)
	}
	if len(res.Evidence) == 0 {
		t.Fatal("expected evidence on a grounded answer")
	}
	if res.ConversationID == "" || res.TraceID == "" {
		t.Fatal("expected generated conversation and trace ids")
	}
}

func TestRun_ScopeAppliedToSearchFilter(t *testing.T) {
	searcher := &fakeSearcher{hits: []search.Hit{statusHit("MSCU1234567")}}
	p := newTestPipeline(searcher)

	_, err := p.Run(context.Background(), Request{
		Identity:       "user@acme",
		Question:       "where is mscu1234567",
		ConsigneeCodes: []string{"ACME"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	codes := searcher.lastFilter.ScopeCodes()
	found := map[string]bool{}
	for _, c := range codes {
		found[c] = true
	}
	if !found["ACME"] || !found["ACME-EU"] {
		t.Fatalf("expected expanded scope in filter, got %v", codes)
	}
	expr := searcher.lastFilter.Expr()
	if !strings.HasPrefix(expr, "consignee_codes") {
		t.Fatalf("scope predicate must lead the filter, got %q", expr)
	}
}

func TestRun_AnalyticsCount(t *testing.T) {
	p := newTestPipeline(&fakeSearcher{})

	res, err := p.Run(context.Background(), Request{
		Identity:       "user@acme",
		Question:       "How many of my shipments are in transit?",
		ConsigneeCodes: []string{"ACME"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Intent != "analytics" {
		t.Fatalf("expected analytics intent, got %q", res.Intent)
	}
	if !strings.Contains(res.Answer, "1") {
		t.Fatalf("expected in-scope count of 1, got %q", res.Answer)
	}
	if len(res.Evidence) == 0 {
		t.Fatal("computed answers still carry evidence")
	}
}

func TestRun_AnalyticsEmptyResult(t *testing.T) {
	p := newTestPipeline(&fakeSearcher{})

	res, err := p.Run(context.Background(), Request{
		Identity:       "user@acme",
		Question:       "how many of my shipments are booked",
		ConsigneeCodes: []string{"ACME"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(res.Answer, "couldn't find any shipments") {
		t.Fatalf("expected zero-result grounding message, got %q", res.Answer)
	}
}

func TestRun_NoIdentifiersAsksForOne(t *testing.T) {
	p := newTestPipeline(&fakeSearcher{})

	res, err := p.Run(context.Background(), Request{
		Identity:       "user@acme",
		Question:       "tell me about my stuff",
		ConsigneeCodes: []string{"ACME"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Answer != answer.MsgInsufficientIdentifiers {
		t.Fatalf("expected clarification request, got %q", res.Answer)
	}
}

func TestRun_EmptyScopeFailsClosed(t *testing.T) {
	p := newTestPipeline(&fakeSearcher{})

	res, err := p.Run(context.Background(), Request{
		Identity: "user@acme",
		Question: "where is mscu1234567",
	})
	if err == nil {
		t.Fatal("expected scope resolution error")
	}
	var resErr *scope.ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	if res.Answer != answer.MsgNotAuthorized {
		t.Fatalf("expected canonical authorization message, got %q", res.Answer)
	}
}

func TestRun_SearchFailureIsCanonical(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("index down")}
	p := newTestPipeline(searcher)

	res, err := p.Run(context.Background(), Request{
		Identity:       "user@acme",
		Question:       "where is mscu1234567",
		ConsigneeCodes: []string{"ACME"},
	})
	if err != nil {
		t.Fatalf("backend failure must not surface as request error, got %v", err)
	}
	if res.Answer != answer.MsgServiceUnavailable {
		t.Fatalf("expected canonical unavailable message, got %q", res.Answer)
	}
}

func TestRun_SessionCarriesIdentifiersForward(t *testing.T) {
	searcher := &fakeSearcher{hits: []search.Hit{statusHit("MSCU1234567")}}
	p := newTestPipeline(searcher)
	ctx := context.Background()

	first, err := p.Run(ctx, Request{
		Identity:       "user@acme",
		Question:       "where is container mscu1234567",
		ConsigneeCodes: []string{"ACME"},
	})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}

	second, err := p.Run(ctx, Request{
		ConversationID: first.ConversationID,
		Identity:       "user@acme",
		Question:       "why is it delayed",
		ConsigneeCodes: []string{"ACME"},
	})
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if second.Intent != "retrieval" {
		t.Fatalf("follow-up should inherit identifiers and stay retrieval, got %q", second.Intent)
	}
	if second.Handler != "delay_reason" {
		t.Fatalf("expected delay handler on follow-up, got %q", second.Handler)
	}
}

func TestRun_TopicShiftResetsSession(t *testing.T) {
	searcher := &fakeSearcher{hits: []search.Hit{statusHit("TCLU7654321")}}
	p := newTestPipeline(searcher)
	ctx := context.Background()

	first, err := p.Run(ctx, Request{
		Identity:       "user@acme",
		Question:       "where is container mscu1234567",
		ConsigneeCodes: []string{"ACME"},
	})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}

	second, err := p.Run(ctx, Request{
		ConversationID: first.ConversationID,
		Identity:       "user@acme",
		Question:       "hows tclu7654321 doing",
		ConsigneeCodes: []string{"ACME"},
	})
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	noticed := false
	for _, n := range second.Notices {
		if n == MsgContextReset {
			noticed = true
		}
	}
	if !noticed {
		t.Fatalf("expected context reset notice, got %v", second.Notices)
	}

	slots, ok, err := p.Sessions.Get(ctx, first.ConversationID)
	if err != nil || !ok {
		t.Fatalf("expected session, ok=%v err=%v", ok, err)
	}
	if len(slots.LastIdentifiers) != 1 || slots.LastIdentifiers[0].Value != "TCLU7654321" {
		t.Fatalf("expected slots rebound to the new topic, got %v", slots.LastIdentifiers)
	}
	if slots.Turns != 2 {
		t.Fatalf("expected 2 turns recorded, got %d", slots.Turns)
	}
}

func TestRun_ResumesParkedContext(t *testing.T) {
	searcher := &fakeSearcher{hits: []search.Hit{statusHit("MSCU1234567")}}
	p := newTestPipeline(searcher)
	ctx := context.Background()

	first, err := p.Run(ctx, Request{
		Identity:       "user@acme",
		Question:       "where is container mscu1234567",
		ConsigneeCodes: []string{"ACME"},
	})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if _, err := p.Run(ctx, Request{
		ConversationID: first.ConversationID,
		Identity:       "user@acme",
		Question:       "hows tclu7654321 doing",
		ConsigneeCodes: []string{"ACME"},
	}); err != nil {
		t.Fatalf("second turn: %v", err)
	}

	third, err := p.Run(ctx, Request{
		ConversationID: first.ConversationID,
		Identity:       "user@acme",
		Question:       "go back to the previous question",
		ConsigneeCodes: []string{"ACME"},
	})
	if err != nil {
		t.Fatalf("third turn: %v", err)
	}
	if third.Intent != "retrieval" {
		t.Fatalf("restored context should allow a retrieval turn, got %q", third.Intent)
	}

	slots, ok, err := p.Sessions.Get(ctx, first.ConversationID)
	if err != nil || !ok {
		t.Fatalf("expected session, ok=%v err=%v", ok, err)
	}
	if len(slots.LastIdentifiers) != 1 || slots.LastIdentifiers[0].Value != "MSCU1234567" {
		t.Fatalf("expected restored identifiers, got %v", slots.LastIdentifiers)
	}
}

func TestRun_DefaultWindowNoticeSurfaces(t *testing.T) {
	searcher := &fakeSearcher{hits: []search.Hit{statusHit("MSCU1234567")}}
	p := newTestPipeline(searcher)

	res, err := p.Run(context.Background(), Request{
		Identity:       "user@acme",
		Question:       "is mscu1234567 arriving soon",
		ConsigneeCodes: []string{"ACME"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	found := false
	for _, n := range res.Notices {
		if strings.Contains(n, "default window of 7 days") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected default window notice, got %v", res.Notices)
	}
}

func TestRun_TopicShiftAfterFleetWideTurn(t *testing.T) {
	searcher := &fakeSearcher{hits: []search.Hit{statusHit("TCLU7654321")}}
	p := newTestPipeline(searcher)
	ctx := context.Background()

	first, err := p.Run(ctx, Request{
		Identity:       "user@acme",
		Question:       "Average delay at SAVANNAH",
		ConsigneeCodes: []string{"ACME"},
	})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if first.Intent != "analytics" {
		t.Fatalf("expected analytics turn, got %q", first.Intent)
	}

	second, err := p.Run(ctx, Request{
		ConversationID: first.ConversationID,
		Identity:       "user@acme",
		Question:       "where is container tclu7654321",
		ConsigneeCodes: []string{"ACME"},
	})
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	noticed := false
	for _, n := range second.Notices {
		if n == MsgContextReset {
			noticed = true
		}
	}
	if !noticed {
		t.Fatalf("a new container after a fleet-wide turn is a topic shift, got %v", second.Notices)
	}
}

func TestRun_FollowUpKeepsIdentifierKind(t *testing.T) {
	searcher := &fakeSearcher{hits: []search.Hit{statusHit("MSCU1234567")}}
	p := newTestPipeline(searcher)
	ctx := context.Background()

	first, err := p.Run(ctx, Request{
		Identity:       "user@acme",
		Question:       "where is my po 4455667",
		ConsigneeCodes: []string{"ACME"},
	})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}

	if _, err := p.Run(ctx, Request{
		ConversationID: first.ConversationID,
		Identity:       "user@acme",
		Question:       "why is it delayed",
		ConsigneeCodes: []string{"ACME"},
	}); err != nil {
		t.Fatalf("second turn: %v", err)
	}

	var poValues []string
	for _, clause := range searcher.lastFilter.Clauses() {
		if clause.Field == search.FieldPO {
			poValues = clause.Values
		}
		if clause.Field == search.FieldContainer {
			t.Fatalf("remembered PO must not become a container clause: %+v", clause)
		}
	}
	if len(poValues) == 0 || poValues[0] != "4455667" {
		t.Fatalf("expected a PO clause for the remembered identifier, got %+v", searcher.lastFilter.Clauses())
	}
}

// countingBackend fails every execution so the retry policy is observable.
type countingBackend struct {
	calls int
}

func (b *countingBackend) Execute(ctx context.Context, plan analytics.CompiledPlan) (analytics.Result, error) {
	b.calls++
	return analytics.Result{}, &analytics.ExecutionError{Stage: "aggregate", Err: errors.New("backend down")}
}

func TestRun_AnalyticsRetriesExactlyOnce(t *testing.T) {
	searcher := &fakeSearcher{}
	p := newTestPipeline(searcher)
	backend := &countingBackend{}
	p.Tabular = backend

	res, err := p.Run(context.Background(), Request{
		Identity:       "user@acme",
		Question:       "how many of my shipments are in transit",
		ConsigneeCodes: []string{"ACME"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if backend.calls != 2 {
		t.Fatalf("expected exactly one simplified retry (2 executions), got %d", backend.calls)
	}
	if res.Answer != answer.MsgServiceUnavailable {
		t.Fatalf("expected canonical unavailable answer, got %q", res.Answer)
	}
}

func TestRun_GreetingAnswersWithCapabilities(t *testing.T) {
	searcher := &fakeSearcher{}
	p := newTestPipeline(searcher)

	res, err := p.Run(context.Background(), Request{
		Identity:       "user@acme",
		Question:       "Hello!",
		ConsigneeCodes: []string{"ACME"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Answer != answer.MsgGreeting {
		t.Fatalf("expected greeting answer, got %q", res.Answer)
	}
	if searcher.calls != 0 {
		t.Fatal("a greeting must not hit the search backend")
	}
}

func TestRun_BookingNumberRoutesToBookingField(t *testing.T) {
	searcher := &fakeSearcher{hits: []search.Hit{statusHit("MSCU1234567")}}
	p := newTestPipeline(searcher)

	if _, err := p.Run(context.Background(), Request{
		Identity:       "user@acme",
		Question:       "where is booking EBKG01234567",
		ConsigneeCodes: []string{"ACME"},
	}); err != nil {
		t.Fatalf("run: %v", err)
	}

	found := false
	for _, clause := range searcher.lastFilter.Clauses() {
		if clause.Field == search.FieldBooking && clause.Values[0] == "EBKG01234567" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a booking clause, got %+v", searcher.lastFilter.Clauses())
	}
}
