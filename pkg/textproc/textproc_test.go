package textproc

import (
	"testing"
	"time"
)

var testNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func TestNormalize_StripsFillerAndCollapsesWhitespace(t *testing.T) {
	got := Normalize("  Hello, could you please tell me   where is container MSCU1234567?  ")
	want := "where is container mscu1234567"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestNormalize_IsTotal(t *testing.T) {
	for _, input := range []string{"", "???", "please", "   "} {
		_ = Normalize(input)
	}
}

func TestExtract_ContainerNumber(t *testing.T) {
	ents := Extract("where is container mscu1234567", testNow)
	if ents.Count() != 1 {
		t.Fatalf("expected 1 identifier, got %d", ents.Count())
	}
	id := ents.Identifiers[0]
	if id.Kind != KindContainer {
		t.Fatalf("expected container kind, got %v", id.Kind)
	}
	if id.Value != "MSCU1234567" {
		t.Fatalf("expected uppercased value, got %q", id.Value)
	}
	if id.Confidence < 0.9 {
		t.Fatalf("expected high confidence, got %v", id.Confidence)
	}
}

func TestExtract_PurchaseOrderNeedsCue(t *testing.T) {
	withCue := Extract("status of po 4500123456", testNow)
	if len(withCue.Values(KindPurchaseOrder)) != 1 {
		t.Fatalf("expected PO extracted with cue, got %v", withCue.Identifiers)
	}

	withoutCue := Extract("status of 4500123456", testNow)
	if withoutCue.Count() != 0 {
		t.Fatalf("expected bare number ignored without cue, got %v", withoutCue.Identifiers)
	}
}

func TestExtract_BookingNumberNeedsCue(t *testing.T) {
	withCue := Extract("status of booking ebkg01234567", testNow)
	ids := withCue.Values(KindBooking)
	if len(ids) != 1 || ids[0] != "EBKG01234567" {
		t.Fatalf("expected booking extracted with cue, got %v", withCue.Identifiers)
	}
	if withCue.Identifiers[0].Confidence != 0.70 {
		t.Fatalf("expected booking confidence 0.70, got %v", withCue.Identifiers[0].Confidence)
	}

	withoutCue := Extract("status of ebkg01234567", testNow)
	if withoutCue.Count() != 0 {
		t.Fatalf("expected bare token ignored without cue, got %v", withoutCue.Identifiers)
	}
}

func TestParseKind_RoundTrips(t *testing.T) {
	for _, k := range []IdentifierKind{KindContainer, KindPurchaseOrder, KindBillOfLading, KindBooking} {
		if got := ParseKind(k.String()); got != k {
			t.Fatalf("kind %v round-trips to %v", k, got)
		}
	}
	if ParseKind("unknown") != KindContainer {
		t.Fatal("unknown kind falls back to container")
	}
}

func TestExtract_DeduplicatesIdentifiers(t *testing.T) {
	ents := Extract("compare mscu1234567 with MSCU1234567", testNow)
	if ents.Count() != 1 {
		t.Fatalf("expected duplicate collapsed, got %v", ents.Identifiers)
	}
}

func TestExtract_NextDaysWindow(t *testing.T) {
	ents := Extract("which of my shipments arrive in the next 5 days", testNow)
	if ents.Window == nil {
		t.Fatal("expected a time window")
	}
	if !ents.Window.Start.Equal(testNow) {
		t.Fatalf("expected window start at reference time, got %v", ents.Window.Start)
	}
	if !ents.Window.End.Equal(testNow.AddDate(0, 0, 5)) {
		t.Fatalf("expected window end +5d, got %v", ents.Window.End)
	}
	if len(ents.Notices) != 0 {
		t.Fatalf("explicit duration should carry no notice, got %v", ents.Notices)
	}
}

func TestExtract_ArrivingSoonAppliesDefaultWindow(t *testing.T) {
	ents := Extract("are any of my containers arriving soon", testNow)
	if ents.Window == nil {
		t.Fatal("expected a default window")
	}
	if !ents.Window.End.Equal(testNow.AddDate(0, 0, DefaultWindowDays)) {
		t.Fatalf("expected default 7 day window, got %v", ents.Window.End)
	}
	if len(ents.Notices) != 1 || ents.Notices[0] != DefaultWindowNotice {
		t.Fatalf("expected default window notice, got %v", ents.Notices)
	}
}

func TestExtract_NoWindowWithoutSignal(t *testing.T) {
	ents := Extract("where is container mscu1234567", testNow)
	if ents.Window != nil {
		t.Fatalf("expected nil window, got %v", ents.Window)
	}
}

func TestExtract_IsDeterministic(t *testing.T) {
	q := "po 4500123456 arriving in the next 3 days"
	a := Extract(q, testNow)
	b := Extract(q, testNow)
	if a.Count() != b.Count() || len(a.Notices) != len(b.Notices) {
		t.Fatal("extraction must be deterministic for fixed input and reference time")
	}
}

func TestDetectTopicShift_NewUnrelatedIdentifiers(t *testing.T) {
	prevQ := "where is container mscu1234567"
	currQ := "how about tclu7654321"
	curr := Extract(currQ, testNow)

	if !DetectTopicShift([]string{"MSCU1234567"}, prevQ, curr, currQ) {
		t.Fatal("expected topic shift for disjoint identifiers with no shared content")
	}
}

func TestDetectTopicShift_ContinuationKeepsContext(t *testing.T) {
	prevQ := "where is container mscu1234567"
	currQ := "and what about its eta"
	curr := Extract(currQ, testNow)

	if DetectTopicShift([]string{"MSCU1234567"}, prevQ, curr, currQ) {
		t.Fatal("continuation phrasing must not shift topic")
	}
}

func TestDetectTopicShift_NoPriorTurn(t *testing.T) {
	currQ := "where is container mscu1234567"
	curr := Extract(currQ, testNow)

	if DetectTopicShift(nil, "", curr, currQ) {
		t.Fatal("first substantive question is not a shift")
	}
}

func TestDetectTopicShift_AfterIdentifierlessTurn(t *testing.T) {
	prevQ := "average delay at savannah"
	currQ := "where is container tclu7654321"
	curr := Extract(currQ, testNow)

	if !DetectTopicShift(nil, prevQ, curr, currQ) {
		t.Fatal("a new identifier after an unrelated fleet-wide question is a shift")
	}
	related := "average delay for container tclu7654321"
	if DetectTopicShift(nil, prevQ, Extract(related, testNow), related) {
		t.Fatal("shared content words with the previous question must not shift")
	}
}

func TestDetectTopicShift_OverlappingIdentifiers(t *testing.T) {
	prevQ := "where is container mscu1234567"
	currQ := "why is mscu1234567 delayed"
	curr := Extract(currQ, testNow)

	if DetectTopicShift([]string{"MSCU1234567"}, prevQ, curr, currQ) {
		t.Fatal("shared identifier must not shift topic")
	}
}
