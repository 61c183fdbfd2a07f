package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/freightwise/shipmentqa/pkg/textproc"
)

var testNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func testDataset() *Dataset {
	columns := []string{
		ColConsigneeCode, ColContainer, ColStatus, ColDischargePort,
		ColCarrier, DefaultDelayColumn, FinalDestinationDelayColumn, ColHotFlag,
	}
	rows := [][]string{
		{"ACME", "MSCU1234567", "IN_TRANSIT", "SAVANNAH", "MAERSK", "3", "5", "false"},
		{"ACME", "TCLU7654321", "DELIVERED", "ROTTERDAM", "MSC", "0", "1", "false"},
		{"ACME-EU", "HLCU1112223", "IN_TRANSIT", "ROTTERDAM", "MAERSK", "7", "9", "true"},
		{"OTHER", "OOLU9998887", "IN_TRANSIT", "SAVANNAH", "MAERSK", "10", "12", "false"},
	}
	return NewDataset(columns, rows)
}

func scopePreds(codes ...string) []Predicate {
	return []Predicate{{Column: ColConsigneeCode, Op: PredIn, Values: codes}}
}

func TestValidate_UnknownColumnFailsClosed(t *testing.T) {
	cat := DefaultCatalog()
	err := cat.Validate(Plan{
		Agg:        AggCount,
		Predicates: []Predicate{{Column: "nonexistent", Op: PredEq, Values: []string{"x"}}},
	})
	var schemaErr *SchemaViolationError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaViolationError, got %v", err)
	}
}

func TestValidate_InternalColumnNotProjectable(t *testing.T) {
	cat := DefaultCatalog()
	err := cat.Validate(Plan{Agg: AggNone, Select: []string{ColConsigneeCode}})
	var schemaErr *SchemaViolationError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaViolationError for internal column, got %v", err)
	}
}

func TestValidate_AggregationAllowance(t *testing.T) {
	cat := DefaultCatalog()
	err := cat.Validate(Plan{Agg: AggAvg, AggColumn: ColStatus})
	var schemaErr *SchemaViolationError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected avg on categorical column rejected, got %v", err)
	}

	if err := cat.Validate(Plan{Agg: AggAvg, AggColumn: DefaultDelayColumn}); err != nil {
		t.Fatalf("avg on numeric delay column should validate, got %v", err)
	}
}

func TestValidate_RangePredicateOnCategoricalRejected(t *testing.T) {
	cat := DefaultCatalog()
	err := cat.Validate(Plan{
		Agg:        AggCount,
		Predicates: []Predicate{{Column: ColStatus, Op: PredGt, Values: []string{"A"}}},
	})
	var schemaErr *SchemaViolationError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected range on categorical rejected, got %v", err)
	}
}

func TestCompile_RejectsUnknownScopeColumn(t *testing.T) {
	cat := DefaultCatalog()
	_, err := Compile(cat, []Predicate{{Column: "bogus", Op: PredIn, Values: []string{"A"}}}, Plan{Agg: AggCount})
	var schemaErr *SchemaViolationError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaViolationError, got %v", err)
	}
}

func TestExecute_ScopeRestrictsRows(t *testing.T) {
	cat := DefaultCatalog()
	backend := NewMemoryBackend(cat, testDataset())

	plan, err := Compile(cat, scopePreds("ACME", "ACME-EU"), Plan{Agg: AggCount, ResultName: "shipments"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	result, err := backend.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Scalar == nil || *result.Scalar != 3 {
		t.Fatalf("expected 3 in-scope rows, got %+v", result)
	}
}

func TestExecute_RefusesMissingScope(t *testing.T) {
	cat := DefaultCatalog()
	backend := NewMemoryBackend(cat, testDataset())

	plan, err := Compile(cat, nil, Plan{Agg: AggCount})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	_, err = backend.Execute(context.Background(), plan)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError for missing scope, got %v", err)
	}
}

func TestExecute_EmptyResult(t *testing.T) {
	cat := DefaultCatalog()
	backend := NewMemoryBackend(cat, testDataset())

	plan, err := Compile(cat, scopePreds("ACME"), Plan{
		Agg:     AggCount,
		Subject: "delivered shipments at ANTWERP",
		Predicates: []Predicate{
			{Column: ColDischargePort, Op: PredContains, Values: []string{"antwerp"}},
		},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	_, err = backend.Execute(context.Background(), plan)
	var emptyErr *EmptyResultError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("expected EmptyResultError, got %v", err)
	}
	if emptyErr.Subject != "delivered shipments at ANTWERP" {
		t.Fatalf("expected subject carried through, got %q", emptyErr.Subject)
	}
}

func TestExecute_GroupByDeterministicOrder(t *testing.T) {
	cat := DefaultCatalog()
	backend := NewMemoryBackend(cat, testDataset())

	plan, err := Compile(cat, scopePreds("ACME", "ACME-EU", "OTHER"), Plan{
		Agg:        AggCount,
		GroupBy:    []string{ColCarrier},
		ResultName: "count",
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	first, err := backend.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	second, err := backend.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("re-execute: %v", err)
	}

	if first.Table == nil || len(first.Table.Rows) != 2 {
		t.Fatalf("expected 2 carrier groups, got %+v", first.Table)
	}
	if first.Table.Rows[0][0] != "MAERSK" || first.Table.Rows[1][0] != "MSC" {
		t.Fatalf("expected groups sorted by key, got %v", first.Table.Rows)
	}
	for i := range first.Table.Rows {
		for j := range first.Table.Rows[i] {
			if first.Table.Rows[i][j] != second.Table.Rows[i][j] {
				t.Fatal("identical plans over an unchanged dataset must produce identical results")
			}
		}
	}
}

func TestExecute_AverageDelay(t *testing.T) {
	cat := DefaultCatalog()
	backend := NewMemoryBackend(cat, testDataset())

	plan, err := Compile(cat, scopePreds("ACME", "ACME-EU"), Plan{
		Agg:       AggAvg,
		AggColumn: DefaultDelayColumn,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	result, err := backend.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := (3.0 + 0.0 + 7.0) / 3.0
	if result.Scalar == nil || *result.Scalar != want {
		t.Fatalf("expected avg %v, got %+v", want, result)
	}
}

func TestDelayColumnFor_DefaultAndFinalDestination(t *testing.T) {
	if got := DelayColumnFor("how delayed are my shipments"); got != DefaultDelayColumn {
		t.Fatalf("expected discharge-port delay default, got %q", got)
	}
	for _, q := range []string{
		"delay at final destination",
		"how late are my in-dc arrivals",
		"what is the fd delay",
	} {
		if got := DelayColumnFor(q); got != FinalDestinationDelayColumn {
			t.Fatalf("%q: expected final destination delay column, got %q", q, got)
		}
	}
}

func TestDraft_CountPerPort(t *testing.T) {
	q := "how many shipments are delayed by port"
	plan := Draft(q, textproc.Extract(q, testNow), testNow)

	if plan.Agg != AggCount {
		t.Fatalf("expected count, got %v", plan.Agg)
	}
	if len(plan.GroupBy) != 1 || plan.GroupBy[0] != ColDischargePort {
		t.Fatalf("expected group by discharge port, got %v", plan.GroupBy)
	}
}

func TestDraft_AverageDelayUsesDelayColumn(t *testing.T) {
	q := "what is the average delay for my shipments"
	plan := Draft(q, textproc.Extract(q, testNow), testNow)

	if plan.Agg != AggAvg || plan.AggColumn != DefaultDelayColumn {
		t.Fatalf("expected avg over %s, got %v over %q", DefaultDelayColumn, plan.Agg, plan.AggColumn)
	}
}

func TestDraft_ValidatesAgainstCatalog(t *testing.T) {
	cat := DefaultCatalog()
	for _, q := range []string{
		"how many shipments are delayed by port",
		"average delay at final destination per carrier",
		"total weight of hot containers",
		"count of delivered shipments from shanghai",
	} {
		plan := Draft(q, textproc.Extract(q, testNow), testNow)
		if err := cat.Validate(plan); err != nil {
			t.Fatalf("%q: drafted plan must validate, got %v", q, err)
		}
	}
}

func TestRedraft_SimplificationIsBounded(t *testing.T) {
	plan := Draft("average delay per carrier", textproc.Entities{}, testNow)
	execErr := &ExecutionError{Stage: "aggregate", Err: errors.New("boom")}

	steps := 0
	for {
		simplified, ok := Redraft(plan, execErr)
		if !ok {
			break
		}
		plan = simplified
		steps++
		if steps > 5 {
			t.Fatal("redraft ladder must terminate")
		}
	}
	if steps == 0 {
		t.Fatal("expected at least one simplification step")
	}
}

func TestMergeDatasets_AlignsByColumnName(t *testing.T) {
	a := NewDataset([]string{"x", "y"}, [][]string{{"1", "2"}})
	b := NewDataset([]string{"y", "z"}, [][]string{{"3", "4"}})

	merged := MergeDatasets(a, b)
	if merged.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", merged.Len())
	}
	cell, ok := merged.cell(1, "y")
	if !ok || cell != "3" {
		t.Fatalf("expected aligned cell y=3, got %q", cell)
	}
	cell, _ = merged.cell(0, "z")
	if cell != "" {
		t.Fatalf("expected missing cell empty, got %q", cell)
	}
}
