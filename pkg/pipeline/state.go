package pipeline

import (
	"github.com/freightwise/shipmentqa/pkg/answer"
	"github.com/freightwise/shipmentqa/pkg/intent"
	"github.com/freightwise/shipmentqa/pkg/scope"
	"github.com/freightwise/shipmentqa/pkg/session"
	"github.com/freightwise/shipmentqa/pkg/textproc"
)

// Request is one question turn entering the pipeline. ConsigneeCodes are the
// caller's declared codes; the pipeline resolves them against the hierarchy
// before anything else runs.
type Request struct {
	TraceID        string
	ConversationID string
	Identity       string
	Question       string
	ConsigneeCodes []string
}

// Response is the assembled turn result.
type Response struct {
	ConversationID string
	TraceID        string
	Intent         string
	SubIntent      string
	Handler        string
	Answer         string
	Notices        []string
	Evidence       []Evidence
	Table          *Table
}

// Evidence and Table alias the answer package's shapes at the pipeline
// boundary so transport handlers depend on one package.
type (
	Evidence = answer.Evidence
	Table    = answer.Table
)

// state carries a turn through the stages. Each stage receives the value,
// returns an amended copy, and never mutates shared structures; hits and
// session slots are snapshots owned by this turn.
type state struct {
	req        Request
	scope      scope.Set
	slots      session.Slots
	hadSession bool
	normalized string
	entities   textproc.Entities
	shifted    bool
	class      intent.Classification
	handler    HandlerKind
	notices    []string
}
