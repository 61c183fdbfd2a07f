package pipeline

import "github.com/freightwise/shipmentqa/pkg/intent"

// HandlerKind names the closed set of answer paths. Routing only ever picks
// from this enum; there is no dynamic dispatch on model output.
type HandlerKind int

const (
	HandlerUnsupported HandlerKind = iota
	HandlerStatus
	HandlerETAWindow
	HandlerDelayReason
	HandlerRoute
	HandlerAnalytics
)

func (k HandlerKind) String() string {
	switch k {
	case HandlerStatus:
		return "status"
	case HandlerETAWindow:
		return "eta_window"
	case HandlerDelayReason:
		return "delay_reason"
	case HandlerRoute:
		return "route"
	case HandlerAnalytics:
		return "analytics"
	default:
		return "unsupported"
	}
}

// SelectHandler maps a classification onto a handler. Analytics questions all
// share one handler; retrieval questions split by sub-intent.
func SelectHandler(c intent.Classification) HandlerKind {
	switch c.Intent {
	case intent.IntentAnalytics:
		return HandlerAnalytics
	case intent.IntentRetrieval:
		switch c.Sub {
		case intent.SubETAWindow:
			return HandlerETAWindow
		case intent.SubDelayReason:
			return HandlerDelayReason
		case intent.SubRoute:
			return HandlerRoute
		default:
			return HandlerStatus
		}
	default:
		return HandlerUnsupported
	}
}
