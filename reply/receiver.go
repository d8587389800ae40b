package reply

import "github.com/arin-halvorsen/scoped/wire"

// Reason identifies why a reply reached its terminal state.
type Reason int

const (
	// ReasonFinished means the scope's search completed normally.
	ReasonFinished Reason = iota
	// ReasonCancelled means the client cancelled the query.
	ReasonCancelled
	// ReasonError means the search, or the transport underneath it,
	// failed.
	ReasonError
)

func (r Reason) String() string {
	switch r {
	case ReasonFinished:
		return "Finished"
	case ReasonCancelled:
		return "Cancelled"
	case ReasonError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Result is a categorised result pushed to a reply. CategoryID must name a
// category already registered on the same reply.
type Result struct {
	URI        string
	Title      string
	Icon       string
	DndURI     string
	Attributes map[string]wire.Variant
	CategoryID string
}

// FilterState is the payload of a PushFilters call: the filter definitions
// themselves plus the scope's current filter values.
type FilterState struct {
	Filters     wire.Variant
	FilterState wire.Variant
}

// Receiver is the abstract capability set a reply object demultiplexes
// pushes into. It models the "virtual dispatch over listeners" design
// note: the Reply is the sole producer, a transport adapter (or, in
// tests, a recording fake) is the sole consumer.
type Receiver interface {
	OnCategory(cat Category)
	OnResult(res Result)
	OnAnnotation(v wire.Variant)
	OnFilters(fs FilterState)
	OnPreviewData(v wire.Variant)
	OnWidgets(v wire.Variant)
	// OnFinish delivers the single terminal callback. reason is one of
	// ReasonFinished, ReasonCancelled, ReasonError; message is populated
	// only for ReasonError (and is empty otherwise).
	OnFinish(reason Reason, message string)
}
