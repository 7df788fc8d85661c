package event

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota

	// Inbound settlement callbacks
	EventTypeTradeResolved
	EventTypeExactFill

	// Outbound operation results
	EventTypeOpenStarted
	EventTypeOpenSucceeded
	EventTypeOpenFailed
	EventTypeIncreaseStarted
	EventTypeIncreaseSucceeded
	EventTypeIncreaseFailed
	EventTypeDecreaseStarted
	EventTypeDecreaseSucceeded
	EventTypeDecreaseFailed
	EventTypePositionClosed
)

// Event is the interface all settlement events implement.
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// PositionID returns the position the event belongs to
	PositionID() string
}

func (et EventType) String() string {
	switch et {
	case EventTypeTradeResolved:
		return "TradeResolved"
	case EventTypeExactFill:
		return "ExactFill"
	case EventTypeOpenStarted:
		return "OpenStarted"
	case EventTypeOpenSucceeded:
		return "OpenSucceeded"
	case EventTypeOpenFailed:
		return "OpenFailed"
	case EventTypeIncreaseStarted:
		return "IncreaseStarted"
	case EventTypeIncreaseSucceeded:
		return "IncreaseSucceeded"
	case EventTypeIncreaseFailed:
		return "IncreaseFailed"
	case EventTypeDecreaseStarted:
		return "DecreaseStarted"
	case EventTypeDecreaseSucceeded:
		return "DecreaseSucceeded"
	case EventTypeDecreaseFailed:
		return "DecreaseFailed"
	case EventTypePositionClosed:
		return "PositionClosed"
	default:
		return "Unknown"
	}
}

// Op is the saga operation discriminator carried through the external call
// boundary and matched on return.
type Op int32

const (
	OpUnknown Op = iota
	OpOpen
	OpIncrease
	OpDecrease
)

func (o Op) String() string {
	switch o {
	case OpOpen:
		return "open"
	case OpIncrease:
		return "increase"
	case OpDecrease:
		return "decrease"
	default:
		return "unknown"
	}
}

// ParseOp maps the wire form back to an Op.
func ParseOp(s string) Op {
	switch s {
	case "open":
		return OpOpen
	case "increase":
		return OpIncrease
	case "decrease":
		return OpDecrease
	default:
		return OpUnknown
	}
}
