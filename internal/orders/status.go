package orders

import "strings"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var validStatuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusCancelled}

// Effect is the stock side effect attached to a transition.
type Effect string

const (
	EffectNone    Effect = "none"
	EffectReduce  Effect = "reduce"
	EffectRestore Effect = "restore"
)

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range validStatuses {
		if st == v {
			return st, nil
		}
	}
	names := make([]string, len(validStatuses))
	for i, v := range validStatuses {
		names[i] = string(v)
	}
	return "", newError(KindInvalidStatus, "invalid status %q, must be one of: %s", s, strings.Join(names, ", "))
}

// Plan maps a transition to its stock effect. Only pending->processing and
// processing->cancelled move stock; every other transition, including a
// same-status request, just overwrites the status.
func Plan(from, to Status) Effect {
	switch {
	case from == to:
		return EffectNone
	case from == StatusPending && to == StatusProcessing:
		return EffectReduce
	case from == StatusProcessing && to == StatusCancelled:
		return EffectRestore
	default:
		return EffectNone
	}
}
