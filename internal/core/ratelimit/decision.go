package ratelimit

import (
	"fmt"
	"time"
)

// DecisionKind tags a Decision.
type DecisionKind int

const (
	DecisionProceed DecisionKind = iota
	DecisionWait
	DecisionReject
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionProceed:
		return "proceed"
	case DecisionWait:
		return "wait"
	case DecisionReject:
		return "reject"
	default:
		return fmt.Sprintf("decision(%d)", int(k))
	}
}

// Decision is the outcome of a retry evaluation. Delay is set only for
// DecisionWait; Reason for DecisionWait and DecisionReject.
type Decision struct {
	Kind   DecisionKind
	Delay  time.Duration
	Reason string
}

func Proceed() Decision {
	return Decision{Kind: DecisionProceed}
}

func Wait(delay time.Duration, reason string) Decision {
	return Decision{Kind: DecisionWait, Delay: delay, Reason: reason}
}

func Reject(reason string) Decision {
	return Decision{Kind: DecisionReject, Reason: reason}
}

func (d Decision) String() string {
	switch d.Kind {
	case DecisionWait:
		return fmt.Sprintf("wait %s: %s", d.Delay, d.Reason)
	case DecisionReject:
		return "reject: " + d.Reason
	default:
		return d.Kind.String()
	}
}
