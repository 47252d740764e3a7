package domain

// TransitionOutcome tells a caller what applying an event actually did, so a
// benign duplicate can never be mistaken for a fatal error.
type TransitionOutcome int

const (
	// OutcomeApplied: the payment moved to a new status.
	OutcomeApplied TransitionOutcome = iota
	// OutcomeDuplicate: the event had already taken effect (at-least-once
	// delivery); the status is unchanged and no side effects may run.
	OutcomeDuplicate
	// OutcomeIgnored: the event is not valid for the current status (for
	// example refunded on a pending payment, or failed after completed);
	// the status is unchanged.
	OutcomeIgnored
)

func (o TransitionOutcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "ignored"
	}
}

// Transition computes the next payment status for an incoming event. It is
// pure: persistence (the atomic compare-and-set) is the repository's job.
//
// States: pending → processing → {completed | failed}; completed → refunded.
// No transition leaves completed except to refunded, and none leaves failed
// or refunded.
func Transition(current PaymentStatus, event EventType) (PaymentStatus, TransitionOutcome) {
	switch event {
	case EventPaymentSucceeded:
		switch current {
		case PaymentStatusPending, PaymentStatusProcessing:
			return PaymentStatusCompleted, OutcomeApplied
		case PaymentStatusCompleted:
			return current, OutcomeDuplicate
		}
	case EventPaymentFailed:
		switch current {
		case PaymentStatusPending, PaymentStatusProcessing:
			return PaymentStatusFailed, OutcomeApplied
		case PaymentStatusFailed:
			return current, OutcomeDuplicate
		}
	case EventRefunded:
		switch current {
		case PaymentStatusCompleted:
			return PaymentStatusRefunded, OutcomeApplied
		case PaymentStatusRefunded:
			return current, OutcomeDuplicate
		}
	}
	return current, OutcomeIgnored
}
