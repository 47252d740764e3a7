package domain

import "testing"

func TestTransition(t *testing.T) {
	tests := []struct {
		name        string
		current     PaymentStatus
		event       EventType
		wantStatus  PaymentStatus
		wantOutcome TransitionOutcome
	}{
		{"succeeded from pending", PaymentStatusPending, EventPaymentSucceeded, PaymentStatusCompleted, OutcomeApplied},
		{"succeeded from processing", PaymentStatusProcessing, EventPaymentSucceeded, PaymentStatusCompleted, OutcomeApplied},
		{"succeeded replay on completed", PaymentStatusCompleted, EventPaymentSucceeded, PaymentStatusCompleted, OutcomeDuplicate},
		{"succeeded after failed is ignored", PaymentStatusFailed, EventPaymentSucceeded, PaymentStatusFailed, OutcomeIgnored},
		{"succeeded after refunded is ignored", PaymentStatusRefunded, EventPaymentSucceeded, PaymentStatusRefunded, OutcomeIgnored},

		{"failed from pending", PaymentStatusPending, EventPaymentFailed, PaymentStatusFailed, OutcomeApplied},
		{"failed from processing", PaymentStatusProcessing, EventPaymentFailed, PaymentStatusFailed, OutcomeApplied},
		{"failed replay on failed", PaymentStatusFailed, EventPaymentFailed, PaymentStatusFailed, OutcomeDuplicate},
		{"failed after completed is ignored", PaymentStatusCompleted, EventPaymentFailed, PaymentStatusCompleted, OutcomeIgnored},
		{"failed after refunded is ignored", PaymentStatusRefunded, EventPaymentFailed, PaymentStatusRefunded, OutcomeIgnored},

		{"refunded from completed", PaymentStatusCompleted, EventRefunded, PaymentStatusRefunded, OutcomeApplied},
		{"refunded replay on refunded", PaymentStatusRefunded, EventRefunded, PaymentStatusRefunded, OutcomeDuplicate},
		{"refunded on pending is ignored", PaymentStatusPending, EventRefunded, PaymentStatusPending, OutcomeIgnored},
		{"refunded on processing is ignored", PaymentStatusProcessing, EventRefunded, PaymentStatusProcessing, OutcomeIgnored},
		{"refunded on failed is ignored", PaymentStatusFailed, EventRefunded, PaymentStatusFailed, OutcomeIgnored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotStatus, gotOutcome := Transition(tt.current, tt.event)
			if gotStatus != tt.wantStatus {
				t.Errorf("Transition(%s, %s) status = %s, want %s", tt.current, tt.event, gotStatus, tt.wantStatus)
			}
			if gotOutcome != tt.wantOutcome {
				t.Errorf("Transition(%s, %s) outcome = %s, want %s", tt.current, tt.event, gotOutcome, tt.wantOutcome)
			}
		})
	}
}

func TestEventForStatus(t *testing.T) {
	tests := []struct {
		status    GatewayStatus
		wantEvent EventType
		wantOK    bool
	}{
		{GatewayStatusCompleted, EventPaymentSucceeded, true},
		{GatewayStatusFailed, EventPaymentFailed, true},
		{GatewayStatusPending, "", false},
		{GatewayStatusProcessing, "", false},
		{GatewayStatusUnknown, "", false},
	}
	for _, tt := range tests {
		event, ok := EventForStatus(tt.status)
		if event != tt.wantEvent || ok != tt.wantOK {
			t.Errorf("EventForStatus(%s) = (%s, %v), want (%s, %v)", tt.status, event, ok, tt.wantEvent, tt.wantOK)
		}
	}
}

func TestParseMethod(t *testing.T) {
	for _, valid := range []string{"card-processor", "wallet-processor", "hash-processor"} {
		if _, err := ParseMethod(valid); err != nil {
			t.Errorf("ParseMethod(%q) returned error: %v", valid, err)
		}
	}
	if _, err := ParseMethod("carrier-pigeon"); err == nil {
		t.Error("ParseMethod accepted an unknown method")
	}
}

func TestPaymentTerminal(t *testing.T) {
	terminal := map[PaymentStatus]bool{
		PaymentStatusPending:    false,
		PaymentStatusProcessing: false,
		PaymentStatusCompleted:  false,
		PaymentStatusFailed:     true,
		PaymentStatusRefunded:   true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}
