package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPOStatus_Next(t *testing.T) {
	tests := []struct {
		name   string
		from   POStatus
		event  POEvent
		want   POStatus
		wantOK bool
	}{
		{"submit draft", PODraft, EventSubmit, POPending, true},
		{"submit pending", POPending, EventSubmit, POPending, false},
		{"validate draft", PODraft, EventValidate, POValidated, true},
		{"validate pending", POPending, EventValidate, POValidated, true},
		{"validate committed", POCommitted, EventValidate, POCommitted, false},
		{"commit validated", POValidated, EventCommit, POCommitted, true},
		{"commit draft", PODraft, EventCommit, PODraft, false},
		{"settle committed", POCommitted, EventSettle, POSettled, true},
		{"settle validated", POValidated, EventSettle, POValidated, false},
		{"cancel pending", POPending, EventCancel, POCancelled, true},
		{"cancel committed", POCommitted, EventCancel, POCommitted, false},
		{"reverse committed", POCommitted, EventReverse, POValidated, true},
		{"withdraw committed", POCommitted, EventWithdraw, POCancelled, true},
		{"unknown event", PODraft, POEvent("explode"), PODraft, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.from.Next(tt.event)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Next(%s) = %s,%v want %s,%v", tt.event, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestBudgetStatus_CanMoveTo(t *testing.T) {
	if !BudgetInPreparation.CanMoveTo(BudgetVoted) {
		t.Errorf("expected IN_PREPARATION -> VOTED to be allowed")
	}
	if BudgetVoted.CanMoveTo(BudgetSubmitted) {
		t.Errorf("expected VOTED -> SUBMITTED to be refused")
	}
	if BudgetClosed.CanMoveTo(BudgetClosed) {
		t.Errorf("expected CLOSED -> CLOSED to be refused")
	}
	if BudgetVoted.CanMoveTo(BudgetStatus("ARCHIVED")) {
		t.Errorf("expected unknown status to be refused")
	}
}

func TestBudgetLine_RecomputeAvailable(t *testing.T) {
	l := &BudgetLine{VotedAmount: d("10000"), CommittedAmount: d("4000"), AvailableAmount: d("9000")}
	l.RecomputeAvailable()
	if !l.AvailableAmount.Equal(d("6000")) {
		t.Errorf("AvailableAmount = %s, want 6000", l.AvailableAmount)
	}
}

func TestBudgetLine_EffectiveAvailable(t *testing.T) {
	tests := []struct {
		name      string
		voted     string
		committed string
		stored    string
		legacy    bool
		want      string
	}{
		{"authoritative ignores stored", "10000", "4000", "9000", false, "6000"},
		{"legacy keeps larger stored", "10000", "4000", "9000", true, "9000"},
		{"legacy uses formula when larger", "10000", "4000", "1000", true, "6000"},
		{"legacy zero stored resyncs", "10000", "0", "0", true, "10000"},
		{"nothing voted", "0", "0", "0", false, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &BudgetLine{VotedAmount: d(tt.voted), CommittedAmount: d(tt.committed), AvailableAmount: d(tt.stored)}
			if got := l.EffectiveAvailable(tt.legacy); !got.Equal(d(tt.want)) {
				t.Errorf("EffectiveAvailable() = %s, want %s", got, tt.want)
			}
			if !l.AvailableAmount.Equal(d(tt.stored)) {
				t.Errorf("EffectiveAvailable must not write the stored balance")
			}
		})
	}
}

func TestBudgetLine_Threshold(t *testing.T) {
	l := &BudgetLine{VotedAmount: d("1000"), CommittedAmount: d("800"), AlertThreshold: 80}
	if !l.OverThreshold() {
		t.Errorf("expected 800/1000 to reach an 80%% threshold")
	}
	if got := l.ConsumptionRate(); !got.Equal(d("80")) {
		t.Errorf("ConsumptionRate() = %s, want 80", got)
	}
	l.CommittedAmount = d("799.99")
	if l.OverThreshold() {
		t.Errorf("expected 799.99/1000 to stay under threshold")
	}
	empty := &BudgetLine{AlertThreshold: 80}
	if empty.OverThreshold() || !empty.ConsumptionRate().IsZero() {
		t.Errorf("expected unvoted line to never alert")
	}
}

func TestContract_Ceiling(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		max    string
		want   string
	}{
		{"max wins", "1000", "5000", "5000"},
		{"falls back to amount", "1000", "0", "1000"},
		{"uncapped", "0", "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Contract{AmountHT: d(tt.amount), MaxAmountHT: d(tt.max)}
			if got := c.Ceiling(); !got.Equal(d(tt.want)) {
				t.Errorf("Ceiling() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestContract_Renewal(t *testing.T) {
	c := &Contract{RenewalsMax: 2, RenewalsDone: 1}
	if !c.Renewable() || c.RenewalLimitReached() {
		t.Errorf("expected one more renewal to be allowed")
	}
	c.RenewalsDone = 2
	if !c.RenewalLimitReached() {
		t.Errorf("expected renewal limit to be reached")
	}
	tacit := &Contract{TacitRenewal: true, RenewalsDone: 12}
	if !tacit.Renewable() || tacit.RenewalLimitReached() {
		t.Errorf("expected unlimited tacit renewal")
	}
	if (&Contract{}).Renewable() {
		t.Errorf("expected plain contract to be non renewable")
	}
}

func TestAddYear(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)},
		{time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := AddYear(tt.in); !got.Equal(tt.want) {
			t.Errorf("AddYear(%s) = %s, want %s", tt.in.Format("2006-01-02"), got.Format("2006-01-02"), tt.want.Format("2006-01-02"))
		}
	}
}

func TestContract_DaysUntilEnd(t *testing.T) {
	now := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	c := &Contract{EndDate: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)}
	if got := c.DaysUntilEnd(now); got != 30 {
		t.Errorf("DaysUntilEnd() = %d, want 30", got)
	}
	c.EndDate = time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)
	if got := c.DaysUntilEnd(now); got != -2 {
		t.Errorf("DaysUntilEnd() = %d, want -2", got)
	}
}
