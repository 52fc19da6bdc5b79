package id_test

import (
	"strings"
	"testing"
	"time"

	"github.com/xraph/rentledger/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"OrgID", id.NewOrgID, "org_"},
		{"UnitID", id.NewUnitID, "unit_"},
		{"LeaseID", id.NewLeaseID, "lease_"},
		{"ChargeID", id.NewChargeID, "chg_"},
		{"PaymentID", id.NewPaymentID, "pmt_"},
		{"AllocationID", id.NewAllocationID, "alc_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixLease)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixLease {
		t.Errorf("expected prefix %q, got %q", id.PrefixLease, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"OrgID", id.NewOrgID, id.ParseOrgID},
		{"UnitID", id.NewUnitID, id.ParseUnitID},
		{"LeaseID", id.NewLeaseID, id.ParseLeaseID},
		{"ChargeID", id.NewChargeID, id.ParseChargeID},
		{"PaymentID", id.NewPaymentID, id.ParsePaymentID},
		{"AllocationID", id.NewAllocationID, id.ParseAllocationID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseOrgID rejects lease_", id.NewLeaseID().String(), id.ParseOrgID},
		{"ParseLeaseID rejects chg_", id.NewChargeID().String(), id.ParseLeaseID},
		{"ParseChargeID rejects pmt_", id.NewPaymentID().String(), id.ParseChargeID},
		{"ParsePaymentID rejects alc_", id.NewAllocationID().String(), id.ParsePaymentID},
		{"ParseAllocationID rejects org_", id.NewOrgID().String(), id.ParseAllocationID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parseFn(tt.input)
			if err == nil {
				t.Error("expected cross-type parse to fail")
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, input := range []string{"", "notanid", "chg_!!!"} {
		if _, err := id.Parse(input); err == nil {
			t.Errorf("Parse(%q) should fail", input)
		}
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero value should be nil")
	}
	if i.String() != "" {
		t.Errorf("nil ID string = %q, want empty", i.String())
	}
}

func TestTextRoundTrip(t *testing.T) {
	original := id.NewChargeID()

	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded id.ID
	if err := decoded.UnmarshalText(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", decoded.String(), original.String())
	}
}

func TestKSortable(t *testing.T) {
	// TypeIDs generated across distinct timestamps sort in generation order,
	// which is what the allocation engine's final tie-break relies on.
	a := id.NewChargeID()
	time.Sleep(2 * time.Millisecond)
	b := id.NewChargeID()
	if a.String() >= b.String() {
		t.Errorf("expected %q < %q", a.String(), b.String())
	}
}
