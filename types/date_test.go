package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDateOrdering(t *testing.T) {
	tests := []struct {
		name string
		a, b Date
		cmp  int
	}{
		{"Equal", NewDate(2026, time.March, 1), NewDate(2026, time.March, 1), 0},
		{"DayBefore", NewDate(2026, time.March, 1), NewDate(2026, time.March, 2), -1},
		{"MonthAfter", NewDate(2026, time.April, 1), NewDate(2026, time.March, 31), 1},
		{"YearBefore", NewDate(2025, time.December, 31), NewDate(2026, time.January, 1), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Compare(tt.b); got != tt.cmp {
				t.Errorf("Compare = %d, want %d", got, tt.cmp)
			}
			if tt.cmp < 0 && !tt.a.Before(tt.b) {
				t.Error("Before should be true")
			}
			if tt.cmp > 0 && !tt.a.After(tt.b) {
				t.Error("After should be true")
			}
		})
	}
}

func TestDaysInMonth(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		want  int
	}{
		{2026, time.January, 31},
		{2026, time.February, 28},
		{2028, time.February, 29}, // leap year
		{2026, time.April, 30},
		{2026, time.December, 31},
	}

	for _, tt := range tests {
		if got := DaysInMonth(tt.year, tt.month); got != tt.want {
			t.Errorf("DaysInMonth(%d, %s) = %d, want %d", tt.year, tt.month, got, tt.want)
		}
	}
}

func TestDateDaysSince(t *testing.T) {
	asOf := NewDate(2026, time.May, 1)

	tests := []struct {
		due  Date
		want int
	}{
		{NewDate(2026, time.May, 1), 0},
		{NewDate(2026, time.April, 21), 10},
		{NewDate(2026, time.March, 22), 40},
		{NewDate(2026, time.January, 1), 120},
		{NewDate(2026, time.May, 10), -9},
	}

	for _, tt := range tests {
		if got := asOf.DaysSince(tt.due); got != tt.want {
			t.Errorf("DaysSince(%s) = %d, want %d", tt.due, got, tt.want)
		}
	}
}

func TestDateMonthBounds(t *testing.T) {
	d := NewDate(2026, time.March, 15)

	if got := d.MonthStart(); got != NewDate(2026, time.March, 1) {
		t.Errorf("MonthStart = %s, want 2026-03-01", got)
	}
	if got := d.NextMonthStart(); got != NewDate(2026, time.April, 1) {
		t.Errorf("NextMonthStart = %s, want 2026-04-01", got)
	}

	dec := NewDate(2026, time.December, 25)
	if got := dec.NextMonthStart(); got != NewDate(2027, time.January, 1) {
		t.Errorf("NextMonthStart across year = %s, want 2027-01-01", got)
	}
}

func TestDateParseAndString(t *testing.T) {
	d, err := ParseDate("2026-03-01")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d != NewDate(2026, time.March, 1) {
		t.Errorf("parsed = %v, want 2026-03-01", d)
	}
	if d.String() != "2026-03-01" {
		t.Errorf("String = %q, want 2026-03-01", d.String())
	}

	if _, err := ParseDate("03/01/2026"); err == nil {
		t.Error("expected error for non-ISO format")
	}
}

func TestDateJSONRoundTrip(t *testing.T) {
	type doc struct {
		Due Date `json:"due"`
	}

	in := doc{Due: NewDate(2026, time.February, 28)}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"due":"2026-02-28"}` {
		t.Errorf("marshal = %s", data)
	}

	var out doc
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Due != in.Due {
		t.Errorf("round trip = %v, want %v", out.Due, in.Due)
	}

	var zero doc
	if err := json.Unmarshal([]byte(`{"due":null}`), &zero); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !zero.Due.IsZero() {
		t.Errorf("null should decode to zero date, got %v", zero.Due)
	}
}

func TestDateScan(t *testing.T) {
	var d Date

	if err := d.Scan(time.Date(2026, time.March, 1, 10, 30, 0, 0, time.UTC)); err != nil {
		t.Fatalf("scan time: %v", err)
	}
	if d != NewDate(2026, time.March, 1) {
		t.Errorf("scan time = %v, want 2026-03-01", d)
	}

	if err := d.Scan("2026-04-15"); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if d != NewDate(2026, time.April, 15) {
		t.Errorf("scan string = %v, want 2026-04-15", d)
	}

	if err := d.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if !d.IsZero() {
		t.Errorf("scan nil = %v, want zero", d)
	}
}
