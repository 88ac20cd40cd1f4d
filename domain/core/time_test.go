package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-15")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.String() != "2026-03-15" {
		t.Errorf("got %v, want 2026-03-15", d)
	}

	// Full timestamps truncate to their date.
	d, err = ParseDate("2026-03-15T18:30:00Z")
	if err != nil {
		t.Fatalf("ParseDate timestamp: %v", err)
	}
	if !d.Equal(NewDate(2026, time.March, 15)) {
		t.Errorf("timestamp truncated to %v, want 2026-03-15", d)
	}

	if _, err := ParseDate("15/03/2026"); err == nil {
		t.Error("accepted a non-ISO date")
	}
}

func TestDate_Arithmetic(t *testing.T) {
	d := NewDate(2026, time.January, 30)

	if got := d.AddDays(3); got.String() != "2026-02-02" {
		t.Errorf("AddDays(3) = %v, want 2026-02-02", got)
	}
	if got := d.DaysSince(NewDate(2026, time.January, 20)); got != 10 {
		t.Errorf("DaysSince = %d, want 10", got)
	}
	if !d.Within(NewDate(2026, time.January, 30), NewDate(2026, time.February, 1)) {
		t.Error("Within excluded its own start bound")
	}
	if d.Within(NewDate(2026, time.January, 31), NewDate(2026, time.February, 1)) {
		t.Error("Within included a date before the range")
	}
}

func TestDate_JSONRoundTrip(t *testing.T) {
	d := NewDate(2026, time.July, 4)

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"2026-07-04"` {
		t.Errorf("marshal = %s", data)
	}

	var back Date
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(d) {
		t.Errorf("round trip changed date: %v", back)
	}
}

func TestDate_ZeroMarshalsAsNull(t *testing.T) {
	var d Date
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "null" {
		t.Errorf("zero date marshalled as %s, want null", data)
	}

	var back Date
	if err := json.Unmarshal([]byte("null"), &back); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !back.IsZero() {
		t.Error("null did not unmarshal to the zero date")
	}
}
