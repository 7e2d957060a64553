package database

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{"student", CategoryStudent, false},
		{"PRIMARY", CategoryStudent, false},
		{" staff ", CategoryStaff, false},
		{"secondary", CategoryStaff, false},
		{"visitor", "", true},
		{"", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseCategory(tc.in)
			if tc.wantErr != (err != nil) {
				t.Fatalf("ParseCategory(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseCategory(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestIdentityFilter_Matches(t *testing.T) {
	asha := &Identity{Category: CategoryStudent, Group: "5A"}
	bilal := &Identity{Category: CategoryStaff}

	tests := []struct {
		name   string
		filter IdentityFilter
		id     *Identity
		want   bool
	}{
		{"empty filter", IdentityFilter{}, asha, true},
		{"category match", IdentityFilter{Category: CategoryStudent}, asha, true},
		{"category mismatch", IdentityFilter{Category: CategoryStudent}, bilal, false},
		{"group match", IdentityFilter{Category: CategoryStudent, Group: "5A"}, asha, true},
		{"group mismatch", IdentityFilter{Group: "6B"}, asha, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Matches(tc.id); got != tc.want {
				t.Errorf("Matches() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDate(t *testing.T) {
	d, err := ParseDate("2024-02-28")
	if err != nil {
		t.Fatalf("ParseDate() error: %v", err)
	}
	if got := d.AddDays(1).String(); got != "2024-02-29" {
		t.Errorf("leap day = %s", got)
	}
	if got := d.AddDays(2).String(); got != "2024-03-01" {
		t.Errorf("after leap day = %s", got)
	}
	if !d.Before(d.AddDays(1)) || !d.AddDays(1).After(d) || d.Compare(d) != 0 {
		t.Error("ordering is inconsistent")
	}
	if _, err := ParseDate("2024-13-01"); err == nil {
		t.Error("expected error for month 13")
	}
	if !(Date{}).IsZero() || d.IsZero() {
		t.Error("IsZero is wrong")
	}
	if got := DaysInMonth(2023, time.February); got != 28 {
		t.Errorf("DaysInMonth(2023, Feb) = %d", got)
	}
	if got := DaysInMonth(2024, time.February); got != 29 {
		t.Errorf("DaysInMonth(2024, Feb) = %d", got)
	}
}

func TestDateOf_Timezone(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 20:00 UTC is already the next day in Kolkata (+05:30).
	instant := time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC)
	if got := DateOf(instant, time.UTC).String(); got != "2025-03-14" {
		t.Errorf("UTC date = %s", got)
	}
	if got := DateOf(instant, kolkata).String(); got != "2025-03-15" {
		t.Errorf("Kolkata date = %s", got)
	}
}

func TestDate_Scan(t *testing.T) {
	tests := []struct {
		name string
		src  any
		want string
	}{
		{"time", time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), "2025-03-14"},
		{"string", "2025-03-14", "2025-03-14"},
		{"timestamp string", "2025-03-14T00:00:00Z", "2025-03-14"},
		{"bytes", []byte("2025-03-14"), "2025-03-14"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var d Date
			if err := d.Scan(tc.src); err != nil {
				t.Fatalf("Scan() error: %v", err)
			}
			if d.String() != tc.want {
				t.Errorf("Scan() = %s, want %s", d, tc.want)
			}
		})
	}

	var d Date
	if err := d.Scan(42); err == nil {
		t.Error("expected error scanning an int")
	}
	v, err := Date{Year: 2025, Month: time.March, Day: 4}.Value()
	if err != nil || v != "2025-03-04" {
		t.Errorf("Value() = %v, %v", v, err)
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"scaled", []float32{1, 0}, []float32{5, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, MaxCosineDistance},
		{"empty", nil, nil, MaxCosineDistance},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CosineDistance(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-6 {
				t.Errorf("CosineDistance() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEmbedding_Validate(t *testing.T) {
	if err := (Embedding{1, 2, 3}).Validate(3); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (Embedding{1, 2}).Validate(3); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if err := (Embedding{}).Validate(0); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("empty embedding must be rejected, got %v", err)
	}
	if err := (Embedding{1}).Validate(0); err != nil {
		t.Errorf("dim 0 accepts any non-empty embedding, got %v", err)
	}
}

func TestEmbeddingJSON(t *testing.T) {
	text, err := EncodeEmbeddingJSON(Embedding{0.5, -1, 2})
	if err != nil {
		t.Fatalf("EncodeEmbeddingJSON() error: %v", err)
	}
	if text != "[0.5,-1,2]" {
		t.Errorf("encoded = %s", text)
	}

	got, err := DecodeEmbeddingJSON(text, 3)
	if err != nil {
		t.Fatalf("DecodeEmbeddingJSON() error: %v", err)
	}
	if len(got) != 3 || got[1] != -1 {
		t.Errorf("decoded = %v", got)
	}

	if _, err := DecodeEmbeddingJSON(text, 4); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := DecodeEmbeddingJSON("not json", 3); err == nil {
		t.Error("expected decode error")
	}
}
