package core

import (
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return d
}

func TestNextMonthRun(t *testing.T) {
	tests := []struct {
		name string
		from string
		day  int
		want string
	}{
		{"mid month", "2024-03-15", 15, "2024-04-15"},
		{"january into february", "2024-01-28", 28, "2024-02-28"},
		{"day above cap clamps to 28", "2024-01-31", 31, "2024-02-28"},
		{"december wraps the year", "2024-12-05", 5, "2025-01-05"},
		{"non leap february", "2025-01-28", 28, "2025-02-28"},
		{"day below range clamps to 1", "2024-06-10", 0, "2024-07-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextMonthRun(mustDate(t, tt.from), tt.day)
			want := mustDate(t, tt.want)
			if !got.Equal(want) {
				t.Errorf("nextMonthRun(%s, %d) = %s, want %s",
					tt.from, tt.day, got.Format("2006-01-02"), tt.want)
			}
		})
	}
}
