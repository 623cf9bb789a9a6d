package main

import (
	"testing"
	"time"
)

func TestNextDailyAt(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			"before target today",
			time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
		},
		{
			"after target rolls to tomorrow",
			time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 3, 18, 0, 0, 0, time.UTC),
		},
		{
			"exactly at target rolls to tomorrow",
			time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 3, 18, 0, 0, 0, time.UTC),
		},
		{
			"month rollover",
			time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC),
			time.Date(2026, 4, 1, 18, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextDailyAt(tt.now, 18, 0); !got.Equal(tt.want) {
				t.Fatalf("nextDailyAt = %s, want %s", got, tt.want)
			}
		})
	}
}
