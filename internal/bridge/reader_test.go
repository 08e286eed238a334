// internal/bridge/reader_test.go
package bridge

import (
	"testing"
	"time"
)

func TestResponseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  time.Time
		local bool
	}{
		{
			name:  "unix seconds",
			parts: []string{"tok", "0102", "1724500000"},
			want:  time.Unix(1724500000, 0),
		},
		{
			name:  "fractional seconds",
			parts: []string{"tok", "0102", "1724500000.5"},
			want:  time.Unix(1724500000, 500000000),
		},
		{
			name:  "overflowing value falls back to local clock",
			parts: []string{"tok", "0102", "9e307"},
			local: true,
		},
		{
			name:  "negative value falls back to local clock",
			parts: []string{"tok", "0102", "-5"},
			local: true,
		},
		{
			name:  "non-numeric trailing field falls back to local clock",
			parts: []string{"tok", "0102", "garbage"},
			local: true,
		},
		{
			name:  "no trailing field falls back to local clock",
			parts: []string{"tok", "0102"},
			local: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := time.Now()
			got := responseTimestamp(tt.parts)
			after := time.Now()

			if tt.local {
				if got.Before(before) || got.After(after) {
					t.Errorf("timestamp = %v, want the local clock between %v and %v", got, before, after)
				}
				return
			}
			if !got.Equal(tt.want) {
				t.Errorf("timestamp = %v, want %v", got, tt.want)
			}
		})
	}
}
