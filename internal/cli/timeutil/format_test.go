package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatUptime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"0s", "0s"},
		{"5s", "5s"},
		{"30m15s", "30m 15s"},
		{"2h3m4s", "2h 3m 4s"},
		{"51h4m5s", "2d 3h 4m 5s"},
		{"72h30m15s", "3d 0h 30m 15s"},
		{"24h0m0s", "1d 0h 0m 0s"},
		{"1.5s", "1s"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, FormatUptime(tt.in))
		})
	}
}

func TestFormatUptimePassthrough(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", FormatUptime(""))
	assert.Equal(t, "just now", FormatUptime("just now"))
}

func TestFormatTime(t *testing.T) {
	t.Parallel()

	ref := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	got := FormatTime(ref.Format(time.RFC3339))
	assert.Equal(t, ref.Local().Format(LocalTimeFormat), got)
}

func TestFormatTimePassthrough(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "yesterday", FormatTime("yesterday"))
	assert.Equal(t, "", FormatTime(""))
}
