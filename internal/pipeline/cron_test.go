package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextCronTime(t *testing.T) {
	after := time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"0 4 * * *", time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC)},
		{"0 * * * *", time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)},
		{"0 3 1 * *", time.Date(2025, 7, 1, 3, 0, 0, 0, time.UTC)},
		{"* * * * *", time.Date(2025, 6, 1, 12, 31, 0, 0, time.UTC)},
		{"0,30 * * * *", time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, err := nextCronTime(tt.expr, after)
		require.NoError(t, err, tt.expr)
		require.Equal(t, tt.want, got, tt.expr)
	}
}

func TestNextCronTimeInvalid(t *testing.T) {
	_, err := nextCronTime("0 4 * *", time.Now())
	require.Error(t, err)

	_, err = nextCronTime("x 4 * * *", time.Now())
	require.Error(t, err)
}
