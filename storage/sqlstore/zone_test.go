package sqlstore

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZoneRoundTrip(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	tests := []struct {
		name   string
		loc    *time.Location
		stored string
	}{
		{"utc", time.UTC, "UTC"},
		{"iana", tokyo, "Asia/Tokyo"},
		{"unnamed offset", time.FixedZone("", 5*3600+30*60), "+05:30"},
		{"negative offset", time.FixedZone("", -(9*3600 + 30*60)), "-09:30"},
		{"unloadable name", time.FixedZone("XYZ", 2*3600), "+02:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := time.Date(2024, 6, 1, 8, 0, 0, 0, tt.loc)
			assert.Equal(t, tt.stored, zoneName(at))

			back := at.In(parseZone(zoneName(at)))
			assert.Equal(t, at.Format(time.RFC3339), back.Format(time.RFC3339))
		})
	}

	assert.Equal(t, time.UTC, parseZone("Not/AZone"))
}
