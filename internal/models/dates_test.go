package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDate(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.Local)
	assert.Equal(t, "2025-03-14 09:26:53", FormatDate(ts))
}

func TestParseDate_RoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.Local)

	got, err := ParseDate(FormatDate(ts))
	require.NoError(t, err)
	assert.True(t, got.Equal(ts))
}

func TestParseDate_Invalid(t *testing.T) {
	_, err := ParseDate("not a date")
	assert.Error(t, err)
}

func TestFormatDate_DropsSubSecond(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 999999999, time.Local)

	got, err := ParseDate(FormatDate(ts))
	require.NoError(t, err)
	assert.True(t, got.Equal(ts.Truncate(time.Second)))
}
