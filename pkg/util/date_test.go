package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	ref := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)

	tests := []struct {
		name string
		in   string
		want time.Time
		ok   bool
	}{
		{name: "rfc3339", in: "2024-10-10T10:10:10Z", want: ref, ok: true},
		{name: "rfc3339 offset", in: "2024-10-10T12:10:10+02:00", want: ref, ok: true},
		{name: "date", in: "2024-10-10", want: time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "unix seconds", in: strconv.FormatInt(ref.Unix(), 10), want: ref, ok: true},
		{name: "unix millis", in: strconv.FormatInt(ref.UnixMilli(), 10), want: ref, ok: true},
		{name: "empty", in: "", ok: false},
		{name: "garbage", in: "yesterday", ok: false},
		{name: "negative", in: "-5", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTime(tt.in)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(tt.want), "got %v", got)
			}
		})
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.True(t, ParseTimeDefault("", def).Equal(def))
	assert.True(t, ParseTimeDefault("nope", def).Equal(def))
}

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, 7, ParseIntDefault("", 7))
	assert.Equal(t, 7, ParseIntDefault("x", 7))
	assert.Equal(t, 42, ParseIntDefault("42", 7))
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitCSV(" a:9092, ,b:9092,"))
	assert.Empty(t, SplitCSV(""))
}
