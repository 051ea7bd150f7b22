package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePricing(t *testing.T) {
	t.Run("equivalent price strings normalize identically", func(t *testing.T) {
		a := Normalize("pricing", "$0.001/request")
		b := Normalize("pricing", "$0.0010 per request")
		c := Normalize("pricing", "$0.001 / request")

		assert.Equal(t, "1000_microcents_per_request", a)
		assert.Equal(t, a, b)
		assert.Equal(t, a, c)
	})

	t.Run("converts dollar amounts to microcents", func(t *testing.T) {
		assert.Equal(t, "19990000_microcents_per_month", Normalize("pricing", "$19.99/month"))
	})
}

func TestNormalizeLimit(t *testing.T) {
	t.Run("expands abbreviated units", func(t *testing.T) {
		assert.Equal(t, "100_per_minute", Normalize("limit", "100/min"))
		assert.Equal(t, "5_per_hour", Normalize("limit", "5 per hr"))
	})

	t.Run("strips thousands separators", func(t *testing.T) {
		assert.Equal(t, "1000_per_second", Normalize("limit", "1,000/sec"))
	})
}

func TestNormalizeOther(t *testing.T) {
	assert.Equal(t, "enterprise", Normalize("plan", "  Enterprise  "))
}
