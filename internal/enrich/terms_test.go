package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerms(t *testing.T) {
	assert.Equal(t,
		[]string{"fed", "cut", "rates", "september"},
		Terms("Will the Fed cut rates in September?"),
	)
}

func TestTermsDeduplicates(t *testing.T) {
	assert.Equal(t, []string{"shutdown", "ends", "october"}, Terms("Shutdown ends before the shutdown October?"))
}

func TestTermsEmptyTitle(t *testing.T) {
	assert.Empty(t, Terms("Is it on?"))
}
