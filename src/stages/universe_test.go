package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSingleCharSelector(t *testing.T) {
	universe := SingleCharSelector([]string{"A", "AAPL", "B", "GOOG", "C"})
	assert.Equal(t, []string{"A", "B", "C"}, universe)
}

func TestAllSymbolsSelectorCopies(t *testing.T) {
	input := []string{"A", "AAPL", "B"}
	universe := AllSymbolsSelector(input)
	assert.Equal(t, input, universe)

	universe[0] = "Z"
	assert.Equal(t, "A", input[0])
}
