package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	html := `<html><body><h1>Kaas</h1><div><span>4</span><span>.</span><span>29</span></div><button>Voeg toe</button></body></html>`

	page, err := Parse("https://www.ah.nl/producten/product/wi1/kaas", html)
	require.NoError(t, err)
	assert.Equal(t, []string{"Kaas", "4", ".", "29", "Voeg toe"}, page.Tokens)
	assert.Equal(t, "Kaas", page.Doc.Find("h1").Text())
}
