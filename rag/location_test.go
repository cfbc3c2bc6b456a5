package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLocations = []Location{
	{Name: "Downtown Office", Keywords: []string{"downtown", "main office"}, Address: "100 Main St", Hours: "Mon-Fri 8-5", Phone: "555-0100", URL: "https://example.org/downtown"},
	{Name: "Eastside Center", Keywords: []string{"eastside", "east side"}, Address: "42 East Ave", Hours: "Mon-Thu 9-6"},
}

func TestLocationDirectory_AnswerMatched(t *testing.T) {
	t.Parallel()

	d := NewLocationDirectory(testLocations)
	assert.Equal(t, 2, d.Len())

	answer, sources, err := d.Answer("What are the hours for the downtown office?")
	require.NoError(t, err)
	assert.Contains(t, answer, "Downtown Office")
	assert.Contains(t, answer, "Hours: Mon-Fri 8-5")
	assert.NotContains(t, answer, "Eastside")
	assert.Equal(t, []Source{{Document: "Downtown Office", URL: "https://example.org/downtown"}}, sources)
}

func TestLocationDirectory_NoMatchListsAll(t *testing.T) {
	t.Parallel()

	answer, sources, err := NewLocationDirectory(testLocations).Answer("Where can I apply in person?")
	require.NoError(t, err)
	assert.Contains(t, answer, "all of our locations")
	assert.Contains(t, answer, "Downtown Office")
	assert.Contains(t, answer, "42 East Ave")
	assert.Len(t, sources, 1, "only locations with a URL become sources")
}

func TestLocationDirectory_Empty(t *testing.T) {
	t.Parallel()

	answer, sources, err := NewLocationDirectory(nil).Answer("where is the office")
	require.NoError(t, err)
	assert.Equal(t, NoLocationsAnswer, answer)
	assert.Empty(t, sources)
}

func TestLocationDirectory_Lookup(t *testing.T) {
	t.Parallel()

	d := NewLocationDirectory(testLocations)
	assert.Len(t, d.Lookup("EAST SIDE parking"), 1)
	assert.Len(t, d.Lookup("eastside center or the main office"), 2)
	assert.Empty(t, d.Lookup("north"))
}
