package bib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SingleEntry(t *testing.T) {
	content := `@article{smith2024,
  title = {Adult speaking practice},
  author = {Smith, Jane},
  year = 2024,
  journal = {Applied Linguistics}
}`
	records := Parse(content)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "article", rec.Type)
	assert.Equal(t, "smith2024", rec.Key)
	assert.Equal(t, "Adult speaking practice", rec.Fields["title"])
	assert.Equal(t, "Smith, Jane", rec.Fields["author"])
	assert.Equal(t, "2024", rec.Fields["year"])
	assert.Equal(t, "Applied Linguistics", rec.Fields["journal"])
}

func TestParse_MultipleEntries(t *testing.T) {
	content := `@article{a1,
  title = {First}
}

Some stray interstitial text the exporter left behind.

@inproceedings{b2,
  title = {Second},
  booktitle = {CALL 2025}
}`
	records := Parse(content)
	require.Len(t, records, 2)
	assert.Equal(t, "a1", records[0].Key)
	assert.Equal(t, "b2", records[1].Key)
	assert.Equal(t, "inproceedings", records[1].Type)
}

func TestParse_NestedBraces(t *testing.T) {
	content := `@article{a1,
  title = {Learning {English} with {AI} tutors}
}`
	records := Parse(content)
	require.Len(t, records, 1)
	assert.Equal(t, "Learning {English} with {AI} tutors", records[0].Fields["title"])
}

func TestParse_QuotedValues(t *testing.T) {
	content := `@article{a1,
  title = "A \"quoted\" phrase inside",
  year = "2023"
}`
	records := Parse(content)
	require.Len(t, records, 1)
	assert.Equal(t, `A \"quoted\" phrase inside`, records[0].Fields["title"])
	assert.Equal(t, "2023", records[0].Fields["year"])
}

func TestParse_FieldNamesLowercased(t *testing.T) {
	content := `@Article{a1,
  Title = {Mixed case},
  YEAR = 2020
}`
	records := Parse(content)
	require.Len(t, records, 1)
	assert.Equal(t, "article", records[0].Type)
	assert.Equal(t, "Mixed case", records[0].Fields["title"])
	assert.Equal(t, "2020", records[0].Fields["year"])
}

func TestParse_MalformedEntrySkipped(t *testing.T) {
	content := `@article{broken,
  title = {never closed

@article{good,
  title = {Survives}
}`
	records := Parse(content)
	// The broken entry consumes text until the next balanced close; only
	// well-formed entries come back.
	for _, rec := range records {
		assert.NotEqual(t, "broken", rec.Key)
	}
}

func TestParse_EmptyAndNoEntries(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("plain text without any entries"))
}

func TestParse_KeywordsFlowThrough(t *testing.T) {
	content := `@article{a1,
  title = {Fluency},
  keywords = {Speaking, Fluency, Adult Learners}
}`
	records := Parse(content)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"speaking", "fluency", "adult learners"}, records[0].Keywords())
}

func TestParse_RawPreserved(t *testing.T) {
	content := `@article{a1,
  title = {Short}
}`
	records := Parse(content)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Raw, "@article{a1")
	assert.Contains(t, records[0].Raw, "title = {Short}")
}
