package paginate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsejet/cerium-engine/models"
)

func field(id string, t models.FieldType) models.FieldDefinition {
	return models.FieldDefinition{ID: id, Type: t}
}

func brk(id string) models.FieldDefinition {
	return field(id, models.FieldPageBreak)
}

func ids(p models.Page) []string {
	out := make([]string, 0, len(p.Fields))
	for _, f := range p.Fields {
		out = append(out, f.ID)
	}
	return out
}

func TestPartitionBreakClosesPage(t *testing.T) {
	pages := Partition([]models.FieldDefinition{
		field("a", models.FieldText),
		brk("b1"),
		field("b", models.FieldText),
		field("c", models.FieldNumber),
		brk("b2"),
		field("d", models.FieldText),
	})

	require.Len(t, pages, 3)
	assert.Equal(t, []string{"a", "b1"}, ids(pages[0]))
	assert.Equal(t, []string{"b", "c", "b2"}, ids(pages[1]))
	assert.Equal(t, []string{"d"}, ids(pages[2]))
	for i, p := range pages {
		assert.Equal(t, i, p.Index)
	}
}

func TestPartitionLeadingBreakStaysOnPage(t *testing.T) {
	pages := Partition([]models.FieldDefinition{
		brk("b0"),
		field("a", models.FieldText),
		brk("b1"),
	})

	require.Len(t, pages, 1)
	assert.Equal(t, []string{"b0", "a", "b1"}, ids(pages[0]))
}

func TestPartitionTrailingBreakAddsNoEmptyPage(t *testing.T) {
	pages := Partition([]models.FieldDefinition{
		field("a", models.FieldText),
		brk("b1"),
	})
	require.Len(t, pages, 1)
}

func TestPartitionEmpty(t *testing.T) {
	assert.Empty(t, Partition(nil))
}

// Concatenating the pages gives back the input, and no page is empty.
func TestPartitionPreservesFields(t *testing.T) {
	inputs := [][]models.FieldDefinition{
		{field("a", models.FieldText)},
		{brk("x"), brk("y"), brk("z")},
		{field("a", models.FieldText), brk("x"), brk("y"), field("b", models.FieldText)},
		{brk("x"), field("a", models.FieldText), field("b", models.FieldDate), brk("y"), field("c", models.FieldFile), brk("z")},
	}
	for _, in := range inputs {
		pages := Partition(in)
		var flat []models.FieldDefinition
		for _, p := range pages {
			assert.NotEmpty(t, p.Fields)
			flat = append(flat, p.Fields...)
		}
		assert.Equal(t, in, flat)
	}
}

func TestPageOf(t *testing.T) {
	pages := Partition([]models.FieldDefinition{
		field("a", models.FieldText),
		brk("b1"),
		field("b", models.FieldText),
	})
	assert.Equal(t, 0, PageOf(pages, "a"))
	assert.Equal(t, 1, PageOf(pages, "b"))
	assert.Equal(t, -1, PageOf(pages, "zzz"))
}
