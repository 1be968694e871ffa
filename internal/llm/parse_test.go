package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtraction_EntitiesAndRelations(t *testing.T) {
	t.Parallel()

	output := `("entity"<|>"Alpha Corp"<|>"organization"<|>"Alpha Corp builds rockets.")##
("entity"<|>Beta<|>PERSON<|>Beta founded Alpha Corp.)##
("relationship"<|>"Alpha Corp"<|>Beta<|>Beta founded the company<|>founder, leadership<|>8)##
<|COMPLETE|>`

	result := parseExtraction(output, []string{"organization", "person"}, 0, 0)

	require.Len(t, result.Entities, 2)
	assert.Equal(t, "ALPHA CORP", result.Entities[0].Name)
	assert.Equal(t, "ORGANIZATION", result.Entities[0].Type)
	assert.Equal(t, "Alpha Corp builds rockets.", result.Entities[0].Description)
	assert.Equal(t, "BETA", result.Entities[1].Name)
	assert.Equal(t, "PERSON", result.Entities[1].Type)

	require.Len(t, result.Relations, 1)
	rel := result.Relations[0]
	assert.Equal(t, "ALPHA CORP", rel.SourceName)
	assert.Equal(t, "BETA", rel.TargetName)
	assert.Equal(t, "founder, leadership", rel.Keywords)
	assert.InDelta(t, 8.0, rel.Weight, 0.001)
}

func TestParseExtraction_UnknownTypeFallback(t *testing.T) {
	t.Parallel()

	output := `("entity"<|>Gamma<|>SPACESHIP<|>A vessel.)`

	result := parseExtraction(output, []string{"organization", "person"}, 0, 0)

	require.Len(t, result.Entities, 1)
	assert.Equal(t, UnknownEntityType, result.Entities[0].Type)
}

func TestParseExtraction_SkipsMalformedRecords(t *testing.T) {
	t.Parallel()

	output := `("entity"<|>OnlyName)##
garbage##
("relationship"<|>A<|>B<|>too few fields)##
("entity"<|>Delta<|>PERSON<|>Valid.)`

	result := parseExtraction(output, []string{"person"}, 0, 0)

	require.Len(t, result.Entities, 1)
	assert.Equal(t, "DELTA", result.Entities[0].Name)
	assert.Empty(t, result.Relations)
}

func TestParseExtraction_Limits(t *testing.T) {
	t.Parallel()

	output := `("entity"<|>A<|>PERSON<|>a)##
("entity"<|>B<|>PERSON<|>b)##
("entity"<|>C<|>PERSON<|>c)##
("relationship"<|>A<|>B<|>d1<|>k1<|>1)##
("relationship"<|>B<|>C<|>d2<|>k2<|>2)`

	result := parseExtraction(output, []string{"person"}, 2, 1)

	assert.Len(t, result.Entities, 2)
	assert.Len(t, result.Relations, 1)
}

func TestParseExtraction_InvalidWeightDefaults(t *testing.T) {
	t.Parallel()

	output := `("relationship"<|>A<|>B<|>desc<|>kw<|>strong)`

	result := parseExtraction(output, nil, 0, 0)

	require.Len(t, result.Relations, 1)
	assert.InDelta(t, defaultRelationWeight, result.Relations[0].Weight, 0.001)
}

func TestNormalizeEntityName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{`  "Alpha Corp"  `, "ALPHA CORP"},
		{"'beta'", "BETA"},
		{"gamma", "GAMMA"},
		{"  ", ""},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeEntityName(tc.in))
	}
}
