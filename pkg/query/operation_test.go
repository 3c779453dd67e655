package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
	}{
		{
			name: "text with includes",
			op:   Text{Query: Sel(".title"), Includes: "Chapter"},
		},
		{
			name: "attr optional",
			op:   Attr{Query: Sel("img"), Name: "data-src", Optional: true},
		},
		{
			name: "exist wrapping text",
			op:   Exist{Inner: Text{Query: Sel(".paid-badge")}},
		},
		{
			name: "object with nested map",
			op: Object{
				Query: Sel(".detail"),
				Fields: map[string]Operation{
					"title": Text{Query: Sel("h1")},
					"chapters": Map{
						Query: Sel("li"),
						Item: map[string]Operation{
							"url": Attr{Query: Sel("a"), Name: "href"},
						},
					},
				},
			},
		},
		{
			name: "or query alternatives",
			op:   Text{Query: &Query{Selector: ".a", Or: []Query{{Selector: ".b"}, {Selector: ".c"}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(tt.op)
			require.NoError(t, err)

			parsed, err := Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, tt.op, parsed)
		})
	}
}

func TestUnmarshalPlainSelectorString(t *testing.T) {
	op, err := Unmarshal([]byte(`{"type":"text","query":".post-title"}`))
	require.NoError(t, err)
	assert.Equal(t, Text{Query: Sel(".post-title")}, op)
}

func TestUnmarshalUnknownType(t *testing.T) {
	_, err := Unmarshal([]byte(`{"type":"regex","pattern":".*"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operation type")
}

func TestMarshalNilOperation(t *testing.T) {
	_, err := Marshal(nil)
	require.Error(t, err)
}
