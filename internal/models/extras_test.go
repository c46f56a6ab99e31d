package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtras(t *testing.T) {
	t.Run("decodes every value kind", func(t *testing.T) {
		raw := `{"flag":true,"count":7,"ratio":1.5,"name":"disk","tags":["a",2],"nested":{"empty":null}}`

		var extras Extras
		require.NoError(t, json.Unmarshal([]byte(raw), &extras))

		assert.Equal(t, BoolValue(true), extras["flag"])
		assert.Equal(t, IntValue(7), extras["count"])
		assert.Equal(t, FloatValue(1.5), extras["ratio"])
		assert.Equal(t, StringValue("disk"), extras["name"])

		tags := extras["tags"]
		require.Equal(t, ExtraList, tags.Kind)
		require.Len(t, tags.List, 2)
		assert.Equal(t, StringValue("a"), tags.List[0])
		assert.Equal(t, IntValue(2), tags.List[1])

		nested := extras["nested"]
		require.Equal(t, ExtraMap, nested.Kind)
		assert.Equal(t, ExtraNull, nested.Map["empty"].Kind)
	})

	t.Run("integers survive a round trip without widening", func(t *testing.T) {
		raw := `{"big":9007199254740993,"small":-3}`

		var extras Extras
		require.NoError(t, json.Unmarshal([]byte(raw), &extras))
		assert.Equal(t, int64(9007199254740993), extras["big"].Int)

		out, err := json.Marshal(extras)
		require.NoError(t, err)
		assert.JSONEq(t, raw, string(out))
	})

	t.Run("nested structures round trip", func(t *testing.T) {
		raw := `{"client::display":{"contentType":"text/markdown"},"actions":[{"label":"open","url":"https://example.com"}]}`

		var extras Extras
		require.NoError(t, json.Unmarshal([]byte(raw), &extras))

		out, err := json.Marshal(extras)
		require.NoError(t, err)
		assert.JSONEq(t, raw, string(out))
	})

	t.Run("rejects invalid payloads", func(t *testing.T) {
		var extras Extras
		assert.Error(t, json.Unmarshal([]byte(`{"broken":`), &extras))
	})
}
