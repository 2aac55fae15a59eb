package loadable

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionMap_SortsKeys(t *testing.T) {
	t.Parallel()

	am := NewActionMap(map[string]string{"b": "2", "a": "1", "c": "3"})
	assert.Equal(t, []string{"a", "b", "c"}, am.Keys())
	assert.Equal(t, 3, am.Len())

	var visited []string
	am.Each(func(k, v string) { visited = append(visited, k+"="+v) })
	assert.Equal(t, []string{"a=1", "b=2", "c=3"}, visited)
}

func TestActionMap_EmptyIsPresent(t *testing.T) {
	t.Parallel()

	am := NewActionMap(nil)
	require.NotNil(t, am)
	assert.Equal(t, 0, am.Len())

	data, err := json.Marshal(am)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestActionMap_JSONKeepsOrderAndLiteralCharacters(t *testing.T) {
	t.Parallel()

	am := NewActionMap(map[string]string{
		"modules": `["a.js -> ./b"]`,
		"id":      "<x>&y",
	})

	data, err := am.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"id":"<x>&y","modules":"[\"a.js -> ./b\"]"}`, string(data))

	var decoded ActionMap
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, am.Equal(&decoded))
}

func TestActionMap_Equal(t *testing.T) {
	t.Parallel()

	a := NewActionMap(map[string]string{"k": "v"})
	assert.True(t, a.Equal(NewActionMap(map[string]string{"k": "v"})))
	assert.False(t, a.Equal(NewActionMap(map[string]string{"k": "w"})))
	assert.False(t, a.Equal(nil))

	var none *ActionMap
	assert.True(t, none.Equal(nil))
}
