package provider_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quoteexport/internal/provider"
)

func TestParseRecord_KeepsUpstreamOrder(t *testing.T) {
	t.Parallel()

	// Arrange
	body := []byte(`{"symbol":"ITUB3","price":31.5,"data_com":"2024-01-01","nested":{"b":1,"a":2},"data_pag":null}`)

	// Act
	r, err := provider.ParseRecord(body)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"symbol", "price", "data_com", "nested", "data_pag"}, r.Keys())

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"symbol":"ITUB3","price":31.5,"data_com":"2024-01-01","nested":{"b":1,"a":2},"data_pag":null}`, string(out))
}

func TestParseRecord_RejectsNonObject(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`[]`, `"x"`, `42`, `null`, ``, `{"a":`} {
		_, err := provider.ParseRecord([]byte(body))
		assert.Error(t, err, "body %q", body)
	}
}

func TestRecord_String(t *testing.T) {
	t.Parallel()

	r := provider.MustRecord("a", "text", "b", 12, "c", nil)

	s, ok := r.String("a")
	assert.True(t, ok)
	assert.Equal(t, "text", s)

	_, ok = r.String("b")
	assert.False(t, ok)
	_, ok = r.String("c")
	assert.False(t, ok)
	_, ok = r.String("missing")
	assert.False(t, ok)
}

func TestRecord_WithCopies(t *testing.T) {
	t.Parallel()

	// Arrange
	orig := provider.MustRecord("a", 1, "b", 2)

	// Act
	added, err := orig.With("c", 3)
	require.NoError(t, err)
	replaced, err := orig.With("a", 9)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, []string{"a", "b"}, orig.Keys())
	assert.Equal(t, []string{"a", "b", "c"}, added.Keys())
	assert.Equal(t, []string{"a", "b"}, replaced.Keys())

	raw, _ := replaced.Raw("a")
	assert.JSONEq(t, `9`, string(raw))
	raw, _ = orig.Raw("a")
	assert.JSONEq(t, `1`, string(raw))
}

func TestRecord_ZeroValue(t *testing.T) {
	t.Parallel()

	var r provider.Record
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Keys())

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(out))
}
