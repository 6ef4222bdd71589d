package export_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quoteexport/internal/export"
	"quoteexport/internal/provider"
)

func TestWriteCSV_HeaderIsUnionInFirstAppearanceOrder(t *testing.T) {
	t.Parallel()

	// Arrange
	recs := []provider.Record{
		provider.MustRecord("symbol", "HGLG11", "price", 160.2),
		provider.MustRecord("symbol", "VISC11", "data_com", "2024-01-01", "price", 110),
		provider.MustRecord("extra", true, "symbol", "KNRI11"),
	}

	// Act
	out, err := export.Bytes(recs)

	// Assert
	require.NoError(t, err)
	assert.Equal(t,
		"symbol,price,data_com,extra\n"+
			"HGLG11,160.2,,\n"+
			"VISC11,110,2024-01-01,\n"+
			"KNRI11,,,true\n",
		string(out))
}

func TestWriteCSV_Cells(t *testing.T) {
	t.Parallel()

	rec, err := provider.ParseRecord([]byte(`{"s":"a, \"quoted\" value","n":null,"o":{"b": 1, "a": [1, 2]},"f":-0.5,"t":false}`))
	require.NoError(t, err)

	out, err := export.Bytes([]provider.Record{rec})
	require.NoError(t, err)
	assert.Equal(t,
		"s,n,o,f,t\n"+
			`"a, ""quoted"" value",,"{""b"":1,""a"":[1,2]}",-0.5,false`+"\n",
		string(out))
}

func TestWriteCSV_Empty(t *testing.T) {
	t.Parallel()

	out, err := export.Bytes(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCell(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		`"text"`:        "text",
		`"São Paulo"`:   "São Paulo",
		`null`:          "",
		`42`:            "42",
		`1e3`:           "1e3",
		`true`:          "true",
		`[ 1, "x" ]`:    `[1,"x"]`,
		` {"k" : "v"} `: `{"k":"v"}`,
		``:              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, export.Cell(json.RawMessage(in)), in)
	}
}
