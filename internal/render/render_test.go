package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/wemcdonald/sqlgate/pkg/gateway"
)

func sampleRowSet() *gateway.Outcome {
	return gateway.RowSet(
		[]string{"id", "item", "note"},
		[][]any{
			{int64(1), "apple", nil},
			{int64(2), "pear, green", "ripe"},
		},
	)
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "nil", in: nil, want: "NULL"},
		{name: "string", in: "x", want: "x"},
		{name: "bytes", in: []byte("raw"), want: "raw"},
		{name: "int", in: int64(42), want: "42"},
		{name: "float", in: 1.5, want: "1.5"},
		{name: "bool", in: true, want: "true"},
		{name: "time", in: ts, want: "2026-01-02T03:04:05Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}

func TestTable(t *testing.T) {
	s := Table(sampleRowSet())
	for _, want := range []string{"id", "item", "note", "apple", "pear, green", "NULL", "ripe"} {
		assert.Contains(t, s, want)
	}

	assert.Equal(t, MsgExecuted, Table(gateway.Ack(0)))
	assert.Equal(t, MsgExecuted+" (3 rows affected)", Table(gateway.Ack(3)))
	assert.Equal(t, "Error executing command: no such table: x", Table(gateway.Failure("no such table: x")))
}

func TestTableEmptyRowSet(t *testing.T) {
	s := Table(gateway.RowSet([]string{"a", "b"}, nil))
	assert.Contains(t, s, "a")
	assert.Contains(t, s, "b")
}

func TestJSON(t *testing.T) {
	s, err := JSON(sampleRowSet())
	require.NoError(t, err)

	// keys keep column order
	assert.Contains(t, s, `{"id": 1, "item": "apple", "note": null}`)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "pear, green", decoded[1]["item"])

	empty, err := JSON(gateway.RowSet([]string{"a"}, nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", empty)

	ack, err := JSON(gateway.Ack(2))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","affected":2}`, ack)

	fail, err := JSON(gateway.Failure("boom"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","error":"boom"}`, fail)
}

func TestYAML(t *testing.T) {
	s, err := YAML(sampleRowSet())
	require.NoError(t, err)

	assert.True(t, strings.Index(s, "id:") < strings.Index(s, "item:"))

	var decoded []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(s), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "apple", decoded[0]["item"])
	assert.Nil(t, decoded[0]["note"])
	assert.Equal(t, 2, decoded[1]["id"])

	ack, err := YAML(gateway.Ack(0))
	require.NoError(t, err)
	assert.Equal(t, "status: ok\n", ack)
}

func TestCSV(t *testing.T) {
	s, err := CSV(sampleRowSet())
	require.NoError(t, err)
	assert.Equal(t, "id,item,note\n1,apple,NULL\n2,\"pear, green\",ripe\n", s)

	s, err = CSV(gateway.Failure("bad"))
	require.NoError(t, err)
	assert.Equal(t, "Error executing command: bad", s)
}

func TestOutcome(t *testing.T) {
	for _, format := range []string{"", "table", "json", "yaml", "csv", "JSON"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Outcome(&buf, sampleRowSet(), format))
			assert.True(t, strings.HasSuffix(buf.String(), "\n"))
			assert.Contains(t, buf.String(), "apple")
		})
	}

	assert.Error(t, Outcome(&bytes.Buffer{}, sampleRowSet(), "html"))
}

func TestTables(t *testing.T) {
	assert.Equal(t, MsgNoTables, Tables(nil))
	assert.Equal(t, "Existing tables:\n- orders\n- items", Tables([]string{"orders", "items"}))
}
