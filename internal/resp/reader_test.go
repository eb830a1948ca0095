package resp_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvlan/duskstore/internal/resp"
)

func TestDecoder_ReadArrayCommand(t *testing.T) {
	d := resp.NewDecoder(strings.NewReader("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))

	v, err := d.Read()
	require.NoError(t, err)
	require.Equal(t, byte(resp.TypeArray), v.Type)
	require.Len(t, v.Array, 2)
	assert.Equal(t, "GET", string(v.Array[0].String))
	assert.Equal(t, "foo", string(v.Array[1].String))
}

func TestDecoder_ReadInlineCommand(t *testing.T) {
	d := resp.NewDecoder(strings.NewReader("SET foo bar\r\n"))

	v, err := d.Read()
	require.NoError(t, err)
	require.Equal(t, byte(resp.TypeArray), v.Type)
	require.Len(t, v.Array, 3)
	assert.Equal(t, "SET", string(v.Array[0].String))
	assert.Equal(t, "foo", string(v.Array[1].String))
	assert.Equal(t, "bar", string(v.Array[2].String))
}

func TestDecoder_ReadInlineCommandCollapsesWhitespace(t *testing.T) {
	d := resp.NewDecoder(strings.NewReader("  PING   hello  \r\n"))

	v, err := d.Read()
	require.NoError(t, err)
	require.Len(t, v.Array, 2)
	assert.Equal(t, "PING", string(v.Array[0].String))
	assert.Equal(t, "hello", string(v.Array[1].String))
}

func TestDecoder_ReadsSequentialCommands(t *testing.T) {
	d := resp.NewDecoder(strings.NewReader("PING\r\nPING\r\n"))

	for i := 0; i < 2; i++ {
		v, err := d.Read()
		require.NoError(t, err)
		require.Len(t, v.Array, 1)
		assert.Equal(t, "PING", string(v.Array[0].String))
	}
}

func TestDecoder_NullBulkStringInArray(t *testing.T) {
	d := resp.NewDecoder(strings.NewReader("*1\r\n$-1\r\n"))

	v, err := d.Read()
	require.NoError(t, err)
	require.Len(t, v.Array, 1)
	assert.True(t, v.Array[0].IsNull)
}

func TestDecoder_InvalidLineEnding(t *testing.T) {
	d := resp.NewDecoder(strings.NewReader("*1\r\n$3\r\nfoo\n"))

	_, err := d.Read()
	require.Error(t, err)
}
