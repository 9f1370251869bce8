package encoding_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/MrJamesThe3rd/ironyard/internal/encoding"
)

func decodeAll(t *testing.T, in []byte) (string, string) {
	t.Helper()

	r, charset, err := encoding.Decode(bytes.NewReader(in))
	require.NoError(t, err)

	out, err := io.ReadAll(r)
	require.NoError(t, err)

	return string(out), charset
}

func TestDecode(t *testing.T) {
	const text = "title,location\nGrue télescopique,Zürich\n"

	latin1, err := charmap.Windows1252.NewEncoder().Bytes([]byte(text))
	require.NoError(t, err)

	utf16le, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(text))
	require.NoError(t, err)

	tests := []struct {
		name        string
		in          []byte
		wantCharset string
	}{
		{name: "UTF8", in: []byte(text), wantCharset: encoding.CharsetUTF8},
		{name: "UTF8BOM", in: append([]byte{0xEF, 0xBB, 0xBF}, text...), wantCharset: encoding.CharsetUTF8},
		{name: "UTF16LE", in: utf16le, wantCharset: encoding.CharsetUTF16LE},
		{name: "Windows1252", in: latin1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, charset := decodeAll(t, tt.in)
			assert.Equal(t, text, got)

			if tt.wantCharset != "" {
				assert.Equal(t, tt.wantCharset, charset)
			}
		})
	}
}

func TestDecode_LongUTF8SplitAtWindow(t *testing.T) {
	// Place a two-byte rune across the sniff boundary.
	in := strings.Repeat("a", 4095) + "é" + "\n"

	got, charset := decodeAll(t, []byte(in))
	assert.Equal(t, in, got)
	assert.Equal(t, encoding.CharsetUTF8, charset)
}

func TestDecode_Empty(t *testing.T) {
	got, charset := decodeAll(t, nil)
	assert.Empty(t, got)
	assert.Equal(t, encoding.CharsetUTF8, charset)
}
