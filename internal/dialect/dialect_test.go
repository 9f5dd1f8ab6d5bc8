package dialect

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect_Delimiter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sample string
		want   rune
	}{
		{name: "semicolon", sample: "a;b;c\n1;2;3\n4;5;6", want: ';'},
		{name: "comma", sample: "a,b,c\n1,2,3\n", want: ','},
		{name: "tab", sample: "a\tb\n1\t2\n", want: '\t'},
		{name: "pipe", sample: "a|b|c\r\n1|2|3\r\n", want: '|'},
		{name: "decimal_commas_do_not_win", sample: "nome;valor;taxa\nA;1,5;2,25\nB;3;4,5\n", want: ';'},
		{name: "tie_prefers_semicolon", sample: "a;b,c\n1;2,3\n", want: ';'},
		{name: "tie_prefers_comma_over_tab", sample: "a,b\tc\n1,2\t3\n", want: ','},
		{name: "two_columns", sample: "id,nome\n1,Ana\n", want: ','},
		{name: "bom_and_blank_lines", sample: "\xEF\xBB\xBFa;b\n\n1;2\n", want: ';'},
		{name: "present_on_every_line_wins", sample: "a;b,c,d,e\n1;x\n2;;;;;a,b,c\n3;a,b,c,d\n4;;;;;;;;a,b,c\n5;a,b,c\n", want: ';'},
		{name: "ragged_file_still_detected", sample: "a,b,c\n1,2,3\n\"x\ny\",5,6\n", want: ','},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := Detect([]byte(tc.sample), Options{})
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.Delimiter)
			assert.Equal(t, UTF8, p.Encoding)
			assert.Equal(t, '"', p.Quote)
		})
	}
}

func TestDetect_Failures(t *testing.T) {
	t.Parallel()

	for _, sample := range []string{"", "\n\n", "single column\nno delimiters\nhere", "a,b\nc\nd\ne\n"} {
		_, err := Detect([]byte(sample), Options{})
		require.Error(t, err, "sample %q", sample)
		assert.True(t, errors.Is(err, ErrDialectDetection))

		var de *DetectionError
		assert.True(t, errors.As(err, &de))
	}
}

func TestDetect_MaxLines(t *testing.T) {
	t.Parallel()

	sample := "a;b\n1;2\nx,y,z,w\n"
	p, err := Detect([]byte(sample), Options{MaxLines: 2})
	require.NoError(t, err)
	assert.Equal(t, ';', p.Delimiter)
}

func TestDetect_Latin1Fallback(t *testing.T) {
	t.Parallel()

	// "descrição;preço" in ISO-8859-1.
	sample := []byte("descri\xe7\xe3o;pre\xe7o\nA;1\n")
	p, err := Detect(sample, Options{})
	require.NoError(t, err)
	assert.Equal(t, Latin1, p.Encoding)

	decoded, err := io.ReadAll(p.Decode(strings.NewReader(string(sample))))
	require.NoError(t, err)
	assert.Equal(t, "descrição;preço\nA;1\n", string(decoded))
}

func TestDetect_TruncatedUTF8IsStillUTF8(t *testing.T) {
	t.Parallel()

	full := []byte("a;b\nç;ã\n")
	cut := full[:len(full)-2] // cuts "ã" in half
	p, err := Detect(cut, Options{})
	require.NoError(t, err)
	assert.Equal(t, UTF8, p.Encoding)
}

func TestDetect_UTF8OnlyRejectsLatin1(t *testing.T) {
	t.Parallel()

	_, err := Detect([]byte("a\xe7;b\n1;2\n"), Options{Encodings: []string{"utf8"}})
	assert.ErrorIs(t, err, ErrDialectDetection)

	_, err = Detect([]byte("a;b\n"), Options{Encodings: []string{"ebcdic"}})
	assert.ErrorIs(t, err, ErrDialectDetection)
}

func TestNormalizeEncoding(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Latin1, NormalizeEncoding("ISO-8859-1"))
	assert.Equal(t, Windows1252, NormalizeEncoding("cp1252"))
	assert.Equal(t, UTF8, NormalizeEncoding(""))
	assert.Nil(t, LookupEncoding(UTF8))
	assert.NotNil(t, LookupEncoding(CP850))
	assert.True(t, Supported("utf8"))
	assert.True(t, Supported("Latin-1"))
	assert.False(t, Supported("ebcdic"))
}
