package encode_test

import (
	"testing"

	fuzzheaders "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webgym/internal/encode"
)

func TestTokenize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{"simple words", "Click the Submit button", []string{"click", "the", "submit", "button"}},
		{"punctuation splits", "add-to-cart: item_42!", []string{"add", "to", "cart", "item_42"}},
		{"collapsed whitespace", "  a \t b\n\nc  ", []string{"a", "b", "c"}},
		{"empty", "", nil},
		{"only separators", " .,;!? ", nil},
		{"unicode letters kept", "café Ärger 42", []string{"café", "ärger", "42"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, encode.Tokens(tc.input))
		})
	}
}

func TestTokenizeIsRepeatable(t *testing.T) {
	t.Parallel()

	const text = "One two three four"
	first := encode.Tokens(text)
	second := encode.Tokens(text)
	assert.Equal(t, first, second)

	// Partial consumption of one sequence must not disturb another.
	seq := encode.Tokenize(text)
	for range seq {
		break
	}
	assert.Equal(t, first, encode.Tokens(text))
}

func TestHashTokenBounds(t *testing.T) {
	t.Parallel()

	h := encode.SHA256Hasher{}
	for _, vocab := range []int{1, 2, 97, 10000, 50000} {
		for _, tok := range []string{"", "a", "submit", "添加", "0", "z9_"} {
			id := h.HashToken(tok, vocab)
			assert.GreaterOrEqual(t, id, int32(0))
			assert.Less(t, id, int32(vocab))
		}
	}

	assert.Equal(t, int32(0), h.HashToken("anything", 0))
	assert.Equal(t, int32(0), h.HashToken("anything", -5))
}

func TestHashTokenDeterministic(t *testing.T) {
	t.Parallel()

	h := encode.SHA256Hasher{}
	a := h.HashToken("checkout", 50000)
	b := h.HashToken("checkout", 50000)
	assert.Equal(t, a, b)

	// Distinct tokens should not all collapse to one bucket.
	distinct := map[int32]struct{}{}
	for _, tok := range []string{"checkout", "cart", "login", "search", "home"} {
		distinct[h.HashToken(tok, 50000)] = struct{}{}
	}
	assert.Greater(t, len(distinct), 1)
}

func TestEncodeText(t *testing.T) {
	t.Parallel()

	enc := encode.New(nil)

	t.Run("length is exactly the limit", func(t *testing.T) {
		t.Parallel()
		assert.Len(t, enc.EncodeText("one two three", 8, 100), 8)
		assert.Len(t, enc.EncodeText("one two three four five six", 2, 100), 2)
	})

	t.Run("empty input is all zeros", func(t *testing.T) {
		t.Parallel()
		got := enc.EncodeText("", 6, 100)
		assert.Equal(t, []int32{0, 0, 0, 0, 0, 0}, got)
	})

	t.Run("pure and deterministic", func(t *testing.T) {
		t.Parallel()
		first := enc.EncodeText("Find the red sneakers", 16, 50000)
		second := enc.EncodeText("Find the red sneakers", 16, 50000)
		assert.Equal(t, first, second)
	})

	t.Run("overflow tokens dropped, order preserved", func(t *testing.T) {
		t.Parallel()
		full := enc.EncodeText("alpha beta gamma delta", 4, 50000)
		cut := enc.EncodeText("alpha beta gamma delta", 2, 50000)
		assert.Equal(t, full[:2], cut)
	})

	t.Run("zero limit yields empty array", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, enc.EncodeText("anything", 0, 100))
	})
}

// fixedHasher exercises the swappable hasher seam.
type fixedHasher struct{ id int32 }

func (f fixedHasher) HashToken(string, int) int32 { return f.id }

func TestEncoderUsesInjectedHasher(t *testing.T) {
	t.Parallel()

	enc := encode.New(fixedHasher{id: 7})
	got := enc.EncodeText("a b", 3, 100)
	assert.Equal(t, []int32{7, 7, 0}, got)
	assert.Equal(t, int32(7), enc.HashToken("http://anywhere", 100))
}

func FuzzEncodeText(f *testing.F) {
	f.Add([]byte("Click the Submit button now"))
	f.Add([]byte{0xff, 0xfe, 0x00, 0x41})
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzzheaders.NewConsumer(data)
		text, err := consumer.GetString()
		if err != nil {
			return
		}
		limit, err := consumer.GetInt()
		if err != nil {
			return
		}
		limit = limit % 512
		vocab, err := consumer.GetInt()
		if err != nil {
			return
		}
		vocab = vocab%50000 + 1
		if vocab <= 0 {
			return
		}

		enc := encode.New(nil)
		out := enc.EncodeText(text, limit, vocab)
		if limit <= 0 {
			require.Empty(t, out)
			return
		}
		require.Len(t, out, limit)
		for _, id := range out {
			require.GreaterOrEqual(t, id, int32(0))
			require.Less(t, id, int32(vocab))
		}
	})
}
