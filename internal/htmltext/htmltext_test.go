package htmltext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		doc      string
		expected string
	}{
		{
			name:     "plain paragraph",
			doc:      `<html><body><p>Hello world</p></body></html>`,
			expected: "Hello world",
		},
		{
			name:     "script and style stripped",
			doc:      `<body><script>var x = 1;</script><style>p{}</style><p>Visible</p></body>`,
			expected: "Visible",
		},
		{
			name:     "head stripped",
			doc:      `<html><head><title>Shop</title></head><body>Cart</body></html>`,
			expected: "Cart",
		},
		{
			name:     "whitespace collapsed across nodes",
			doc:      "<div>  one \n\t two  </div><span>three</span>",
			expected: "one two three",
		},
		{
			name:     "nested markup",
			doc:      `<ul><li>Buy <b>red</b> shoes</li><li>Checkout</li></ul>`,
			expected: "Buy red shoes Checkout",
		},
		{
			name:     "empty document",
			doc:      "",
			expected: "",
		},
		{
			name:     "unclosed tags handled leniently",
			doc:      `<div><p>first<p>second`,
			expected: "first second",
		},
		{
			name:     "template contents ignored",
			doc:      `<body><template><p>hidden</p></template>shown</body>`,
			expected: "shown",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, Extract(tc.doc))
		})
	}
}
