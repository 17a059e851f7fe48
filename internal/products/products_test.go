package products

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/soyeahso/shopchat/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// textContent wraps payload as the text of a single content block.
func textContent(payload string) json.RawMessage {
	text, _ := json.Marshal(payload)
	return json.RawMessage(`[{"type":"text","text":` + string(text) + `}]`)
}

func productList(n int) string {
	var items []string
	for i := 1; i <= n; i++ {
		items = append(items, fmt.Sprintf(`{"product_id":"gid://shopify/Product/%d","title":"Board %d","price_range":{"min":"%d.00","max":"999.00","currency":"USD"},"url":"https://shop.example/p/%d","image_url":"https://cdn.example/%d.png","description":"desc %d"}`, i, i, i*100, i, i, i))
	}
	return `{"products":[` + strings.Join(items, ",") + `]}`
}

func TestExtract_TruncatesInOrder(t *testing.T) {
	products, err := Extract(textContent(productList(5)), 3)
	require.NoError(t, err)
	require.Len(t, products, 3)

	for i, p := range products {
		n := i + 1
		assert.Equal(t, fmt.Sprintf("gid://shopify/Product/%d", n), p.ID)
		assert.Equal(t, fmt.Sprintf("Board %d", n), p.Title)
		assert.Equal(t, fmt.Sprintf("USD %d.00", n*100), p.Price)
		assert.Equal(t, fmt.Sprintf("https://shop.example/p/%d", n), p.URL)
		assert.Equal(t, fmt.Sprintf("https://cdn.example/%d.png", n), p.ImageURL)
		assert.Equal(t, fmt.Sprintf("desc %d", n), p.Description)
	}
}

func TestExtract_FewerThanMax(t *testing.T) {
	products, err := Extract(textContent(productList(2)), 3)
	require.NoError(t, err)
	assert.Len(t, products, 2)
}

func TestExtract_StructuredText(t *testing.T) {
	content := json.RawMessage(`[{"type":"text","text":{"products":[{"product_id":"p1","title":"Wax"}]}}]`)
	products, err := Extract(content, 3)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "p1", products[0].ID)
	assert.Equal(t, "Wax", products[0].Title)
}

func TestExtract_PriceFallbacks(t *testing.T) {
	payload := `{"products":[
		{"product_id":"a","variants":[{"price":"19.99","currency":"CAD"},{"price":"1","currency":"USD"}]},
		{"product_id":"b","variants":[]},
		{"product_id":"c"},
		{"product_id":"d","price_range":{"min":25,"currency":"EUR"}}
	]}`

	products, err := Extract(textContent(payload), 10)
	require.NoError(t, err)
	require.Len(t, products, 4)
	assert.Equal(t, "CAD 19.99", products[0].Price)
	assert.Equal(t, "Price not available", products[1].Price)
	assert.Equal(t, "Price not available", products[2].Price)
	assert.Equal(t, "EUR 25", products[3].Price)
}

func TestExtract_Defaults(t *testing.T) {
	products, err := Extract(textContent(`{"products":[{}, 7]}`), 3)
	require.NoError(t, err)
	require.Len(t, products, 2)

	for _, p := range products {
		assert.True(t, strings.HasPrefix(p.ID, "product-"), p.ID)
		assert.Equal(t, "Product", p.Title)
		assert.Equal(t, "Price not available", p.Price)
		assert.Equal(t, "", p.ImageURL)
		assert.Equal(t, "", p.Description)
		assert.Equal(t, "", p.URL)
	}
	assert.NotEqual(t, products[0].ID, products[1].ID)
}

func TestExtract_NumericProductID(t *testing.T) {
	products, err := Extract(textContent(`{"products":[{"product_id":8123456789012345678}]}`), 3)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "8123456789012345678", products[0].ID)
}

func TestExtract_Idempotent(t *testing.T) {
	content := textContent(`{"products":[{"title":"no id"},{"product_id":"x","title":"with id"}]}`)

	first, err := Extract(content, 3)
	require.NoError(t, err)
	second, err := Extract(content, 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		name    string
		content json.RawMessage
		wantErr bool
	}{
		{"non-json text", textContent("Sorry, nothing matched."), true},
		{"content not an array", json.RawMessage(`{"text":"x"}`), true},
		{"empty content", json.RawMessage(`[]`), false},
		{"no text field", json.RawMessage(`[{"type":"image"}]`), false},
		{"no products key", textContent(`{"items":[]}`), false},
		{"products not an array", textContent(`{"products":"many"}`), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			products, err := Extract(tt.content, 3)
			assert.Empty(t, products)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExtractorSwallowsErrors(t *testing.T) {
	e := NewExtractor(0, logging.New(nil, "silent"))
	assert.Equal(t, DefaultMax, e.Max)
	assert.Empty(t, e.Extract(textContent("not json")))
	assert.Len(t, e.Extract(textContent(productList(4))), 3)
}
