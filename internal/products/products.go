// Package products turns product-search tool output into display cards.
package products

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"

	"github.com/soyeahso/shopchat/internal/logging"
)

// DefaultMax is the number of products shown per turn.
const DefaultMax = 3

// Product is a display-ready product card. Products are never persisted.
type Product struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Price       string `json:"price"`
	ImageURL    string `json:"image_url"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// Extractor pulls products from search results.
type Extractor struct {
	Max int
	log *logging.Logger
}

// NewExtractor creates an extractor returning at most max products.
func NewExtractor(max int, log *logging.Logger) *Extractor {
	if max <= 0 {
		max = DefaultMax
	}
	return &Extractor{Max: max, log: log.Sub("products")}
}

// Extract parses the first content block of a search result. Any parse
// failure yields an empty list.
func (e *Extractor) Extract(content json.RawMessage) []Product {
	products, err := Extract(content, e.Max)
	if err != nil {
		e.log.Debug().Err(err).Msg("no products in search result")
	}
	return products
}

// Extract returns up to max products from a tool result content array whose
// first block's text holds {"products":[...]}, either as a JSON string or
// as an object. It is deterministic: the same input always yields the same
// products.
func Extract(content json.RawMessage, max int) (products []Product, err error) {
	defer func() {
		if r := recover(); r != nil {
			products, err = nil, fmt.Errorf("extract products: %v", r)
		}
	}()

	var blocks []struct {
		Text json.RawMessage `json:"text"`
	}
	if err := json.Unmarshal(content, &blocks); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	if len(blocks) == 0 || len(blocks[0].Text) == 0 {
		return nil, nil
	}

	payload := blocks[0].Text
	var text string
	if err := json.Unmarshal(payload, &text); err == nil {
		payload = json.RawMessage(text)
	}

	var result struct {
		Products []json.RawMessage `json:"products"`
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	if max > 0 && len(result.Products) > max {
		result.Products = result.Products[:max]
	}
	for i, raw := range result.Products {
		products = append(products, format(raw, i))
	}
	return products, nil
}

type rawProduct struct {
	ProductID   any    `json:"product_id"`
	Title       string `json:"title"`
	ImageURL    string `json:"image_url"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PriceRange  *struct {
		Min      any    `json:"min"`
		Currency string `json:"currency"`
	} `json:"price_range"`
	Variants []struct {
		Price    any    `json:"price"`
		Currency string `json:"currency"`
	} `json:"variants"`
}

// format builds a card from one raw product. Entries that are not objects
// get an all-default card.
func format(raw json.RawMessage, index int) Product {
	var rp rawProduct
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&rp); err != nil {
		rp = rawProduct{}
	}

	p := Product{
		ID:          scalar(rp.ProductID),
		Title:       rp.Title,
		ImageURL:    rp.ImageURL,
		Description: rp.Description,
		URL:         rp.URL,
	}
	if p.ID == "" {
		p.ID = fallbackID(raw, index)
	}
	if p.Title == "" {
		p.Title = "Product"
	}

	switch {
	case rp.PriceRange != nil:
		p.Price = rp.PriceRange.Currency + " " + scalar(rp.PriceRange.Min)
	case len(rp.Variants) > 0:
		p.Price = rp.Variants[0].Currency + " " + scalar(rp.Variants[0].Price)
	default:
		p.Price = "Price not available"
	}
	return p
}

// scalar renders a JSON string or number the way it appeared on the wire.
func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// fallbackID derives a stable id for products without product_id.
func fallbackID(raw json.RawMessage, index int) string {
	h := fnv.New64a()
	h.Write(raw)
	h.Write([]byte{byte(index)})
	return "product-" + strconv.FormatUint(h.Sum64(), 36)
}
