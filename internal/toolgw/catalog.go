package toolgw

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/soyeahso/shopchat/internal/domain"
	"github.com/soyeahso/shopchat/internal/logging"
)

// Backend names a tool server.
type Backend string

const (
	BackendStorefront Backend = "storefront"
	BackendCustomer   Backend = "customer"
)

type route struct {
	backend Backend
	schema  *gojsonschema.Schema
}

// Catalog is the merged tool list offered to the model plus the explicit
// name to backend routing table. Customer tools take precedence over
// storefront tools with the same name.
type Catalog struct {
	tools  []domain.ToolDescriptor
	routes map[string]route
}

// MergeCatalog builds a catalog from the two backends' descriptors.
func MergeCatalog(customer, storefront []domain.ToolDescriptor, log *logging.Logger) *Catalog {
	c := &Catalog{routes: make(map[string]route, len(customer)+len(storefront))}

	customerNames := make(map[string]bool, len(customer))
	for _, t := range customer {
		customerNames[t.Name] = true
	}

	for _, t := range storefront {
		if customerNames[t.Name] {
			log.Warn().Str("tool", t.Name).Msg("storefront tool shadowed by customer tool with the same name")
			continue
		}
		c.add(BackendStorefront, t, log)
	}
	for _, t := range customer {
		c.add(BackendCustomer, t, log)
	}
	return c
}

func (c *Catalog) add(backend Backend, t domain.ToolDescriptor, log *logging.Logger) {
	if t.Name == "" {
		return
	}
	if _, dup := c.routes[t.Name]; dup {
		log.Warn().Str("tool", t.Name).Str("backend", string(backend)).Msg("duplicate tool name ignored")
		return
	}

	r := route{backend: backend}
	if len(bytes.TrimSpace(t.InputSchema)) > 0 {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(t.InputSchema))
		if err != nil {
			log.Warn().Err(err).Str("tool", t.Name).Msg("tool input schema does not compile; arguments will not be validated")
		} else {
			r.schema = schema
		}
	}

	c.routes[t.Name] = r
	c.tools = append(c.tools, t)
}

// Tools returns the descriptors offered to the model.
func (c *Catalog) Tools() []domain.ToolDescriptor {
	return c.tools
}

// Route returns the backend serving name.
func (c *Catalog) Route(name string) (Backend, bool) {
	r, ok := c.routes[name]
	return r.backend, ok
}

// Validate checks args against the tool's input schema. Tools without a
// usable schema accept any JSON object.
func (c *Catalog) Validate(name string, args json.RawMessage) error {
	r, ok := c.routes[name]
	if !ok {
		return fmt.Errorf("unknown tool %q", name)
	}
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage(`{}`)
	}
	if !json.Valid(args) {
		return fmt.Errorf("arguments are not valid JSON")
	}
	if r.schema == nil {
		return nil
	}

	result, err := r.schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
