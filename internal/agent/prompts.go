package agent

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var builtinPrompts []byte

// DefaultPromptType is used when a request names no prompt or an unknown one.
const DefaultPromptType = "standardAssistant"

type promptFile struct {
	SystemPrompts map[string]struct {
		Description string `yaml:"description"`
		Content     string `yaml:"content"`
	} `yaml:"systemPrompts"`
}

// PromptCatalog maps prompt types to system prompts.
type PromptCatalog struct {
	prompts  map[string]string
	fallback string
}

// LoadPrompts builds the catalog from the built-in prompts plus overrides
// keyed by prompt type. defaultType selects the fallback prompt.
func LoadPrompts(overrides map[string]string, defaultType string) (*PromptCatalog, error) {
	var file promptFile
	if err := yaml.Unmarshal(builtinPrompts, &file); err != nil {
		return nil, fmt.Errorf("parsing built-in prompts: %w", err)
	}

	c := &PromptCatalog{prompts: make(map[string]string, len(file.SystemPrompts)+len(overrides))}
	for name, p := range file.SystemPrompts {
		c.prompts[name] = strings.TrimSpace(p.Content)
	}
	for name, content := range overrides {
		c.prompts[name] = strings.TrimSpace(content)
	}

	if defaultType == "" {
		defaultType = DefaultPromptType
	}
	if _, ok := c.prompts[defaultType]; !ok {
		return nil, fmt.Errorf("default prompt type %q is not defined", defaultType)
	}
	c.fallback = defaultType
	return c, nil
}

// System returns the system prompt for promptType, falling back to the
// default prompt for unknown types.
func (c *PromptCatalog) System(promptType string) string {
	if p, ok := c.prompts[promptType]; ok {
		return p
	}
	return c.prompts[c.fallback]
}

// Resolve returns the prompt type that System would use.
func (c *PromptCatalog) Resolve(promptType string) string {
	if _, ok := c.prompts[promptType]; ok {
		return promptType
	}
	return c.fallback
}

// Types lists the known prompt types.
func (c *PromptCatalog) Types() []string {
	types := make([]string, 0, len(c.prompts))
	for name := range c.prompts {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
