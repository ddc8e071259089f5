package convert

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

// Placeholder is replaced by the extracted text in a prompt template.
const Placeholder = "{extractedText}"

//go:embed prompt.md
var defaultPrompt string

// Prompt renders generator prompts from a template.
type Prompt struct {
	template string
}

// DefaultPrompt returns the built-in template.
func DefaultPrompt() Prompt {
	return Prompt{template: defaultPrompt}
}

// LoadPrompt reads a template from path. An empty path yields the default.
func LoadPrompt(path string) (Prompt, error) {
	if path == "" {
		return DefaultPrompt(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Prompt{}, fmt.Errorf("reading prompt file: %w", err)
	}
	tmpl := string(data)
	if !strings.Contains(tmpl, Placeholder) {
		return Prompt{}, fmt.Errorf("prompt file %s has no %s placeholder", path, Placeholder)
	}
	return Prompt{template: tmpl}, nil
}

// Render substitutes the first placeholder with text.
func (p Prompt) Render(text string) string {
	return strings.Replace(p.template, Placeholder, text, 1)
}
