// Package convert turns uploaded PDFs into Markdown. Extraction and
// generation are separate collaborators so either can be swapped or stubbed.
package convert

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrExtraction wraps every failure to read text out of a PDF.
	ErrExtraction = errors.New("pdf extraction failed")
	// ErrNoText is returned when a PDF yields only whitespace.
	ErrNoText = errors.New("no text content found in pdf")
	// ErrGeneration wraps every failure of the Markdown generator.
	ErrGeneration = errors.New("markdown generation failed")
)

// Extractor returns the plain text of a PDF document.
type Extractor interface {
	Extract(ctx context.Context, pdf []byte) (string, error)
}

// Generator turns extracted plain text into Markdown.
type Generator interface {
	Generate(ctx context.Context, text string) (string, error)
}

// Result is the output of one conversion.
type Result struct {
	FileName string `json:"fileName"`
	Markdown string `json:"markdown"`
}

// Pipeline runs extraction then generation. It never touches quota state.
type Pipeline struct {
	extractor Extractor
	generator Generator
}

// NewPipeline wires an extractor and a generator.
func NewPipeline(e Extractor, g Generator) (*Pipeline, error) {
	if e == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if g == nil {
		return nil, fmt.Errorf("generator is required")
	}
	return &Pipeline{extractor: e, generator: g}, nil
}

// Convert extracts text from pdf and asks the generator for Markdown.
func (p *Pipeline) Convert(ctx context.Context, name string, pdf []byte) (Result, error) {
	text, err := p.extractor.Extract(ctx, pdf)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrExtraction, name, err)
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, fmt.Errorf("%w: %s", ErrNoText, name)
	}

	md, err := p.generator.Generate(ctx, text)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrGeneration, name, err)
	}
	return Result{FileName: name, Markdown: md}, nil
}
