package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

const (
	defaultPdftotextBinary  = "pdftotext"
	defaultExtractorTimeout = 30 * time.Second
)

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	RunPiped(ctx context.Context, name string, args []string, stdin io.Reader, stdout, stderr io.Writer) error
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (osExecutor) RunPiped(ctx context.Context, name string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// PdftotextExtractor pipes the document through poppler's pdftotext.
type PdftotextExtractor struct {
	bin     string
	timeout time.Duration
	exec    executor
}

// NewPdftotextExtractor creates an extractor for the given binary, falling
// back to "pdftotext" on PATH.
func NewPdftotextExtractor(bin string, timeout time.Duration) *PdftotextExtractor {
	if bin == "" {
		bin = defaultPdftotextBinary
	}
	if timeout <= 0 {
		timeout = defaultExtractorTimeout
	}
	return &PdftotextExtractor{bin: bin, timeout: timeout, exec: osExecutor{}}
}

// Available reports whether the binary can be found.
func (p *PdftotextExtractor) Available() bool {
	_, err := p.exec.LookPath(p.bin)
	return err == nil
}

func (p *PdftotextExtractor) Extract(ctx context.Context, pdf []byte) (string, error) {
	if len(pdf) == 0 {
		return "", fmt.Errorf("empty document")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	err := p.exec.RunPiped(ctx, p.bin, []string{"-layout", "-enc", "UTF-8", "-", "-"}, bytes.NewReader(pdf), &stdout, &stderr)
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("running %s: %w: %s", p.bin, err, msg)
		}
		return "", fmt.Errorf("running %s: %w", p.bin, err)
	}
	return stdout.String(), nil
}
