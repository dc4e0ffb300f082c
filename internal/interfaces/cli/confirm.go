package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// PromptConfirmer asks yes/no questions on the terminal
type PromptConfirmer struct {
	mu        sync.Mutex
	in        *bufio.Reader
	out       io.Writer
	assumeYes bool
}

// NewPromptConfirmer creates a confirmer reading answers from in
func NewPromptConfirmer(in io.Reader, out io.Writer) *PromptConfirmer {
	return &PromptConfirmer{in: bufio.NewReader(in), out: out}
}

// SetAssumeYes makes every prompt answer yes without reading input
func (c *PromptConfirmer) SetAssumeYes(yes bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assumeYes = yes
}

// Confirm prints prompt and waits for an answer. Anything other than y or
// yes, including end of input, declines.
func (c *PromptConfirmer) Confirm(ctx context.Context, prompt string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.assumeYes {
		return true
	}
	if ctx.Err() != nil {
		return false
	}

	fmt.Fprintf(c.out, "%s [y/N]: ", prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(c.out)
		return false
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// Ask prints prompt and returns the trimmed answer
func (c *PromptConfirmer) Ask(prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "%s: ", prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("no answer for %q: %w", prompt, err)
	}
	return strings.TrimSpace(line), nil
}
