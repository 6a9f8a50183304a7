package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// stdinConfirmer asks yes/no questions on the terminal. Anything but "y" or
// "yes" is a no.
type stdinConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func newStdinConfirmer() *stdinConfirmer {
	return &stdinConfirmer{in: bufio.NewReader(os.Stdin), out: os.Stderr}
}

// Confirm implements batch.Confirmer.
func (c *stdinConfirmer) Confirm(prompt string) (bool, error) {
	fmt.Fprintf(c.out, "\n%s [y/N]: ", prompt)
	input, err := c.in.ReadString('\n')
	if err != nil && input == "" {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// autoConfirmer answers yes without asking (--yes).
type autoConfirmer struct{}

func (autoConfirmer) Confirm(string) (bool, error) { return true, nil }

// promptLine reads one line, returning def when the answer is empty.
func promptLine(reader *bufio.Reader, out io.Writer, label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return def, nil
	}
	return input, nil
}

// stdinIsTerminal is replaced in tests.
var stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

// promptSecret reads a value without echo when stdin is a terminal and falls
// back to a plain line read otherwise (e.g. piped input).
func promptSecret(reader *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprintf(out, "%s: ", label)
	if stdinIsTerminal() {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
