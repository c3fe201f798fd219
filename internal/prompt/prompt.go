// Package prompt reads operator input on the terminal for the command-line tools.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter reads answers from in and writes questions to out. Passwords are read without
// echo when in is a terminal.
type Prompter struct {
	in     *bufio.Reader
	out    io.Writer
	fd     int
	isTerm bool
}

// New returns a Prompter on stdin and stderr.
func New() *Prompter {
	fd := int(os.Stdin.Fd())
	return &Prompter{in: bufio.NewReader(os.Stdin), out: os.Stderr, fd: fd, isTerm: term.IsTerminal(fd)}
}

// NewWith returns a Prompter over arbitrary streams, never treated as a terminal.
func NewWith(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out, fd: -1}
}

// Line asks for a non-empty line. def is returned for an empty answer when it is set.
func (p *Prompter) Line(label, def string) (string, error) {
	for {
		if def != "" {
			_, _ = fmt.Fprintf(p.out, "%s [%s]: ", label, def)
		} else {
			_, _ = fmt.Fprintf(p.out, "%s: ", label)
		}
		line, err := p.in.ReadString('\n')
		line = strings.TrimSpace(line)
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		if line == "" {
			if def != "" {
				return def, nil
			}
			_, _ = fmt.Fprintf(p.out, "%s cannot be empty.\n", label)
			continue
		}
		return line, nil
	}
}

// Password asks for a secret. On a terminal the input is masked.
func (p *Prompter) Password(label string) (string, error) {
	_, _ = fmt.Fprintf(p.out, "%s: ", label)
	if p.isTerm {
		b, err := term.ReadPassword(p.fd)
		_, _ = fmt.Fprintln(p.out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// NewPassword asks for a secret twice and requires both answers to match.
func (p *Prompter) NewPassword(label string, minLen int) (string, error) {
	for {
		pw, err := p.Password(label)
		if err != nil {
			return "", err
		}
		if len(pw) < minLen {
			_, _ = fmt.Fprintf(p.out, "Password must be at least %d characters.\n", minLen)
			continue
		}
		confirm, err := p.Password("Confirm " + strings.ToLower(label))
		if err != nil {
			return "", err
		}
		if pw != confirm {
			_, _ = fmt.Fprintln(p.out, "Passwords do not match.")
			continue
		}
		return pw, nil
	}
}
