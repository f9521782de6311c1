package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Seams for tests.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

var errPasswordMismatch = errors.New("passwords do not match")

// prompter reads operator input. On a terminal passwords are read without
// echo; otherwise every answer is one line of input.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool
}

func newPrompter(cmd *cobra.Command) *prompter {
	p := &prompter{
		in:  bufio.NewReader(cmd.InOrStdin()),
		out: cmd.ErrOrStderr(),
		fd:  -1,
	}
	if f, ok := cmd.InOrStdin().(*os.File); ok {
		p.fd = int(f.Fd())
		p.tty = isTerminal(p.fd)
	}
	return p
}

// Line prints prompt and returns the next line without its newline.
func (p *prompter) Line(prompt string) (string, error) {
	if prompt != "" {
		_, _ = fmt.Fprint(p.out, prompt)
	}
	s, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(s, "\r\n"), nil
}

// Password reads a secret without echo when attached to a terminal.
func (p *prompter) Password(prompt string) (string, error) {
	if !p.tty {
		return p.Line(prompt)
	}
	_, _ = fmt.Fprint(p.out, prompt)
	b, err := readPassword(p.fd)
	_, _ = fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

// NewPassword asks twice and insists both answers match.
func (p *prompter) NewPassword() (string, error) {
	pw, err := p.Password("New password: ")
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", errors.New("password cannot be empty")
	}
	confirm, err := p.Password("Confirm password: ")
	if err != nil {
		return "", err
	}
	if pw != confirm {
		return "", errPasswordMismatch
	}
	return pw, nil
}

// Confirm asks a yes/no question; anything but y or yes is a no.
func (p *prompter) Confirm(question string) (bool, error) {
	answer, err := p.Line(question + " [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// readPasswordArg reads the password from one line of stdin when fromStdin is
// set and prompts for it otherwise.
func readPasswordArg(p *prompter, fromStdin bool) (string, error) {
	if !fromStdin {
		return p.NewPassword()
	}
	pw, err := p.Line("")
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", errors.New("password cannot be empty")
	}
	return pw, nil
}
