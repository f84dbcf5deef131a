// Package prompt implements the line-based Q&A the maintainer commands use
// to gather inputs interactively.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Prompter reads answers line by line from one input stream.
type Prompter struct {
	reader *bufio.Reader
	out    io.Writer
}

func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{reader: bufio.NewReader(in), out: out}
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Input asks a question and returns the trimmed answer.
func (p *Prompter) Input(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	return p.readLine()
}

// InputDefault asks a question with a prefilled default; an empty answer
// takes the default.
func (p *Prompter) InputDefault(label, def string) (string, error) {
	fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	answer, err := p.readLine()
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// ConfirmYesNo asks a yes/no question defaulting to no. Anything that is
// not recognizably yes or no is asked again.
func (p *Prompter) ConfirmYesNo(label string) (bool, error) {
	for {
		fmt.Fprintf(p.out, "%s (y/N): ", label)
		answer, err := p.readLine()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "", "n", "no":
			return false, nil
		case "y", "yes":
			return true, nil
		}
		fmt.Fprintln(p.out, "Please answer y or n.")
	}
}
