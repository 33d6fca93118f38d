package persist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Always replaces existing files.
func Always(string) (bool, error) { return true, nil }

// Never keeps existing files.
func Never(string) (bool, error) { return false, nil }

// Prompt asks on out and reads the answer from in. When in is not a
// terminal there is nobody to ask, so the file is kept.
func Prompt(in *os.File, out io.Writer) OverwriteGate {
	return func(path string) (bool, error) {
		if !term.IsTerminal(int(in.Fd())) {
			return false, nil
		}
		return ask(in, out, path)
	}
}

func ask(in io.Reader, out io.Writer, path string) (bool, error) {
	fmt.Fprintf(out, "%s exists. Overwrite? [y/N] ", path)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// GateFor maps an overwrite policy (ask, always, never) to a gate.
func GateFor(policy string, in *os.File, out io.Writer) (OverwriteGate, error) {
	switch policy {
	case "always":
		return Always, nil
	case "never":
		return Never, nil
	case "ask", "":
		return Prompt(in, out), nil
	}
	return nil, fmt.Errorf("unknown overwrite policy %q", policy)
}
