// Package confirm asks the operator before destructive work
package confirm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Prompt is printed after the target line; the answer is read on the same line
const Prompt = "Are you sure? (yes/no): "

// Confirm prints the deletion notice for target, followed by any detail
// lines, and reads one answer line from in. Only "yes" or "y" (any case,
// surrounding whitespace ignored) confirm; anything else, including EOF,
// declines.
func Confirm(in io.Reader, out io.Writer, target string, details ...string) bool {
	fmt.Fprintf(out, "About to DELETE: %s\n", target)
	for _, d := range details {
		fmt.Fprintf(out, "  %s\n", d)
	}
	fmt.Fprint(out, Prompt)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(out)
		return false
	}
	return Accepted(line)
}

// Accepted reports whether answer is an affirmative reply
func Accepted(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "yes", "y":
		return true
	}
	return false
}

// Interactive reports whether f is attached to a terminal
func Interactive(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
