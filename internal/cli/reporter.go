package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	errs "symsync/internal/errors"
)

var (
	actionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

// reporter implements engine.Reporter for terminal output.
type reporter struct {
	stdin *bufio.Reader
}

func newReporter() *reporter {
	return &reporter{stdin: bufio.NewReader(os.Stdin)}
}

// Actionf prints a sync action line.
func (r *reporter) Actionf(format string, args ...any) {
	fmt.Println(actionStyle.Render(fmt.Sprintf(format, args...)))
}

// Warnf prints a conflict or tamper warning.
func (r *reporter) Warnf(format string, args ...any) {
	fmt.Println(warnStyle.Render(fmt.Sprintf(format, args...)))
}

// Confirm asks a yes/no question, defaulting to yes on a bare return. When
// stdin is not a terminal there is nobody to ask, and destructive defaults
// are refused rather than assumed.
func (r *reporter) Confirm(prompt string) (bool, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		fmt.Fprintln(os.Stderr, warnStyle.Render(prompt+" -- refusing: stdin is not a terminal"))
		return false, nil
	}

	fmt.Fprint(os.Stderr, prompt+" [Y/n] ")
	line, err := r.stdin.ReadString('\n')
	if err != nil {
		return false, errs.Wrap(err, "reading answer")
	}
	switch strings.TrimSpace(line) {
	case "", "y", "Y":
		return true, nil
	case "n", "N":
		return false, nil
	default:
		return false, fmt.Errorf("unrecognized answer %q", strings.TrimSpace(line))
	}
}
