package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// PromptSelect shows numbered options on stdout and reads the choice from
// stdin. It returns -1 when the user skips.
func PromptSelect(message string, options []string) int {
	return promptSelect(os.Stdin, os.Stdout, message, options)
}

func promptSelect(in io.Reader, out io.Writer, message string, options []string) int {
	if len(options) == 0 {
		return -1
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, message)
	for i, opt := range options {
		fmt.Fprintf(out, "  [%d] %s\n", i+1, opt)
	}
	fmt.Fprintf(out, "  [0] Skip\n\n? Select: ")

	input, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && input == "" {
		return -1
	}

	choice, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || choice < 1 || choice > len(options) {
		return -1
	}
	return choice - 1
}

// IsInteractive returns true if stdin is a terminal and --yes flag is not set
func IsInteractive() bool {
	if IsYesMode() {
		return false
	}
	return term.IsTerminal(int(os.Stdin.Fd()))
}
