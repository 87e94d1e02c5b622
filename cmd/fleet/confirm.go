package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// confirm asks the operator before a mutating command proceeds. The yes flag
// skips the prompt, for use from automation.
func confirm(yes bool, action string) bool {
	if yes {
		return true
	}
	return prompt(os.Stdin, os.Stdout, action)
}

func prompt(in io.Reader, out io.Writer, action string) bool {
	fmt.Fprintf(out, "Are you sure you want to %s? (y/N) ", action)
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
	case "y", "yes":
		return true
	}
	return false
}
