// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// prompt.go - Interactive input for nexus commands.
//
// Prompts go to stderr so --json output on stdout stays parseable. When
// stdin is not a terminal, answers are read line by line from it, which lets
// scripts pipe credentials in.

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var (
	promptIn  = bufio.NewReader(os.Stdin)
	promptOut io.Writer = os.Stderr

	// interactive reports whether secrets can be read without echo.
	interactive = IsTTY

	readSecret = func() ([]byte, error) {
		return term.ReadPassword(int(os.Stdin.Fd()))
	}
)

// promptInput prints prompt and reads one trimmed line.
func promptInput(prompt string) (string, error) {
	fmt.Fprint(promptOut, prompt)
	line, err := promptIn.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a secret without echo on a terminal, or a plain line
// otherwise. Surrounding whitespace is kept, except the line ending.
func promptPassword(prompt string) (string, error) {
	if !interactive() {
		fmt.Fprint(promptOut, prompt)
		line, err := promptIn.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(promptOut, prompt)
	secret, err := readSecret()
	fmt.Fprintln(promptOut)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(secret), nil
}

// promptNewPassword asks twice and checks both entries match.
func promptNewPassword(prompt string) (string, error) {
	first, err := promptPassword(prompt)
	if err != nil {
		return "", err
	}
	second, err := promptPassword("Confirm " + strings.ToLower(prompt[:1]) + prompt[1:])
	if err != nil {
		return "", err
	}
	if first != second {
		return "", &UsageError{Message: "passwords do not match"}
	}
	return first, nil
}

// PromptYesNo prompts the user with a yes/no question. It returns false if
// stdin is not a terminal.
func PromptYesNo(question string) bool {
	if !interactive() {
		return false
	}
	answer, err := promptInput(question + " [y/N]: ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}
