// SPDX-License-Identifier: MPL-2.0

package container

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// QuoteWord quotes s for bash so it is passed as a single literal word.
func QuoteWord(s string) (string, error) {
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return "", fmt.Errorf("quote %q: %w", s, err)
	}
	return q, nil
}

// CommandLine renders binary and args as one bash command line. Each argument
// is quoted, so the result can be logged or embedded in a script verbatim.
func CommandLine(binary string, args []string) (string, error) {
	words := make([]string, 0, len(args)+1)
	for _, a := range append([]string{binary}, args...) {
		q, err := QuoteWord(a)
		if err != nil {
			return "", err
		}
		words = append(words, q)
	}
	return strings.Join(words, " "), nil
}
