package logger

import "golang.org/x/term"

// isTerminal reports whether fd is attached to a terminal. Gates ANSI
// color output.
func isTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}
