// Package format renders coalesced notifications as output lines.
package format

import (
	"fmt"
	"io"
	"strings"
	"time"

	"pathwatch/internal/watch"
)

// Default is the format applied when the user supplies none.
const Default = "%T %w%f %e"

const timestampLayout = "2006-01-02 15:04:05"

const (
	directiveKind      = 'e'
	directiveName      = 'f'
	directiveDir       = 'w'
	directiveTimestamp = 'T'
)

// Token is either a single-character directive or a literal run.
type Token struct {
	Directive byte
	Literal   string
}

// Parse splits a format string into directive and literal tokens. A
// percent sign followed by anything but a known directive stays literal.
func Parse(layout string) []Token {
	if layout == "" {
		layout = Default
	}
	var tokens []Token
	var literal strings.Builder
	flushLiteral := func() {
		if literal.Len() > 0 {
			tokens = append(tokens, Token{Literal: literal.String()})
			literal.Reset()
		}
	}

	for i := 0; i < len(layout); i++ {
		if layout[i] == '%' && i+1 < len(layout) {
			switch layout[i+1] {
			case directiveKind, directiveName, directiveDir, directiveTimestamp:
				flushLiteral()
				tokens = append(tokens, Token{Directive: layout[i+1]})
				i++
				continue
			}
		}
		literal.WriteByte(layout[i])
	}
	flushLiteral()
	return tokens
}

// Render writes one line for a notification: the current timestamp,
// then each token, then a newline.
func Render(writer io.Writer, tokens []Token, notification watch.Notification) error {
	now := time.Now()
	var line strings.Builder
	line.WriteString(now.Format(timestampLayout))
	line.WriteByte(' ')

	for _, token := range tokens {
		switch token.Directive {
		case directiveKind:
			line.WriteString(notification.Kind.String())
			if notification.IsDir {
				line.WriteString(",ISDIR")
			}
		case directiveName:
			line.WriteString(notification.Name)
		case directiveDir:
			line.WriteString(notification.Dir)
		case directiveTimestamp:
			line.WriteString(now.Format(timestampLayout))
		default:
			line.WriteString(token.Literal)
		}
	}
	line.WriteByte('\n')

	_, err := io.WriteString(writer, line.String())
	if err != nil {
		return fmt.Errorf("write event line: %w", err)
	}
	return nil
}
