package splitter

import (
	"regexp"
	"strings"
)

// copyFromStdin matches the head of a pg_dump data block.
var copyFromStdin = regexp.MustCompile(`(?is)^\s*COPY\s.+\sFROM\s+STDIN\b`)

// dollarTag matches $$ or $tag$ at the start of a string.
var dollarTag = regexp.MustCompile(`^\$([A-Za-z_][A-Za-z0-9_]*)?\$`)

const maxHead = 8 << 10

// state tracks whether the scanner sits between statements. A line leaves
// the scanner INSIDE a statement when it opened content that was not closed
// by ';', or left a quote, comment or COPY data block open.
type state struct {
	open       bool
	single     bool
	escapeStr  bool
	double     bool
	blockDepth int
	dollar     string
	copyData   bool

	head      strings.Builder
	startLine int
}

func (s *state) inside() bool {
	return s.open || s.single || s.double || s.blockDepth > 0 || s.dollar != "" || s.copyData
}

// describe names the open construct for error messages.
func (s *state) describe() string {
	switch {
	case s.copyData:
		return `COPY data without terminating "\."`
	case s.single:
		return "unterminated string literal"
	case s.double:
		return "unterminated quoted identifier"
	case s.blockDepth > 0:
		return "unterminated block comment"
	case s.dollar != "":
		return "unterminated dollar-quoted body " + s.dollar
	default:
		return `statement without terminating ";"`
	}
}

// feed advances the state over one line (including its terminator).
func (s *state) feed(line string, lineNo int) {
	if s.copyData {
		if strings.TrimRight(line, "\r\n") == `\.` {
			s.copyData = false
		}
		return
	}
	if !s.inside() && strings.HasPrefix(strings.TrimLeft(line, " \t"), `\`) {
		// psql meta-command; ends at end of line.
		return
	}

	for i := 0; i < len(line); i++ {
		c := line[i]

		switch {
		case s.blockDepth > 0:
			if c == '*' && i+1 < len(line) && line[i+1] == '/' {
				s.blockDepth--
				i++
			} else if c == '/' && i+1 < len(line) && line[i+1] == '*' {
				s.blockDepth++
				i++
			}
			continue

		case s.single:
			if s.escapeStr && c == '\\' {
				i++
				continue
			}
			if c == '\'' {
				if i+1 < len(line) && line[i+1] == '\'' {
					// doubled quote; the string stays open.
					i++
					s.note(c)
					continue
				}
				s.single = false
			}
			s.note(c)
			continue

		case s.double:
			if c == '"' {
				s.double = false
			}
			s.note(c)
			continue

		case s.dollar != "":
			if c == '$' && strings.HasPrefix(line[i:], s.dollar) {
				i += len(s.dollar) - 1
				s.dollar = ""
			}
			continue
		}

		switch c {
		case '-':
			if i+1 < len(line) && line[i+1] == '-' {
				return
			}
		case '/':
			if i+1 < len(line) && line[i+1] == '*' {
				s.blockDepth++
				i++
				continue
			}
		case '\'':
			s.begin(lineNo)
			s.single = true
			s.escapeStr = i > 0 && (line[i-1] == 'E' || line[i-1] == 'e') && (i < 2 || !isIdentByte(line[i-2]))
			s.note(c)
			continue
		case '"':
			s.begin(lineNo)
			s.double = true
			s.note(c)
			continue
		case '$':
			if i == 0 || !isIdentByte(line[i-1]) {
				if tag := dollarTag.FindString(line[i:]); tag != "" {
					s.begin(lineNo)
					s.dollar = tag
					i += len(tag) - 1
					continue
				}
			}
		case ';':
			s.end()
			if s.copyData {
				return
			}
			continue
		case ' ', '\t', '\r', '\n':
			if s.open {
				s.note(' ')
			}
			continue
		}
		s.begin(lineNo)
		s.note(c)
	}
}

func (s *state) begin(lineNo int) {
	if !s.open {
		s.open = true
		s.startLine = lineNo
	}
}

func (s *state) note(c byte) {
	if s.head.Len() < maxHead {
		s.head.WriteByte(c)
	}
}

func (s *state) end() {
	if s.open && copyFromStdin.MatchString(s.head.String()) {
		s.copyData = true
	}
	s.open = false
	s.head.Reset()
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c >= 0x80
}
