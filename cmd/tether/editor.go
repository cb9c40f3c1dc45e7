package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// errInterrupted is returned by ReadLine on Ctrl-C.
var errInterrupted = errors.New("interrupted")

// LineEditor reads lines from a terminal in raw mode with cursor movement
// and history.
type LineEditor struct {
	in       *os.File
	out      io.Writer
	fd       int
	oldState *term.State

	line   []rune
	cursor int

	history []string
	histPos int

	// Bytes read but not yet consumed.
	pending []byte
}

// NewLineEditor returns an editor reading from in and echoing to out.
func NewLineEditor(in *os.File, out io.Writer) *LineEditor {
	return &LineEditor{in: in, out: out, fd: int(in.Fd())}
}

func (e *LineEditor) enterRawMode() error {
	oldState, err := term.MakeRaw(e.fd)
	if err != nil {
		return err
	}
	e.oldState = oldState
	return nil
}

func (e *LineEditor) exitRawMode() {
	if e.oldState != nil {
		term.Restore(e.fd, e.oldState)
		e.oldState = nil
	}
}

func (e *LineEditor) readByte() (byte, error) {
	if len(e.pending) > 0 {
		b := e.pending[0]
		e.pending = e.pending[1:]
		return b, nil
	}
	buf := make([]byte, 32)
	n, err := e.in.Read(buf)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	e.pending = append(e.pending, buf[1:n]...)
	return buf[0], nil
}

// skipToTerminator skips the rest of a CSI sequence (terminated by 0x40-0x7E).
func (e *LineEditor) skipToTerminator() {
	for {
		b, err := e.readByte()
		if err != nil || (b >= 0x40 && b <= 0x7e) {
			return
		}
	}
}

// readKey reads one key press and names it.
func (e *LineEditor) readKey() (string, error) {
	ch, err := e.readByte()
	if err != nil {
		return "", err
	}
	if ch == 0x1b {
		ch2, err := e.readByte()
		if err != nil || ch2 != '[' {
			return "escape", nil
		}
		ch3, err := e.readByte()
		if err != nil {
			return "escape", nil
		}
		switch ch3 {
		case 'A':
			return "up", nil
		case 'B':
			return "down", nil
		case 'C':
			return "right", nil
		case 'D':
			return "left", nil
		case 'H':
			return "home", nil
		case 'F':
			return "end", nil
		case '3':
			e.readByte() // ~
			return "delete", nil
		}
		if ch3 < 0x40 || ch3 > 0x7e {
			e.skipToTerminator()
		}
		return e.readKey()
	}

	switch ch {
	case 0x01:
		return "home", nil
	case 0x03:
		return "ctrl-c", nil
	case 0x04:
		return "ctrl-d", nil
	case 0x05:
		return "end", nil
	case 0x0d, 0x0a:
		return "enter", nil
	case 0x7f, 0x08:
		return "backspace", nil
	case 0x15:
		return "ctrl-u", nil
	}
	if ch >= 0x80 {
		return e.readRune(ch)
	}
	return string(rune(ch)), nil
}

// readRune completes a multi-byte UTF-8 sequence starting with lead.
func (e *LineEditor) readRune(lead byte) (string, error) {
	n := 0
	switch {
	case lead&0xe0 == 0xc0:
		n = 1
	case lead&0xf0 == 0xe0:
		n = 2
	case lead&0xf8 == 0xf0:
		n = 3
	}
	buf := []byte{lead}
	for range n {
		b, err := e.readByte()
		if err != nil {
			return "", err
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}

func (e *LineEditor) render(prompt string) {
	fmt.Fprint(e.out, "\r\033[K", prompt, string(e.line))
	fmt.Fprintf(e.out, "\r\033[%dC", len([]rune(prompt))+e.cursor)
}

func (e *LineEditor) setLine(s string) {
	e.line = []rune(s)
	e.cursor = len(e.line)
}

// ReadLine reads one line. It returns io.EOF on Ctrl-D at an empty line
// and errInterrupted on Ctrl-C.
func (e *LineEditor) ReadLine(prompt string) (string, error) {
	if err := e.enterRawMode(); err != nil {
		return "", err
	}
	defer e.exitRawMode()

	e.line, e.cursor = nil, 0
	e.histPos = len(e.history)
	e.render(prompt)
	for {
		key, err := e.readKey()
		if err != nil {
			return "", err
		}
		switch key {
		case "enter":
			fmt.Fprint(e.out, "\r\n")
			line := string(e.line)
			if line != "" {
				e.history = append(e.history, line)
			}
			return line, nil
		case "ctrl-c":
			fmt.Fprint(e.out, "^C\r\n")
			return "", errInterrupted
		case "ctrl-d":
			if len(e.line) == 0 {
				fmt.Fprint(e.out, "\r\n")
				return "", io.EOF
			}
			if e.cursor < len(e.line) {
				e.line = append(e.line[:e.cursor], e.line[e.cursor+1:]...)
			}
		case "backspace":
			if e.cursor > 0 {
				e.line = append(e.line[:e.cursor-1], e.line[e.cursor:]...)
				e.cursor--
			}
		case "delete":
			if e.cursor < len(e.line) {
				e.line = append(e.line[:e.cursor], e.line[e.cursor+1:]...)
			}
		case "left":
			if e.cursor > 0 {
				e.cursor--
			}
		case "right":
			if e.cursor < len(e.line) {
				e.cursor++
			}
		case "home":
			e.cursor = 0
		case "end":
			e.cursor = len(e.line)
		case "ctrl-u":
			e.line, e.cursor = e.line[e.cursor:], 0
		case "up":
			if e.histPos > 0 {
				e.histPos--
				e.setLine(e.history[e.histPos])
			}
		case "down":
			if e.histPos < len(e.history)-1 {
				e.histPos++
				e.setLine(e.history[e.histPos])
			} else {
				e.histPos = len(e.history)
				e.setLine("")
			}
		case "escape":
		default:
			r := []rune(key)
			e.line = append(e.line[:e.cursor], append(r, e.line[e.cursor:]...)...)
			e.cursor += len(r)
		}
		e.render(prompt)
	}
}
