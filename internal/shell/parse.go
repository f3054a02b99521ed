package shell

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/drochester/sketchlink/internal/sketcher"
)

// Kind classifies one line of shell input.
type Kind int

const (
	Empty Kind = iota
	Quit
	Help
	Send
)

// Input is one parsed shell line.
type Input struct {
	Kind    Kind
	Payload []byte // set when Kind is Send
}

// Parse turns a line into an Input. Recognized forms:
//
//	quit | exit      leave the shell
//	help | ?         usage summary
//	hex <digits>     hex-decoded bytes; spaces and colons between bytes ok
//	0x<digits>       same, compact
//	<macro> [arg]    a named device command (see sketcher.Macro)
//	anything else    the literal bytes of the line
func Parse(line string) (Input, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Input{Kind: Empty}, nil
	}

	word, rest, _ := strings.Cut(line, " ")
	switch strings.ToLower(word) {
	case "quit", "exit":
		return Input{Kind: Quit}, nil
	case "help", "?":
		return Input{Kind: Help}, nil
	case "hex":
		p, err := decodeHex(rest)
		if err != nil {
			return Input{}, err
		}
		return Input{Kind: Send, Payload: p}, nil
	}

	if strings.HasPrefix(line, "0x") || strings.HasPrefix(line, "0X") {
		p, err := decodeHex(line[2:])
		if err != nil {
			return Input{}, err
		}
		return Input{Kind: Send, Payload: p}, nil
	}

	if cmd, ok, err := sketcher.Macro(line); ok {
		if err != nil {
			return Input{}, err
		}
		return Input{Kind: Send, Payload: cmd}, nil
	}

	return Input{Kind: Send, Payload: []byte(line)}, nil
}

// decodeHex accepts hex digits with optional spaces or colons between
// bytes.
func decodeHex(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "").Replace(strings.TrimSpace(s))
	if clean == "" {
		return nil, errors.New("shell: empty hex payload")
	}
	p, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("shell: bad hex payload: %w", err)
	}
	return p, nil
}
