// Package shell implements the interactive loop: lines typed by the user
// go out over the transfer protocol, notifications from the projector
// print as they arrive.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/drochester/sketchlink/internal/ble/transfer"
	"github.com/drochester/sketchlink/internal/sketcher"
)

// Shell multiplexes user input and device notifications over one session.
type Shell struct {
	link   sketcher.Link
	sender *transfer.Sender
	in     io.Reader
	out    io.Writer
}

// New builds a Shell on link. Commands are short, so the frame size is
// pinned to the link's write limit and most sends are a single frame.
func New(link sketcher.Link, in io.Reader, out io.Writer) *Shell {
	return &Shell{
		link: link,
		sender: transfer.NewSender(link, transfer.Options{
			FrameSize: link.WriteLimit(),
			Retries:   transfer.DefaultOptions().Retries,
		}),
		in:  in,
		out: out,
	}
}

// Run blocks until the user quits, input hits EOF, or ctx is cancelled.
// Notifications print between prompts without blocking input; an
// interrupt is a clean exit, not an error.
func (s *Shell) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(s.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(s.out, "Connected. Type a command, \"help\" for input forms, \"quit\" to leave.")
	s.prompt()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil

		case data := <-s.link.Notifications():
			fmt.Fprintf(s.out, "\n%s\n", formatNotification(data))
			s.prompt()

		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				return nil
			}
			quit, err := s.handle(ctx, line)
			if err != nil {
				fmt.Fprintln(s.out, err)
			}
			if quit {
				return nil
			}
			s.prompt()
		}
	}
}

// handle processes one input line. The bool is true when the user asked
// to leave.
func (s *Shell) handle(ctx context.Context, line string) (bool, error) {
	in, err := Parse(line)
	if err != nil {
		return false, err
	}

	switch in.Kind {
	case Quit:
		return true, nil
	case Help:
		s.printHelp()
	case Send:
		res, err := s.sender.Send(ctx, in.Payload)
		if err != nil {
			return false, fmt.Errorf("send failed after %d frames: %w", res.FramesSent, err)
		}
		slog.Debug("[SHELL] sent", "bytes", len(in.Payload), "frames", res.FramesSent)
	}
	return false, nil
}

func (s *Shell) prompt() {
	fmt.Fprint(s.out, "sketch> ")
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, "  hex <digits>   send hex bytes, e.g. hex 01 00 00 00 50 00 02 00")
	fmt.Fprintln(s.out, "  0x<digits>     same, compact")
	fmt.Fprintf(s.out, "  %s      named device commands\n", strings.Join(sketcher.MacroNames(), ", "))
	fmt.Fprintln(s.out, "  <text>         send the literal bytes of the line")
	fmt.Fprintln(s.out, "  quit           disconnect and exit")
}

// formatNotification renders inbound bytes: printable ASCII as text,
// anything else as a hex dump.
func formatNotification(data []byte) string {
	printable := true
	for _, b := range data {
		if b == '\n' || b == '\r' || b == '\t' {
			continue
		}
		if b < 0x20 || b > 0x7e {
			printable = false
			break
		}
	}
	if printable {
		return fmt.Sprintf("device: %s", strings.TrimSpace(string(data)))
	}
	return fmt.Sprintf("device: % x", data)
}
