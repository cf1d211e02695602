package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"matrixlink/device"
	"matrixlink/host/link"
	"matrixlink/imaging"
	"matrixlink/matrix"
)

var errQuit = errors.New("quit")

// shell is the interactive command loop. It edits a local matrix and pushes
// it to the device over the link
type shell struct {
	matrix *matrix.Matrix
	link   *link.Link
	mode   link.Mode
	out    io.Writer

	// remote is the in-memory device during a dry run
	remote *device.Receiver
}

func newShell(m *matrix.Matrix, l *link.Link, mode link.Mode, out io.Writer) *shell {
	return &shell{matrix: m, link: l, mode: mode, out: out}
}

// run reads commands until EOF or quit
func (s *shell) run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			break
		}

		args, err := shlex.Split(scanner.Text())
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}

		if err := s.exec(args); err != nil {
			if errors.Is(err, errQuit) {
				fmt.Fprintln(s.out, "Goodbye!")
				return nil
			}
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
	return scanner.Err()
}

func (s *shell) exec(args []string) error {
	cmd, args := strings.ToLower(args[0]), args[1:]

	switch cmd {
	case "quit", "exit", "q":
		return errQuit

	case "help", "?":
		s.printHelp()

	case "show":
		fmt.Fprintln(s.out, s.matrix)

	case "set":
		if len(args) != 3 {
			return errors.New("usage: set <row> <col> <rrggbb>")
		}
		row, col, err := parsePosition(args[0], args[1])
		if err != nil {
			return err
		}
		r, g, b, err := parseColor(args[2])
		if err != nil {
			return err
		}
		return s.matrix.SetColor(row, col, r, g, b)

	case "fill":
		if len(args) != 1 {
			return errors.New("usage: fill <rrggbb>")
		}
		r, g, b, err := parseColor(args[0])
		if err != nil {
			return err
		}
		s.matrix.Fill(r, g, b)

	case "clear":
		s.matrix.Clear()

	case "load":
		return s.load(args)

	case "mode":
		if len(args) != 1 {
			fmt.Fprintf(s.out, "Send mode: %s\n", s.mode)
			return nil
		}
		mode, err := link.ParseMode(args[0])
		if err != nil {
			return err
		}
		s.mode = mode

	case "send":
		return s.send(args)

	case "stats":
		s.printStats()

	default:
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmd)
	}
	return nil
}

func (s *shell) load(args []string) error {
	if len(args) != 1 && len(args) != 3 {
		return errors.New("usage: load <image> [row col]")
	}
	row, col := 0, 0
	if len(args) == 3 {
		var err error
		if row, col, err = parsePosition(args[1], args[2]); err != nil {
			return err
		}
	}

	img, err := imaging.Load(args[0])
	if err != nil {
		return err
	}
	n, err := imaging.Overlay(s.matrix, img, row, col)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Loaded %d pixels from %s\n", n, args[0])
	return nil
}

func (s *shell) send(args []string) error {
	var (
		res link.Result
		err error
	)

	switch {
	case len(args) == 0:
		res, err = s.link.SendMatrix(s.matrix, s.mode)
	case len(args) == 2 && args[0] == "row":
		row, perr := strconv.Atoi(args[1])
		if perr != nil {
			return fmt.Errorf("invalid row %q", args[1])
		}
		pixels, rerr := s.matrix.Row(row)
		if rerr != nil {
			return rerr
		}
		res, err = s.link.SendPixels(pixels)
	case len(args) == 1:
		mode, perr := link.ParseMode(args[0])
		if perr != nil {
			return perr
		}
		res, err = s.link.SendMatrix(s.matrix, mode)
	default:
		return errors.New("usage: send [rows|full|segments|row <n>]")
	}

	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Applied %d pixels in %d lines\n", res.Applied, res.Attempts)
	return nil
}

func (s *shell) printStats() {
	st := s.link.Stats()
	fmt.Fprintf(s.out, "Link: %d lines sent, %d retries, %d timeouts, %d rejected\n",
		st.LinesSent, st.Retries, st.Timeouts, st.Rejected)
	if s.remote != nil {
		rs := s.remote.Stats()
		fmt.Fprintf(s.out, "Device: %d lines, %d pixels, %d mismatches, %d malformed, %d overflows\n",
			rs.Lines, rs.Records, rs.Mismatches, rs.Malformed, rs.Overflows)
	}
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.out, "\nAvailable commands:")
	fmt.Fprintln(s.out, "  help                    - Show this help message")
	fmt.Fprintln(s.out, "  show                    - Print the local matrix")
	fmt.Fprintln(s.out, "  set <row> <col> <rgb>   - Set one cell, colour as rrggbb")
	fmt.Fprintln(s.out, "  fill <rgb>              - Set every cell")
	fmt.Fprintln(s.out, "  clear                   - Set every cell to black")
	fmt.Fprintln(s.out, "  load <img> [row col]    - Overlay an SVG/PNG/JPEG/GIF/BMP image")
	fmt.Fprintln(s.out, "  mode [rows|full|segments] - Show or change the send mode")
	fmt.Fprintln(s.out, "  send [mode|row <n>]     - Send the matrix to the device")
	fmt.Fprintln(s.out, "  stats                   - Show link counters")
	fmt.Fprintln(s.out, "  quit/exit/q             - Exit the program")
	fmt.Fprintln(s.out)
}

func parsePosition(rowArg, colArg string) (int, int, error) {
	row, err := strconv.Atoi(rowArg)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid row %q", rowArg)
	}
	col, err := strconv.Atoi(colArg)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid column %q", colArg)
	}
	return row, col, nil
}

// parseColor accepts rrggbb with an optional '#' or "0x" prefix
func parseColor(s string) (r, g, b uint8, err error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(s), "#"), "0x")
	if len(s) != 6 {
		return 0, 0, 0, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid colour %q", s)
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil
}
