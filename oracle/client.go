// Package oracle talks to the external solution-table server that answers,
// for any position and ply, the exact side-to-move value of every column.
// The wire protocol is line-based with no request IDs, so the engine runs
// one oracle process per worker instead of multiplexing.
package oracle

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/domino14/c4census/board"
)

// IllegalMove is the sentinel stored in Result.Values for a column that
// cannot be played.
const IllegalMove = int8(2)

// Result is one oracle answer: whether the queried position is terminal,
// and the value of each of the seven moves from the side to move (-1 loss,
// 0 draw, +1 win, or IllegalMove).
type Result struct {
	Terminal bool
	Values   [board.NumCols]int8
}

// Client owns one oracle subprocess and its three byte streams. A Client
// must never be shared between goroutines.
type Client struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner
	stderr  bytes.Buffer
	done    bool
}

// Start launches an oracle that reads its solution tables from solutionDir.
// inMemory asks the oracle to load its tables into memory rather than
// mapping them.
func Start(binary, solutionDir string, inMemory bool) (*Client, error) {
	args := []string{solutionDir, "--server", "--compact"}
	if inMemory {
		args = append(args, "-Xmmap")
	}
	return StartCommand(binary, args...)
}

// StartCommand launches an arbitrary oracle command line. Tests use this
// to run scripted stand-ins for the real oracle.
func StartCommand(name string, args ...string) (*Client, error) {
	cmd := exec.Command(name, args...)
	c := &Client{cmd: cmd}
	cmd.Stderr = &c.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("oracle stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("oracle stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting oracle %s: %w", name, err)
	}
	c.stdin = stdin
	c.scanner = bufio.NewScanner(stdout)
	log.Debug().Str("binary", name).Int("pid", cmd.Process.Pid).Msg("oracle-started")
	return c, nil
}

// Probe queries pos at the given ply. Response lines that do not match the
// compact grammar (warnings, progress chatter) are discarded. A response
// stream that closes before a compact line arrives is fatal; whatever the
// oracle wrote to stderr is folded into the error.
func (c *Client) Probe(ply int, pos board.Position) (Result, error) {
	if _, err := fmt.Fprintf(c.stdin, "B %d %d\n", ply, uint64(pos)); err != nil {
		// a write failure means the oracle died; report it with its stderr
		return Result{}, c.deadErr()
	}
	for c.scanner.Scan() {
		if res, ok := parseCompactLine(c.scanner.Text()); ok {
			return res, nil
		}
	}
	return Result{}, c.deadErr()
}

// deadErr reaps the dead oracle and builds an error carrying its stderr.
func (c *Client) deadErr() error {
	scanErr := c.scanner.Err()
	c.stdin.Close()
	waitErr := c.cmd.Wait()
	c.done = true
	diag := strings.TrimSpace(c.stderr.String())
	if diag == "" {
		diag = "(no stderr output)"
	}
	cause := waitErr
	if cause == nil {
		cause = scanErr
	}
	if cause != nil {
		return fmt.Errorf("oracle terminated unexpectedly (%v); stderr:\n%s", cause, diag)
	}
	return fmt.Errorf("oracle terminated unexpectedly; stderr:\n%s", diag)
}

// Close shuts the oracle down: close its request stream, signal
// termination, then reap the process.
func (c *Client) Close() error {
	if c.done {
		return nil
	}
	c.done = true
	c.stdin.Close()
	if c.cmd.Process != nil {
		c.cmd.Process.Signal(syscall.SIGTERM)
	}
	err := c.cmd.Wait()
	var xerr *exec.ExitError
	if errors.As(err, &xerr) {
		// dying on SIGTERM is the expected exit
		return nil
	}
	return err
}

// parseCompactLine parses "<terminal> <v0> ... <v6>", where terminal is 0
// or 1 and each vi is -1, 0, 1 or "." for an illegal move.
func parseCompactLine(s string) (Result, bool) {
	fields := strings.Fields(s)
	if len(fields) != board.NumCols+1 {
		return Result{}, false
	}
	var res Result
	switch fields[0] {
	case "0":
	case "1":
		res.Terminal = true
	default:
		return Result{}, false
	}
	for i, f := range fields[1:] {
		if f == "." {
			res.Values[i] = IllegalMove
			continue
		}
		v, err := strconv.Atoi(f)
		if err != nil || v < -1 || v > 1 {
			return Result{}, false
		}
		res.Values[i] = int8(v)
	}
	return res, true
}
