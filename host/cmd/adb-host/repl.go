package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/shlex"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"adbridge/host/bridge"
)

var errQuit = errors.New("quit")

func newReplCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive session with the bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, log, err := opts.connect()
			if err != nil {
				return err
			}
			defer b.Close()

			s := &session{bridge: b, out: cmd.OutOrStdout(), log: log}
			return s.run(context.Background(), cmd.InOrStdin())
		},
	}
}

// session is one interactive REPL on an open bridge
type session struct {
	bridge *bridge.Bridge
	out    io.Writer
	log    zerolog.Logger
}

// run reads lines until EOF, quit or an interrupt signal
func (s *session) run(parent context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	eg.Go(func() error {
		select {
		case <-sigChan:
			s.log.Info().Msg("interrupted")
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	eg.Go(func() error {
		defer cancel()
		fmt.Fprint(s.out, "> ")
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if err := s.exec(line); err != nil {
					if errors.Is(err, errQuit) {
						return nil
					}
					fmt.Fprintf(s.out, "error: %v\n", err)
				}
				fmt.Fprint(s.out, "> ")
			}
		}
	})

	return eg.Wait()
}

// exec runs one REPL line
func (s *session) exec(line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	cmd, args := tokens[0], tokens[1:]
	switch cmd {
	case "quit", "exit", "q":
		return errQuit

	case "help", "?":
		printHelp(s.out)
		return nil

	case "reset":
		if err := s.bridge.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "bus reset")
		return nil

	case "stats":
		st, err := s.bridge.Stats()
		if err != nil {
			return err
		}
		printStats(s.out, st)
		return nil

	case "configure":
		return s.configure(args)

	case "send":
		if len(args) == 0 {
			return fmt.Errorf("send needs at least one word")
		}
		return s.send(args)

	case "talk", "listen", "flush", "sendreset":
		return s.send([]string{joinWord(cmd, args)})
	}

	// a bare word is sent as is
	return s.send(tokens)
}

func (s *session) send(args []string) error {
	words, err := parseWords(args)
	if err != nil {
		return err
	}
	for _, w := range words {
		r, err := s.bridge.Command(w)
		if err != nil {
			return err
		}
		printReply(s.out, r)
	}
	return nil
}

// configure takes tolerance, timeout and capacity
func (s *session) configure(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: configure <tolerance_us> <timeout_us> <capacity>")
	}
	var v [3]uint64
	for i, a := range args {
		n, err := strconv.ParseUint(a, 10, 32)
		if err != nil {
			return fmt.Errorf("parsing %q: %w", a, err)
		}
		v[i] = n
	}

	t := s.bridge.Timing()
	t.Tolerance = uint32(v[0])
	t.PulseTimeout = uint32(v[1])
	t.SampleCapacity = int(v[2])
	if err := s.bridge.Configure(t); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "configured")
	return nil
}

func joinWord(cmd string, args []string) string {
	for _, a := range args {
		cmd += ":" + a
	}
	return cmd
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  talk <addr> <reg>       send a talk command and print the reply")
	fmt.Fprintln(w, "  listen <addr> <reg>     send a listen command")
	fmt.Fprintln(w, "  flush <addr>            send a flush command")
	fmt.Fprintln(w, "  sendreset               send the command-level reset")
	fmt.Fprintln(w, "  send <word>...          send raw words (0x3c, talk:3:0, ...)")
	fmt.Fprintln(w, "  reset                   global bus reset")
	fmt.Fprintln(w, "  configure <tol> <timeout> <capacity>")
	fmt.Fprintln(w, "  stats                   bridge counters")
	fmt.Fprintln(w, "  quit                    exit")
}
