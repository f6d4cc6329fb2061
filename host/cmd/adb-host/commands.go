package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"adbridge/host/bridge"
)

func newSendCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "send <word>...",
		Short: "Send command words and print the replies",
		Long: `Send one or more command words. A word is a raw byte (0x3c, 60,
0b00111100) or talk:<addr>:<reg>, listen:<addr>:<reg>, flush:<addr>,
sendreset.`,
		Example: "  adb-host send talk:3:0 talk:2:0",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			words, err := parseWords(args)
			if err != nil {
				return err
			}
			b, _, err := opts.connect()
			if err != nil {
				return err
			}
			defer b.Close()

			for _, w := range words {
				r, err := b.Command(w)
				if err != nil {
					return err
				}
				printReply(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}
}

func newResetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Perform a global bus reset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, err := opts.connect()
			if err != nil {
				return err
			}
			defer b.Close()
			return b.Reset()
		},
	}
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the bridge cycle counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, err := opts.connect()
			if err != nil {
				return err
			}
			defer b.Close()

			st, err := b.Stats()
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func parseWords(args []string) ([]bridge.Word, error) {
	words := make([]bridge.Word, 0, len(args))
	for _, a := range args {
		w, err := bridge.ParseWord(a)
		if err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	return words, nil
}

func printReply(w io.Writer, r bridge.Reply) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-12s 0x%02x ->", r.Word, uint8(r.Word))
	if r.Empty() {
		sb.WriteString(" (no reply)")
	}
	for _, b := range r.Data {
		fmt.Fprintf(&sb, " %02x", b)
	}
	if r.Partial {
		sb.WriteString(" [partial]")
	}
	fmt.Fprintln(w, sb.String())
}

func printStats(w io.Writer, st bridge.Stats) {
	fmt.Fprintf(w, "commands=%d replies=%d empty=%d partial=%d errors=%d\n",
		st.Commands, st.Replies, st.Empty, st.Partial, st.Errors)
}
