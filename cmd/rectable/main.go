// Command rectable is a small tool for creating and inspecting
// rectable store files.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bsm/rectable"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rectable:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rectable",
		Short:         "Create and inspect rectable store files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(infoCmd(), catCmd(), getCmd(), packCmd())
	return cmd
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE",
		Short: "Print store metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rectable.OpenFile(args[0], nil)
			if err != nil {
				return err
			}
			defer r.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "records:    %d\n", r.Len())
			fmt.Fprintf(out, "groups:     %d\n", r.NumGroups())
			fmt.Fprintf(out, "group size: %d\n", r.GroupSize())
			if c := r.Compression(); c == rectable.ZstdCompression || c == rectable.BrotliCompression {
				fmt.Fprintf(out, "codec:      %s:%d\n", c, r.Level())
			} else {
				fmt.Fprintf(out, "codec:      %s\n", c)
			}
			return nil
		},
	}
}

func catCmd() *cobra.Command {
	var limit int
	var opts string

	cmd := &cobra.Command{
		Use:   "cat FILE",
		Short: "Stream records to stdout, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ro, err := rectable.ParseReaderOptions(opts)
			if err != nil {
				return err
			}

			r, err := rectable.OpenFile(args[0], ro)
			if err != nil {
				return err
			}
			defer r.Close()

			out := bufio.NewWriter(cmd.OutOrStdout())
			defer out.Flush()

			iter := r.Iterate()
			defer iter.Release()

			for iter.Next() {
				if limit >= 0 && iter.Index() >= limit {
					break
				}
				if _, err := out.Write(iter.Record()); err != nil {
					return err
				}
				if err := out.WriteByte('\n'); err != nil {
					return err
				}
			}
			return iter.Err()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", -1, "stop after this many records")
	cmd.Flags().StringVar(&opts, "options", "readahead_buffer_size:4194304,max_parallelism:4", "reader option string")
	return cmd
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get FILE INDEX...",
		Short: "Print records by index",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			indices := make([]int, 0, len(args)-1)
			for _, arg := range args[1:] {
				i, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("invalid record index %q", arg)
				}
				indices = append(indices, i)
			}

			r, err := rectable.OpenFile(args[0], nil)
			if err != nil {
				return err
			}
			defer r.Close()

			recs, err := r.GetBatch(indices)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", rec)
			}
			return nil
		},
	}
}

func packCmd() *cobra.Command {
	var opts string

	cmd := &cobra.Command{
		Use:   "pack FILE",
		Short: "Pack lines from stdin into a store, one record per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wo, err := rectable.ParseWriterOptions(opts)
			if err != nil {
				return err
			}

			w, err := rectable.CreateFile(args[0], wo)
			if err != nil {
				return err
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 1<<20), 1<<26)
			for scanner.Scan() {
				if err := w.Append(scanner.Bytes()); err != nil {
					_ = w.Close()
					return err
				}
			}
			if err := scanner.Err(); err != nil {
				_ = w.Close()
				return err
			}

			if err := w.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "packed %d records into %s\n", w.NumRecords(), args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&opts, "options", "group_size:100,snappy", "writer option string")
	return cmd
}
