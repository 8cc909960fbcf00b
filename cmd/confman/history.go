package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/confman-io/confman/internal/history"
	"github.com/confman-io/confman/internal/schema"
)

// newCommitCommand creates the commit subcommand: the full pipeline
// ending in a durable snapshot.
func newCommitCommand(a *app) *cobra.Command {
	var (
		schemaPath string
		strict     bool
		formatName string
		author     string
	)

	cmd := &cobra.Command{
		Use:   "commit <file> [file...]",
		Short: "Validate and commit configuration to the history store",
		Long: `Commit runs the full pipeline: parse the given sources, resolve
environment references, merge, validate against the schema, encrypt
sensitive fields and append a snapshot to the history store. A failed
validation commits nothing. Commits are serialized across processes by
an advisory lock next to the store file.

Example:
  confman commit --schema schema.yaml base.yaml production.yaml
  confman commit --author deploy-bot config.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sch *schema.Schema
			if schemaPath != "" {
				var err error
				if sch, err = loadSchema(schemaPath); err != nil {
					return err
				}
			}

			sources, err := readSources(args, formatName)
			if err != nil {
				return err
			}

			store, cleanup, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			p, err := a.newPipeline(sch, strict)
			if err != nil {
				return err
			}
			p.Store = store
			p.Lock = history.NewCommitLock(a.cfg.Store.Path, a.cfg.LockWait())

			outcome, err := p.Run(cmd.Context(), sources, commitAuthor(author), true)
			if err != nil {
				return err
			}

			fmt.Printf("committed snapshot %d (%s)\n", outcome.Snapshot.Seq, outcome.Snapshot.Hash)
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "schema file to validate against")
	cmd.Flags().BoolVar(&strict, "strict", false, "reject fields absent from the schema")
	cmd.Flags().StringVarP(&formatName, "format", "f", "", "input format (default: detect from extension)")
	cmd.Flags().StringVar(&author, "author", "", "author recorded on the snapshot (default: $USER)")

	return cmd
}

// commitAuthor falls back to the current user when no author is given.
func commitAuthor(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv("USER")
}

// newHistoryCommand creates the history subcommand: list snapshots,
// newest first.
func newHistoryCommand(a *app) *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List committed snapshots, newest first",
		Long: `History lists snapshot metadata from the store: sequence number, id,
content hash, author and commit time. Use --limit and --offset to page
through long histories.

Example:
  confman history
  confman history --limit 10 --offset 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, cleanup, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := store.List(cmd.Context(), history.Filter{Limit: limit, Offset: offset})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tID\tHASH\tAUTHOR\tCREATED")
			for _, s := range result.Snapshots {
				fmt.Fprintf(w, "%d\t%s\t%.12s\t%s\t%s\n",
					s.Seq, s.ID, s.Hash, s.Author, s.CreatedAt.Format(time.RFC3339))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("%d of %d snapshot(s)\n", len(result.Snapshots), result.Total)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum snapshots to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "pagination offset")

	return cmd
}

// newDiffCommand creates the diff subcommand.
func newDiffCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <seq> <seq>",
		Short: "Show the difference between two snapshots",
		Long: `Diff compares two snapshots field by field and prints every added,
removed and changed path. Sensitive fields are compared but never shown
in plaintext.

Example:
  confman diff 1 3`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seqA, err := parseSeq(args[0])
			if err != nil {
				return err
			}
			seqB, err := parseSeq(args[1])
			if err != nil {
				return err
			}

			store, cleanup, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			deltas, err := store.Diff(cmd.Context(), seqA, seqB)
			if err != nil {
				return err
			}
			if len(deltas) == 0 {
				fmt.Println("snapshots are identical")
				return nil
			}

			for _, d := range deltas {
				switch d.Change {
				case history.ChangeAdded:
					fmt.Printf("+ %s: %s\n", d.Path, d.New)
				case history.ChangeRemoved:
					fmt.Printf("- %s: %s\n", d.Path, d.Old)
				case history.ChangeChanged:
					fmt.Printf("~ %s: %s -> %s\n", d.Path, d.Old, d.New)
				}
			}
			return nil
		},
	}

	return cmd
}

// newRollbackCommand creates the rollback subcommand.
func newRollbackCommand(a *app) *cobra.Command {
	var (
		output   string
		out      string
		doCommit bool
		author   string
	)

	cmd := &cobra.Command{
		Use:   "rollback <seq>",
		Short: "Restore the configuration of an earlier snapshot",
		Long: `Rollback prints the exact tree of the given snapshot. The store is
not modified unless --commit is set, in which case the restored state
is appended as a new snapshot - history is never rewritten.

Example:
  confman rollback 3
  confman rollback --commit --author ops 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := parseSeq(args[0])
			if err != nil {
				return err
			}

			store, cleanup, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			tree, err := store.Rollback(cmd.Context(), seq)
			if err != nil {
				return err
			}

			if doCommit {
				lock := history.NewCommitLock(a.cfg.Store.Path, a.cfg.LockWait())
				err := lock.WithLock(cmd.Context(), func(ctx context.Context) error {
					snap, err := store.Commit(ctx, tree, commitAuthor(author))
					if err != nil {
						return err
					}
					fmt.Printf("committed snapshot %d (rollback of %d)\n", snap.Seq, seq)
					return nil
				})
				if err != nil {
					return err
				}
			}
			return writeTree(tree, output, out)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "O", "json", "output format: json, yaml, toml or ini")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write output to file instead of stdout")
	cmd.Flags().BoolVar(&doCommit, "commit", false, "commit the restored state as a new snapshot")
	cmd.Flags().StringVar(&author, "author", "", "author recorded on the snapshot (default: $USER)")

	return cmd
}

// newPruneCommand creates the prune subcommand.
func newPruneCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune <keep-from-seq>",
		Short: "Permanently delete snapshots older than a sequence number",
		Long: `Prune deletes every snapshot with a sequence number below the given
one. This is the only operation that removes history, and it cannot be
undone.

Example:
  confman prune 100`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keepFrom, err := parseSeq(args[0])
			if err != nil {
				return err
			}

			store, cleanup, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := store.Prune(cmd.Context(), keepFrom)
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d snapshot(s)\n", n)
			return nil
		},
	}

	return cmd
}

// parseSeq parses a sequence number argument.
func parseSeq(arg string) (int64, error) {
	seq, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || seq < 1 {
		return 0, fmt.Errorf("invalid sequence number %q", arg)
	}
	return seq, nil
}
