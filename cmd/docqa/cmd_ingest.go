package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docqa/internal/format"
	"docqa/internal/loader"
)

var ingestFlags struct {
	replace bool
	format  string
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|dir|glob>...",
	Short: "Build the index from PDF, text and Markdown files",
	Long: `Loads the given files, splits them into chunks, embeds every chunk and
replaces the index contents. Directories are walked recursively.

With --replace the files are first copied into ingest.data_dir, replacing
whatever was there, and the index is rebuilt from that directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.BoolVar(&ingestFlags.replace, "replace", false, "Copy the inputs into ingest.data_dir, replacing its contents, before indexing")
	f.StringVar(&ingestFlags.format, "format", "table", "Report format: table or markdown")
}

func runIngest(cmd *cobra.Command, args []string) error {
	mode, err := format.ParseMode(ingestFlags.format)
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	paths := args
	if ingestFlags.replace {
		files, err := loader.Expand(args)
		if err != nil {
			return err
		}
		if paths, err = loader.ReplaceDir(cfg.Ingest.DataDir, files); err != nil {
			return err
		}
	}

	rep, err := a.index.Ingest(cmd.Context(), paths)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, format.Report(mode, rep))
	if rep.Summary != "" {
		fmt.Fprintf(out, "\nSummary:\n%s\n", rep.Summary)
	}
	return nil
}
