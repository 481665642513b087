package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docqa/internal/format"
)

var searchFlags struct {
	k      int
	format string
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the nearest passages and their confidence tier without generating an answer",
	Long: `Runs retrieval only. Useful for calibrating retrieval.thresholds against
your embedder: the Tier column shows what each distance would map to.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.IntVarP(&searchFlags.k, "k", "k", 0, "Passages to retrieve (default retrieval.k)")
	f.StringVar(&searchFlags.format, "format", "table", "Output format: table or markdown")
}

func runSearch(cmd *cobra.Command, args []string) error {
	mode, err := format.ParseMode(searchFlags.format)
	if err != nil {
		return err
	}
	if searchFlags.k > 0 {
		cfg.Retrieval.K = searchFlags.k
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := requestContext(cmd.Context(), cfg)
	defer cancel()
	res, err := a.retriever.Retrieve(ctx, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, format.Hits(mode, res.Chunks, a.classifier, cfg.Retrieval.ScorePrecision))
	if !res.Empty() {
		fmt.Fprintf(out, "best=%s tier=%s\n", a.classifier.FormatScore(res.BestScore), res.Tier)
	}
	if res.Annotation != "" {
		fmt.Fprintln(out, res.Annotation)
	}
	return nil
}
