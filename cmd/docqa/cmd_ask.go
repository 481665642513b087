package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askFlags struct {
	json        bool
	showContext bool
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question from the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	f := askCmd.Flags()
	f.BoolVar(&askFlags.json, "json", false, "Print the question, context and answer as JSON")
	f.BoolVar(&askFlags.showContext, "show-context", false, "Print the retrieved context before the answer")
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	question := strings.Join(args, " ")
	ctx, cancel := requestContext(cmd.Context(), cfg)
	defer cancel()
	env, err := a.pipeline.Answer(ctx, question)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if askFlags.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	}
	if askFlags.showContext {
		fmt.Fprintf(out, "Context:\n%s\n\n", env.Context)
	}
	if env.Empty() {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: the model returned an empty answer")
		return nil
	}
	fmt.Fprintln(out, env.Answer)
	return nil
}
