package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/exthost/internal/contribution"
	"github.com/spf13/cobra"
)

func newWhenCmd() *cobra.Command {
	var (
		sets    []string
		ctxJSON string
	)
	cmd := &cobra.Command{
		Use:   "when EXPR",
		Short: "Evaluate a when-expression",
		Long: `when evaluates a contribution when-expression against a context built from
--context JSON and --set key=value pairs, and prints true or false.`,
		Example: `  exthost when 'resource.language == go && !editor.readOnly' --set resource.language=go
  exthost when 'resource.path =~ /_test\.go$/' --context '{"resource":{"path":"a_test.go"}}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, err := contribution.Compile(args[0])
			if err != nil {
				return err
			}
			ctx, err := whenContext(ctxJSON, sets)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), expr.Eval(ctx))
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&sets, "set", "s", nil, "context key=value (repeatable)")
	cmd.Flags().StringVar(&ctxJSON, "context", "", "context as a JSON object")
	return cmd
}

func whenContext(raw string, sets []string) (contribution.Context, error) {
	ctx := contribution.Context{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &ctx); err != nil {
			return nil, fmt.Errorf("--context: %w", err)
		}
	}
	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--set %q: want key=value", kv)
		}
		ctx[key] = contextValue(value)
	}
	return ctx, nil
}

// contextValue reads booleans and numbers; anything else is a string.
func contextValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
