package cmd

import (
	"fmt"

	"github.com/abdul-hamid-achik/riskproxy/packages/builtin"
	"github.com/abdul-hamid-achik/riskproxy/packages/rewrite"
	"github.com/abdul-hamid-achik/riskproxy/packages/tokens"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and payload template",
	Long: `Validate the configuration file and the payload template without
starting the proxy.

Examples:
  riskproxy validate
  riskproxy validate --config ./riskproxy.yaml`,
	Args: cobra.NoArgs,
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error in config: %v\n", err)
		return withExitCode(ExitConfigError, nil)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Valid: config\n")

	text, err := cfg.LoadTemplate()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error in payload template: %v\n", err)
		return withExitCode(ExitConfigError, nil)
	}
	if text == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "No payload template: auto-capture rewriting disabled\n")
		return nil
	}

	for _, name := range unknownPlaceholders(rewrite.NewTemplate(text, nil), tokenSet(cfg)) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: placeholder {{%s}} will not be filled\n", name)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Valid: payload template\n")
	return nil
}

// unknownPlaceholders returns placeholders that are neither a token nor a
// helper call.
func unknownPlaceholders(tmpl *rewrite.Template, set tokens.Set) []string {
	funcs := builtin.NewRegistry(nil)
	var unknown []string
	for _, name := range tmpl.Placeholders() {
		switch {
		case name == rewrite.PlaceholderTimestamp, name == rewrite.PlaceholderNonce:
		case set.Tracked(tokens.Name(name)):
		default:
			if _, ok := funcs.Call(name); !ok {
				unknown = append(unknown, name)
			}
		}
	}
	return unknown
}
