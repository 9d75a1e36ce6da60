package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/abdul-hamid-achik/riskproxy/packages/tokens"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var tokensJSONFlag bool

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Inspect harvested credentials",
}

var tokensShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the tracked tokens in the credential file",
	Long: `Show the tracked tokens in the credential file. Values are masked
unless --verbose is given.

Examples:
  riskproxy tokens show
  riskproxy tokens show --verbose
  riskproxy tokens show --json`,
	Args: cobra.NoArgs,
	RunE: tokensShowCommand,
}

var tokensGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print one raw token value",
	Long: `Print one raw token value, suitable for shell scripts.

Examples:
  riskproxy tokens get JSESSIONID`,
	Args: cobra.ExactArgs(1),
	RunE: tokensGetCommand,
}

func init() {
	tokensShowCmd.Flags().BoolVar(&tokensJSONFlag, "json", false, "Print the credential file as JSON")
	tokensCmd.AddCommand(tokensShowCmd)
	tokensCmd.AddCommand(tokensGetCmd)
}

// readCredentials loads and validates the credential file.
func readCredentials() (tokens.Set, []byte, error) {
	cfg, err := loadConfig()
	if err != nil {
		return tokens.Set{}, nil, err
	}
	path := cfg.CredentialsPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return tokens.Set{}, nil, withExitCode(ExitConfigError, fmt.Errorf("reading credentials: %w", err))
	}
	if err := tokens.ValidateRecord(data); err != nil {
		return tokens.Set{}, nil, withExitCode(ExitConfigError, fmt.Errorf("%s: %w", path, err))
	}
	return tokenSet(cfg), data, nil
}

func tokensShowCommand(cmd *cobra.Command, args []string) error {
	set, data, err := readCredentials()
	if err != nil {
		return err
	}

	if tokensJSONFlag {
		fmt.Fprintln(cmd.OutOrStdout(), gjson.GetBytes(data, "@pretty").String())
		return nil
	}

	values := make(map[tokens.Name]string)
	for _, name := range set.Names() {
		if v := gjson.GetBytes(data, string(name)); v.Exists() && v.String() != "" {
			values[name] = v.String()
		}
	}
	var lastUpdated time.Time
	if v := gjson.GetBytes(data, tokens.LastUpdatedKey); v.Exists() {
		lastUpdated, _ = time.Parse(time.RFC3339Nano, v.String())
	}

	newConsole(cmd).FormatTokens(set, values, lastUpdated)
	return nil
}

func tokensGetCommand(cmd *cobra.Command, args []string) error {
	set, data, err := readCredentials()
	if err != nil {
		return err
	}

	name := tokens.Name(args[0])
	if !set.Tracked(name) {
		return withExitCode(ExitUsageError, fmt.Errorf("%s is not a tracked token", name))
	}
	v := gjson.GetBytes(data, string(name))
	if !v.Exists() || v.String() == "" {
		return withExitCode(ExitNotFound, fmt.Errorf("%s has not been captured", name))
	}
	fmt.Fprintln(cmd.OutOrStdout(), v.String())
	return nil
}
