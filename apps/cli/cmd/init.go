package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/riskproxy/packages/core/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var forceInit bool

// examplePayload is the unfiltered RSK335 search with live-token placeholders.
const examplePayload = "MCB_SearchWC_wca_bpid=DFLT&MCB_SearchWC_wca_tmcp=DFLT&MCB_SearchWC_wca_cm=DFLT" +
	"&MCB_SearchWC_wca_category=&MCB_SearchWC_wca_segment=&MCB_SearchWC_wca_asondate=" +
	"&MCB_SearchWC_wca_alertlevel=&sQuery=Client+Code++Equals++DFLT+AND+TM+%2F+CP++Equals++DFLT+AND+CM++Equals++DFLT" +
	"&IXHRts={{timestamp}}&IXHRnonce={{nonce}}\n"

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new riskproxy project",
	Long: `Initialize a new riskproxy project in the current directory.

This creates:
  - riskproxy.yaml - Configuration file with the default target and tokens
  - payload.txt    - Auto-capture payload template

Examples:
  riskproxy init
  riskproxy init --force`,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, "riskproxy.yaml")
	payloadFile := filepath.Join(cwd, "payload.txt")

	if !forceInit {
		for _, f := range []string{configFile, payloadFile} {
			if _, err := os.Stat(f); err == nil {
				return withExitCode(ExitUsageError, fmt.Errorf("file already exists: %s (use --force to overwrite)", f))
			}
		}
	}

	cfg := config.DefaultConfig()
	cfg.Payload.TemplateFile = "payload.txt"
	cfg.Payload.RefreshCookies = config.BoolPtr(true)

	configYAML, err := marshalConfig(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(configFile, configYAML, 0644); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	if err := os.WriteFile(payloadFile, []byte(examplePayload), 0644); err != nil {
		return fmt.Errorf("failed to create payload file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", payloadFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\nNext steps:\n")
	fmt.Fprintf(cmd.OutOrStdout(), "  1. riskproxy serve\n")
	fmt.Fprintf(cmd.OutOrStdout(), "  2. Browse the margin page once through the proxy\n")
	fmt.Fprintf(cmd.OutOrStdout(), "  3. riskproxy poll\n")

	return nil
}

// marshalConfig encodes cfg with durations written as "60s" rather than
// nanosecond integers.
func marshalConfig(cfg *config.Config) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, err
	}
	durations := map[string]string{
		"interval": cfg.Poll.Interval.String(),
		"timeout":  cfg.Poll.Timeout.String(),
	}
	if poll := mappingValue(&doc, "poll"); poll != nil {
		for key, value := range durations {
			if n := mappingValue(poll, key); n != nil {
				n.Tag = "!!str"
				n.Value = value
			}
		}
	}
	return yaml.Marshal(&doc)
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}
