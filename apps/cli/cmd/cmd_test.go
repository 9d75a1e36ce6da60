package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/abdul-hamid-achik/riskproxy/packages/core/config"
	"github.com/abdul-hamid-achik/riskproxy/packages/rewrite"
	"github.com/abdul-hamid-achik/riskproxy/packages/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, exitCode(nil))
	assert.Equal(t, ExitFailure, exitCode(errors.New("boom")))
	assert.Equal(t, ExitConfigError, exitCode(withExitCode(ExitConfigError, errors.New("bad"))))
	assert.Equal(t, ExitNotFound, exitCode(fmt.Errorf("wrapped: %w", withExitCode(ExitNotFound, nil))))
}

func TestExitError_Unwrap(t *testing.T) {
	base := errors.New("dial failed")
	err := withExitCode(ExitNetworkError, base)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "dial failed", err.Error())
	assert.Empty(t, withExitCode(ExitNotFound, nil).Error())
}

func TestUnknownPlaceholders(t *testing.T) {
	tmpl := rewrite.NewTemplate("a={{timestamp}}&b={{nonce}}&c={{JSESSIONID}}&d={{uuid()}}&e={{clientCode}}&f={{missing()}}", nil)
	assert.Equal(t, []string{"clientCode", "missing()"}, unknownPlaceholders(tmpl, tokens.DefaultSet()))
}

func TestExamplePayload_HasDynamicPlaceholders(t *testing.T) {
	tmpl := rewrite.NewTemplate(examplePayload, nil)
	assert.Equal(t, []string{"timestamp", "nonce"}, tmpl.Placeholders())
	assert.Empty(t, unknownPlaceholders(tmpl, tokens.DefaultSet()))
}

func TestNewAlertManager(t *testing.T) {
	assert.Nil(t, newAlertManager(config.AlertConfig{Threshold: 80, On: "change"}))

	m := newAlertManager(config.AlertConfig{
		Threshold:    80,
		On:           "breach",
		SlackWebhook: "https://hooks.slack.com/services/T/B/X",
		TeamsWebhook: "https://example.webhook.office.com/x",
	})
	require.NotNil(t, m)
	assert.Equal(t, 2, m.Len())
}

func TestMarshalConfig_RoundTrip(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Payload.TemplateFile = "payload.txt"

	data, err := marshalConfig(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "interval: 1m0s")
	assert.Contains(t, string(data), "timeout: 30s")

	dir := t.TempDir()
	path := filepath.Join(dir, "riskproxy.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))

	loaded, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Poll.Interval, loaded.Poll.Interval)
	assert.Equal(t, cfg.Target, loaded.Target)
	assert.Equal(t, filepath.Join(dir, "payload.txt"), loaded.Payload.TemplateFile)
	require.NoError(t, loaded.Validate())
}
