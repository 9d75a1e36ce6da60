package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DotEnvFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDotEnv(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected map[string]string
	}{
		{"simple", "SLACK_WEBHOOK=https://hooks.slack.com/x", map[string]string{"SLACK_WEBHOOK": "https://hooks.slack.com/x"}},
		{"export prefix", "export RISK_DIR=/var/lib/riskproxy", map[string]string{"RISK_DIR": "/var/lib/riskproxy"}},
		{"double quoted", `CHANNEL="#risk desk"`, map[string]string{"CHANNEL": "#risk desk"}},
		{"single quoted", `CHANNEL='#risk'`, map[string]string{"CHANNEL": "#risk"}},
		{"comments and blanks", "# comment\n\nA=1\n\nB=2", map[string]string{"A": "1", "B": "2"}},
		{"whitespace trimmed", "  A  =  x  ", map[string]string{"A": "x"}},
		{"value with equals", "URL=https://h/x?a=b", map[string]string{"URL": "https://h/x?a=b"}},
		{"inline comment", "A=secret # note", map[string]string{"A": "secret"}},
		{"hash without space kept", "A=abc#def", map[string]string{"A": "abc#def"}},
		{"line without equals skipped", "garbage\nA=1", map[string]string{"A": "1"}},
		{"empty", "", map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadDotEnv(writeEnv(t, tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLoadDotEnv_FileNotFound(t *testing.T) {
	_, err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoadAndExportDotEnv_ExistingWins(t *testing.T) {
	t.Setenv("RISKPROXY_ENV_TEST_SET", "from-env")
	t.Setenv("RISKPROXY_ENV_TEST_NEW", "")
	require.NoError(t, os.Unsetenv("RISKPROXY_ENV_TEST_NEW"))

	_, err := LoadAndExportDotEnv(writeEnv(t, "RISKPROXY_ENV_TEST_SET=from-file\nRISKPROXY_ENV_TEST_NEW=new"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", os.Getenv("RISKPROXY_ENV_TEST_SET"))
	assert.Equal(t, "new", os.Getenv("RISKPROXY_ENV_TEST_NEW"))
}

func TestExportBeside_MissingFileIsFine(t *testing.T) {
	assert.NoError(t, ExportBeside(t.TempDir()))
}
