package config

import "time"

// DefaultQueryText is the query description the application sends for the
// unfiltered margin search. The double spaces are significant.
const DefaultQueryText = "Client Code  Equals  DFLT AND TM / CP  Equals  DFLT AND CM  Equals  DFLT"

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			Host:            "eclear.mcxccl.com",
			MonitoredPrefix: "https://eclear.mcxccl.com/Bancs/RSK/",
			CanonicalURL:    "https://eclear.mcxccl.com/Bancs/RSK/RSK335.do",
		},
		Canonical: CanonicalConfig{
			EmptyFields: []string{
				"MCB_SearchWC_wca_category",
				"MCB_SearchWC_wca_segment",
				"MCB_SearchWC_wca_asondate",
				"MCB_SearchWC_wca_alertlevel",
			},
			DefaultFields: []string{
				"MCB_SearchWC_wca_bpid",
				"MCB_SearchWC_wca_tmcp",
				"MCB_SearchWC_wca_cm",
			},
			DefaultValue: "DFLT",
			QueryField:   "sQuery",
			QueryText:    DefaultQueryText,
		},
		Tokens: TokensConfig{
			Cookies:        []string{"AlteonP", "JSESSIONID", "TS01d67e35", "TS254a1510027"},
			TimestampField: "IXHRts",
			NonceField:     "IXHRnonce",
		},
		Payload: PayloadConfig{
			Marker: "__AUTO_CAPTURE__",
		},
		Storage: StorageConfig{
			Dir:             "margin_calls",
			CredentialsFile: "credentials.json",
			HistoryDB:       "history.db",
		},
		Proxy: ProxyConfig{
			Listen: "127.0.0.1:8080",
		},
		Decoder: DecoderConfig{
			TableID:          "RSK335_Table",
			ColumnKey:        "wca_utilizedcolpercent",
			ColumnLabel:      "margin utilization",
			ColumnListPrefix: "wcStrut",
		},
		Poll: PollConfig{
			ProxyURL: "http://127.0.0.1:8080",
			Interval: 60 * time.Second,
			Timeout:  30 * time.Second,
			Headers: map[string]string{
				"Accept":           "*/*",
				"Content-Type":     "application/x-www-form-urlencoded; charset=UTF-8",
				"X-Requested-With": "XMLHttpRequest",
			},
			FailurePhrase: "unable to process the request",
		},
		Alert: AlertConfig{
			Threshold: 80,
			On:        "change",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     14,
		},
	}
}
