// Package env loads .env files into the process environment so ${VAR}
// references in riskproxy.yaml (webhook URLs, storage paths) resolve.
package env
