// Package config loads and validates the finflow-gateway YAML
// configuration.
//
// Values support ${VAR} environment expansion, and duration fields are
// written as Go duration strings ("24h", "10s"). Validation fails fast
// at load time so a misconfigured gateway never starts serving.
package config
