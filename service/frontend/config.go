package frontend

import (
	"github.com/strandhq/strand/common/dynamicconfig"
)

// Config holds the frontend service tunables.
type Config struct {
	// RPS limits requests per second across the whole frontend.
	RPS dynamicconfig.FloatPropertyFn
	// NamespaceRPS limits requests per second for a single namespace.
	NamespaceRPS dynamicconfig.FloatPropertyFn
	// MaxIDLength bounds workflow ids, type names, task queue names, signal
	// names and namespace names.
	MaxIDLength dynamicconfig.IntPropertyFn
	// HistoryMaxPageSize caps one page of a history read.
	HistoryMaxPageSize dynamicconfig.IntPropertyFn
}

// NewConfig builds the frontend config backed by the dynamic config
// collection.
func NewConfig(dc *dynamicconfig.Collection) *Config {
	return &Config{
		RPS:                dc.GetFloat64Property(dynamicconfig.FrontendRPS, 2400),
		NamespaceRPS:       dc.GetFloat64Property(dynamicconfig.FrontendNamespaceRPS, 1200),
		MaxIDLength:        dc.GetIntProperty(dynamicconfig.FrontendMaxIDLength, 1000),
		HistoryMaxPageSize: dc.GetIntProperty(dynamicconfig.FrontendHistoryMaxPageSize, 4096),
	}
}
