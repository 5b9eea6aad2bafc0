package config

import (
	"errors"
	"fmt"
)

// Validate validates this config
func (c *Config) Validate() error {
	if err := c.Persistence.Validate(); err != nil {
		return err
	}
	if c.Server.ListenAddress == "" {
		return errors.New("server config: missing listenAddress")
	}
	return nil
}

// Validate validates the persistence config
func (p *Persistence) Validate() error {
	if p.NumHistoryShards <= 0 {
		return fmt.Errorf("persistence config: numHistoryShards must be positive, got %v", p.NumHistoryShards)
	}
	store, ok := p.DataStores[p.DefaultStore]
	if !ok {
		return fmt.Errorf("persistence config: missing config for datastore %q", p.DefaultStore)
	}
	defined := 0
	if store.Memory != nil {
		defined++
	}
	if store.SQL != nil {
		defined++
	}
	if defined != 1 {
		return fmt.Errorf("persistence config: datastore %q must define exactly one of memory or sql", p.DefaultStore)
	}
	if store.SQL != nil && store.SQL.PluginName == "" {
		return fmt.Errorf("persistence config: datastore %q: missing sql plugin name", p.DefaultStore)
	}
	return nil
}

// HostIdentityOrDefault returns the configured host identity, falling back to
// the listen address.
func (s *Server) HostIdentityOrDefault() string {
	if s.HostIdentity != "" {
		return s.HostIdentity
	}
	return s.ListenAddress
}
