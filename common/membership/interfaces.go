package membership

import "errors"

// ErrInsufficientHosts is returned when there are no hosts to serve the request.
var ErrInsufficientHosts = errors.New("not enough hosts to serve the request")

type (
	// HostInfo identifies a member host.
	HostInfo struct {
		addr string
	}

	// ServiceResolver maps routing keys to the member host responsible for
	// them. Keys with the same value always resolve to the same host for a
	// given membership view.
	ServiceResolver interface {
		// Lookup returns the host owning the given key.
		Lookup(key string) (HostInfo, error)
		// WhoAmI returns the host this process runs as.
		WhoAmI() HostInfo
		// MemberCount returns the number of hosts in the membership view.
		MemberCount() int
	}
)

// NewHostInfo returns a HostInfo for the given address.
func NewHostInfo(addr string) HostInfo {
	return HostInfo{addr: addr}
}

// Identity returns the address identifying this host.
func (h HostInfo) Identity() string {
	return h.addr
}
