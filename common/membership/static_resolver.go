package membership

type staticResolver struct {
	self HostInfo
}

// NewStaticResolver returns a resolver for a single-host deployment. Every
// key resolves to this host.
func NewStaticResolver(selfAddr string) ServiceResolver {
	return &staticResolver{self: NewHostInfo(selfAddr)}
}

func (r *staticResolver) Lookup(key string) (HostInfo, error) {
	return r.self, nil
}

func (r *staticResolver) WhoAmI() HostInfo {
	return r.self
}

func (r *staticResolver) MemberCount() int {
	return 1
}
