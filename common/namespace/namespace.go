package namespace

import (
	"time"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/common/persistence"
)

type (
	// Name identifies a namespace by its user-facing name.
	Name string

	// ID identifies a namespace by its immutable uuid.
	ID string

	// Namespace is an immutable snapshot of a namespace record. Mutation goes
	// through the metadata store; the registry replaces snapshots wholesale on
	// refresh.
	Namespace struct {
		detail persistence.NamespaceDetail
	}
)

func (n Name) String() string { return string(n) }

func (n ID) String() string { return string(n) }

// FromDetail builds a Namespace snapshot from its durable record.
func FromDetail(detail *persistence.NamespaceDetail) *Namespace {
	return &Namespace{detail: *detail}
}

func (ns *Namespace) ID() ID {
	return ID(ns.detail.ID)
}

func (ns *Namespace) Name() Name {
	return Name(ns.detail.Name)
}

func (ns *Namespace) State() enums.NamespaceState {
	return ns.detail.State
}

func (ns *Namespace) Description() string {
	return ns.detail.Description
}

func (ns *Namespace) Retention() time.Duration {
	return ns.detail.Retention
}

func (ns *Namespace) CreateTime() time.Time {
	return ns.detail.CreateTime
}

func (ns *Namespace) NotificationVersion() int64 {
	return ns.detail.NotificationVersion
}

// ActiveInCluster reports whether the namespace accepts new work.
func (ns *Namespace) ActiveInCluster() bool {
	return ns.detail.State == enums.NamespaceStateRegistered
}

// Detail returns a copy of the durable record, for update flows that need to
// mutate and write back.
func (ns *Namespace) Detail() *persistence.NamespaceDetail {
	detail := ns.detail
	return &detail
}
