package namespace

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strandhq/strand/common"
	"github.com/strandhq/strand/common/dynamicconfig"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
	"github.com/strandhq/strand/common/metrics"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/serviceerror"
)

const (
	refreshPageSize             = 1000
	refreshFailureRetryInterval = time.Second
	readthroughTimeout          = 3 * time.Second

	// DefaultRefreshInterval is the default period of the refresh loop.
	DefaultRefreshInterval = 10 * time.Second
)

type (
	// Registry is the in-process namespace cache. Reads are served from
	// memory; a background loop refreshes from the metadata store.
	Registry interface {
		common.Daemon
		GetNamespace(name Name) (*Namespace, error)
		GetNamespaceByID(id ID) (*Namespace, error)
		GetNamespaceID(name Name) (ID, error)
	}

	registry struct {
		status          int32
		store           persistence.MetadataStore
		refreshInterval dynamicconfig.DurationPropertyFn
		metricsHandler  metrics.Handler
		logger          log.Logger

		shutdownC chan struct{}
		shutdownW sync.WaitGroup

		lock     sync.RWMutex
		nameToID map[Name]ID
		byID     map[ID]*Namespace
	}
)

// NewRegistry builds a namespace registry over the given metadata store. The
// registry is empty until Start performs the initial load.
func NewRegistry(
	store persistence.MetadataStore,
	refreshInterval dynamicconfig.DurationPropertyFn,
	metricsHandler metrics.Handler,
	logger log.Logger,
) Registry {
	return &registry{
		status:          common.DaemonStatusInitialized,
		store:           store,
		refreshInterval: refreshInterval,
		metricsHandler:  metricsHandler,
		logger:          logger,
		shutdownC:       make(chan struct{}),
		nameToID:        make(map[Name]ID),
		byID:            make(map[ID]*Namespace),
	}
}

func (r *registry) Start() {
	if !atomic.CompareAndSwapInt32(&r.status, common.DaemonStatusInitialized, common.DaemonStatusStarted) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), readthroughTimeout)
	defer cancel()
	if err := r.refreshNamespaces(ctx); err != nil {
		r.logger.Error("initial namespace load failed", tag.Error(err))
	}

	r.shutdownW.Add(1)
	go r.refreshLoop()
}

func (r *registry) Stop() {
	if !atomic.CompareAndSwapInt32(&r.status, common.DaemonStatusStarted, common.DaemonStatusStopped) {
		return
	}
	close(r.shutdownC)
	if !common.AwaitWaitGroup(&r.shutdownW, time.Minute) {
		r.logger.Warn("namespace registry refresh loop did not stop in time")
	}
}

func (r *registry) GetNamespace(name Name) (*Namespace, error) {
	if name == "" {
		return nil, serviceerror.NewInvalidArgument("namespace name is required")
	}
	r.lock.RLock()
	id, ok := r.nameToID[name]
	if ok {
		ns := r.byID[id]
		r.lock.RUnlock()
		return ns, nil
	}
	r.lock.RUnlock()
	return r.readthrough(&persistence.GetNamespaceRequest{Name: name.String()})
}

func (r *registry) GetNamespaceByID(id ID) (*Namespace, error) {
	if id == "" {
		return nil, serviceerror.NewInvalidArgument("namespace id is required")
	}
	r.lock.RLock()
	ns, ok := r.byID[id]
	r.lock.RUnlock()
	if ok {
		return ns, nil
	}
	return r.readthrough(&persistence.GetNamespaceRequest{ID: id.String()})
}

func (r *registry) GetNamespaceID(name Name) (ID, error) {
	ns, err := r.GetNamespace(name)
	if err != nil {
		return "", err
	}
	return ns.ID(), nil
}

// readthrough resolves a cache miss against the store and installs the
// result. Recently registered namespaces become visible before the next
// refresh tick.
func (r *registry) readthrough(request *persistence.GetNamespaceRequest) (*Namespace, error) {
	metrics.CacheMissCounter.With(r.metricsHandler).Record(1)

	ctx, cancel := context.WithTimeout(context.Background(), readthroughTimeout)
	defer cancel()
	response, err := r.store.GetNamespace(ctx, request)
	if err != nil {
		return nil, err
	}
	ns := FromDetail(response.Namespace)

	r.lock.Lock()
	r.install(ns)
	r.lock.Unlock()
	return ns, nil
}

func (r *registry) refreshLoop() {
	defer r.shutdownW.Done()

	timer := time.NewTimer(r.refreshInterval())
	defer timer.Stop()
	for {
		select {
		case <-r.shutdownC:
			return
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), readthroughTimeout)
			err := r.refreshNamespaces(ctx)
			cancel()
			if err != nil {
				r.logger.Error("namespace refresh failed", tag.Error(err))
				timer.Reset(refreshFailureRetryInterval)
				continue
			}
			timer.Reset(r.refreshInterval())
		}
	}
}

func (r *registry) refreshNamespaces(ctx context.Context) error {
	var details []*persistence.NamespaceDetail
	request := &persistence.ListNamespacesRequest{PageSize: refreshPageSize}
	for {
		response, err := r.store.ListNamespaces(ctx, request)
		if err != nil {
			return err
		}
		details = append(details, response.Namespaces...)
		if len(response.NextPageToken) == 0 {
			break
		}
		request.NextPageToken = response.NextPageToken
	}

	nameToID := make(map[Name]ID, len(details))
	byID := make(map[ID]*Namespace, len(details))
	for _, detail := range details {
		ns := FromDetail(detail)
		nameToID[ns.Name()] = ns.ID()
		byID[ns.ID()] = ns
	}

	r.lock.Lock()
	r.nameToID = nameToID
	r.byID = byID
	r.lock.Unlock()
	return nil
}

func (r *registry) install(ns *Namespace) {
	if existing, ok := r.byID[ns.ID()]; ok &&
		existing.NotificationVersion() >= ns.NotificationVersion() {
		return
	}
	r.nameToID[ns.Name()] = ns.ID()
	r.byID[ns.ID()] = ns
}
