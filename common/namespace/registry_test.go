package namespace

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/metrics"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/persistence/memory"
	"github.com/strandhq/strand/common/serviceerror"
)

func newTestStore(t *testing.T) persistence.MetadataStore {
	store, err := memory.NewFactory().NewMetadataStore()
	require.NoError(t, err)
	return store
}

func newTestRegistry(store persistence.MetadataStore) Registry {
	return NewRegistry(
		store,
		func() time.Duration { return 10 * time.Millisecond },
		metrics.NoopMetricsHandler,
		log.NewNoopLogger(),
	)
}

func registerNamespace(t *testing.T, store persistence.MetadataStore, name string) *persistence.NamespaceDetail {
	detail := &persistence.NamespaceDetail{
		ID:         uuid.NewString(),
		Name:       name,
		State:      enums.NamespaceStateRegistered,
		Retention:  24 * time.Hour,
		CreateTime: time.Now().UTC(),
	}
	require.NoError(t, store.CreateNamespace(context.Background(), &persistence.CreateNamespaceRequest{
		Namespace: detail,
	}))
	return detail
}

func TestRegistryInitialLoad(t *testing.T) {
	store := newTestStore(t)
	detail := registerNamespace(t, store, "orders")

	registry := newTestRegistry(store)
	registry.Start()
	defer registry.Stop()

	ns, err := registry.GetNamespace("orders")
	require.NoError(t, err)
	assert.Equal(t, ID(detail.ID), ns.ID())
	assert.Equal(t, Name("orders"), ns.Name())
	assert.True(t, ns.ActiveInCluster())

	byID, err := registry.GetNamespaceByID(ID(detail.ID))
	require.NoError(t, err)
	assert.Equal(t, ns.Name(), byID.Name())
}

func TestRegistryReadthroughOnMiss(t *testing.T) {
	store := newTestStore(t)
	registry := newTestRegistry(store)
	registry.Start()
	defer registry.Stop()

	// Registered after the initial load; must be visible without waiting for
	// a refresh tick.
	detail := registerNamespace(t, store, "billing")
	ns, err := registry.GetNamespace("billing")
	require.NoError(t, err)
	assert.Equal(t, ID(detail.ID), ns.ID())
}

func TestRegistryNotFound(t *testing.T) {
	store := newTestStore(t)
	registry := newTestRegistry(store)
	registry.Start()
	defer registry.Stop()

	_, err := registry.GetNamespace("missing")
	var notFound *serviceerror.NamespaceNotFound
	require.ErrorAs(t, err, &notFound)

	_, err = registry.GetNamespace("")
	var invalidArgument *serviceerror.InvalidArgument
	require.ErrorAs(t, err, &invalidArgument)
}

func TestRegistryRefreshPicksUpUpdates(t *testing.T) {
	store := newTestStore(t)
	detail := registerNamespace(t, store, "orders")

	registry := newTestRegistry(store)
	registry.Start()
	defer registry.Stop()

	updated := *detail
	updated.State = enums.NamespaceStateDeprecated
	require.NoError(t, store.UpdateNamespace(context.Background(), &persistence.UpdateNamespaceRequest{
		Namespace:                   &updated,
		ExpectedNotificationVersion: 0,
	}))

	assert.Eventually(t, func() bool {
		ns, err := registry.GetNamespace("orders")
		return err == nil && ns.State() == enums.NamespaceStateDeprecated
	}, time.Second, 5*time.Millisecond)
}
