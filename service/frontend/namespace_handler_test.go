package frontend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/api/workflowservice"
	"github.com/strandhq/strand/common/clock"
	"github.com/strandhq/strand/common/dynamicconfig"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/persistence/memory"
	"github.com/strandhq/strand/common/serviceerror"
)

func newNamespaceHandler(t *testing.T) *NamespaceHandler {
	t.Helper()
	metadataStore, err := memory.NewFactory().NewMetadataStore()
	require.NoError(t, err)

	timeSource := clock.NewEventTimeSource()
	timeSource.Update(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	config := NewConfig(dynamicconfig.NewNoopCollection())
	return NewNamespaceHandler(config, metadataStore, timeSource, log.NewNoopLogger())
}

func TestRegisterAndDescribeNamespace(t *testing.T) {
	handler := newNamespaceHandler(t)

	registered, err := handler.RegisterNamespace(context.Background(), &workflowservice.RegisterNamespaceRequest{
		Name:        "billing",
		Description: "billing workflows",
	})
	require.NoError(t, err)
	require.NotEmpty(t, registered.ID)

	described, err := handler.DescribeNamespace(context.Background(), &workflowservice.DescribeNamespaceRequest{
		Name: "billing",
	})
	require.NoError(t, err)
	assert.Equal(t, registered.ID, described.Namespace.ID)
	assert.Equal(t, "billing workflows", described.Namespace.Description)
	assert.Equal(t, enums.NamespaceStateRegistered, described.Namespace.State)
	// Registration without a retention falls back to the default.
	assert.Equal(t, DefaultRetention, described.Namespace.Retention)

	_, err = handler.RegisterNamespace(context.Background(), &workflowservice.RegisterNamespaceRequest{
		Name: "billing",
	})
	var alreadyExists *serviceerror.NamespaceAlreadyExists
	require.ErrorAs(t, err, &alreadyExists)
}

func TestRegisterNamespaceValidation(t *testing.T) {
	handler := newNamespaceHandler(t)
	var invalidArgument *serviceerror.InvalidArgument

	_, err := handler.RegisterNamespace(context.Background(), &workflowservice.RegisterNamespaceRequest{})
	require.ErrorAs(t, err, &invalidArgument)

	_, err = handler.RegisterNamespace(context.Background(), &workflowservice.RegisterNamespaceRequest{
		Name: "has spaces!",
	})
	require.ErrorAs(t, err, &invalidArgument)

	_, err = handler.RegisterNamespace(context.Background(), &workflowservice.RegisterNamespaceRequest{
		Name:      "short-retention",
		Retention: time.Minute,
	})
	require.ErrorAs(t, err, &invalidArgument)
}

func TestUpdateNamespace(t *testing.T) {
	handler := newNamespaceHandler(t)

	_, err := handler.RegisterNamespace(context.Background(), &workflowservice.RegisterNamespaceRequest{
		Name: "billing",
	})
	require.NoError(t, err)

	description := "updated description"
	retention := 48 * time.Hour
	updated, err := handler.UpdateNamespace(context.Background(), &workflowservice.UpdateNamespaceRequest{
		Name:        "billing",
		Description: &description,
		Retention:   &retention,
	})
	require.NoError(t, err)
	assert.Equal(t, description, updated.Namespace.Description)
	assert.Equal(t, retention, updated.Namespace.Retention)

	described, err := handler.DescribeNamespace(context.Background(), &workflowservice.DescribeNamespaceRequest{
		Name: "billing",
	})
	require.NoError(t, err)
	assert.Equal(t, description, described.Namespace.Description)
	assert.Equal(t, retention, described.Namespace.Retention)

	_, err = handler.UpdateNamespace(context.Background(), &workflowservice.UpdateNamespaceRequest{
		Name: "no-such-namespace",
	})
	var notFound *serviceerror.NamespaceNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestDeprecateNamespace(t *testing.T) {
	handler := newNamespaceHandler(t)

	_, err := handler.RegisterNamespace(context.Background(), &workflowservice.RegisterNamespaceRequest{
		Name: "billing",
	})
	require.NoError(t, err)

	_, err = handler.DeprecateNamespace(context.Background(), &workflowservice.DeprecateNamespaceRequest{
		Name: "billing",
	})
	require.NoError(t, err)

	described, err := handler.DescribeNamespace(context.Background(), &workflowservice.DescribeNamespaceRequest{
		Name: "billing",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.NamespaceStateDeprecated, described.Namespace.State)

	// Deprecating twice is a no-op.
	_, err = handler.DeprecateNamespace(context.Background(), &workflowservice.DeprecateNamespaceRequest{
		Name: "billing",
	})
	require.NoError(t, err)
}

func TestListNamespaces(t *testing.T) {
	handler := newNamespaceHandler(t)

	for _, name := range []string{"alpha", "beta", "gamma"} {
		_, err := handler.RegisterNamespace(context.Background(), &workflowservice.RegisterNamespaceRequest{
			Name: name,
		})
		require.NoError(t, err)
	}

	page, err := handler.ListNamespaces(context.Background(), &workflowservice.ListNamespacesRequest{
		PageSize: 2,
	})
	require.NoError(t, err)
	require.Len(t, page.Namespaces, 2)
	require.NotEmpty(t, page.NextPageToken)
	assert.Equal(t, "alpha", page.Namespaces[0].Name)
	assert.Equal(t, "beta", page.Namespaces[1].Name)

	page, err = handler.ListNamespaces(context.Background(), &workflowservice.ListNamespacesRequest{
		PageSize:      2,
		NextPageToken: page.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, page.Namespaces, 1)
	assert.Equal(t, "gamma", page.Namespaces[0].Name)
}
