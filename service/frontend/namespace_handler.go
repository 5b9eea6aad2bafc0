package frontend

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/api/workflowservice"
	"github.com/strandhq/strand/common/clock"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/serviceerror"
)

const (
	// MinRetention is the shortest retention a namespace may configure.
	MinRetention = time.Hour
	// MaxRetention is the longest retention a namespace may configure.
	MaxRetention = 30 * 24 * time.Hour
	// DefaultRetention applies when a registration does not name one.
	DefaultRetention = 72 * time.Hour

	defaultListNamespacesPageSize = 100
)

// Namespace names are dns-ish: they start with a letter or digit and continue
// with letters, digits, dots, dashes and underscores.
var namespaceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\-]*$`)

// NamespaceHandler implements the operator-facing namespace API over the
// metadata store.
type NamespaceHandler struct {
	config        *Config
	metadataStore persistence.MetadataStore
	timeSource    clock.TimeSource
	logger        log.Logger
}

// NewNamespaceHandler builds the namespace handler.
func NewNamespaceHandler(
	config *Config,
	metadataStore persistence.MetadataStore,
	timeSource clock.TimeSource,
	logger log.Logger,
) *NamespaceHandler {
	return &NamespaceHandler{
		config:        config,
		metadataStore: metadataStore,
		timeSource:    timeSource,
		logger:        logger,
	}
}

// RegisterNamespace creates a new namespace.
func (h *NamespaceHandler) RegisterNamespace(
	ctx context.Context,
	request *workflowservice.RegisterNamespaceRequest,
) (*workflowservice.RegisterNamespaceResponse, error) {
	if err := h.validateName(request.Name); err != nil {
		return nil, err
	}
	retention := request.Retention
	if retention == 0 {
		retention = DefaultRetention
	}
	if err := validateRetention(retention); err != nil {
		return nil, err
	}

	detail := &persistence.NamespaceDetail{
		ID:          uuid.NewString(),
		Name:        request.Name,
		State:       enums.NamespaceStateRegistered,
		Description: request.Description,
		Retention:   retention,
		CreateTime:  h.timeSource.Now(),
	}
	if err := h.metadataStore.CreateNamespace(ctx, &persistence.CreateNamespaceRequest{
		Namespace: detail,
	}); err != nil {
		return nil, translateError(err)
	}
	h.logger.Info("namespace registered",
		tag.WorkflowNamespace(request.Name),
		tag.WorkflowNamespaceID(detail.ID),
	)
	return &workflowservice.RegisterNamespaceResponse{ID: detail.ID}, nil
}

// DescribeNamespace returns a namespace's configuration.
func (h *NamespaceHandler) DescribeNamespace(
	ctx context.Context,
	request *workflowservice.DescribeNamespaceRequest,
) (*workflowservice.DescribeNamespaceResponse, error) {
	if request.Name == "" {
		return nil, serviceerror.NewInvalidArgument("Name is not set")
	}
	response, err := h.metadataStore.GetNamespace(ctx, &persistence.GetNamespaceRequest{
		Name: request.Name,
	})
	if err != nil {
		return nil, translateError(err)
	}
	return &workflowservice.DescribeNamespaceResponse{
		Namespace: namespaceInfoFromDetail(response.Namespace),
	}, nil
}

// UpdateNamespace changes a namespace's description or retention.
func (h *NamespaceHandler) UpdateNamespace(
	ctx context.Context,
	request *workflowservice.UpdateNamespaceRequest,
) (*workflowservice.UpdateNamespaceResponse, error) {
	if request.Name == "" {
		return nil, serviceerror.NewInvalidArgument("Name is not set")
	}
	if request.Retention != nil {
		if err := validateRetention(*request.Retention); err != nil {
			return nil, err
		}
	}

	response, err := h.metadataStore.GetNamespace(ctx, &persistence.GetNamespaceRequest{
		Name: request.Name,
	})
	if err != nil {
		return nil, translateError(err)
	}
	detail := response.Namespace
	if detail.State == enums.NamespaceStateDeleted {
		return nil, serviceerror.NewInvalidArgumentf("namespace %q is deleted", request.Name)
	}
	if request.Description != nil {
		detail.Description = *request.Description
	}
	if request.Retention != nil {
		detail.Retention = *request.Retention
	}
	if err := h.metadataStore.UpdateNamespace(ctx, &persistence.UpdateNamespaceRequest{
		Namespace:                   detail,
		ExpectedNotificationVersion: detail.NotificationVersion,
	}); err != nil {
		return nil, translateError(err)
	}
	detail.NotificationVersion++
	return &workflowservice.UpdateNamespaceResponse{
		Namespace: namespaceInfoFromDetail(detail),
	}, nil
}

// DeprecateNamespace stops a namespace from accepting new workflows. Existing
// executions run to completion.
func (h *NamespaceHandler) DeprecateNamespace(
	ctx context.Context,
	request *workflowservice.DeprecateNamespaceRequest,
) (*workflowservice.DeprecateNamespaceResponse, error) {
	if request.Name == "" {
		return nil, serviceerror.NewInvalidArgument("Name is not set")
	}
	response, err := h.metadataStore.GetNamespace(ctx, &persistence.GetNamespaceRequest{
		Name: request.Name,
	})
	if err != nil {
		return nil, translateError(err)
	}
	detail := response.Namespace
	if detail.State == enums.NamespaceStateDeprecated {
		return &workflowservice.DeprecateNamespaceResponse{}, nil
	}
	if detail.State != enums.NamespaceStateRegistered {
		return nil, serviceerror.NewInvalidArgumentf("namespace %q is %s", request.Name, detail.State)
	}
	detail.State = enums.NamespaceStateDeprecated
	if err := h.metadataStore.UpdateNamespace(ctx, &persistence.UpdateNamespaceRequest{
		Namespace:                   detail,
		ExpectedNotificationVersion: detail.NotificationVersion,
	}); err != nil {
		return nil, translateError(err)
	}
	h.logger.Info("namespace deprecated", tag.WorkflowNamespace(request.Name))
	return &workflowservice.DeprecateNamespaceResponse{}, nil
}

// ListNamespaces pages over all registered namespaces.
func (h *NamespaceHandler) ListNamespaces(
	ctx context.Context,
	request *workflowservice.ListNamespacesRequest,
) (*workflowservice.ListNamespacesResponse, error) {
	pageSize := int(request.PageSize)
	if pageSize <= 0 {
		pageSize = defaultListNamespacesPageSize
	}
	response, err := h.metadataStore.ListNamespaces(ctx, &persistence.ListNamespacesRequest{
		PageSize:      pageSize,
		NextPageToken: request.NextPageToken,
	})
	if err != nil {
		return nil, translateError(err)
	}
	result := &workflowservice.ListNamespacesResponse{
		NextPageToken: response.NextPageToken,
	}
	for _, detail := range response.Namespaces {
		result.Namespaces = append(result.Namespaces, namespaceInfoFromDetail(detail))
	}
	return result, nil
}

func (h *NamespaceHandler) validateName(name string) error {
	if name == "" {
		return serviceerror.NewInvalidArgument("Name is not set")
	}
	if len(name) > h.config.MaxIDLength() {
		return serviceerror.NewInvalidArgumentf("Name length exceeds limit of %d", h.config.MaxIDLength())
	}
	if !namespaceNameRegex.MatchString(name) {
		return serviceerror.NewInvalidArgumentf("namespace name %q is invalid", name)
	}
	return nil
}

func validateRetention(retention time.Duration) error {
	if retention < MinRetention || retention > MaxRetention {
		return serviceerror.NewInvalidArgumentf(
			"Retention must be between %v and %v", MinRetention, MaxRetention)
	}
	return nil
}

func namespaceInfoFromDetail(detail *persistence.NamespaceDetail) workflowservice.NamespaceInfo {
	return workflowservice.NamespaceInfo{
		Name:        detail.Name,
		ID:          detail.ID,
		State:       detail.State,
		Description: detail.Description,
		Retention:   detail.Retention,
	}
}
