package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/serviceerror"
)

type metadataStore struct {
	db *db
}

type listNamespacesPageToken struct {
	LastName string `json:"lastName"`
}

func newMetadataStore(db *db) persistence.MetadataStore {
	return &metadataStore{db: db}
}

func (s *metadataStore) CreateNamespace(
	ctx context.Context,
	request *persistence.CreateNamespaceRequest,
) error {
	s.db.Lock()
	defer s.db.Unlock()

	ns := request.Namespace
	if _, ok := s.db.namespacesByName[ns.Name]; ok {
		return serviceerror.NewNamespaceAlreadyExists(ns.Name)
	}
	if _, ok := s.db.namespacesByID[ns.ID]; ok {
		return serviceerror.NewNamespaceAlreadyExists(ns.Name)
	}
	nsCopy := *ns
	s.db.namespacesByName[ns.Name] = &nsCopy
	s.db.namespacesByID[ns.ID] = &nsCopy
	return nil
}

func (s *metadataStore) GetNamespace(
	ctx context.Context,
	request *persistence.GetNamespaceRequest,
) (*persistence.GetNamespaceResponse, error) {
	s.db.Lock()
	defer s.db.Unlock()

	if (request.ID != "") == (request.Name != "") {
		return nil, &persistence.InvalidPersistenceRequestError{
			Msg: "GetNamespace: exactly one of ID or Name must be set",
		}
	}

	var ns *persistence.NamespaceDetail
	var ok bool
	if request.ID != "" {
		ns, ok = s.db.namespacesByID[request.ID]
	} else {
		ns, ok = s.db.namespacesByName[request.Name]
	}
	if !ok {
		identifier := request.Name
		if identifier == "" {
			identifier = request.ID
		}
		return nil, serviceerror.NewNamespaceNotFound(identifier)
	}
	nsCopy := *ns
	return &persistence.GetNamespaceResponse{Namespace: &nsCopy}, nil
}

func (s *metadataStore) UpdateNamespace(
	ctx context.Context,
	request *persistence.UpdateNamespaceRequest,
) error {
	s.db.Lock()
	defer s.db.Unlock()

	ns := request.Namespace
	stored, ok := s.db.namespacesByID[ns.ID]
	if !ok {
		return serviceerror.NewNamespaceNotFound(ns.Name)
	}
	if stored.NotificationVersion != request.ExpectedNotificationVersion {
		return &persistence.ConditionFailedError{
			Msg: fmt.Sprintf("namespace %v notification version %v, expected %v",
				ns.Name, stored.NotificationVersion, request.ExpectedNotificationVersion),
		}
	}
	nsCopy := *ns
	nsCopy.NotificationVersion = stored.NotificationVersion + 1
	s.db.namespacesByName[ns.Name] = &nsCopy
	s.db.namespacesByID[ns.ID] = &nsCopy
	return nil
}

func (s *metadataStore) ListNamespaces(
	ctx context.Context,
	request *persistence.ListNamespacesRequest,
) (*persistence.ListNamespacesResponse, error) {
	s.db.Lock()
	defer s.db.Unlock()

	var all []*persistence.NamespaceDetail
	for _, ns := range s.db.namespacesByName {
		all = append(all, ns)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	start := 0
	if len(request.NextPageToken) > 0 {
		var token listNamespacesPageToken
		if err := json.Unmarshal(request.NextPageToken, &token); err != nil {
			return nil, serviceerror.NewInvalidArgumentf("invalid list page token: %v", err)
		}
		start = sort.Search(len(all), func(i int) bool { return all[i].Name > token.LastName })
	}

	pageSize := request.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}

	page := make([]*persistence.NamespaceDetail, 0, end-start)
	for _, ns := range all[start:end] {
		nsCopy := *ns
		page = append(page, &nsCopy)
	}

	response := &persistence.ListNamespacesResponse{Namespaces: page}
	if end < len(all) {
		token, err := json.Marshal(listNamespacesPageToken{LastName: all[end-1].Name})
		if err != nil {
			return nil, serviceerror.NewInternalf("unable to build list page token: %v", err)
		}
		response.NextPageToken = token
	}
	return response, nil
}

func (s *metadataStore) GetClusterMetadata(ctx context.Context) (*persistence.ClusterMetadata, error) {
	s.db.Lock()
	defer s.db.Unlock()

	if s.db.clusterMetadata == nil {
		return nil, serviceerror.NewNotFound("cluster metadata not initialized")
	}
	metadataCopy := *s.db.clusterMetadata
	return &metadataCopy, nil
}

func (s *metadataStore) SaveClusterMetadata(ctx context.Context, metadata *persistence.ClusterMetadata) error {
	s.db.Lock()
	defer s.db.Unlock()

	metadataCopy := *metadata
	s.db.clusterMetadata = &metadataCopy
	return nil
}

func (s *metadataStore) Close() {}
