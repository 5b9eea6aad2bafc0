package sql

import (
	"context"
	gosql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/serviceerror"
)

type (
	metadataStore struct {
		db *sqlx.DB
	}

	namespaceRow struct {
		ID                  string    `db:"id"`
		Name                string    `db:"name"`
		State               int32     `db:"state"`
		Description         string    `db:"description"`
		RetentionNanos      int64     `db:"retention_nanos"`
		CreateTime          time.Time `db:"create_time"`
		NotificationVersion int64     `db:"notification_version"`
	}

	clusterMetadataRow struct {
		ClusterName       string    `db:"cluster_name"`
		HistoryShardCount int32     `db:"history_shard_count"`
		InitializedTime   time.Time `db:"initialized_time"`
	}

	sqlListNamespacesPageToken struct {
		LastName string `json:"lastName"`
	}
)

func newMetadataStore(db *sqlx.DB) persistence.MetadataStore {
	return &metadataStore{db: db}
}

func (s *metadataStore) CreateNamespace(
	ctx context.Context,
	request *persistence.CreateNamespaceRequest,
) error {
	ns := request.Namespace
	insert := s.db.Rebind(`
		INSERT INTO namespaces (id, name, state, description, retention_nanos, create_time, notification_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, insert,
		ns.ID, ns.Name, int32(ns.State), ns.Description,
		int64(ns.Retention), ns.CreateTime, ns.NotificationVersion,
	); err != nil {
		return serviceerror.NewNamespaceAlreadyExists(ns.Name)
	}
	return nil
}

func (s *metadataStore) GetNamespace(
	ctx context.Context,
	request *persistence.GetNamespaceRequest,
) (*persistence.GetNamespaceResponse, error) {
	if (request.ID != "") == (request.Name != "") {
		return nil, &persistence.InvalidPersistenceRequestError{
			Msg: "GetNamespace: exactly one of ID or Name must be set",
		}
	}

	row := &namespaceRow{}
	var err error
	if request.ID != "" {
		query := s.db.Rebind(`SELECT id, name, state, description, retention_nanos, create_time, notification_version FROM namespaces WHERE id = ?`)
		err = s.db.GetContext(ctx, row, query, request.ID)
	} else {
		query := s.db.Rebind(`SELECT id, name, state, description, retention_nanos, create_time, notification_version FROM namespaces WHERE name = ?`)
		err = s.db.GetContext(ctx, row, query, request.Name)
	}
	switch {
	case errors.Is(err, gosql.ErrNoRows):
		identifier := request.Name
		if identifier == "" {
			identifier = request.ID
		}
		return nil, serviceerror.NewNamespaceNotFound(identifier)
	case err != nil:
		return nil, convertError("GetNamespace", err)
	}
	return &persistence.GetNamespaceResponse{Namespace: rowToNamespace(row)}, nil
}

func (s *metadataStore) UpdateNamespace(
	ctx context.Context,
	request *persistence.UpdateNamespaceRequest,
) error {
	ns := request.Namespace
	update := s.db.Rebind(`
		UPDATE namespaces
		SET state = ?, description = ?, retention_nanos = ?, notification_version = ?
		WHERE id = ? AND notification_version = ?`)
	result, err := s.db.ExecContext(ctx, update,
		int32(ns.State), ns.Description, int64(ns.Retention),
		request.ExpectedNotificationVersion+1,
		ns.ID, request.ExpectedNotificationVersion,
	)
	if err != nil {
		return convertError("UpdateNamespace", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return convertError("UpdateNamespace", err)
	}
	if rows == 0 {
		return &persistence.ConditionFailedError{
			Msg: fmt.Sprintf("namespace %v update failed, expected notification version %v",
				ns.Name, request.ExpectedNotificationVersion),
		}
	}
	return nil
}

func (s *metadataStore) ListNamespaces(
	ctx context.Context,
	request *persistence.ListNamespacesRequest,
) (*persistence.ListNamespacesResponse, error) {
	pageSize := request.PageSize
	if pageSize <= 0 {
		pageSize = sqlDefaultPageSize
	}

	lastName := ""
	if len(request.NextPageToken) > 0 {
		var token sqlListNamespacesPageToken
		if err := json.Unmarshal(request.NextPageToken, &token); err != nil {
			return nil, serviceerror.NewInvalidArgumentf("invalid list page token: %v", err)
		}
		lastName = token.LastName
	}

	var rows []namespaceRow
	query := s.db.Rebind(`
		SELECT id, name, state, description, retention_nanos, create_time, notification_version
		FROM namespaces
		WHERE name > ?
		ORDER BY name ASC
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, query, lastName, pageSize); err != nil {
		return nil, convertError("ListNamespaces", err)
	}

	namespaces := make([]*persistence.NamespaceDetail, 0, len(rows))
	for i := range rows {
		namespaces = append(namespaces, rowToNamespace(&rows[i]))
	}

	response := &persistence.ListNamespacesResponse{Namespaces: namespaces}
	if len(namespaces) == pageSize {
		token, err := json.Marshal(sqlListNamespacesPageToken{LastName: namespaces[len(namespaces)-1].Name})
		if err != nil {
			return nil, serviceerror.NewInternalf("unable to build list page token: %v", err)
		}
		response.NextPageToken = token
	}
	return response, nil
}

func (s *metadataStore) GetClusterMetadata(ctx context.Context) (*persistence.ClusterMetadata, error) {
	row := &clusterMetadataRow{}
	query := `SELECT cluster_name, history_shard_count, initialized_time FROM cluster_metadata`
	err := s.db.GetContext(ctx, row, query)
	switch {
	case errors.Is(err, gosql.ErrNoRows):
		return nil, serviceerror.NewNotFound("cluster metadata not initialized")
	case err != nil:
		return nil, convertError("GetClusterMetadata", err)
	}
	return &persistence.ClusterMetadata{
		ClusterName:       row.ClusterName,
		HistoryShardCount: row.HistoryShardCount,
		InitializedTime:   row.InitializedTime,
	}, nil
}

func (s *metadataStore) SaveClusterMetadata(ctx context.Context, metadata *persistence.ClusterMetadata) error {
	return txExecutor(ctx, s.db, "SaveClusterMetadata", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cluster_metadata`); err != nil {
			return convertError("SaveClusterMetadata", err)
		}
		insert := tx.Rebind(`
			INSERT INTO cluster_metadata (cluster_name, history_shard_count, initialized_time)
			VALUES (?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, insert,
			metadata.ClusterName, metadata.HistoryShardCount, metadata.InitializedTime,
		); err != nil {
			return convertError("SaveClusterMetadata", err)
		}
		return nil
	})
}

func (s *metadataStore) Close() {}

func rowToNamespace(row *namespaceRow) *persistence.NamespaceDetail {
	return &persistence.NamespaceDetail{
		ID:                  row.ID,
		Name:                row.Name,
		State:               enums.NamespaceState(row.State),
		Description:         row.Description,
		Retention:           time.Duration(row.RetentionNanos),
		CreateTime:          row.CreateTime,
		NotificationVersion: row.NotificationVersion,
	}
}
