package sql

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
)

// SetupSchema applies the versioned DDL scripts under schemaDir in strict
// ascending version order. Each version is a subdirectory (v1.0, v1.1, ...)
// holding .sql files which are executed in lexical order.
func SetupSchema(ctx context.Context, db *sqlx.DB, schemaDir string, logger log.Logger) error {
	entries, err := os.ReadDir(schemaDir)
	if err != nil {
		return fmt.Errorf("unable to read schema dir %v: %w", schemaDir, err)
	}

	var versions []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "v") {
			versions = append(versions, entry.Name())
		}
	}
	if len(versions) == 0 {
		return fmt.Errorf("no schema versions found in %v", schemaDir)
	}
	sort.Strings(versions)

	for _, version := range versions {
		versionDir := filepath.Join(schemaDir, version)
		files, err := filepath.Glob(filepath.Join(versionDir, "*.sql"))
		if err != nil {
			return err
		}
		sort.Strings(files)

		for _, file := range files {
			ddl, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("unable to read schema file %v: %w", file, err)
			}
			for _, stmt := range splitStatements(string(ddl)) {
				if _, err := db.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("schema statement in %v failed: %w", file, err)
				}
			}
			logger.Info("applied schema file", tag.NewStringTag("schema-file", file))
		}
	}
	return nil
}

// splitStatements splits a DDL file on semicolons at line ends. Good enough
// for schema files which never embed semicolons in literals.
func splitStatements(ddl string) []string {
	var result []string
	for _, stmt := range strings.Split(ddl, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			result = append(result, stmt)
		}
	}
	return result
}
