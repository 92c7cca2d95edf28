package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/craftbase/content-api/internal/models"
)

// DocumentRepository persists document versions across the typed attribute
// tables and the structural identity table.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const addressingColumns = "document_version_id, collection_id, field_path, field_name, locale, parent_path"

var bucketTables = map[models.ValueBucket]string{
	models.BucketText:     "field_values_text",
	models.BucketNumeric:  "field_values_numeric",
	models.BucketBoolean:  "field_values_boolean",
	models.BucketDatetime: "field_values_datetime",
	models.BucketFile:     "field_values_file",
	models.BucketRelation: "field_values_relation",
	models.BucketJSON:     "field_values_json",
}

// CreateVersion writes the version row, every attribute row and every meta
// row in a single transaction. A failure anywhere rolls the whole version
// back so a partially-written version is never observable.
func (r *DocumentRepository) CreateVersion(ctx context.Context, write models.VersionWrite) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin version transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	version := write.Version
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}
	if version.UpdatedAt.IsZero() {
		version.UpdatedAt = version.CreatedAt
	}

	const versionQuery = `INSERT INTO document_versions
	(id, document_id, collection_id, path, status, event_type, is_deleted, created_at, updated_at)
	VALUES (:id, :document_id, :collection_id, :path, :status, :event_type, :is_deleted, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, versionQuery, version); err != nil {
		return fmt.Errorf("insert document version: %w", err)
	}

	for _, row := range write.Rows {
		if err := insertFieldRow(ctx, tx, row); err != nil {
			return err
		}
	}

	const metaQuery = `INSERT INTO field_meta (document_version_id, type, path, item_id, meta)
	VALUES ($1, $2, $3, $4, $5)`
	for _, record := range write.Meta {
		meta := record.Meta
		if len(meta) == 0 {
			meta = json.RawMessage("null")
		}
		if _, err := tx.ExecContext(ctx, metaQuery, record.VersionID, record.Type, record.Path, record.ItemID, []byte(meta)); err != nil {
			return fmt.Errorf("insert meta row %s: %w", record.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit version transaction: %w", err)
	}
	return nil
}

func insertFieldRow(ctx context.Context, tx *sqlx.Tx, row models.FieldRow) error {
	bucket, err := row.Type.Bucket()
	if err != nil {
		return fmt.Errorf("row %s: %w", row.Path, err)
	}
	table := bucketTables[bucket]
	address := []interface{}{row.VersionID, row.CollectionID, row.Path, row.Name, row.Locale, row.ParentPath}

	switch bucket {
	case models.BucketText:
		value, ok := row.Value.(string)
		if !ok {
			return fmt.Errorf("row %s: text value expects string, got %T", row.Path, row.Value)
		}
		query := fmt.Sprintf(`INSERT INTO %s (%s, value_text) VALUES ($1, $2, $3, $4, $5, $6, $7)`, table, addressingColumns)
		_, err = tx.ExecContext(ctx, query, append(address, value)...)
	case models.BucketNumeric:
		var valueInteger *int64
		var valueDecimal *string
		var valueFloat *float64
		switch row.Type {
		case models.FieldTypeInteger:
			parsed, convErr := toInt64(row.Value)
			if convErr != nil {
				return fmt.Errorf("row %s: %w", row.Path, convErr)
			}
			valueInteger = &parsed
		case models.FieldTypeDecimal:
			parsed, convErr := toDecimalString(row.Value)
			if convErr != nil {
				return fmt.Errorf("row %s: %w", row.Path, convErr)
			}
			valueDecimal = &parsed
		case models.FieldTypeFloat:
			parsed, convErr := toFloat64(row.Value)
			if convErr != nil {
				return fmt.Errorf("row %s: %w", row.Path, convErr)
			}
			valueFloat = &parsed
		}
		query := fmt.Sprintf(`INSERT INTO %s (%s, number_kind, value_integer, value_decimal, value_float)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, table, addressingColumns)
		_, err = tx.ExecContext(ctx, query, append(address, row.Type, valueInteger, valueDecimal, valueFloat)...)
	case models.BucketBoolean:
		value, ok := row.Value.(bool)
		if !ok {
			return fmt.Errorf("row %s: boolean value expects bool, got %T", row.Path, row.Value)
		}
		query := fmt.Sprintf(`INSERT INTO %s (%s, value_boolean) VALUES ($1, $2, $3, $4, $5, $6, $7)`, table, addressingColumns)
		_, err = tx.ExecContext(ctx, query, append(address, value)...)
	case models.BucketDatetime:
		value, ok := row.Value.(time.Time)
		if !ok {
			return fmt.Errorf("row %s: datetime value expects time.Time, got %T", row.Path, row.Value)
		}
		query := fmt.Sprintf(`INSERT INTO %s (%s, datetime_kind, value_datetime) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, table, addressingColumns)
		_, err = tx.ExecContext(ctx, query, append(address, row.Type, value)...)
	case models.BucketFile:
		file, convErr := models.FileValueFrom(row.Value)
		if convErr != nil {
			return fmt.Errorf("row %s: %w", row.Path, convErr)
		}
		query := fmt.Sprintf(`INSERT INTO %s (%s, file_id, filename, mime_type, size_bytes, url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`, table, addressingColumns)
		_, err = tx.ExecContext(ctx, query, append(address, file.FileID, file.Filename, file.MimeType, file.SizeBytes, file.URL)...)
	case models.BucketRelation:
		relation, convErr := models.RelationValueFrom(row.Value)
		if convErr != nil {
			return fmt.Errorf("row %s: %w", row.Path, convErr)
		}
		query := fmt.Sprintf(`INSERT INTO %s (%s, related_collection, related_document_id) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, table, addressingColumns)
		_, err = tx.ExecContext(ctx, query, append(address, relation.Collection, relation.DocumentID)...)
	case models.BucketJSON:
		payload, marshalErr := json.Marshal(row.Value)
		if marshalErr != nil {
			return fmt.Errorf("row %s: marshal json value: %w", row.Path, marshalErr)
		}
		query := fmt.Sprintf(`INSERT INTO %s (%s, value_json) VALUES ($1, $2, $3, $4, $5, $6, $7)`, table, addressingColumns)
		_, err = tx.ExecContext(ctx, query, append(address, payload)...)
	}
	if err != nil {
		return fmt.Errorf("insert %s row %s: %w", bucket, row.Path, err)
	}
	return nil
}

// GetCurrentVersion returns the newest non-deleted version of a document.
func (r *DocumentRepository) GetCurrentVersion(ctx context.Context, documentID string) (*models.DocumentVersion, error) {
	const query = `SELECT id, document_id, collection_id, path, status, event_type, is_deleted, created_at, updated_at
	FROM document_versions
	WHERE document_id = $1 AND is_deleted = FALSE
	ORDER BY created_at DESC
	LIMIT 1`
	var version models.DocumentVersion
	if err := r.db.GetContext(ctx, &version, query, documentID); err != nil {
		return nil, err
	}
	return &version, nil
}

// fieldValueRow is the uniform shape produced by the cross-table union read.
type fieldValueRow struct {
	VersionID         string          `db:"document_version_id"`
	CollectionID      string          `db:"collection_id"`
	FieldPath         string          `db:"field_path"`
	FieldName         string          `db:"field_name"`
	Locale            string          `db:"locale"`
	ParentPath        string          `db:"parent_path"`
	Bucket            string          `db:"bucket"`
	KindHint          sql.NullString  `db:"kind_hint"`
	ValueText         sql.NullString  `db:"value_text"`
	ValueInteger      sql.NullInt64   `db:"value_integer"`
	ValueDecimal      sql.NullString  `db:"value_decimal"`
	ValueFloat        sql.NullFloat64 `db:"value_float"`
	ValueBoolean      sql.NullBool    `db:"value_boolean"`
	ValueDatetime     sql.NullTime    `db:"value_datetime"`
	FileID            sql.NullString  `db:"file_id"`
	Filename          sql.NullString  `db:"filename"`
	MimeType          sql.NullString  `db:"mime_type"`
	SizeBytes         sql.NullInt64   `db:"size_bytes"`
	URL               sql.NullString  `db:"url"`
	RelatedCollection sql.NullString  `db:"related_collection"`
	RelatedDocumentID sql.NullString  `db:"related_document_id"`
	ValueJSON         []byte          `db:"value_json"`
}

// unionColumns is the uniform value-column set of the cross-table read.
// Buckets that lack a column contribute NULL for it.
var unionColumns = []string{
	"kind_hint", "value_text", "value_integer", "value_decimal", "value_float",
	"value_boolean", "value_datetime", "file_id", "filename", "mime_type",
	"size_bytes", "url", "related_collection", "related_document_id", "value_json",
}

var bucketColumns = map[models.ValueBucket]map[string]string{
	models.BucketText: {"value_text": "value_text"},
	models.BucketNumeric: {
		"kind_hint":     "number_kind",
		"value_integer": "value_integer",
		"value_decimal": "value_decimal",
		"value_float":   "value_float",
	},
	models.BucketBoolean: {"value_boolean": "value_boolean"},
	models.BucketDatetime: {
		"kind_hint":      "datetime_kind",
		"value_datetime": "value_datetime",
	},
	models.BucketFile: {
		"file_id": "file_id", "filename": "filename", "mime_type": "mime_type",
		"size_bytes": "size_bytes", "url": "url",
	},
	models.BucketRelation: {
		"related_collection":  "related_collection",
		"related_document_id": "related_document_id",
	},
	models.BucketJSON: {"value_json": "value_json"},
}

func bucketBranch(bucket models.ValueBucket, localeClause string) string {
	cols := make([]string, 0, len(unionColumns))
	for _, col := range unionColumns {
		expr, ok := bucketColumns[bucket][col]
		switch {
		case !ok:
			cols = append(cols, "NULL AS "+col)
		case expr == col:
			cols = append(cols, col)
		default:
			cols = append(cols, expr+" AS "+col)
		}
	}
	return fmt.Sprintf("SELECT %s, '%s' AS bucket, %s FROM %s WHERE document_version_id IN (?)%s",
		addressingColumns, bucket, strings.Join(cols, ", "), bucketTables[bucket], localeClause)
}

// GetFieldRows reads every attribute row of the given versions across all
// typed tables in one union query. The locale predicate admits the requested
// locale plus 'all'; the AllLocales sentinel disables it.
func (r *DocumentRepository) GetFieldRows(ctx context.Context, versionIDs []string, locale string) ([]models.FieldRow, error) {
	if len(versionIDs) == 0 {
		return nil, nil
	}

	localeClause := ""
	if locale != models.AllLocales {
		localeClause = " AND (locale = ? OR locale = 'all')"
	}

	branches := make([]string, 0, len(models.Buckets))
	for _, bucket := range models.Buckets {
		branches = append(branches, bucketBranch(bucket, localeClause))
	}

	query := strings.Join(branches, "\nUNION ALL\n") + "\nORDER BY field_path, locale"

	args := make([]interface{}, 0, 2*len(branches))
	for range branches {
		args = append(args, versionIDs)
		if localeClause != "" {
			args = append(args, locale)
		}
	}

	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("expand field values query: %w", err)
	}
	expanded = r.db.Rebind(expanded)

	var raw []fieldValueRow
	if err := r.db.SelectContext(ctx, &raw, expanded, expandedArgs...); err != nil {
		return nil, fmt.Errorf("select field values: %w", err)
	}

	rows := make([]models.FieldRow, 0, len(raw))
	for _, row := range raw {
		converted, err := row.toFieldRow()
		if err != nil {
			return nil, err
		}
		rows = append(rows, converted)
	}
	return rows, nil
}

func (row fieldValueRow) toFieldRow() (models.FieldRow, error) {
	out := models.FieldRow{
		VersionID:    row.VersionID,
		CollectionID: row.CollectionID,
		Path:         row.FieldPath,
		Name:         row.FieldName,
		Locale:       row.Locale,
		ParentPath:   row.ParentPath,
	}

	switch models.ValueBucket(row.Bucket) {
	case models.BucketText:
		out.Type = models.FieldTypeText
		out.Value = row.ValueText.String
	case models.BucketNumeric:
		out.Type = models.FieldType(row.KindHint.String)
		switch out.Type {
		case models.FieldTypeInteger:
			out.Value = row.ValueInteger.Int64
		case models.FieldTypeDecimal:
			out.Value = row.ValueDecimal.String
		case models.FieldTypeFloat:
			out.Value = row.ValueFloat.Float64
		default:
			return out, fmt.Errorf("row %s: unknown number kind %q", row.FieldPath, row.KindHint.String)
		}
	case models.BucketBoolean:
		out.Type = models.FieldTypeBoolean
		out.Value = row.ValueBoolean.Bool
	case models.BucketDatetime:
		out.Type = models.FieldType(row.KindHint.String)
		out.Value = row.ValueDatetime.Time
	case models.BucketFile:
		out.Type = models.FieldTypeFile
		out.Value = models.FileValue{
			FileID:    row.FileID.String,
			Filename:  row.Filename.String,
			MimeType:  row.MimeType.String,
			SizeBytes: row.SizeBytes.Int64,
			URL:       row.URL.String,
		}.AsMap()
	case models.BucketRelation:
		out.Type = models.FieldTypeRelation
		out.Value = models.RelationValue{
			Collection: row.RelatedCollection.String,
			DocumentID: row.RelatedDocumentID.String,
		}.AsMap()
	case models.BucketJSON:
		out.Type = models.FieldTypeJSON
		var decoded interface{}
		if len(row.ValueJSON) > 0 {
			if err := json.Unmarshal(row.ValueJSON, &decoded); err != nil {
				return out, fmt.Errorf("row %s: decode json value: %w", row.FieldPath, err)
			}
		}
		out.Value = decoded
	default:
		return out, fmt.Errorf("row %s: unknown bucket %q", row.FieldPath, row.Bucket)
	}
	return out, nil
}

// GetMetaRecords loads the structural identity rows of one version.
func (r *DocumentRepository) GetMetaRecords(ctx context.Context, versionID string) ([]models.MetaRecord, error) {
	const query = `SELECT document_version_id, type, path, item_id, meta
	FROM field_meta WHERE document_version_id = $1 ORDER BY path`
	var records []models.MetaRecord
	if err := r.db.SelectContext(ctx, &records, query, versionID); err != nil {
		return nil, fmt.Errorf("select meta records: %w", err)
	}
	return records, nil
}

// SetStatus mutates the status of one version in place.
func (r *DocumentRepository) SetStatus(ctx context.Context, versionID, status string) error {
	const query = `UPDATE document_versions SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), versionID)
	if err != nil {
		return fmt.Errorf("set version status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check status update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ArchiveOtherPublished archives every published version of the document
// except the one just published, enforcing at most one published version.
func (r *DocumentRepository) ArchiveOtherPublished(ctx context.Context, documentID, excludeVersionID string) (int64, error) {
	const query = `UPDATE document_versions SET status = $1, updated_at = $2
	WHERE document_id = $3 AND status = $4 AND id <> $5`
	result, err := r.db.ExecContext(ctx, query, models.StatusArchived, time.Now().UTC(), documentID, models.StatusPublished, excludeVersionID)
	if err != nil {
		return 0, fmt.Errorf("archive other published versions: %w", err)
	}
	return result.RowsAffected()
}

// ArchivePublished archives every published version of the document.
func (r *DocumentRepository) ArchivePublished(ctx context.Context, documentID string) (int64, error) {
	const query = `UPDATE document_versions SET status = $1, updated_at = $2
	WHERE document_id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, models.StatusArchived, time.Now().UTC(), documentID, models.StatusPublished)
	if err != nil {
		return 0, fmt.Errorf("archive published versions: %w", err)
	}
	return result.RowsAffected()
}

// SoftDeleteDocument flips the deletion flag on every version of a document.
// History is retained; nothing is physically removed.
func (r *DocumentRepository) SoftDeleteDocument(ctx context.Context, documentID string) (int64, error) {
	const query = `UPDATE document_versions SET is_deleted = TRUE, updated_at = $1 WHERE document_id = $2`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), documentID)
	if err != nil {
		return 0, fmt.Errorf("soft delete document: %w", err)
	}
	return result.RowsAffected()
}

// List returns the current version of each document in a collection,
// optionally filtered by status and by a free-text match on the title
// attribute, ordered by creation time (default) or structural path. The
// title join is aggregated per version so a localized title, stored as one
// row per locale, cannot multiply the result.
func (r *DocumentRepository) List(ctx context.Context, filter models.DocumentFilter, titleField string) ([]models.DocumentListItem, int, error) {
	if titleField == "" {
		titleField = "title"
	}

	base := strings.Builder{}
	args := []interface{}{filter.CollectionID, titleField}
	base.WriteString(`FROM document_versions dv
	JOIN (
		SELECT document_id, MAX(created_at) AS latest_created
		FROM document_versions
		WHERE collection_id = $1 AND is_deleted = FALSE
		GROUP BY document_id
	) latest ON latest.document_id = dv.document_id AND latest.latest_created = dv.created_at
	LEFT JOIN (
		SELECT document_version_id, MIN(value_text) AS value_text
		FROM field_values_text
		WHERE field_path = $2
		GROUP BY document_version_id
	) title_row ON title_row.document_version_id = dv.id
	WHERE dv.is_deleted = FALSE`)

	if filter.Status != "" {
		args = append(args, filter.Status)
		base.WriteString(fmt.Sprintf(" AND dv.status = $%d", len(args)))
	}
	if filter.Title != "" {
		args = append(args, "%"+filter.Title+"%")
		base.WriteString(fmt.Sprintf(" AND title_row.value_text ILIKE $%d", len(args)))
	}

	countQuery := "SELECT COUNT(DISTINCT dv.id) " + base.String()
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	order := "dv.created_at DESC"
	if filter.OrderBy == "path" {
		order = "dv.path ASC"
	}

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}

	listQuery := fmt.Sprintf(`SELECT dv.id, dv.document_id, dv.collection_id, dv.path, dv.status,
	dv.event_type, dv.is_deleted, dv.created_at, dv.updated_at,
	COALESCE(title_row.value_text, '') AS title %s ORDER BY %s LIMIT %d OFFSET %d`,
		base.String(), order, pageSize, (page-1)*pageSize)

	var items []models.DocumentListItem
	if err := r.db.SelectContext(ctx, &items, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	return items, total, nil
}

// ListVersions returns the full version history of a document, newest first,
// including soft-deleted versions.
func (r *DocumentRepository) ListVersions(ctx context.Context, documentID string) ([]models.DocumentVersion, error) {
	const query = `SELECT id, document_id, collection_id, path, status, event_type, is_deleted, created_at, updated_at
	FROM document_versions WHERE document_id = $1 ORDER BY created_at DESC`
	var versions []models.DocumentVersion
	if err := r.db.SelectContext(ctx, &versions, query, documentID); err != nil {
		return nil, fmt.Errorf("list document versions: %w", err)
	}
	return versions, nil
}

// FindLatestByStatus returns the most recent non-deleted version of a
// document in the given status, e.g. the live published version sitting
// behind a newer draft.
func (r *DocumentRepository) FindLatestByStatus(ctx context.Context, documentID, status string) (*models.DocumentVersion, error) {
	const query = `SELECT id, document_id, collection_id, path, status, event_type, is_deleted, created_at, updated_at
	FROM document_versions
	WHERE document_id = $1 AND status = $2 AND is_deleted = FALSE
	ORDER BY created_at DESC
	LIMIT 1`
	var version models.DocumentVersion
	if err := r.db.GetContext(ctx, &version, query, documentID, status); err != nil {
		return nil, err
	}
	return &version, nil
}

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("integer value has a fractional part: %v", v)
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	}
	return 0, fmt.Errorf("integer value expects a number, got %T", value)
}

func toFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	}
	return 0, fmt.Errorf("float value expects a number, got %T", value)
}

func toDecimalString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		return fmt.Sprintf("%v", v), nil
	case int64:
		return fmt.Sprintf("%d", v), nil
	case int:
		return fmt.Sprintf("%d", v), nil
	case json.Number:
		return v.String(), nil
	}
	return "", fmt.Errorf("decimal value expects a number or string, got %T", value)
}
