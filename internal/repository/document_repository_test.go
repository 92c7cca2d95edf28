package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftbase/content-api/internal/models"
)

func newDocumentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

func TestDocumentRepositoryCreateVersion(t *testing.T) {
	db, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO document_versions").
		WithArgs("v1", "d1", "articles", "hello-world", "draft", "create", false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO field_values_text").
		WithArgs("v1", "articles", "title", "title", "all", "", "Hello World").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO field_meta").
		WithArgs("v1", models.MetaTypeArrayItem, "tags.0", "item-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	write := models.VersionWrite{
		Version: models.DocumentVersion{
			ID: "v1", DocumentID: "d1", CollectionID: "articles",
			Path: "hello-world", Status: "draft", EventType: models.EventTypeCreate,
		},
		Rows: []models.FieldRow{
			{VersionID: "v1", CollectionID: "articles", Path: "title", Name: "title", Type: models.FieldTypeText, Locale: "all", Value: "Hello World"},
		},
		Meta: []models.MetaRecord{
			{VersionID: "v1", Type: models.MetaTypeArrayItem, Path: "tags.0", ItemID: "item-1", Meta: json.RawMessage(`null`)},
		},
	}
	require.NoError(t, repo.CreateVersion(context.Background(), write))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryCreateVersionRollsBackOnBadRow(t *testing.T) {
	db, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO document_versions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	write := models.VersionWrite{
		Version: models.DocumentVersion{ID: "v1", DocumentID: "d1", CollectionID: "articles"},
		Rows: []models.FieldRow{
			// Boolean bucket with a string value cannot be stored.
			{VersionID: "v1", Path: "featured", Name: "featured", Type: models.FieldTypeBoolean, Locale: "all", Value: "yes"},
		},
	}
	err := repo.CreateVersion(context.Background(), write)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "featured")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryGetCurrentVersion(t *testing.T) {
	db, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "document_id", "collection_id", "path", "status", "event_type", "is_deleted", "created_at", "updated_at"}).
		AddRow("v2", "d1", "articles", "hello", "draft", "update", false, now, now)
	mock.ExpectQuery("SELECT id, document_id").
		WithArgs("d1").
		WillReturnRows(rows)

	version, err := repo.GetCurrentVersion(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "v2", version.ID)
	assert.Equal(t, models.EventTypeUpdate, version.EventType)
}

func TestDocumentRepositoryFindLatestByStatus(t *testing.T) {
	db, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "document_id", "collection_id", "path", "status", "event_type", "is_deleted", "created_at", "updated_at"}).
		AddRow("v1", "d1", "articles", "hello", "published", "create", false, now, now)
	mock.ExpectQuery("SELECT id, document_id").
		WithArgs("d1", "published").
		WillReturnRows(rows)

	version, err := repo.FindLatestByStatus(context.Background(), "d1", "published")
	require.NoError(t, err)
	assert.Equal(t, "v1", version.ID)
	assert.Equal(t, models.StatusPublished, version.Status)
}

func TestDocumentRepositorySetStatusMissingVersion(t *testing.T) {
	db, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectExec("UPDATE document_versions SET status").
		WithArgs("published", sqlmock.AnyArg(), "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetStatus(context.Background(), "ghost", "published")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDocumentRepositoryArchiveOtherPublished(t *testing.T) {
	db, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectExec("UPDATE document_versions SET status").
		WithArgs(models.StatusArchived, sqlmock.AnyArg(), "d1", models.StatusPublished, "v3").
		WillReturnResult(sqlmock.NewResult(0, 2))

	archived, err := repo.ArchiveOtherPublished(context.Background(), "d1", "v3")
	require.NoError(t, err)
	assert.Equal(t, int64(2), archived)
}

func TestDocumentRepositorySoftDeleteDocument(t *testing.T) {
	db, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectExec("UPDATE document_versions SET is_deleted").
		WithArgs(sqlmock.AnyArg(), "d1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	affected, err := repo.SoftDeleteDocument(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), affected)
}

func fieldValueColumns() []string {
	return []string{
		"document_version_id", "collection_id", "field_path", "field_name", "locale", "parent_path",
		"bucket", "kind_hint", "value_text", "value_integer", "value_decimal", "value_float",
		"value_boolean", "value_datetime", "file_id", "filename", "mime_type", "size_bytes", "url",
		"related_collection", "related_document_id", "value_json",
	}
}

func TestDocumentRepositoryGetFieldRows(t *testing.T) {
	db, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	rows := sqlmock.NewRows(fieldValueColumns()).
		AddRow("v1", "articles", "title", "title", "en", "",
			"text", nil, "Hello", nil, nil, nil,
			nil, nil, nil, nil, nil, nil, nil,
			nil, nil, nil).
		AddRow("v1", "articles", "readingMinutes", "readingMinutes", "all", "",
			"numeric", "integer", nil, int64(7), nil, nil,
			nil, nil, nil, nil, nil, nil, nil,
			nil, nil, nil).
		AddRow("v1", "articles", "hero", "hero", "all", "",
			"file", nil, nil, nil, nil, nil,
			nil, nil, "f1", "hero.png", "image/png", int64(1024), "/media/hero.png",
			nil, nil, nil)
	mock.ExpectQuery("FROM field_values_text").
		WillReturnRows(rows)

	result, err := repo.GetFieldRows(context.Background(), []string{"v1"}, "en")
	require.NoError(t, err)
	require.Len(t, result, 3)

	assert.Equal(t, "Hello", result[0].Value)
	assert.Equal(t, models.FieldTypeText, result[0].Type)

	assert.Equal(t, int64(7), result[1].Value)
	assert.Equal(t, models.FieldTypeInteger, result[1].Type)

	hero, ok := result[2].Value.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "hero.png", hero["filename"])
	assert.Equal(t, "/media/hero.png", hero["url"])
}

func TestDocumentRepositoryGetFieldRowsNoVersions(t *testing.T) {
	db, _, cleanup := newDocumentRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	result, err := repo.GetFieldRows(context.Background(), nil, "en")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestDocumentRepositoryGetMetaRecords(t *testing.T) {
	db, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	rows := sqlmock.NewRows([]string{"document_version_id", "type", "path", "item_id", "meta"}).
		AddRow("v1", "block", "body.0.paragraph", "b-1", []byte(`{"blockType":"paragraph"}`))
	mock.ExpectQuery("SELECT document_version_id, type, path").
		WithArgs("v1").
		WillReturnRows(rows)

	records, err := repo.GetMetaRecords(context.Background(), "v1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.MetaTypeBlock, records[0].Type)
	assert.Equal(t, "b-1", records[0].ItemID)
}

func TestDocumentRepositoryList(t *testing.T) {
	db, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	// The title join must be aggregated per version; an unaggregated join
	// against field_values_text duplicates documents with localized titles.
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT dv\.id\)(?s:.*)GROUP BY document_version_id`).
		WithArgs("articles", "title", "draft").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "document_id", "collection_id", "path", "status", "event_type", "is_deleted", "created_at", "updated_at", "title"}).
		AddRow("v1", "d1", "articles", "hello", "draft", "create", false, now, now, "Hello")
	mock.ExpectQuery(`SELECT dv\.id,(?s:.*)GROUP BY document_version_id(?s:.*)ORDER BY dv\.created_at DESC`).
		WithArgs("articles", "title", "draft").
		WillReturnRows(rows)

	items, total, err := repo.List(context.Background(), models.DocumentFilter{
		CollectionID: "articles",
		Status:       "draft",
		Page:         1,
		PageSize:     20,
	}, "title")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "Hello", items[0].Title)
	assert.Equal(t, "d1", items[0].DocumentID)
}
