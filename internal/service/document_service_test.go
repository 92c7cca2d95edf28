package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/craftbase/content-api/internal/dto"
	"github.com/craftbase/content-api/internal/models"
	"github.com/craftbase/content-api/internal/schema"
	appErrors "github.com/craftbase/content-api/pkg/errors"
)

type stubStore struct {
	current        *models.DocumentVersion
	latestByStatus *models.DocumentVersion

	fieldRows  []models.FieldRow
	meta       []models.MetaRecord
	writes     []models.VersionWrite
	createErr  error
	statusSets []string

	archivedOther      int64
	archivedOtherCalls int
	archivedPublished  int64
	softDeleted        []string

	listItems []models.DocumentListItem
	listTotal int
	versions  []models.DocumentVersion
}

func (s *stubStore) CreateVersion(_ context.Context, write models.VersionWrite) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.writes = append(s.writes, write)
	return nil
}

func (s *stubStore) GetCurrentVersion(_ context.Context, documentID string) (*models.DocumentVersion, error) {
	if s.current == nil {
		return nil, sql.ErrNoRows
	}
	return s.current, nil
}

func (s *stubStore) FindLatestByStatus(_ context.Context, documentID, status string) (*models.DocumentVersion, error) {
	if s.latestByStatus == nil {
		return nil, sql.ErrNoRows
	}
	return s.latestByStatus, nil
}

func (s *stubStore) GetFieldRows(_ context.Context, versionIDs []string, locale string) ([]models.FieldRow, error) {
	return s.fieldRows, nil
}

func (s *stubStore) GetMetaRecords(_ context.Context, versionID string) ([]models.MetaRecord, error) {
	return s.meta, nil
}

func (s *stubStore) SetStatus(_ context.Context, versionID, status string) error {
	s.statusSets = append(s.statusSets, fmt.Sprintf("%s:%s", versionID, status))
	return nil
}

func (s *stubStore) ArchiveOtherPublished(_ context.Context, documentID, excludeVersionID string) (int64, error) {
	s.archivedOtherCalls++
	return s.archivedOther, nil
}

func (s *stubStore) ArchivePublished(_ context.Context, documentID string) (int64, error) {
	return s.archivedPublished, nil
}

func (s *stubStore) SoftDeleteDocument(_ context.Context, documentID string) (int64, error) {
	s.softDeleted = append(s.softDeleted, documentID)
	return 1, nil
}

func (s *stubStore) List(_ context.Context, filter models.DocumentFilter, titleField string) ([]models.DocumentListItem, int, error) {
	return s.listItems, s.listTotal, nil
}

func (s *stubStore) ListVersions(_ context.Context, documentID string) ([]models.DocumentVersion, error) {
	return s.versions, nil
}

type stubFiles struct {
	deleted []string
	failOn  string
}

func (s *stubFiles) Delete(filename string) error {
	s.deleted = append(s.deleted, filename)
	if filename == s.failOn {
		return errors.New("disk says no")
	}
	return nil
}

func newArticleRegistry(t *testing.T) (*schema.Registry, *models.CollectionDefinition) {
	t.Helper()
	def := &models.CollectionDefinition{
		Name: "articles",
		Fields: []models.Field{
			{Name: "title", Type: models.FieldTypeText},
			{Name: "summary", Type: models.FieldTypeText, Localized: true},
		},
	}
	registry := schema.NewRegistry()
	require.NoError(t, registry.Register(def))
	return registry, def
}

func newTestService(registry *schema.Registry, store *stubStore, files fileStore) *DocumentService {
	return NewDocumentService(registry, store, nil, nil, files, nil, zap.NewNop())
}

func asAppError(t *testing.T, err error) *appErrors.Error {
	t.Helper()
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	return appErr
}

func TestDocumentServiceCreateDerivesSlugPath(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	store := &stubStore{}
	svc := newTestService(registry, store, nil)

	result, err := svc.Create(context.Background(), "articles", dto.CreateDocumentRequest{
		Data: map[string]interface{}{"title": "Crème Brûlée Guide"},
	})
	require.NoError(t, err)
	require.Len(t, store.writes, 1)

	write := store.writes[0]
	assert.Equal(t, "creme-brulee-guide", write.Version.Path)
	assert.Equal(t, models.StatusDraft, write.Version.Status)
	assert.Equal(t, models.EventTypeCreate, write.Version.EventType)
	assert.Equal(t, result.DocumentVersionID, write.Version.ID)
	require.Len(t, write.Rows, 1)
	assert.Equal(t, "Crème Brûlée Guide", write.Rows[0].Value)
}

func TestDocumentServiceCreateFallsBackToDocumentID(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	store := &stubStore{}
	svc := newTestService(registry, store, nil)

	result, err := svc.Create(context.Background(), "articles", dto.CreateDocumentRequest{
		Data: map[string]interface{}{},
	})
	require.NoError(t, err)
	assert.Equal(t, result.DocumentID, store.writes[0].Version.Path)
}

func TestDocumentServiceCreateRejectsUnknownStatus(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	store := &stubStore{}
	svc := newTestService(registry, store, nil)

	_, err := svc.Create(context.Background(), "articles", dto.CreateDocumentRequest{
		Data:   map[string]interface{}{"title": "x"},
		Status: "live",
	})
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Empty(t, store.writes)
}

func TestDocumentServiceCreateUnknownCollection(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	svc := newTestService(registry, &stubStore{}, nil)

	_, err := svc.Create(context.Background(), "pages", dto.CreateDocumentRequest{
		Data: map[string]interface{}{},
	})
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestDocumentServiceCreateRunsHooksInOrder(t *testing.T) {
	registry, def := newArticleRegistry(t)
	store := &stubStore{}
	svc := newTestService(registry, store, nil)

	var order []string
	def.Hooks.BeforeCreate = models.HookList{
		func(_ context.Context, hc *models.HookContext) error {
			order = append(order, "first")
			hc.Data["title"] = "From hook"
			return nil
		},
		func(_ context.Context, hc *models.HookContext) error {
			order = append(order, "second")
			return nil
		},
	}
	def.Hooks.AfterCreate = models.HookList{
		func(_ context.Context, hc *models.HookContext) error {
			order = append(order, "after")
			assert.NotEmpty(t, hc.VersionID)
			return nil
		},
	}

	_, err := svc.Create(context.Background(), "articles", dto.CreateDocumentRequest{
		Data: map[string]interface{}{},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "after"}, order)

	// The mutation made by the first hook is what got persisted.
	require.Len(t, store.writes[0].Rows, 1)
	assert.Equal(t, "From hook", store.writes[0].Rows[0].Value)
}

func TestDocumentServiceCreateHookErrorAborts(t *testing.T) {
	registry, def := newArticleRegistry(t)
	store := &stubStore{}
	svc := newTestService(registry, store, nil)

	hookErr := errors.New("not allowed")
	def.Hooks.BeforeCreate = models.HookList{
		func(_ context.Context, _ *models.HookContext) error { return hookErr },
		func(_ context.Context, hc *models.HookContext) error {
			t.Fatal("second hook must not run")
			return nil
		},
	}

	_, err := svc.Create(context.Background(), "articles", dto.CreateDocumentRequest{
		Data: map[string]interface{}{},
	})
	require.ErrorIs(t, err, hookErr)
	assert.Empty(t, store.writes)
}

func TestDocumentServiceUpdateResetsStatus(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	store := &stubStore{
		current: &models.DocumentVersion{
			ID: "v1", DocumentID: "d1", CollectionID: "articles",
			Path: "my-article", Status: models.StatusPublished,
		},
	}
	svc := newTestService(registry, store, nil)

	result, err := svc.Update(context.Background(), "d1", dto.UpdateDocumentRequest{
		Data: map[string]interface{}{"title": "Replaced"},
	})
	require.NoError(t, err)
	require.Len(t, store.writes, 1)

	write := store.writes[0]
	assert.Equal(t, models.StatusDraft, write.Version.Status)
	assert.Equal(t, models.EventTypeUpdate, write.Version.EventType)
	assert.Equal(t, "my-article", write.Version.Path)
	assert.Equal(t, "d1", write.Version.DocumentID)
	assert.NotEqual(t, "v1", result.DocumentVersionID)
}

func TestDocumentServiceUpdateHooksSeePreviousContent(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	var seen *models.Document
	require.NoError(t, registry.AttachHooks("articles", models.Hooks{
		BeforeUpdate: models.HookList{func(_ context.Context, hc *models.HookContext) error {
			seen = hc.Previous
			return nil
		}},
	}))
	store := &stubStore{
		current: &models.DocumentVersion{
			ID: "v1", DocumentID: "d1", CollectionID: "articles",
			Path: "my-article", Status: models.StatusDraft,
		},
		fieldRows: []models.FieldRow{
			{VersionID: "v1", Path: "title", Name: "title", Type: models.FieldTypeText, Locale: models.LocaleAll, Value: "Old Title"},
		},
	}
	svc := newTestService(registry, store, nil)

	_, err := svc.Update(context.Background(), "d1", dto.UpdateDocumentRequest{
		Data: map[string]interface{}{"title": "New Title"},
	})
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, "v1", seen.VersionID)
	assert.Equal(t, "Old Title", seen.Data["title"])
}

func TestDocumentServiceUpdateMissingDocument(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	svc := newTestService(registry, &stubStore{}, nil)

	_, err := svc.Update(context.Background(), "ghost", dto.UpdateDocumentRequest{
		Data: map[string]interface{}{"title": "x"},
	})
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestDocumentServicePatchVersionConflict(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	store := &stubStore{
		current: &models.DocumentVersion{ID: "v2", DocumentID: "d1", CollectionID: "articles", Status: models.StatusDraft},
	}
	svc := newTestService(registry, store, nil)

	_, err := svc.Patch(context.Background(), "d1", dto.PatchDocumentRequest{
		ExpectedVersionID: "v1",
		Patches:           []dto.PatchOp{{Kind: "field.set", Path: "title", Value: "x"}},
	})
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)

	details, ok := appErr.Details.(appErrors.ConflictDetails)
	require.True(t, ok)
	assert.Equal(t, "v2", details.CurrentVersionID)
	assert.Equal(t, "v1", details.ExpectedVersionID)
	assert.Empty(t, store.writes)
}

func TestDocumentServicePatchAppliesAndKeepsStatus(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	store := &stubStore{
		current: &models.DocumentVersion{
			ID: "v1", DocumentID: "d1", CollectionID: "articles",
			Path: "my-article", Status: models.StatusPublished,
		},
		fieldRows: []models.FieldRow{
			{VersionID: "v1", Path: "title", Name: "title", Type: models.FieldTypeText, Locale: models.LocaleAll, Value: "Old"},
		},
	}
	svc := newTestService(registry, store, nil)

	result, err := svc.Patch(context.Background(), "d1", dto.PatchDocumentRequest{
		ExpectedVersionID: "v1",
		Patches:           []dto.PatchOp{{Kind: "field.set", Path: "title", Value: "New"}},
	})
	require.NoError(t, err)
	require.Len(t, store.writes, 1)

	write := store.writes[0]
	assert.Equal(t, models.StatusPublished, write.Version.Status)
	assert.Equal(t, models.EventTypeUpdate, write.Version.EventType)
	assert.Equal(t, result.DocumentVersionID, write.Version.ID)
	require.Len(t, write.Rows, 1)
	assert.Equal(t, "New", write.Rows[0].Value)
}

func TestDocumentServicePatchKeepsUntouchedLocale(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	store := &stubStore{
		current: &models.DocumentVersion{
			ID: "v1", DocumentID: "d1", CollectionID: "articles",
			Path: "my-article", Status: models.StatusDraft,
		},
		fieldRows: []models.FieldRow{
			{VersionID: "v1", Path: "summary", Name: "summary", Type: models.FieldTypeText, Locale: "en", Value: "Hello"},
		},
	}
	svc := newTestService(registry, store, nil)

	// A patch at another locale must not relabel the stored locale of a
	// field it never touches.
	_, err := svc.Patch(context.Background(), "d1", dto.PatchDocumentRequest{
		Locale:  "es",
		Patches: []dto.PatchOp{{Kind: "field.set", Path: "title", Value: "Nuevo"}},
	})
	require.NoError(t, err)
	require.Len(t, store.writes, 1)

	var summaryLocales []string
	for _, row := range store.writes[0].Rows {
		if row.Path == "summary" {
			summaryLocales = append(summaryLocales, row.Locale)
		}
	}
	assert.Equal(t, []string{"en"}, summaryLocales)
}

func TestDocumentServicePatchFailedOpRejectsWhole(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	store := &stubStore{
		current: &models.DocumentVersion{ID: "v1", DocumentID: "d1", CollectionID: "articles", Status: models.StatusDraft},
		fieldRows: []models.FieldRow{
			{VersionID: "v1", Path: "title", Name: "title", Type: models.FieldTypeText, Locale: models.LocaleAll, Value: "Old"},
		},
	}
	svc := newTestService(registry, store, nil)

	_, err := svc.Patch(context.Background(), "d1", dto.PatchDocumentRequest{
		Patches: []dto.PatchOp{
			{Kind: "field.set", Path: "title", Value: "New"},
			{Kind: "array.remove", Path: "tags", ItemID: "missing"},
		},
	})
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrPatchFailed.Code, appErr.Code)

	opErrors, ok := appErr.Details.([]appErrors.PatchOpError)
	require.True(t, ok)
	require.Len(t, opErrors, 1)
	assert.Equal(t, 1, opErrors[0].Index)
	assert.Empty(t, store.writes)
}

func TestDocumentServiceChangeStatusPublishArchivesOthers(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	store := &stubStore{
		current:       &models.DocumentVersion{ID: "v3", DocumentID: "d1", CollectionID: "articles", Status: models.StatusDraft},
		archivedOther: 2,
	}
	svc := newTestService(registry, store, nil)

	result, err := svc.ChangeStatus(context.Background(), "d1", dto.ChangeStatusRequest{Status: models.StatusPublished})
	require.NoError(t, err)
	assert.Equal(t, []string{"v3:published"}, store.statusSets)
	assert.Equal(t, 1, store.archivedOtherCalls)
	assert.Equal(t, int64(2), result.ArchivedVersions)
	assert.Equal(t, models.StatusPublished, result.Status)
}

func TestDocumentServiceChangeStatusInvalidTransition(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	store := &stubStore{
		current: &models.DocumentVersion{ID: "v1", DocumentID: "d1", CollectionID: "articles", Status: models.StatusDraft},
	}
	svc := newTestService(registry, store, nil)

	_, err := svc.ChangeStatus(context.Background(), "d1", dto.ChangeStatusRequest{Status: models.StatusArchived})
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
	assert.Empty(t, store.statusSets)
	assert.Zero(t, store.archivedOtherCalls)
}

func TestDocumentServiceChangeStatusNonPublishSkipsArchiving(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	store := &stubStore{
		current: &models.DocumentVersion{ID: "v1", DocumentID: "d1", CollectionID: "articles", Status: models.StatusPublished},
	}
	svc := newTestService(registry, store, nil)

	_, err := svc.ChangeStatus(context.Background(), "d1", dto.ChangeStatusRequest{Status: models.StatusArchived})
	require.NoError(t, err)
	assert.Zero(t, store.archivedOtherCalls)
}

func TestDocumentServiceUnpublish(t *testing.T) {
	registry, def := newArticleRegistry(t)
	store := &stubStore{
		current:           &models.DocumentVersion{ID: "v1", DocumentID: "d1", CollectionID: "articles", Status: models.StatusPublished},
		archivedPublished: 3,
	}
	svc := newTestService(registry, store, nil)

	var hookCount int
	def.Hooks.AfterUnpublish = models.HookList{
		func(_ context.Context, hc *models.HookContext) error {
			hookCount = hc.ArchivedCount
			return nil
		},
	}

	result, err := svc.Unpublish(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.ArchivedVersions)
	assert.Equal(t, 3, hookCount)
}

func TestDocumentServiceDeleteCleansUpFiles(t *testing.T) {
	def := &models.CollectionDefinition{
		Name:       "media",
		TitleField: "filename",
		Fields: []models.Field{
			{Name: "filename", Type: models.FieldTypeText},
			{Name: "asset", Type: models.FieldTypeFile},
		},
		Upload: &models.UploadRules{
			Enabled:   true,
			FileField: "asset",
			SizeNames: []string{"thumbnail", "large"},
		},
	}
	registry := schema.NewRegistry()
	require.NoError(t, registry.Register(def))

	asset := models.FileValue{FileID: "f1", Filename: "cat.png"}
	store := &stubStore{
		current: &models.DocumentVersion{ID: "v1", DocumentID: "d1", CollectionID: "media", Status: models.StatusDraft},
		fieldRows: []models.FieldRow{
			{VersionID: "v1", Path: "asset", Name: "asset", Type: models.FieldTypeFile, Locale: models.LocaleAll, Value: asset.AsMap()},
		},
	}
	files := &stubFiles{failOn: "cat.png"}
	svc := newTestService(registry, store, files)

	// A failing disk removal never fails the delete.
	require.NoError(t, svc.Delete(context.Background(), "d1"))
	assert.Equal(t, []string{"d1"}, store.softDeleted)
	assert.Equal(t, []string{"cat.png", "sizes/thumbnail/cat.png", "sizes/large/cat.png"}, files.deleted)
}

func TestDocumentServiceGetReconstructs(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	store := &stubStore{
		current: &models.DocumentVersion{ID: "v1", DocumentID: "d1", CollectionID: "articles", Status: models.StatusDraft, Path: "my-article"},
		fieldRows: []models.FieldRow{
			{VersionID: "v1", Path: "title", Name: "title", Type: models.FieldTypeText, Locale: models.LocaleAll, Value: "Hello"},
		},
	}
	svc := newTestService(registry, store, nil)

	doc, err := svc.Get(context.Background(), "d1", "en", "")
	require.NoError(t, err)
	assert.Equal(t, "d1", doc.ID)
	assert.Equal(t, "v1", doc.VersionID)
	assert.Equal(t, "my-article", doc.Path)
	assert.Equal(t, "Hello", doc.Data["title"])
}

func TestDocumentServiceGetByStatus(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	store := &stubStore{
		current:        &models.DocumentVersion{ID: "v3", DocumentID: "d1", CollectionID: "articles", Status: models.StatusDraft},
		latestByStatus: &models.DocumentVersion{ID: "v2", DocumentID: "d1", CollectionID: "articles", Status: models.StatusPublished, Path: "my-article"},
		fieldRows: []models.FieldRow{
			{VersionID: "v2", Path: "title", Name: "title", Type: models.FieldTypeText, Locale: models.LocaleAll, Value: "Hello"},
		},
	}
	svc := newTestService(registry, store, nil)

	doc, err := svc.Get(context.Background(), "d1", "en", models.StatusPublished)
	require.NoError(t, err)
	assert.Equal(t, "v2", doc.VersionID)
	assert.Equal(t, models.StatusPublished, doc.Status)
}

func TestDocumentServiceGetByStatusNotFound(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	store := &stubStore{
		current: &models.DocumentVersion{ID: "v1", DocumentID: "d1", CollectionID: "articles", Status: models.StatusDraft},
	}
	svc := newTestService(registry, store, nil)

	_, err := svc.Get(context.Background(), "d1", "en", models.StatusPublished)
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestDocumentServiceHistoryNotFound(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	svc := newTestService(registry, &stubStore{}, nil)

	_, err := svc.History(context.Background(), "ghost")
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestDocumentServiceWorkflowTransitions(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	store := &stubStore{
		current: &models.DocumentVersion{ID: "v1", DocumentID: "d1", CollectionID: "articles", Status: models.StatusPublished},
	}
	svc := newTestService(registry, store, nil)

	result, err := svc.WorkflowTransitions(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, result.CurrentStatus)
	assert.Equal(t, []string{models.StatusDraft, models.StatusArchived}, result.Available)
}

func TestDocumentServiceListValidatesStatus(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	svc := newTestService(registry, &stubStore{}, nil)

	_, _, err := svc.List(context.Background(), "articles", dto.ListDocumentsRequest{Status: "live"})
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestDocumentServiceListPaginates(t *testing.T) {
	registry, _ := newArticleRegistry(t)
	store := &stubStore{
		listItems: []models.DocumentListItem{
			{DocumentVersion: models.DocumentVersion{ID: "v1", DocumentID: "d1"}, Title: "First"},
		},
		listTotal: 11,
	}
	svc := newTestService(registry, store, nil)

	items, pagination, err := svc.List(context.Background(), "articles", dto.ListDocumentsRequest{Page: 2, PageSize: 5})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, 5, pagination.PageSize)
	assert.Equal(t, 11, pagination.TotalCount)
}
