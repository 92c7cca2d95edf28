package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/craftbase/content-api/internal/dto"
	"github.com/craftbase/content-api/internal/models"
	"github.com/craftbase/content-api/internal/schema"
	appErrors "github.com/craftbase/content-api/pkg/errors"
)

// defaultLocale is assumed when a request does not name one.
const defaultLocale = "en"

// documentStore abstracts version persistence for the document service.
type documentStore interface {
	CreateVersion(ctx context.Context, write models.VersionWrite) error
	GetCurrentVersion(ctx context.Context, documentID string) (*models.DocumentVersion, error)
	FindLatestByStatus(ctx context.Context, documentID, status string) (*models.DocumentVersion, error)
	GetFieldRows(ctx context.Context, versionIDs []string, locale string) ([]models.FieldRow, error)
	GetMetaRecords(ctx context.Context, versionID string) ([]models.MetaRecord, error)
	SetStatus(ctx context.Context, versionID, status string) error
	ArchiveOtherPublished(ctx context.Context, documentID, excludeVersionID string) (int64, error)
	ArchivePublished(ctx context.Context, documentID string) (int64, error)
	SoftDeleteDocument(ctx context.Context, documentID string) (int64, error)
	List(ctx context.Context, filter models.DocumentFilter, titleField string) ([]models.DocumentListItem, int, error)
	ListVersions(ctx context.Context, documentID string) ([]models.DocumentVersion, error)
}

// fileStore abstracts deletion of stored upload files.
type fileStore interface {
	Delete(filename string) error
}

// DocumentService orchestrates the document lifecycle: every write produces a
// new immutable version; status and the deletion flag are the only in-place
// mutations.
type DocumentService struct {
	registry  *schema.Registry
	store     documentStore
	cache     *CacheService
	metrics   *MetricsService
	files     fileStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDocumentService constructs the document service.
func NewDocumentService(registry *schema.Registry, store documentStore, cache *CacheService, metrics *MetricsService, files fileStore, validate *validator.Validate, logger *zap.Logger) *DocumentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		registry:  registry,
		store:     store,
		cache:     cache,
		metrics:   metrics,
		files:     files,
		validator: validate,
		logger:    logger,
	}
}

// Create persists the first version of a new document.
func (s *DocumentService) Create(ctx context.Context, collection string, req dto.CreateDocumentRequest) (*dto.DocumentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	def, ok := s.registry.Get(collection)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("collection %q not found", collection))
	}

	locale := req.Locale
	if locale == "" {
		locale = defaultLocale
	}

	status := req.Status
	if status == "" {
		status = def.Workflow.Default()
	} else if def.Workflow.IndexOf(status) == -1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("status %q is not part of the workflow", status))
	}

	if err := NormalizeDates(def.Fields, req.Data); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	hc := &models.HookContext{Collection: def, Locale: locale, Status: status, Data: req.Data}
	if err := def.Hooks.BeforeCreate.Run(ctx, hc); err != nil {
		return nil, err
	}

	documentID := uuid.NewString()
	versionID := uuid.NewString()

	structuralPath := req.Path
	if structuralPath == "" {
		if title := titleFrom(def, hc.Data, locale); title != "" {
			structuralPath = Slugify(title)
		}
	}
	if structuralPath == "" {
		structuralPath = documentID
	}

	write, err := s.buildVersion(def, models.DocumentVersion{
		ID:           versionID,
		DocumentID:   documentID,
		CollectionID: def.Name,
		Path:         structuralPath,
		Status:       status,
		EventType:    models.EventTypeCreate,
	}, hc.Data, locale, nil)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	start := time.Now()
	if err := s.store.CreateVersion(ctx, write); err != nil {
		return nil, fmt.Errorf("persist document version: %w", err)
	}
	s.metrics.ObserveDBQuery("create_version", time.Since(start))
	s.metrics.RecordDocumentEvent(def.Name, "create")

	hc.DocumentID = documentID
	hc.VersionID = versionID
	if err := def.Hooks.AfterCreate.Run(ctx, hc); err != nil {
		return nil, err
	}

	return &dto.DocumentResult{DocumentID: documentID, DocumentVersionID: versionID}, nil
}

// Get returns the reconstructed current version of a document. When status is
// set, the newest version in that status is read instead; status reads bypass
// the cache, which only tracks the current version.
func (s *DocumentService) Get(ctx context.Context, documentID, locale, status string) (*models.Document, error) {
	if locale == "" {
		locale = defaultLocale
	}

	if status != "" {
		version, err := s.store.FindLatestByStatus(ctx, documentID, status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("document %q has no %s version", documentID, status))
			}
			return nil, err
		}
		def, ok := s.registry.Get(version.CollectionID)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("collection %q is no longer registered", version.CollectionID))
		}
		return s.reconstruct(ctx, def, version, locale)
	}

	key := DocumentKey(documentID, locale)
	var cached models.Document
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	version, err := s.currentVersion(ctx, documentID)
	if err != nil {
		return nil, err
	}
	def, ok := s.registry.Get(version.CollectionID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("collection %q is no longer registered", version.CollectionID))
	}

	doc, err := s.reconstruct(ctx, def, version, locale)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, doc, 0); err != nil {
		s.logger.Warn("document cache write failed", zap.String("document_id", documentID), zap.Error(err))
	}
	return doc, nil
}

// List pages through the current versions of a collection's documents.
func (s *DocumentService) List(ctx context.Context, collection string, req dto.ListDocumentsRequest) ([]models.DocumentListItem, *models.Pagination, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	def, ok := s.registry.Get(collection)
	if !ok {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("collection %q not found", collection))
	}
	if req.Status != "" && def.Workflow.IndexOf(req.Status) == -1 {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("status %q is not part of the workflow", req.Status))
	}

	filter := models.DocumentFilter{
		CollectionID: def.Name,
		Status:       req.Status,
		Title:        req.Title,
		OrderBy:      req.OrderBy,
		Page:         req.Page,
		PageSize:     req.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}

	start := time.Now()
	items, total, err := s.store.List(ctx, filter, def.Title())
	if err != nil {
		return nil, nil, fmt.Errorf("list documents: %w", err)
	}
	s.metrics.ObserveDBQuery("list_documents", time.Since(start))

	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Update replaces the content of a document with a new version. There is no
// concurrency guard here; the last full update wins. The new version starts
// over at the workflow's default status.
func (s *DocumentService) Update(ctx context.Context, documentID string, req dto.UpdateDocumentRequest) (*dto.DocumentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	current, err := s.currentVersion(ctx, documentID)
	if err != nil {
		return nil, err
	}
	def, ok := s.registry.Get(current.CollectionID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("collection %q is no longer registered", current.CollectionID))
	}

	locale := req.Locale
	if locale == "" {
		locale = defaultLocale
	}

	// Hooks receive the content being replaced alongside the replacement.
	previous, err := s.reconstruct(ctx, def, current, models.AllLocales)
	if err != nil {
		return nil, err
	}

	if err := NormalizeDates(def.Fields, req.Data); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	hc := &models.HookContext{
		Collection: def,
		DocumentID: documentID,
		Locale:     locale,
		Status:     current.Status,
		Data:       req.Data,
		Previous:   previous,
	}
	if err := def.Hooks.BeforeUpdate.Run(ctx, hc); err != nil {
		return nil, err
	}

	// Identities of surviving array items and blocks carry over from the
	// preceding version when the structural path matches.
	previousMeta, err := s.store.GetMetaRecords(ctx, current.ID)
	if err != nil {
		return nil, fmt.Errorf("load previous meta: %w", err)
	}

	versionID := uuid.NewString()
	write, err := s.buildVersion(def, models.DocumentVersion{
		ID:           versionID,
		DocumentID:   documentID,
		CollectionID: def.Name,
		Path:         current.Path,
		Status:       def.Workflow.Default(),
		EventType:    models.EventTypeUpdate,
	}, hc.Data, locale, models.MetaIndex(previousMeta))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	start := time.Now()
	if err := s.store.CreateVersion(ctx, write); err != nil {
		return nil, fmt.Errorf("persist document version: %w", err)
	}
	s.metrics.ObserveDBQuery("create_version", time.Since(start))
	s.metrics.RecordDocumentEvent(def.Name, "update")
	s.invalidate(ctx, documentID)

	hc.VersionID = versionID
	if err := def.Hooks.AfterUpdate.Run(ctx, hc); err != nil {
		return nil, err
	}

	return &dto.DocumentResult{DocumentID: documentID, DocumentVersionID: versionID}, nil
}

// Patch applies ordered edit operations to the current content and persists
// the outcome as a new version. Unlike a full update it honors an optimistic
// concurrency guard and keeps the current workflow status.
func (s *DocumentService) Patch(ctx context.Context, documentID string, req dto.PatchDocumentRequest) (*dto.DocumentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	current, err := s.currentVersion(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if req.ExpectedVersionID != "" && req.ExpectedVersionID != current.ID {
		return nil, appErrors.VersionConflict(current.ID, req.ExpectedVersionID)
	}
	def, ok := s.registry.Get(current.CollectionID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("collection %q is no longer registered", current.CollectionID))
	}

	locale := req.Locale
	if locale == "" {
		locale = defaultLocale
	}

	// Patches operate on the complete document, so the read spans every
	// locale; re-flattening the patched data keeps the untouched locales.
	doc, err := s.reconstruct(ctx, def, current, models.AllLocales)
	if err != nil {
		return nil, err
	}

	patches := make([]models.Patch, 0, len(req.Patches))
	for _, op := range req.Patches {
		patches = append(patches, op.Model())
	}

	data, opErrors := ApplyPatches(doc.Data, patches)
	if len(opErrors) > 0 {
		return nil, appErrors.PatchFailed(opErrors)
	}

	if err := NormalizeDates(def.Fields, data); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	hc := &models.HookContext{
		Collection: def,
		DocumentID: documentID,
		Locale:     locale,
		Status:     current.Status,
		Data:       data,
	}
	if err := def.Hooks.BeforeUpdate.Run(ctx, hc); err != nil {
		return nil, err
	}

	previousMeta, err := s.store.GetMetaRecords(ctx, current.ID)
	if err != nil {
		return nil, fmt.Errorf("load previous meta: %w", err)
	}

	versionID := uuid.NewString()
	write, err := s.buildVersion(def, models.DocumentVersion{
		ID:           versionID,
		DocumentID:   documentID,
		CollectionID: def.Name,
		Path:         current.Path,
		Status:       current.Status,
		EventType:    models.EventTypeUpdate,
	}, hc.Data, locale, models.MetaIndex(previousMeta))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	start := time.Now()
	if err := s.store.CreateVersion(ctx, write); err != nil {
		return nil, fmt.Errorf("persist document version: %w", err)
	}
	s.metrics.ObserveDBQuery("create_version", time.Since(start))
	s.metrics.RecordDocumentEvent(def.Name, "patch")
	s.invalidate(ctx, documentID)

	hc.VersionID = versionID
	if err := def.Hooks.AfterUpdate.Run(ctx, hc); err != nil {
		return nil, err
	}

	return &dto.DocumentResult{DocumentID: documentID, DocumentVersionID: versionID}, nil
}

// ChangeStatus moves the current version along the workflow. Publishing
// archives every other published version of the document afterwards; the two
// updates are separate statements, so a crash in between can leave both
// versions published until the next publish.
func (s *DocumentService) ChangeStatus(ctx context.Context, documentID string, req dto.ChangeStatusRequest) (*dto.StatusChangeResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	current, err := s.currentVersion(ctx, documentID)
	if err != nil {
		return nil, err
	}
	def, ok := s.registry.Get(current.CollectionID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("collection %q is no longer registered", current.CollectionID))
	}

	result := ValidateStatusTransition(def.Workflow, current.Status, req.Status)
	if !result.Valid {
		return nil, appErrors.InvalidTransition(current.Status, req.Status, result.Reason)
	}

	hc := &models.HookContext{
		Collection: def,
		DocumentID: documentID,
		VersionID:  current.ID,
		Status:     current.Status,
		NextStatus: req.Status,
	}
	if err := def.Hooks.BeforeStatusChange.Run(ctx, hc); err != nil {
		return nil, err
	}

	if err := s.store.SetStatus(ctx, current.ID, req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document version not found")
		}
		return nil, fmt.Errorf("set document status: %w", err)
	}

	var archived int64
	if req.Status == models.StatusPublished {
		archived, err = s.store.ArchiveOtherPublished(ctx, documentID, current.ID)
		if err != nil {
			return nil, fmt.Errorf("archive superseded versions: %w", err)
		}
	}

	s.metrics.RecordDocumentEvent(def.Name, req.Status)
	s.invalidate(ctx, documentID)

	hc.ArchivedCount = int(archived)
	if err := def.Hooks.AfterStatusChange.Run(ctx, hc); err != nil {
		return nil, err
	}

	return &dto.StatusChangeResult{
		DocumentID:        documentID,
		DocumentVersionID: current.ID,
		Status:            req.Status,
		ArchivedVersions:  archived,
	}, nil
}

// Unpublish archives every published version of a document.
func (s *DocumentService) Unpublish(ctx context.Context, documentID string) (*dto.UnpublishResult, error) {
	current, err := s.currentVersion(ctx, documentID)
	if err != nil {
		return nil, err
	}
	def, ok := s.registry.Get(current.CollectionID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("collection %q is no longer registered", current.CollectionID))
	}

	hc := &models.HookContext{
		Collection: def,
		DocumentID: documentID,
		VersionID:  current.ID,
		Status:     current.Status,
	}
	if err := def.Hooks.BeforeUnpublish.Run(ctx, hc); err != nil {
		return nil, err
	}

	archived, err := s.store.ArchivePublished(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("archive published versions: %w", err)
	}

	s.metrics.RecordDocumentEvent(def.Name, "unpublish")
	s.invalidate(ctx, documentID)

	hc.ArchivedCount = int(archived)
	if err := def.Hooks.AfterUnpublish.Run(ctx, hc); err != nil {
		return nil, err
	}

	return &dto.UnpublishResult{DocumentID: documentID, ArchivedVersions: archived}, nil
}

// Delete soft-deletes every version of a document. For upload-backed
// collections the stored file and its size variants are removed from disk on
// a best-effort basis; a failing file removal never fails the delete.
func (s *DocumentService) Delete(ctx context.Context, documentID string) error {
	current, err := s.currentVersion(ctx, documentID)
	if err != nil {
		return err
	}
	def, ok := s.registry.Get(current.CollectionID)
	if !ok {
		return appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("collection %q is no longer registered", current.CollectionID))
	}

	var file *models.FileValue
	if def.Upload != nil && def.Upload.Enabled && def.Upload.FileField != "" {
		doc, err := s.reconstruct(ctx, def, current, models.AllLocales)
		if err == nil {
			if payload, ok := doc.Data[def.Upload.FileField]; ok {
				if parsed, err := models.FileValueFrom(payload); err == nil && parsed.Filename != "" {
					file = &parsed
				}
			}
		}
	}

	hc := &models.HookContext{
		Collection: def,
		DocumentID: documentID,
		VersionID:  current.ID,
		Status:     current.Status,
	}
	if err := def.Hooks.BeforeDelete.Run(ctx, hc); err != nil {
		return err
	}

	if _, err := s.store.SoftDeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("soft delete document: %w", err)
	}

	if file != nil && s.files != nil {
		s.removeFileVariants(def, file.Filename)
	}

	s.metrics.RecordDocumentEvent(def.Name, "delete")
	s.invalidate(ctx, documentID)

	return def.Hooks.AfterDelete.Run(ctx, hc)
}

// History lists every version of a document, newest first, deleted included.
func (s *DocumentService) History(ctx context.Context, documentID string) ([]models.DocumentVersion, error) {
	versions, err := s.store.ListVersions(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list document versions: %w", err)
	}
	if len(versions) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	return versions, nil
}

// WorkflowTransitions enumerates the statuses reachable from the document's
// current status.
func (s *DocumentService) WorkflowTransitions(ctx context.Context, documentID string) (*dto.TransitionsResponse, error) {
	current, err := s.currentVersion(ctx, documentID)
	if err != nil {
		return nil, err
	}
	def, ok := s.registry.Get(current.CollectionID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("collection %q is no longer registered", current.CollectionID))
	}
	return &dto.TransitionsResponse{
		CurrentStatus: current.Status,
		Available:     AvailableTransitions(def.Workflow, current.Status),
	}, nil
}

func (s *DocumentService) currentVersion(ctx context.Context, documentID string) (*models.DocumentVersion, error) {
	version, err := s.store.GetCurrentVersion(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, fmt.Errorf("load current version: %w", err)
	}
	return version, nil
}

func (s *DocumentService) reconstruct(ctx context.Context, def *models.CollectionDefinition, version *models.DocumentVersion, locale string) (*models.Document, error) {
	start := time.Now()
	rows, err := s.store.GetFieldRows(ctx, []string{version.ID}, locale)
	if err != nil {
		return nil, fmt.Errorf("load field rows: %w", err)
	}
	s.metrics.ObserveDBQuery("get_field_rows", time.Since(start))

	data, err := ReconstructFields(rows, locale)
	if err != nil {
		return nil, fmt.Errorf("reconstruct document: %w", err)
	}

	records, err := s.store.GetMetaRecords(ctx, version.ID)
	if err != nil {
		return nil, fmt.Errorf("load meta records: %w", err)
	}
	AttachMeta(def.Fields, data, records)

	return &models.Document{
		ID:           version.DocumentID,
		VersionID:    version.ID,
		CollectionID: version.CollectionID,
		Path:         version.Path,
		Status:       version.Status,
		EventType:    version.EventType,
		CreatedAt:    version.CreatedAt,
		UpdatedAt:    version.UpdatedAt,
		Data:         data,
	}, nil
}

func (s *DocumentService) buildVersion(def *models.CollectionDefinition, version models.DocumentVersion, data map[string]interface{}, locale string, previous map[models.MetaKey]string) (models.VersionWrite, error) {
	flat, err := FlattenFields(def.Fields, data, locale, previous)
	if err != nil {
		return models.VersionWrite{}, err
	}

	rows := make([]models.FieldRow, 0, len(flat.Rows))
	for _, row := range flat.Rows {
		rows = append(rows, models.FieldRow{
			VersionID:    version.ID,
			CollectionID: version.CollectionID,
			Path:         row.Path,
			Name:         row.Name,
			Type:         row.Type,
			Locale:       row.Locale,
			ParentPath:   row.ParentPath,
			Value:        row.Value,
		})
	}

	meta := make([]models.MetaRecord, 0, len(flat.Meta))
	for _, entry := range flat.Meta {
		meta = append(meta, models.MetaRecord{
			VersionID: version.ID,
			Type:      entry.Type,
			Path:      entry.Path,
			ItemID:    entry.ItemID,
			Meta:      entry.Meta,
		})
	}

	return models.VersionWrite{Version: version, Rows: rows, Meta: meta}, nil
}

func (s *DocumentService) invalidate(ctx context.Context, documentID string) {
	if err := s.cache.Invalidate(ctx, DocumentPattern(documentID)); err != nil {
		s.logger.Warn("document cache invalidation failed", zap.String("document_id", documentID), zap.Error(err))
	}
}

func (s *DocumentService) removeFileVariants(def *models.CollectionDefinition, filename string) {
	if err := s.files.Delete(filename); err != nil {
		s.logger.Warn("file cleanup failed", zap.String("filename", filename), zap.Error(err))
	}
	for _, size := range def.Upload.SizeNames {
		variant := path.Join("sizes", size, filename)
		if err := s.files.Delete(variant); err != nil {
			s.logger.Warn("file variant cleanup failed", zap.String("filename", variant), zap.Error(err))
		}
	}
}

// titleFrom extracts the title value used for slug derivation, unwrapping a
// locale-keyed map when the title field is localized.
func titleFrom(def *models.CollectionDefinition, data map[string]interface{}, locale string) string {
	value, ok := data[def.Title()]
	if !ok || value == nil {
		return ""
	}
	if title, ok := value.(string); ok {
		return title
	}
	if byLocale, ok := value.(map[string]interface{}); ok {
		if title, ok := byLocale[locale].(string); ok {
			return title
		}
		for _, candidate := range byLocale {
			if title, ok := candidate.(string); ok {
				return title
			}
		}
	}
	return ""
}
