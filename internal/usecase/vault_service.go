package usecase

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"custody/internal/domain"
	"custody/internal/infra/crypto"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultChunkSize       = 64 * 1024
	defaultTransferTimeout = 5 * time.Minute
	maxFilenameRunes       = 255
)

// VaultService sequences hashing, encryption, storage, clearance checks and
// audit writes for every document operation.
type VaultService struct {
	Documents  DocumentRepository
	Blobs      BlobStore
	Cipher     Cipher
	Clearance  ClearanceChecker
	Audit      *AuditTrail
	Policy     UploadPolicy
	Authorizer domain.Authorizer
	Clock      Clock
	Logger     *zap.Logger
	NewID      func() string

	MaxUploadBytes  int64
	TransferTimeout time.Duration
	ChunkSize       int
}

type UploadRequest struct {
	Content        []byte
	Filename       string
	ContentType    string
	Classification domain.Level
	Actor          domain.Actor
	Meta           domain.RequestMeta
}

type UploadResult struct {
	Document domain.DocumentSummary
	Trace    OperationTrace
}

type DownloadResult struct {
	Content     []byte
	Filename    string
	ContentType string
	Size        int64
	Document    domain.DocumentSummary
	Trace       OperationTrace
}

type IntegrityReport struct {
	DocumentID string                 `json:"document_id"`
	Status     domain.IntegrityStatus `json:"integrity_status"`
	Previous   domain.IntegrityStatus `json:"previous_status"`
	CheckedAt  time.Time              `json:"checked_at"`
}

// levelDenial is implemented by clearance denials that carry the levels
// involved. The levels go to the audit trail only.
type levelDenial interface {
	DeniedLevels() (required, actual domain.Level)
}

// pendingDocument is a document before its blob and row exist.
type pendingDocument struct {
	action         domain.AuditActionType
	content        []byte
	filename       string
	contentType    string
	classification domain.Level
	lineageID      string
	parentID       *string
	version        int
}

// Upload stores a new document lineage.
func (s *VaultService) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	trace := newTrace()
	if err := s.ready(); err != nil {
		trace.fail(err)
		return UploadResult{Trace: *trace}, err
	}
	filename, classification, err := s.validateUpload(req)
	if err != nil {
		s.auditFailure(ctx, req.Actor, req.Meta, domain.AuditActionDocumentUpload, domain.AuditStatusFailure, "", uploadDetails(req.Filename, err))
		trace.fail(err)
		return UploadResult{Trace: *trace}, err
	}
	if err := s.authorizeClassification(ctx, req, classification); err != nil {
		status := domain.AuditStatusDenied
		if !errors.Is(err, domain.ErrClassificationNotPermitted) {
			status = domain.AuditStatusFailure
		}
		s.auditFailure(ctx, req.Actor, req.Meta, domain.AuditActionDocumentUpload, status, "", uploadDetails(filename, err))
		trace.fail(err)
		return UploadResult{Trace: *trace}, err
	}
	return s.persist(ctx, req, pendingDocument{
		action:         domain.AuditActionDocumentUpload,
		content:        req.Content,
		filename:       filename,
		contentType:    normalizeContentType(req.ContentType),
		classification: classification,
		version:        1,
	}, trace)
}

// UploadVersion stores a successor of parentID. The new version inherits the
// parent's classification unless a higher one is requested.
func (s *VaultService) UploadVersion(ctx context.Context, parentID string, req UploadRequest) (UploadResult, error) {
	trace := newTrace()
	if err := s.ready(); err != nil {
		trace.fail(err)
		return UploadResult{Trace: *trace}, err
	}
	action := domain.AuditActionDocumentVersionUpload
	parent, err := s.loadVisible(ctx, parentID)
	if err != nil {
		s.auditFailure(ctx, req.Actor, req.Meta, action, domain.AuditStatusFailure, parentID, uploadDetails(req.Filename, err))
		trace.fail(err)
		return UploadResult{Trace: *trace}, err
	}
	if err := s.enforceClearance(ctx, req.Actor, req.Meta, action, parent); err != nil {
		trace.fail(err)
		return UploadResult{Trace: *trace}, err
	}
	filename, requested, err := s.validateUpload(req)
	if err != nil {
		s.auditFailure(ctx, req.Actor, req.Meta, action, domain.AuditStatusFailure, parent.ID, uploadDetails(req.Filename, err))
		trace.fail(err)
		return UploadResult{Trace: *trace}, err
	}
	classification := parent.Classification.Normalize()
	if strings.TrimSpace(string(req.Classification)) != "" && requested.Ordinal() > classification.Ordinal() {
		classification = requested
	}
	if err := s.authorizeClassification(ctx, req, classification); err != nil {
		status := domain.AuditStatusDenied
		if !errors.Is(err, domain.ErrClassificationNotPermitted) {
			status = domain.AuditStatusFailure
		}
		s.auditFailure(ctx, req.Actor, req.Meta, action, status, parent.ID, uploadDetails(filename, err))
		trace.fail(err)
		return UploadResult{Trace: *trace}, err
	}
	lineageID := parent.LineageID
	if lineageID == "" {
		lineageID = parent.ID
	}
	parentRef := parent.ID
	return s.persist(ctx, req, pendingDocument{
		action:         action,
		content:        req.Content,
		filename:       filename,
		contentType:    normalizeContentType(req.ContentType),
		classification: classification,
		lineageID:      lineageID,
		parentID:       &parentRef,
		version:        parent.VersionNumber + 1,
	}, trace)
}

// persist runs hash, encrypt, store and row insert. A row is only written after
// the blob write succeeded; if the row insert fails the blob is removed.
func (s *VaultService) persist(ctx context.Context, req UploadRequest, pending pendingDocument, trace *OperationTrace) (UploadResult, error) {
	fail := func(resourceID string, err error) (UploadResult, error) {
		s.auditFailure(ctx, req.Actor, req.Meta, pending.action, domain.AuditStatusFailure, resourceID, uploadDetails(pending.filename, err))
		trace.fail(err)
		return UploadResult{Trace: *trace}, err
	}

	fileHash := crypto.Digest(pending.content)
	trace.advance(StateHashed)

	ciphertext, nonce, err := s.Cipher.Encrypt(pending.content)
	if err != nil {
		return fail("", err)
	}
	trace.advance(StateEncrypted)

	id := s.newID()
	locator, err := s.Blobs.Store(ctx, ciphertext, id)
	if err != nil {
		return fail(id, err)
	}
	trace.advance(StateStored)

	lineageID := pending.lineageID
	if lineageID == "" {
		lineageID = id
	}
	doc := domain.Document{
		ID:               id,
		LineageID:        lineageID,
		ParentVersionID:  pending.parentID,
		OriginalFilename: pending.filename,
		ContentType:      pending.contentType,
		OriginalSize:     int64(len(pending.content)),
		EncryptedSize:    int64(len(ciphertext)),
		FileHash:         fileHash,
		EncryptionNonce:  nonce,
		StoragePath:      locator,
		Classification:   pending.classification,
		VersionNumber:    pending.version,
		IntegrityStatus:  domain.IntegrityValid,
		UploadedBy:       req.Actor.ID,
		CreatedAt:        s.now(),
	}
	if err := s.Documents.Create(ctx, doc); err != nil {
		if _, delErr := s.Blobs.Delete(context.WithoutCancel(ctx), locator); delErr != nil {
			s.logger().Error("orphaned blob cleanup failed",
				zap.String("document_id", id),
				zap.Error(delErr),
			)
		}
		return fail(id, fmt.Errorf("persist document: %w", err))
	}

	if _, err := s.Audit.Record(ctx, AuditEntry{
		ActorID:      req.Actor.ID,
		ActionType:   pending.action,
		ResourceType: domain.AuditResourceDocument,
		ResourceID:   id,
		Status:       domain.AuditStatusSuccess,
		Details:      fmt.Sprintf("filename=%q classification=%s version=%d size=%d", pending.filename, pending.classification, pending.version, doc.OriginalSize),
		Meta:         req.Meta,
	}); err != nil {
		s.logger().Error("upload audit write failed", zap.String("document_id", id), zap.Error(err))
		trace.fail(err)
		return UploadResult{Document: doc.Summary(), Trace: *trace}, err
	}
	trace.advance(StateAudited)
	trace.complete()
	return UploadResult{Document: doc.Summary(), Trace: *trace}, nil
}

// View returns a document's metadata after a clearance check.
func (s *VaultService) View(ctx context.Context, id string, actor domain.Actor, meta domain.RequestMeta) (domain.DocumentSummary, error) {
	if err := s.ready(); err != nil {
		return domain.DocumentSummary{}, err
	}
	action := domain.AuditActionDocumentView
	doc, err := s.loadVisible(ctx, id)
	if err != nil {
		s.auditFailure(ctx, actor, meta, action, domain.AuditStatusFailure, id, errorDetails(err))
		return domain.DocumentSummary{}, err
	}
	if err := s.enforceClearance(ctx, actor, meta, action, doc); err != nil {
		return domain.DocumentSummary{}, err
	}
	s.Audit.RecordAsync(AuditEntry{
		ActorID:      actor.ID,
		ActionType:   action,
		ResourceType: domain.AuditResourceDocument,
		ResourceID:   doc.ID,
		Status:       domain.AuditStatusSuccess,
		Meta:         meta,
	})
	return doc.Summary(), nil
}

// List pages through documents the actor is cleared for. Rows above the
// actor's clearance are excluded by the repository query.
func (s *VaultService) List(ctx context.Context, query domain.DocumentQuery, actor domain.Actor, meta domain.RequestMeta) (domain.DocumentPage, error) {
	if err := s.ready(); err != nil {
		return domain.DocumentPage{}, err
	}
	query.Levels = s.Clearance.AccessibleLevels(actor.Clearance)
	query.Page = query.Page.Normalize()
	query.Search = strings.TrimSpace(query.Search)
	docs, total, err := s.Documents.List(ctx, query)
	if err != nil {
		s.auditFailure(ctx, actor, meta, domain.AuditActionDocumentList, domain.AuditStatusFailure, "", errorDetails(err))
		return domain.DocumentPage{}, err
	}
	items := make([]domain.DocumentSummary, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Summary())
	}
	s.Audit.RecordAsync(AuditEntry{
		ActorID:      actor.ID,
		ActionType:   domain.AuditActionDocumentList,
		ResourceType: domain.AuditResourceDocument,
		Status:       domain.AuditStatusSuccess,
		Details:      fmt.Sprintf("results=%d page=%d", len(items), query.Page.Number),
		Meta:         meta,
	})
	return domain.DocumentPage{
		Items:    items,
		Total:    total,
		Page:     query.Page.Number,
		PageSize: query.Page.Size,
	}, nil
}

// ListVersions returns the lineage of id, oldest version first, limited to the
// versions the actor is cleared for.
func (s *VaultService) ListVersions(ctx context.Context, id string, actor domain.Actor, meta domain.RequestMeta) ([]domain.DocumentSummary, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	action := domain.AuditActionDocumentList
	doc, err := s.loadVisible(ctx, id)
	if err != nil {
		s.auditFailure(ctx, actor, meta, action, domain.AuditStatusFailure, id, errorDetails(err))
		return nil, err
	}
	if err := s.enforceClearance(ctx, actor, meta, action, doc); err != nil {
		return nil, err
	}
	lineageID := doc.LineageID
	if lineageID == "" {
		lineageID = doc.ID
	}
	versions, err := s.Documents.ListByLineage(ctx, lineageID, s.Clearance.AccessibleLevels(actor.Clearance))
	if err != nil {
		s.auditFailure(ctx, actor, meta, action, domain.AuditStatusFailure, doc.ID, errorDetails(err))
		return nil, err
	}
	out := make([]domain.DocumentSummary, 0, len(versions))
	for _, version := range versions {
		if version.Deleted {
			continue
		}
		out = append(out, version.Summary())
	}
	s.Audit.RecordAsync(AuditEntry{
		ActorID:      actor.ID,
		ActionType:   action,
		ResourceType: domain.AuditResourceDocument,
		ResourceID:   doc.ID,
		Status:       domain.AuditStatusSuccess,
		Details:      fmt.Sprintf("versions=%d", len(out)),
		Meta:         meta,
	})
	return out, nil
}

// Download releases a document's plaintext. The clearance check runs before
// any storage access; the plaintext is released only after its digest matches
// the hash recorded at upload. The release is bracketed by STARTED and
// COMPLETED records, as for DownloadStream.
func (s *VaultService) Download(ctx context.Context, id string, actor domain.Actor, meta domain.RequestMeta) (DownloadResult, error) {
	trace := newTrace()
	if err := s.ready(); err != nil {
		trace.fail(err)
		return DownloadResult{Trace: *trace}, err
	}
	doc, plaintext, err := s.open(ctx, id, actor, meta, trace)
	if err != nil {
		return DownloadResult{Trace: *trace}, err
	}
	details := fmt.Sprintf("bytes=%d", len(plaintext))
	if err := s.recordTransfer(ctx, actor, meta, domain.AuditActionDocumentDownloadStarted, doc.ID, details); err != nil {
		clear(plaintext)
		trace.fail(err)
		return DownloadResult{Trace: *trace}, err
	}
	trace.advance(StateReleased)
	if err := s.recordTransfer(ctx, actor, meta, domain.AuditActionDocumentDownloadCompleted, doc.ID, details); err != nil {
		s.logger().Error("download completion audit write failed", zap.String("document_id", doc.ID), zap.Error(err))
		clear(plaintext)
		trace.fail(err)
		return DownloadResult{Trace: *trace}, err
	}
	trace.complete()
	return DownloadResult{
		Content:     plaintext,
		Filename:    doc.OriginalFilename,
		ContentType: doc.ContentType,
		Size:        int64(len(plaintext)),
		Document:    doc.Summary(),
		Trace:       *trace,
	}, nil
}

func (s *VaultService) recordTransfer(ctx context.Context, actor domain.Actor, meta domain.RequestMeta, action domain.AuditActionType, documentID, details string) error {
	_, err := s.Audit.Record(ctx, AuditEntry{
		ActorID:      actor.ID,
		ActionType:   action,
		ResourceType: domain.AuditResourceDocument,
		ResourceID:   documentID,
		Status:       domain.AuditStatusSuccess,
		Details:      details,
		Meta:         meta,
	})
	return err
}

// StreamHeader is handed to the caller of DownloadStream once the document has
// been verified and before any bytes are written.
type StreamHeader struct {
	Filename    string
	ContentType string
	Size        int64
	FileHash    string
}

// DownloadStream verifies a document like Download and then writes it to w in
// chunks. A STARTED record precedes the transfer and a COMPLETED or
// INTERRUPTED record follows it.
func (s *VaultService) DownloadStream(ctx context.Context, id string, actor domain.Actor, meta domain.RequestMeta, w StreamWriter) (DownloadResult, error) {
	trace := newTrace()
	if err := s.ready(); err != nil {
		trace.fail(err)
		return DownloadResult{Trace: *trace}, err
	}
	doc, plaintext, err := s.open(ctx, id, actor, meta, trace)
	if err != nil {
		return DownloadResult{Trace: *trace}, err
	}
	defer clear(plaintext)

	if err := s.recordTransfer(ctx, actor, meta, domain.AuditActionDocumentDownloadStarted, doc.ID, fmt.Sprintf("bytes=%d", len(plaintext))); err != nil {
		trace.fail(err)
		return DownloadResult{Trace: *trace}, err
	}

	timeout := s.TransferTimeout
	if timeout <= 0 {
		timeout = defaultTransferTimeout
	}
	transferCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	w.Begin(StreamHeader{
		Filename:    doc.OriginalFilename,
		ContentType: doc.ContentType,
		Size:        int64(len(plaintext)),
		FileHash:    doc.FileHash,
	})
	sent, err := s.writeChunks(transferCtx, w, plaintext)
	if err != nil {
		interrupted := fmt.Errorf("%w: %d of %d bytes sent", domain.ErrTransferInterrupted, sent, len(plaintext))
		s.auditFailure(ctx, actor, meta, domain.AuditActionDocumentDownloadInterrupted, domain.AuditStatusError, doc.ID,
			fmt.Sprintf("bytes_sent=%d bytes_total=%d cause=%s", sent, len(plaintext), transferCause(err)))
		s.logger().Warn("document transfer interrupted",
			zap.String("document_id", doc.ID),
			zap.Int64("bytes_sent", sent),
			zap.Error(err),
		)
		trace.fail(interrupted)
		return DownloadResult{Trace: *trace}, interrupted
	}
	trace.advance(StateReleased)

	if err := s.recordTransfer(ctx, actor, meta, domain.AuditActionDocumentDownloadCompleted, doc.ID, fmt.Sprintf("bytes=%d", sent)); err != nil {
		s.logger().Error("download completion audit write failed", zap.String("document_id", doc.ID), zap.Error(err))
		trace.fail(err)
		return DownloadResult{Trace: *trace}, err
	}
	trace.complete()
	return DownloadResult{
		Filename:    doc.OriginalFilename,
		ContentType: doc.ContentType,
		Size:        sent,
		Document:    doc.Summary(),
		Trace:       *trace,
	}, nil
}

// StreamWriter receives a verified document. Begin is called once before the
// first Write.
type StreamWriter interface {
	Begin(header StreamHeader)
	Write(p []byte) (int, error)
}

func (s *VaultService) writeChunks(ctx context.Context, w StreamWriter, payload []byte) (int64, error) {
	chunk := s.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	var sent int64
	for offset := 0; offset < len(payload); offset += chunk {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		end := offset + chunk
		if end > len(payload) {
			end = len(payload)
		}
		n, err := w.Write(payload[offset:end])
		sent += int64(n)
		if err != nil {
			return sent, err
		}
	}
	return sent, nil
}

// open performs every download step up to and including digest verification.
// Each failure is audited against DOCUMENT_DOWNLOAD before it is returned.
func (s *VaultService) open(ctx context.Context, id string, actor domain.Actor, meta domain.RequestMeta, trace *OperationTrace) (*domain.Document, []byte, error) {
	action := domain.AuditActionDocumentDownload
	doc, err := s.loadVisible(ctx, id)
	if err != nil {
		s.auditFailure(ctx, actor, meta, action, domain.AuditStatusFailure, id, errorDetails(err))
		trace.fail(err)
		return nil, nil, err
	}
	if err := s.enforceClearance(ctx, actor, meta, action, doc); err != nil {
		trace.fail(err)
		return nil, nil, err
	}
	trace.advance(StateClearanceChecked)

	plaintext, status, err := s.readVerified(ctx, doc, trace)
	if err != nil {
		if status != "" && status != doc.IntegrityStatus {
			s.markIntegrity(ctx, doc.ID, status)
		}
		if errors.Is(err, domain.ErrIntegrityViolation) {
			s.logger().Error("integrity violation on download",
				zap.String("document_id", doc.ID),
				zap.String("actor_id", actor.ID),
			)
		}
		s.auditFailure(ctx, actor, meta, action, domain.AuditStatusError, doc.ID, errorDetails(err))
		trace.fail(err)
		return nil, nil, err
	}
	return doc, plaintext, nil
}

// readVerified fetches, decrypts and re-hashes a document's blob. On failure it
// also returns the integrity status the failure implies, or "" for transient
// storage errors.
func (s *VaultService) readVerified(ctx context.Context, doc *domain.Document, trace *OperationTrace) ([]byte, domain.IntegrityStatus, error) {
	exists, err := s.Blobs.Exists(ctx, doc.StoragePath)
	if err != nil {
		return nil, "", storageError(err)
	}
	if !exists {
		return nil, domain.IntegrityMissing, fmt.Errorf("%w: document %s", domain.ErrBlobNotFound, doc.ID)
	}
	ciphertext, err := s.Blobs.Retrieve(ctx, doc.StoragePath)
	if err != nil {
		if errors.Is(err, domain.ErrBlobNotFound) {
			return nil, domain.IntegrityMissing, err
		}
		return nil, "", storageError(err)
	}
	if trace != nil {
		trace.advance(StateRetrieved)
	}
	plaintext, err := s.Cipher.Decrypt(ciphertext, doc.EncryptionNonce)
	if err != nil {
		return nil, domain.IntegrityCorrupted, domain.ErrCryptographic
	}
	if trace != nil {
		trace.advance(StateDecrypted)
	}
	if !crypto.Verify(plaintext, doc.FileHash) {
		clear(plaintext)
		return nil, domain.IntegrityCorrupted, domain.ErrIntegrityViolation
	}
	if trace != nil {
		trace.advance(StateVerified)
	}
	return plaintext, domain.IntegrityValid, nil
}

// Delete soft-deletes a document. The blob is kept until the retention sweep.
func (s *VaultService) Delete(ctx context.Context, id string, actor domain.Actor, meta domain.RequestMeta) error {
	if err := s.ready(); err != nil {
		return err
	}
	action := domain.AuditActionDocumentDelete
	doc, err := s.loadVisible(ctx, id)
	if err != nil {
		s.auditFailure(ctx, actor, meta, action, domain.AuditStatusFailure, id, errorDetails(err))
		return err
	}
	if err := s.enforceClearance(ctx, actor, meta, action, doc); err != nil {
		return err
	}
	if err := s.Documents.MarkDeleted(ctx, doc.ID, actor.ID, s.now()); err != nil {
		s.auditFailure(ctx, actor, meta, action, domain.AuditStatusFailure, doc.ID, errorDetails(err))
		return err
	}
	_, err = s.Audit.Record(ctx, AuditEntry{
		ActorID:      actor.ID,
		ActionType:   action,
		ResourceType: domain.AuditResourceDocument,
		ResourceID:   doc.ID,
		Status:       domain.AuditStatusSuccess,
		Details:      "soft_delete",
		Meta:         meta,
	})
	return err
}

// VerifyDocument re-reads, decrypts and re-hashes a stored document and records
// the resulting integrity status. It requires the document verify permission.
func (s *VaultService) VerifyDocument(ctx context.Context, id string, actor domain.Actor, meta domain.RequestMeta) (IntegrityReport, error) {
	if err := s.ready(); err != nil {
		return IntegrityReport{}, err
	}
	action := domain.AuditActionDocumentIntegrityCheck
	if err := s.authorize(actor, domain.PermissionDocumentVerify); err != nil {
		s.auditFailure(ctx, actor, meta, action, domain.AuditStatusDenied, id, errorDetails(err))
		return IntegrityReport{}, err
	}
	doc, err := s.loadVisible(ctx, id)
	if err != nil {
		s.auditFailure(ctx, actor, meta, action, domain.AuditStatusFailure, id, errorDetails(err))
		return IntegrityReport{}, err
	}
	if err := s.enforceClearance(ctx, actor, meta, action, doc); err != nil {
		return IntegrityReport{}, err
	}
	plaintext, status, err := s.readVerified(ctx, doc, nil)
	clear(plaintext)
	if status == "" {
		s.auditFailure(ctx, actor, meta, action, domain.AuditStatusError, doc.ID, errorDetails(err))
		return IntegrityReport{}, err
	}
	if status != doc.IntegrityStatus {
		if err := s.Documents.UpdateIntegrityStatus(ctx, doc.ID, status); err != nil {
			s.auditFailure(ctx, actor, meta, action, domain.AuditStatusFailure, doc.ID, errorDetails(err))
			return IntegrityReport{}, err
		}
	}
	report := IntegrityReport{
		DocumentID: doc.ID,
		Status:     status,
		Previous:   doc.IntegrityStatus,
		CheckedAt:  s.now(),
	}
	auditStatus := domain.AuditStatusSuccess
	details := "status=" + string(status)
	if status != domain.IntegrityValid {
		auditStatus = domain.AuditStatusError
		details += " error=" + domain.ErrorClass(err)
	}
	if _, err := s.Audit.Record(ctx, AuditEntry{
		ActorID:      actor.ID,
		ActionType:   action,
		ResourceType: domain.AuditResourceDocument,
		ResourceID:   doc.ID,
		Status:       auditStatus,
		Details:      details,
		Meta:         meta,
	}); err != nil {
		return IntegrityReport{}, err
	}
	return report, nil
}

func (s *VaultService) ready() error {
	if s == nil || s.Documents == nil || s.Blobs == nil || s.Cipher == nil || s.Clearance == nil || s.Audit == nil {
		return errors.New("vault service not configured")
	}
	return nil
}

func (s *VaultService) validateUpload(req UploadRequest) (string, domain.Level, error) {
	if req.Actor.ID == "" {
		return "", "", domain.ErrUnauthorized
	}
	filename := sanitizeFilename(req.Filename)
	if filename == "" {
		return "", "", fmt.Errorf("%w: filename required", domain.ErrInvalidInput)
	}
	if len(req.Content) == 0 {
		return "", "", fmt.Errorf("%w: empty file", domain.ErrInvalidInput)
	}
	if s.MaxUploadBytes > 0 && int64(len(req.Content)) > s.MaxUploadBytes {
		return "", "", fmt.Errorf("%w: file exceeds %d bytes", domain.ErrInvalidInput, s.MaxUploadBytes)
	}
	classification, err := domain.ParseLevel(string(req.Classification))
	if err != nil {
		return "", "", err
	}
	return filename, classification, nil
}

// authorizeClassification denies uploads classified above the uploader's own
// clearance. A configured policy engine decides; otherwise the clearance order
// does.
func (s *VaultService) authorizeClassification(ctx context.Context, req UploadRequest, classification domain.Level) error {
	if s.Policy == nil {
		if !s.Clearance.HasAccess(req.Actor.Clearance, classification) {
			return domain.ErrClassificationNotPermitted
		}
		return nil
	}
	evaluation, err := s.Policy.Evaluate(ctx, domain.UploadPolicyInput{
		ActorID:                 req.Actor.ID,
		ActorClearance:          req.Actor.Clearance.Normalize(),
		ActorRoles:              req.Actor.Roles,
		RequestedClassification: classification,
		ContentType:             normalizeContentType(req.ContentType),
		Size:                    int64(len(req.Content)),
		Levels:                  domain.Levels(),
	})
	if err != nil {
		return fmt.Errorf("evaluate upload policy: %w", err)
	}
	if !evaluation.Result.Allow {
		codes := make([]string, 0, len(evaluation.Result.Deny))
		for _, deny := range evaluation.Result.Deny {
			codes = append(codes, deny.Code)
		}
		return fmt.Errorf("%w: %s", domain.ErrClassificationNotPermitted, strings.Join(codes, ","))
	}
	return nil
}

// enforceClearance audits a DENIED record before returning the denial.
func (s *VaultService) enforceClearance(ctx context.Context, actor domain.Actor, meta domain.RequestMeta, action domain.AuditActionType, doc *domain.Document) error {
	err := s.Clearance.Enforce(actor.Clearance, doc.Classification)
	if err == nil {
		return nil
	}
	details := "error=" + domain.ErrorClass(err)
	var denial levelDenial
	if errors.As(err, &denial) {
		required, actual := denial.DeniedLevels()
		details = fmt.Sprintf("required=%s actual=%s", required, actual)
	}
	s.auditFailure(ctx, actor, meta, action, domain.AuditStatusDenied, doc.ID, details)
	return err
}

func (s *VaultService) authorize(actor domain.Actor, permission string) error {
	if s.Authorizer != nil {
		return s.Authorizer.Require(actor, permission)
	}
	if actor.ID == "" {
		return domain.ErrUnauthorized
	}
	if !actor.HasRole(domain.RoleAdmin) {
		return domain.ErrForbidden
	}
	return nil
}

// loadVisible returns the document unless it is absent or soft-deleted.
func (s *VaultService) loadVisible(ctx context.Context, id string) (*domain.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: document id required", domain.ErrInvalidInput)
	}
	doc, err := s.Documents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Deleted {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

func (s *VaultService) markIntegrity(ctx context.Context, id string, status domain.IntegrityStatus) {
	if err := s.Documents.UpdateIntegrityStatus(context.WithoutCancel(ctx), id, status); err != nil {
		s.logger().Error("integrity status update failed",
			zap.String("document_id", id),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// auditFailure writes a non-success record synchronously. A failing audit
// write is logged; the caller's original error is what gets returned.
func (s *VaultService) auditFailure(ctx context.Context, actor domain.Actor, meta domain.RequestMeta, action domain.AuditActionType, status domain.AuditStatus, resourceID, details string) {
	actorID := actor.ID
	if actorID == "" {
		actorID = domain.UnknownRequestValue
	}
	if _, err := s.Audit.Record(ctx, AuditEntry{
		ActorID:      actorID,
		ActionType:   action,
		ResourceType: domain.AuditResourceDocument,
		ResourceID:   resourceID,
		Status:       status,
		Details:      details,
		Meta:         meta,
	}); err != nil {
		s.logger().Error("audit write failed",
			zap.String("action_type", string(action)),
			zap.String("status", string(status)),
			zap.String("resource_id", resourceID),
			zap.Error(err),
		)
	}
}

func (s *VaultService) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func (s *VaultService) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *VaultService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func storageError(err error) error {
	if errors.Is(err, domain.ErrStorage) || errors.Is(err, domain.ErrBlobNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStorage, err)
}

func transferCause(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "write_failed"
	}
}

func uploadDetails(filename string, err error) string {
	return fmt.Sprintf("filename=%q error=%s", sanitizeFilename(filename), domain.ErrorClass(err))
}

func errorDetails(err error) string {
	return "error=" + domain.ErrorClass(err)
}

// sanitizeFilename keeps the base name only and drops control characters.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	return truncateRunes(name, maxFilenameRunes)
}

func normalizeContentType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return "application/octet-stream"
	}
	return contentType
}
