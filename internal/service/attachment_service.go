package service

import (
	"alcyxob/session-booking/internal/domain"
	"alcyxob/session-booking/internal/logging"
	"alcyxob/session-booking/internal/repository"
	"alcyxob/session-booking/internal/storage"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var allowedAttachmentTypes = map[string]string{
	"application/pdf": "pdf",
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"text/plain":      "txt",
}

// AttachmentURL is a presigned URL for a request attachment.
type AttachmentURL struct {
	URL       string    `json:"url"`
	ObjectKey string    `json:"objectKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AttachmentService hands out presigned URLs for files clients attach to requests,
// such as a medical clearance or a goals sheet.
type AttachmentService interface {
	CreateUploadURL(ctx context.Context, actor domain.Actor, requestID primitive.ObjectID, contentType string) (*AttachmentURL, error)
	GetDownloadURL(ctx context.Context, actor domain.Actor, requestID primitive.ObjectID) (*AttachmentURL, error)
}

type attachmentService struct {
	requestRepo repository.SessionRequestRepository
	fileStorage storage.FileStorage
	expiry      time.Duration
	now         func() time.Time
}

// NewAttachmentService creates the service. fileStorage may be nil, in which case every
// call fails with ErrStorageDisabled.
func NewAttachmentService(requestRepo repository.SessionRequestRepository, fileStorage storage.FileStorage, expiry time.Duration) AttachmentService {
	if expiry <= 0 {
		expiry = storage.DefaultPresignedURLExpiry
	}
	return &attachmentService{requestRepo: requestRepo, fileStorage: fileStorage, expiry: expiry, now: time.Now}
}

// CreateUploadURL lets the request's client upload one attachment. A new upload
// replaces the previous object.
func (s *attachmentService) CreateUploadURL(ctx context.Context, actor domain.Actor, requestID primitive.ObjectID, contentType string) (*AttachmentURL, error) {
	if s.fileStorage == nil {
		return nil, ErrStorageDisabled
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := allowedAttachmentTypes[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported content type %q", ErrInvalidRequest, contentType)
	}

	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && (actor.Role != domain.RoleClient || actor.UserID != req.ClientID) {
		return nil, ErrForbidden
	}
	if req.Status.Terminal() {
		return nil, fmt.Errorf("%w: request is %s", ErrInvalidState, req.Status)
	}

	objectKey := path.Join("session-requests", req.ID.Hex(), fmt.Sprintf("%s.%s", uuid.NewString(), ext))
	url, err := s.fileStorage.GeneratePresignedUploadURL(ctx, objectKey, contentType, s.expiry)
	if err != nil {
		return nil, fmt.Errorf("generate upload url: %w", err)
	}
	if err := s.requestRepo.SetAttachmentKey(ctx, req.ID, objectKey); err != nil {
		return nil, err
	}

	if req.AttachmentKey != nil && *req.AttachmentKey != objectKey {
		if err := s.fileStorage.DeleteObject(ctx, *req.AttachmentKey); err != nil {
			logging.FromContext(ctx).Warn().Err(err).Str("object_key", *req.AttachmentKey).Msg("failed to delete replaced attachment")
		}
	}

	return &AttachmentURL{URL: url, ObjectKey: objectKey, ExpiresAt: s.now().Add(s.expiry)}, nil
}

// GetDownloadURL is available to both parties and admins.
func (s *attachmentService) GetDownloadURL(ctx context.Context, actor domain.Actor, requestID primitive.ObjectID) (*AttachmentURL, error) {
	if s.fileStorage == nil {
		return nil, ErrStorageDisabled
	}
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.UserID != req.TrainerID && actor.UserID != req.ClientID {
		return nil, ErrForbidden
	}
	if req.AttachmentKey == nil || *req.AttachmentKey == "" {
		return nil, ErrNoAttachment
	}

	url, err := s.fileStorage.GeneratePresignedDownloadURL(ctx, *req.AttachmentKey, s.expiry)
	if err != nil {
		return nil, fmt.Errorf("generate download url: %w", err)
	}
	return &AttachmentURL{URL: url, ObjectKey: *req.AttachmentKey, ExpiresAt: s.now().Add(s.expiry)}, nil
}

func (s *attachmentService) loadRequest(ctx context.Context, id primitive.ObjectID) (*domain.SessionRequest, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return req, nil
}
