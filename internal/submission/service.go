package submission

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"spkr/internal/moderation"
	"spkr/internal/settings"
	"spkr/pkg/logger"
	"spkr/pkg/models"
	"spkr/pkg/queue"

	"github.com/google/uuid"
)

const maxImagesPerSubmission = 10

// MediaStore is the durable content store serving a stable public URL per
// uploaded asset.
type MediaStore interface {
	UploadFile(key string, file io.Reader, contentType string) (string, error)
}

// EventPublisher fans submission lifecycle events out to downstream
// consumers. Failures are logged, never propagated.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event queue.SubmissionEvent) error
}

type MediaUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type IntakeRequest struct {
	Caption     string
	DisplayName string
	SubmitterIP string
	Kind        models.PostKind
	MediaType   models.MediaType
	Uploads     []MediaUpload
}

type Service interface {
	Submit(ctx context.Context, req IntakeRequest) (*models.Submission, *models.ModerationResult, error)
	Get(ctx context.Context, id string) (*models.Submission, error)
	ListForReview(ctx context.Context, limit, offset int) ([]*models.Submission, error)
	Approve(ctx context.Context, id string) (*models.Submission, error)
	Reject(ctx context.Context, id string) (*models.Submission, error)
	ModerationDetail(ctx context.Context, id string) ([]*models.ModerationResult, error)
}

type service struct {
	repo     Repository
	store    MediaStore
	engine   *moderation.Engine
	settings settings.Provider
	events   EventPublisher
	logger   *logger.Logger
}

func NewService(
	repo Repository,
	store MediaStore,
	engine *moderation.Engine,
	settingsProvider settings.Provider,
	events EventPublisher,
	log *logger.Logger,
) Service {
	return &service{
		repo:     repo,
		store:    store,
		engine:   engine,
		settings: settingsProvider,
		events:   events,
		logger:   log,
	}
}

// Submit validates the intake, uploads media, runs one moderation pass
// against a fresh settings snapshot and persists the submission in its
// initial state. Validation failures reject the request before anything is
// stored.
func (s *service) Submit(ctx context.Context, req IntakeRequest) (*models.Submission, *models.ModerationResult, error) {
	if err := validateIntake(req); err != nil {
		return nil, nil, err
	}

	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load settings snapshot: %w", err)
	}

	if length := len([]rune(req.Caption)); length > snap.MaxCaptionLength {
		return nil, nil, &ValidationError{Msg: fmt.Sprintf("caption exceeds %d characters", snap.MaxCaptionLength)}
	}

	sub := &models.Submission{
		ID:          uuid.New().String(),
		DisplayName: strings.TrimSpace(req.DisplayName),
		SubmitterIP: req.SubmitterIP,
		Caption:     req.Caption,
		Kind:        req.Kind,
		MediaType:   req.MediaType,
	}

	for i, upload := range req.Uploads {
		media := models.SubmissionMedia{
			SubmissionID: sub.ID,
			Position:     i,
		}

		if req.MediaType == models.MediaTypeImage {
			hash, err := moderation.ComputeHash(bytes.NewReader(upload.Data))
			if err != nil {
				return nil, nil, &ValidationError{Msg: fmt.Sprintf("unreadable image %q", upload.Filename)}
			}
			media.SetHash(hash)
		}

		key := fmt.Sprintf("submissions/%s/%d%s", sub.ID, i, fileExtension(upload.Filename))
		url, err := s.store.UploadFile(key, bytes.NewReader(upload.Data), upload.ContentType)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to store media: %w", err)
		}
		media.ObjectKey = key
		media.PublicURL = url
		sub.Media = append(sub.Media, media)
	}

	result, err := s.engine.Evaluate(ctx, sub, snap)
	if err != nil {
		return nil, nil, fmt.Errorf("moderation failed: %w", err)
	}

	sub.Status = InitialStatus(result)

	if err := s.repo.Create(ctx, sub, result); err != nil {
		return nil, nil, fmt.Errorf("failed to persist submission: %w", err)
	}

	s.emit(ctx, sub, result)

	return sub, result, nil
}

func (s *service) emit(ctx context.Context, sub *models.Submission, result *models.ModerationResult) {
	if s.events == nil {
		return
	}

	kind := queue.EventReceived
	detail := ""
	if sub.Status == models.StatusFlagged {
		kind = queue.EventFlagged
		for _, check := range result.Checks {
			if check.Outcome == models.OutcomeFail {
				detail = check.Detail
				break
			}
		}
	}

	event := queue.SubmissionEvent{
		Kind:         kind,
		SubmissionID: sub.ID,
		Status:       string(sub.Status),
		Detail:       detail,
	}
	if err := s.events.PublishEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to publish submission event: %v", err)
	}
}

func (s *service) Get(ctx context.Context, id string) (*models.Submission, error) {
	return s.repo.GetByID(ctx, id)
}

// ListForReview returns submissions awaiting an admin decision, paid
// priority first.
func (s *service) ListForReview(ctx context.Context, limit, offset int) ([]*models.Submission, error) {
	pending, err := s.repo.ListByStatus(ctx, models.StatusPendingReview, limit, offset)
	if err != nil {
		return nil, err
	}
	flagged, err := s.repo.ListByStatus(ctx, models.StatusFlagged, limit, offset)
	if err != nil {
		return nil, err
	}
	return append(pending, flagged...), nil
}

func (s *service) Approve(ctx context.Context, id string) (*models.Submission, error) {
	err := s.repo.TransitionStatus(ctx, id,
		[]models.SubmissionStatus{models.StatusPendingReview, models.StatusFlagged},
		models.StatusApproved, nil)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) Reject(ctx context.Context, id string) (*models.Submission, error) {
	err := s.repo.TransitionStatus(ctx, id,
		[]models.SubmissionStatus{models.StatusPendingReview, models.StatusFlagged},
		models.StatusRejected, nil)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) ModerationDetail(ctx context.Context, id string) ([]*models.ModerationResult, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ModerationHistory(ctx, id)
}

func validateIntake(req IntakeRequest) error {
	if strings.TrimSpace(req.Caption) == "" {
		return &ValidationError{Msg: "caption is required"}
	}
	if req.Kind != models.PostKindFree && req.Kind != models.PostKindPromoted {
		return &ValidationError{Msg: fmt.Sprintf("unknown post kind %q", req.Kind)}
	}

	switch req.MediaType {
	case models.MediaTypeImage:
		if len(req.Uploads) < 1 || len(req.Uploads) > maxImagesPerSubmission {
			return &ValidationError{Msg: fmt.Sprintf("image submissions require 1 to %d images", maxImagesPerSubmission)}
		}
	case models.MediaTypeVideo:
		if len(req.Uploads) != 1 {
			return &ValidationError{Msg: "video submissions require exactly one video file"}
		}
	default:
		return &ValidationError{Msg: fmt.Sprintf("unknown media type %q", req.MediaType)}
	}

	for _, upload := range req.Uploads {
		if len(upload.Data) == 0 {
			return &ValidationError{Msg: fmt.Sprintf("empty upload %q", upload.Filename)}
		}
	}
	return nil
}

func fileExtension(filename string) string {
	ext := path.Ext(filename)
	if ext == "" {
		return ".bin"
	}
	return strings.ToLower(ext)
}
