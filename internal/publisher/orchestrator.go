package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"spkr/internal/moderation"
	"spkr/internal/submission"
	"spkr/pkg/config"
	"spkr/pkg/logger"
	"spkr/pkg/models"
	"spkr/pkg/queue"
)

var (
	// ErrPublishInProgress means another worker holds the publish lock.
	ErrPublishInProgress = errors.New("publish already in progress")
	// ErrMediaRejected blocks retries of a submission whose media the
	// platform refused, until the media itself has been replaced.
	ErrMediaRejected = errors.New("media was rejected by the platform, retry requires new media")
	// ErrQueueFull means all publish workers are busy.
	ErrQueueFull = errors.New("publish queue is full")

	errPollTimeout = errors.New("container processing did not finish in time")
)

// Orchestrator drives an approved submission through the container API:
// stage, poll until processed, publish, record the external post id.
type Orchestrator struct {
	repo         submission.Repository
	client       PlatformClient
	locker       Locker
	index        moderation.HashIndex
	events       submission.EventPublisher
	logger       *logger.Logger
	pollInterval time.Duration
	pollTimeout  time.Duration
	maxAttempts  int

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	slots   chan struct{}
}

func NewOrchestrator(
	repo submission.Repository,
	client PlatformClient,
	locker Locker,
	index moderation.HashIndex,
	events submission.EventPublisher,
	log *logger.Logger,
	cfg *config.Config,
) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		repo:         repo,
		client:       client,
		locker:       locker,
		index:        index,
		events:       events,
		logger:       log,
		pollInterval: cfg.PublishPollInterval,
		pollTimeout:  cfg.PublishPollTimeout,
		maxAttempts:  cfg.PublishMaxAttempts,
		baseCtx:      ctx,
		cancel:       cancel,
		slots:        make(chan struct{}, 8),
	}
}

// Enqueue starts a publish attempt in the background, bounded by a small
// worker limit. It never blocks the caller: when every slot is busy it
// returns ErrQueueFull so the client can retry later. Publish errors are
// logged; the submission row carries the outcome either way.
func (o *Orchestrator) Enqueue(id string) error {
	if err := o.baseCtx.Err(); err != nil {
		return err
	}
	select {
	case o.slots <- struct{}{}:
	default:
		return ErrQueueFull
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() { <-o.slots }()
		if err := o.Publish(o.baseCtx, id); err != nil {
			o.logger.Warn("Publish attempt for submission %s failed: %v", id, err)
		}
	}()
	return nil
}

// Shutdown cancels in-flight publish attempts and waits for them to record
// their outcome.
func (o *Orchestrator) Shutdown() {
	o.cancel()
	o.wg.Wait()
}

// Publish runs one full publish attempt for the given submission. Exactly
// one concurrent caller wins the approved/publish_failed to publishing
// transition; losers get ErrInvalidTransition.
func (o *Orchestrator) Publish(ctx context.Context, id string) error {
	lockTTL := o.pollTimeout + 30*time.Second
	acquired, err := o.locker.Acquire(ctx, id, lockTTL)
	if err != nil {
		return fmt.Errorf("acquire publish lock: %w", err)
	}
	if !acquired {
		return ErrPublishInProgress
	}
	defer func() {
		if err := o.locker.Release(context.Background(), id); err != nil {
			o.logger.Warn("Failed to release publish lock for %s: %v", id, err)
		}
	}()

	sub, err := o.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sub.Status == models.StatusPublishFailed && sub.PublishReason == models.ReasonMediaRejected {
		if !mediaReplacedSince(sub, sub.PublishFailedAt) {
			return ErrMediaRejected
		}
	}

	err = o.repo.TransitionStatus(ctx, id,
		[]models.SubmissionStatus{models.StatusApproved, models.StatusPublishFailed},
		models.StatusPublishing, nil)
	if err != nil {
		return err
	}

	postID, err := o.stageAndPublish(ctx, sub)
	if err != nil {
		return o.recordFailure(ctx, sub, err)
	}

	now := time.Now().UTC()
	err = o.repo.TransitionStatus(ctx, id,
		[]models.SubmissionStatus{models.StatusPublishing},
		models.StatusPublished,
		map[string]interface{}{
			"external_post_id": postID,
			"published_at":     &now,
			"publish_error":    "",
			"publish_reason":   "",
		})
	if err != nil {
		return err
	}

	if hashes := imageHashes(sub); len(hashes) > 0 {
		if err := o.index.Add(ctx, id, hashes); err != nil {
			o.logger.Error("Failed to register media hashes for %s: %v", id, err)
		}
	}

	o.emit(queue.SubmissionEvent{
		Kind:         queue.EventPublished,
		SubmissionID: id,
		Status:       string(models.StatusPublished),
		Detail:       postID,
		OccurredAt:   now,
	})
	o.logger.Info("Published submission %s as external post %s", id, postID)
	return nil
}

func (o *Orchestrator) stageAndPublish(ctx context.Context, sub *models.Submission) (string, error) {
	containerID, err := o.stageContainers(ctx, sub)
	if err != nil {
		return "", err
	}
	if err := o.waitForContainer(ctx, containerID); err != nil {
		return "", err
	}
	return o.client.Publish(ctx, containerID)
}

func (o *Orchestrator) stageContainers(ctx context.Context, sub *models.Submission) (string, error) {
	if sub.MediaType == models.MediaTypeVideo {
		return o.client.CreateVideoContainer(ctx, sub.Media[0].PublicURL, sub.Caption)
	}
	if len(sub.Media) == 1 {
		return o.client.CreateImageContainer(ctx, sub.Media[0].PublicURL, sub.Caption)
	}

	childIDs := make([]string, 0, len(sub.Media))
	for _, m := range sub.Media {
		childID, err := o.client.CreateCarouselItemContainer(ctx, m.PublicURL)
		if err != nil {
			return "", err
		}
		childIDs = append(childIDs, childID)
	}
	for _, childID := range childIDs {
		if err := o.waitForContainer(ctx, childID); err != nil {
			return "", err
		}
	}
	return o.client.CreateCarouselContainer(ctx, childIDs, sub.Caption)
}

// waitForContainer polls the container until the platform finishes
// processing it, bounded by both the poll timeout and the attempt cap.
func (o *Orchestrator) waitForContainer(ctx context.Context, containerID string) error {
	deadline := time.Now().Add(o.pollTimeout)
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		status, err := o.client.ContainerStatus(ctx, containerID)
		if err != nil {
			return err
		}
		switch status {
		case ContainerFinished:
			return nil
		case ContainerError:
			return fmt.Errorf("container %s failed processing", containerID)
		}

		if time.Now().After(deadline) {
			return errPollTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return errPollTimeout
}

func (o *Orchestrator) recordFailure(ctx context.Context, sub *models.Submission, cause error) error {
	reason := classifyFailure(cause)
	now := time.Now().UTC()

	// Shutdown may have cancelled the attempt context; the outcome still
	// has to reach the database.
	recordCtx := ctx
	if recordCtx.Err() != nil {
		var cancel context.CancelFunc
		recordCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	err := o.repo.TransitionStatus(recordCtx, sub.ID,
		[]models.SubmissionStatus{models.StatusPublishing},
		models.StatusPublishFailed,
		map[string]interface{}{
			"publish_error":     cause.Error(),
			"publish_reason":    reason,
			"publish_failed_at": &now,
		})
	if err != nil {
		o.logger.Error("Failed to record publish failure for %s: %v", sub.ID, err)
	}

	o.emit(queue.SubmissionEvent{
		Kind:         queue.EventPublishFailed,
		SubmissionID: sub.ID,
		Status:       string(models.StatusPublishFailed),
		Detail:       reason + ": " + cause.Error(),
		OccurredAt:   now,
	})
	o.logger.Warn("Publish failed for submission %s (%s): %v", sub.ID, reason, cause)
	return cause
}

func (o *Orchestrator) emit(event queue.SubmissionEvent) {
	if err := o.events.PublishEvent(context.Background(), event); err != nil {
		o.logger.Warn("Failed to publish submission event: %v", err)
	}
}

func classifyFailure(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Terminal() {
		return models.ReasonMediaRejected
	}
	if errors.Is(err, errPollTimeout) {
		return models.ReasonTimeout
	}
	return models.ReasonTransient
}

func mediaReplacedSince(sub *models.Submission, failedAt *time.Time) bool {
	if failedAt == nil {
		return true
	}
	for _, m := range sub.Media {
		if m.CreatedAt.After(*failedAt) {
			return true
		}
	}
	return false
}

func imageHashes(sub *models.Submission) []uint64 {
	if sub.MediaType != models.MediaTypeImage {
		return nil
	}
	hashes := make([]uint64, 0, len(sub.Media))
	for _, m := range sub.Media {
		if h := m.Hash(); h != 0 {
			hashes = append(hashes, h)
		}
	}
	return hashes
}
