package publisher

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"spkr/internal/submission"
	"spkr/pkg/config"
	"spkr/pkg/logger"
	"spkr/pkg/models"
	"spkr/pkg/queue"
)

type memRepo struct {
	mu   sync.Mutex
	subs map[string]*models.Submission
}

func newMemRepo(subs ...*models.Submission) *memRepo {
	r := &memRepo{subs: make(map[string]*models.Submission)}
	for _, s := range subs {
		r.subs[s.ID] = s
	}
	return r
}

func (r *memRepo) Create(ctx context.Context, sub *models.Submission, result *models.ModerationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.ID] = sub
	return nil
}

func (r *memRepo) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, submission.ErrNotFound
	}
	copied := *sub
	return &copied, nil
}

func (r *memRepo) ListByStatus(ctx context.Context, status models.SubmissionStatus, limit, offset int) ([]*models.Submission, error) {
	return nil, nil
}

func (r *memRepo) TransitionStatus(ctx context.Context, id string, from []models.SubmissionStatus, to models.SubmissionStatus, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return submission.ErrNotFound
	}
	for _, f := range from {
		if sub.Status == f {
			sub.Status = to
			for key, value := range updates {
				switch key {
				case "external_post_id":
					sub.ExternalPostID = value.(string)
				case "publish_error":
					sub.PublishError = value.(string)
				case "publish_reason":
					sub.PublishReason = value.(string)
				case "published_at":
					sub.PublishedAt = value.(*time.Time)
				case "publish_failed_at":
					sub.PublishFailedAt = value.(*time.Time)
				}
			}
			return nil
		}
	}
	return submission.ErrInvalidTransition
}

func (r *memRepo) SetPriority(ctx context.Context, id string, priority bool) error {
	return nil
}

func (r *memRepo) SaveModerationResult(ctx context.Context, result *models.ModerationResult) error {
	return nil
}

func (r *memRepo) ModerationHistory(ctx context.Context, submissionID string) ([]*models.ModerationResult, error) {
	return nil, nil
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]bool)}
}

func (l *memLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *memLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

type fakeIndex struct {
	mu    sync.Mutex
	added map[string][]uint64
}

func (f *fakeIndex) PublishedHashes(ctx context.Context) ([]uint64, error) {
	return nil, nil
}

func (f *fakeIndex) Add(ctx context.Context, submissionID string, hashes []uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.added == nil {
		f.added = make(map[string][]uint64)
	}
	f.added[submissionID] = append(f.added[submissionID], hashes...)
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []queue.SubmissionEvent
}

func (f *fakeEvents) PublishEvent(ctx context.Context, event queue.SubmissionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEvents) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]string, 0, len(f.events))
	for _, e := range f.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// scriptedClient serves container statuses from a per-container script and
// counts calls so tests can assert the staging sequence.
type scriptedClient struct {
	mu sync.Mutex

	createErr     error
	statusScript  []ContainerStatus
	statusErr     error
	statusCalls   int
	publishErr    error
	imageCalls    int
	videoCalls    int
	carouselItems int
	carouselCalls int
	nextContainer int
}

func (c *scriptedClient) newContainerID() string {
	c.nextContainer++
	return "container-" + strconv.Itoa(c.nextContainer)
}

func (c *scriptedClient) CreateImageContainer(ctx context.Context, imageURL, caption string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.imageCalls++
	if c.createErr != nil {
		return "", c.createErr
	}
	return c.newContainerID(), nil
}

func (c *scriptedClient) CreateVideoContainer(ctx context.Context, videoURL, caption string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videoCalls++
	if c.createErr != nil {
		return "", c.createErr
	}
	return c.newContainerID(), nil
}

func (c *scriptedClient) CreateCarouselItemContainer(ctx context.Context, imageURL string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carouselItems++
	if c.createErr != nil {
		return "", c.createErr
	}
	return c.newContainerID(), nil
}

func (c *scriptedClient) CreateCarouselContainer(ctx context.Context, childIDs []string, caption string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carouselCalls++
	if c.createErr != nil {
		return "", c.createErr
	}
	return c.newContainerID(), nil
}

func (c *scriptedClient) ContainerStatus(ctx context.Context, containerID string) (ContainerStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCalls++
	if c.statusErr != nil {
		return ContainerError, c.statusErr
	}
	if len(c.statusScript) == 0 {
		return ContainerFinished, nil
	}
	status := c.statusScript[0]
	if len(c.statusScript) > 1 {
		c.statusScript = c.statusScript[1:]
	}
	return status, nil
}

func (c *scriptedClient) Publish(ctx context.Context, containerID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return "", c.publishErr
	}
	return "post-42", nil
}

func testConfig() *config.Config {
	return &config.Config{
		PublishPollInterval: time.Millisecond,
		PublishPollTimeout:  100 * time.Millisecond,
		PublishMaxAttempts:  5,
	}
}

func approvedSubmission(id string, mediaCount int, mediaType models.MediaType) *models.Submission {
	sub := &models.Submission{
		ID:        id,
		Caption:   "a perfectly fine caption",
		Kind:      models.PostKindFree,
		MediaType: mediaType,
		Status:    models.StatusApproved,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	for i := 0; i < mediaCount; i++ {
		m := models.SubmissionMedia{
			ID:           id + "-media",
			SubmissionID: id,
			ObjectKey:    "submissions/key",
			PublicURL:    "https://cdn.example.com/submissions/key",
			Position:     i,
			CreatedAt:    time.Now().Add(-time.Hour),
		}
		if mediaType == models.MediaTypeImage {
			m.SetHash(0xABCD0000FFFF0000 + uint64(i))
		}
		sub.Media = append(sub.Media, m)
	}
	return sub
}

func newTestOrchestrator(repo *memRepo, client PlatformClient) (*Orchestrator, *fakeIndex, *fakeEvents, *memLocker) {
	index := &fakeIndex{}
	events := &fakeEvents{}
	locker := newMemLocker()
	orch := NewOrchestrator(repo, client, locker, index, events, logger.New(), testConfig())
	return orch, index, events, locker
}

func TestPublishSingleImage(t *testing.T) {
	sub := approvedSubmission("sub-1", 1, models.MediaTypeImage)
	repo := newMemRepo(sub)
	client := &scriptedClient{}
	orch, index, events, locker := newTestOrchestrator(repo, client)

	err := orch.Publish(context.Background(), "sub-1")
	assert.NoError(t, err)

	stored, _ := repo.GetByID(context.Background(), "sub-1")
	assert.Equal(t, models.StatusPublished, stored.Status)
	assert.Equal(t, "post-42", stored.ExternalPostID)
	assert.NotNil(t, stored.PublishedAt)
	assert.Equal(t, 1, client.imageCalls)
	assert.Equal(t, 0, client.carouselCalls)
	assert.Len(t, index.added["sub-1"], 1)
	assert.Equal(t, []string{queue.EventPublished}, events.kinds())
	assert.False(t, locker.held["sub-1"], "lock should be released")
}

func TestPublishCarousel(t *testing.T) {
	sub := approvedSubmission("sub-2", 3, models.MediaTypeImage)
	repo := newMemRepo(sub)
	client := &scriptedClient{}
	orch, index, _, _ := newTestOrchestrator(repo, client)

	err := orch.Publish(context.Background(), "sub-2")
	assert.NoError(t, err)

	stored, _ := repo.GetByID(context.Background(), "sub-2")
	assert.Equal(t, models.StatusPublished, stored.Status)
	assert.Equal(t, 3, client.carouselItems)
	assert.Equal(t, 1, client.carouselCalls)
	assert.Equal(t, 0, client.imageCalls)
	assert.Len(t, index.added["sub-2"], 3)
}

func TestPublishVideo(t *testing.T) {
	sub := approvedSubmission("sub-3", 1, models.MediaTypeVideo)
	repo := newMemRepo(sub)
	client := &scriptedClient{}
	orch, index, _, _ := newTestOrchestrator(repo, client)

	err := orch.Publish(context.Background(), "sub-3")
	assert.NoError(t, err)

	stored, _ := repo.GetByID(context.Background(), "sub-3")
	assert.Equal(t, models.StatusPublished, stored.Status)
	assert.Equal(t, 1, client.videoCalls)
	assert.Empty(t, index.added["sub-3"], "video hashes are never indexed")
}

func TestPublishPollTimeout(t *testing.T) {
	sub := approvedSubmission("sub-4", 1, models.MediaTypeImage)
	repo := newMemRepo(sub)
	client := &scriptedClient{statusScript: []ContainerStatus{ContainerInProgress}}
	orch, index, events, _ := newTestOrchestrator(repo, client)

	err := orch.Publish(context.Background(), "sub-4")
	assert.Error(t, err)

	stored, _ := repo.GetByID(context.Background(), "sub-4")
	assert.Equal(t, models.StatusPublishFailed, stored.Status)
	assert.Equal(t, models.ReasonTimeout, stored.PublishReason)
	assert.NotNil(t, stored.PublishFailedAt)
	assert.Empty(t, index.added["sub-4"], "failed publish must not index hashes")
	assert.Equal(t, []string{queue.EventPublishFailed}, events.kinds())
	assert.LessOrEqual(t, client.statusCalls, testConfig().PublishMaxAttempts)
}

func TestPublishContainerError(t *testing.T) {
	sub := approvedSubmission("sub-5", 1, models.MediaTypeImage)
	repo := newMemRepo(sub)
	client := &scriptedClient{statusErr: errors.New("media processing failed upstream")}
	orch, _, _, _ := newTestOrchestrator(repo, client)

	err := orch.Publish(context.Background(), "sub-5")
	assert.Error(t, err)

	stored, _ := repo.GetByID(context.Background(), "sub-5")
	assert.Equal(t, models.StatusPublishFailed, stored.Status)
	assert.Equal(t, models.ReasonTransient, stored.PublishReason)
	assert.Contains(t, stored.PublishError, "media processing failed upstream")
}

func TestPublishMediaRejectedBlocksRetry(t *testing.T) {
	sub := approvedSubmission("sub-6", 1, models.MediaTypeImage)
	repo := newMemRepo(sub)
	client := &scriptedClient{createErr: &APIError{StatusCode: 400, Message: "unsupported image format"}}
	orch, _, _, _ := newTestOrchestrator(repo, client)

	err := orch.Publish(context.Background(), "sub-6")
	assert.Error(t, err)

	stored, _ := repo.GetByID(context.Background(), "sub-6")
	assert.Equal(t, models.StatusPublishFailed, stored.Status)
	assert.Equal(t, models.ReasonMediaRejected, stored.PublishReason)

	// Same media, so a retry is refused before touching the platform.
	client.createErr = nil
	err = orch.Publish(context.Background(), "sub-6")
	assert.ErrorIs(t, err, ErrMediaRejected)
	stored, _ = repo.GetByID(context.Background(), "sub-6")
	assert.Equal(t, models.StatusPublishFailed, stored.Status)
}

func TestPublishRetryAfterMediaReplaced(t *testing.T) {
	sub := approvedSubmission("sub-7", 1, models.MediaTypeImage)
	failedAt := time.Now().Add(-time.Minute)
	sub.Status = models.StatusPublishFailed
	sub.PublishReason = models.ReasonMediaRejected
	sub.PublishFailedAt = &failedAt
	sub.Media[0].CreatedAt = time.Now()
	repo := newMemRepo(sub)
	client := &scriptedClient{}
	orch, _, _, _ := newTestOrchestrator(repo, client)

	err := orch.Publish(context.Background(), "sub-7")
	assert.NoError(t, err)

	stored, _ := repo.GetByID(context.Background(), "sub-7")
	assert.Equal(t, models.StatusPublished, stored.Status)
}

func TestPublishRetryAfterTransientFailure(t *testing.T) {
	sub := approvedSubmission("sub-8", 1, models.MediaTypeImage)
	failedAt := time.Now().Add(-time.Minute)
	sub.Status = models.StatusPublishFailed
	sub.PublishReason = models.ReasonTransient
	sub.PublishFailedAt = &failedAt
	repo := newMemRepo(sub)
	client := &scriptedClient{}
	orch, _, _, _ := newTestOrchestrator(repo, client)

	err := orch.Publish(context.Background(), "sub-8")
	assert.NoError(t, err)

	stored, _ := repo.GetByID(context.Background(), "sub-8")
	assert.Equal(t, models.StatusPublished, stored.Status)
}

func TestPublishRejectsNonApproved(t *testing.T) {
	sub := approvedSubmission("sub-9", 1, models.MediaTypeImage)
	sub.Status = models.StatusPendingReview
	repo := newMemRepo(sub)
	orch, _, events, _ := newTestOrchestrator(repo, &scriptedClient{})

	err := orch.Publish(context.Background(), "sub-9")
	assert.ErrorIs(t, err, submission.ErrInvalidTransition)
	assert.Empty(t, events.kinds())
}

func TestPublishNotFound(t *testing.T) {
	repo := newMemRepo()
	orch, _, _, _ := newTestOrchestrator(repo, &scriptedClient{})

	err := orch.Publish(context.Background(), "missing")
	assert.ErrorIs(t, err, submission.ErrNotFound)
}

func TestPublishLockContention(t *testing.T) {
	sub := approvedSubmission("sub-10", 1, models.MediaTypeImage)
	repo := newMemRepo(sub)
	orch, _, _, locker := newTestOrchestrator(repo, &scriptedClient{})

	held, err := locker.Acquire(context.Background(), "sub-10", time.Minute)
	assert.NoError(t, err)
	assert.True(t, held)

	err = orch.Publish(context.Background(), "sub-10")
	assert.ErrorIs(t, err, ErrPublishInProgress)

	stored, _ := repo.GetByID(context.Background(), "sub-10")
	assert.Equal(t, models.StatusApproved, stored.Status, "contended publish must not touch the row")
}

func TestPublishSecondAttemptAfterSuccess(t *testing.T) {
	sub := approvedSubmission("sub-11", 1, models.MediaTypeImage)
	repo := newMemRepo(sub)
	orch, _, events, _ := newTestOrchestrator(repo, &scriptedClient{})

	assert.NoError(t, orch.Publish(context.Background(), "sub-11"))
	err := orch.Publish(context.Background(), "sub-11")
	assert.ErrorIs(t, err, submission.ErrInvalidTransition)

	stored, _ := repo.GetByID(context.Background(), "sub-11")
	assert.Equal(t, models.StatusPublished, stored.Status)
	assert.Equal(t, []string{queue.EventPublished}, events.kinds(), "exactly one publish event")
}

func TestPublishCancelledContext(t *testing.T) {
	sub := approvedSubmission("sub-12", 1, models.MediaTypeImage)
	repo := newMemRepo(sub)
	client := &scriptedClient{statusScript: []ContainerStatus{ContainerInProgress}}

	// Generous poll bounds so cancellation is the only way out of the
	// container wait.
	cfg := &config.Config{
		PublishPollInterval: time.Millisecond,
		PublishPollTimeout:  time.Minute,
		PublishMaxAttempts:  1 << 20,
	}
	orch := NewOrchestrator(repo, client, newMemLocker(), &fakeIndex{}, &fakeEvents{}, logger.New(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := orch.Publish(ctx, "sub-12")
	assert.Error(t, err)

	stored, _ := repo.GetByID(context.Background(), "sub-12")
	assert.Equal(t, models.StatusPublishFailed, stored.Status)
	assert.Equal(t, models.ReasonTransient, stored.PublishReason)
}

func TestClassifyFailure(t *testing.T) {
	assert.Equal(t, models.ReasonMediaRejected, classifyFailure(&APIError{StatusCode: 422, Message: "bad media"}))
	assert.Equal(t, models.ReasonTransient, classifyFailure(&APIError{StatusCode: 503, Message: "upstream down"}))
	assert.Equal(t, models.ReasonTimeout, classifyFailure(errPollTimeout))
	assert.Equal(t, models.ReasonTransient, classifyFailure(errors.New("connection reset")))
}

func TestEnqueueAndShutdown(t *testing.T) {
	sub := approvedSubmission("sub-13", 1, models.MediaTypeImage)
	repo := newMemRepo(sub)
	orch, _, _, _ := newTestOrchestrator(repo, &scriptedClient{})

	assert.NoError(t, orch.Enqueue("sub-13"))
	orch.Shutdown()

	stored, _ := repo.GetByID(context.Background(), "sub-13")
	assert.Equal(t, models.StatusPublished, stored.Status)
}

func TestEnqueueRefusesWhenBusy(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator(newMemRepo(), &scriptedClient{})

	for i := 0; i < cap(orch.slots); i++ {
		orch.slots <- struct{}{}
	}

	err := orch.Enqueue("sub-14")
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestEnqueueAfterShutdown(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator(newMemRepo(), &scriptedClient{})
	orch.Shutdown()

	err := orch.Enqueue("sub-15")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrQueueFull)
}
