package moderation

import (
	"context"
	"strings"
	"testing"

	"spkr/internal/settings"
	"spkr/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex is an in-memory published-hash index.
type fakeIndex struct {
	hashes []uint64
	added  map[string][]uint64
}

func newFakeIndex(hashes ...uint64) *fakeIndex {
	return &fakeIndex{hashes: hashes, added: make(map[string][]uint64)}
}

func (f *fakeIndex) PublishedHashes(ctx context.Context) ([]uint64, error) {
	return f.hashes, nil
}

func (f *fakeIndex) Add(ctx context.Context, submissionID string, hashes []uint64) error {
	f.added[submissionID] = hashes
	f.hashes = append(f.hashes, hashes...)
	return nil
}

func testSnapshot() *settings.Snapshot {
	return &settings.Snapshot{
		Version:            1,
		BlockLinks:         true,
		MaxCaptionLength:   2200,
		DuplicateThreshold: 10,
		Keywords:           []string{"spamword"},
	}
}

func imageSubmission(caption string, hashes ...uint64) *models.Submission {
	sub := &models.Submission{
		ID:        "sub-1",
		Caption:   caption,
		Kind:      models.PostKindFree,
		MediaType: models.MediaTypeImage,
		Status:    models.StatusPendingReview,
	}
	for i, h := range hashes {
		media := models.SubmissionMedia{SubmissionID: sub.ID, Position: i}
		media.SetHash(h)
		sub.Media = append(sub.Media, media)
	}
	return sub
}

func TestEvaluate_CleanSubmissionPasses(t *testing.T) {
	engine := NewEngine(newFakeIndex())
	sub := imageSubmission("A quiet morning by the lake", 0x1234567812345678)

	result, err := engine.Evaluate(context.Background(), sub, testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, models.OutcomePass, result.Outcome)
	assert.Len(t, result.Checks, 7)
	for _, check := range result.Checks {
		assert.Equal(t, models.OutcomePass, check.Outcome, "check %s", check.Name)
	}
}

func TestEvaluate_CheckOrderIsFixed(t *testing.T) {
	engine := NewEngine(newFakeIndex())
	sub := imageSubmission("A quiet morning by the lake", 0x1234567812345678)

	result, err := engine.Evaluate(context.Background(), sub, testSnapshot())
	require.NoError(t, err)

	expected := []string{
		CheckProfanity, CheckHateSpeech, CheckSpam, CheckBlacklist,
		CheckLink, CheckDuplicate, CheckCaptionLength,
	}
	require.Len(t, result.Checks, len(expected))
	for i, name := range expected {
		assert.Equal(t, name, result.Checks[i].Name)
		assert.Equal(t, i, result.Checks[i].Position)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	engine := NewEngine(newFakeIndex(0xAAAAAAAAAAAAAAAA))
	sub := imageSubmission("Limited time offer, buy now!", 0x1234567812345678)
	snap := testSnapshot()

	first, err := engine.Evaluate(context.Background(), sub, snap)
	require.NoError(t, err)
	second, err := engine.Evaluate(context.Background(), sub, snap)
	require.NoError(t, err)

	assert.Equal(t, first.Outcome, second.Outcome)
	require.Len(t, second.Checks, len(first.Checks))
	for i := range first.Checks {
		assert.Equal(t, first.Checks[i].Name, second.Checks[i].Name)
		assert.Equal(t, first.Checks[i].Outcome, second.Checks[i].Outcome)
		assert.Equal(t, first.Checks[i].Detail, second.Checks[i].Detail)
	}
}

func TestEvaluate_AggregateFailIffAnyCheckFails(t *testing.T) {
	engine := NewEngine(newFakeIndex())

	sub := imageSubmission("This caption mentions spamword somewhere", 0x1234567812345678)
	result, err := engine.Evaluate(context.Background(), sub, testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeFail, result.Outcome)

	failures := 0
	for _, check := range result.Checks {
		if check.Outcome == models.OutcomeFail {
			failures++
		}
	}
	assert.Equal(t, 1, failures)
}

func TestEvaluate_BlacklistedKeyword(t *testing.T) {
	engine := NewEngine(newFakeIndex())
	sub := imageSubmission("Totally normal caption with SPAMWORD inside", 0x1234567812345678)

	result, err := engine.Evaluate(context.Background(), sub, testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeFail, result.Outcome)
	for _, check := range result.Checks {
		if check.Name == CheckBlacklist {
			assert.Equal(t, models.OutcomeFail, check.Outcome)
			assert.Contains(t, check.Detail, "spamword")
		}
	}
}

func TestEvaluate_ProfanityFails(t *testing.T) {
	engine := NewEngine(newFakeIndex())
	sub := imageSubmission("what the fuck is this", 0x1234567812345678)

	result, err := engine.Evaluate(context.Background(), sub, testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeFail, result.Outcome)
	assert.Equal(t, models.OutcomeFail, result.Checks[0].Outcome)
}

func TestEvaluate_HateSpeechPattern(t *testing.T) {
	engine := NewEngine(newFakeIndex())
	sub := imageSubmission("death to everyone reading this", 0x1234567812345678)

	result, err := engine.Evaluate(context.Background(), sub, testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeFail, result.Outcome)
	for _, check := range result.Checks {
		if check.Name == CheckHateSpeech {
			assert.Equal(t, models.OutcomeFail, check.Outcome)
		}
	}
}

func TestEvaluate_SpamPatterns(t *testing.T) {
	engine := NewEngine(newFakeIndex())

	// Two spam patterns fail
	sub := imageSubmission("Buy now! Click here for a deal", 0x1234567812345678)
	result, err := engine.Evaluate(context.Background(), sub, testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFail, result.Outcome)

	// A single pattern alone passes
	sub = imageSubmission("Our raffle winner gets announced tomorrow", 0x1234567812345678)
	result, err = engine.Evaluate(context.Background(), sub, testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePass, result.Outcome)
}

func TestEvaluate_RepeatedTokensSpam(t *testing.T) {
	engine := NewEngine(newFakeIndex())
	sub := imageSubmission("follow follow follow follow follow", 0x1234567812345678)

	result, err := engine.Evaluate(context.Background(), sub, testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFail, result.Outcome)
}

func TestEvaluate_LinksBlockedOnlyWhenSettingEnabled(t *testing.T) {
	engine := NewEngine(newFakeIndex())
	sub := imageSubmission("Check https://example.com for more", 0x1234567812345678)

	snap := testSnapshot()
	result, err := engine.Evaluate(context.Background(), sub, snap)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFail, result.Outcome)

	snap.BlockLinks = false
	result, err = engine.Evaluate(context.Background(), sub, snap)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePass, result.Outcome)

	// The audit trail must still record that links were present.
	for _, check := range result.Checks {
		if check.Name == CheckLink {
			assert.Equal(t, models.OutcomePass, check.Outcome)
			assert.Contains(t, check.Detail, "allowed")
			assert.Contains(t, check.Detail, "1 URL")
		}
	}
}

func TestEvaluate_DuplicateDistanceThreshold(t *testing.T) {
	base := uint64(0xFFFF0000FFFF0000)
	engine := NewEngine(newFakeIndex(base))
	snap := testSnapshot()

	// 8 differing bits: below threshold 10 → duplicate
	near := base ^ 0x00000000000000FF
	sub := imageSubmission("A quiet morning by the lake", near)
	result, err := engine.Evaluate(context.Background(), sub, snap)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFail, result.Outcome)

	// 12 differing bits: at or above threshold → not a duplicate
	far := base ^ 0x0000000000000FFF
	sub = imageSubmission("A quiet morning by the lake", far)
	result, err = engine.Evaluate(context.Background(), sub, snap)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePass, result.Outcome)
}

func TestEvaluate_VideoSkipsDuplicateCheck(t *testing.T) {
	engine := NewEngine(newFakeIndex(0xFFFF0000FFFF0000))
	sub := &models.Submission{
		ID:        "sub-video",
		Caption:   "A quiet morning by the lake",
		MediaType: models.MediaTypeVideo,
	}

	result, err := engine.Evaluate(context.Background(), sub, testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePass, result.Outcome)
}

func TestEvaluate_CaptionLengthBoundary(t *testing.T) {
	engine := NewEngine(newFakeIndex())
	snap := testSnapshot()

	// Exactly at the limit passes
	sub := imageSubmission(strings.Repeat("a", 2200), 0x1234567812345678)
	result, err := engine.Evaluate(context.Background(), sub, snap)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePass, result.Outcome)

	// One over fails
	sub = imageSubmission(strings.Repeat("a", 2201), 0x1234567812345678)
	result, err = engine.Evaluate(context.Background(), sub, snap)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFail, result.Outcome)
}

func TestHammingDistance(t *testing.T) {
	assert.Equal(t, 0, HammingDistance(0xABCD, 0xABCD))
	assert.Equal(t, 64, HammingDistance(0, ^uint64(0)))
	assert.Equal(t, 8, HammingDistance(0, 0xFF))
}
