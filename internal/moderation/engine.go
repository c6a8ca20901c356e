package moderation

import (
	"context"
	"fmt"
	"strings"

	"spkr/internal/settings"
	"spkr/pkg/models"

	goaway "github.com/TwiN/go-away"
)

// Check names, in pipeline order.
const (
	CheckProfanity     = "harmful_text"
	CheckHateSpeech    = "hate_speech"
	CheckSpam          = "spam"
	CheckBlacklist     = "blacklist"
	CheckLink          = "link"
	CheckDuplicate     = "duplicate"
	CheckCaptionLength = "caption_length"
)

// Engine runs the moderation check pipeline over a submission. Each check is
// side-effect-free given a settings snapshot; the only external read is the
// published-hash index lookup for the duplicate check. Evaluate is
// deterministic for a fixed submission and snapshot version.
type Engine struct {
	index HashIndex
}

func NewEngine(index HashIndex) *Engine {
	return &Engine{index: index}
}

// Evaluate runs every check in fixed order and returns a new, unsaved
// ModerationResult. The aggregate outcome is fail iff any check failed.
func (e *Engine) Evaluate(ctx context.Context, sub *models.Submission, snap *settings.Snapshot) (*models.ModerationResult, error) {
	result := &models.ModerationResult{
		SubmissionID:    sub.ID,
		SnapshotVersion: snap.Version,
	}

	caption := sub.Caption

	e.checkProfanity(result, caption)
	e.checkHateSpeech(result, caption)
	e.checkSpam(result, caption)
	e.checkBlacklist(result, caption, snap)
	e.checkLinks(result, caption, snap)
	if err := e.checkDuplicate(ctx, result, sub, snap); err != nil {
		return nil, err
	}
	e.checkCaptionLength(result, caption, snap)

	result.Outcome = models.OutcomePass
	if result.Failed() {
		result.Outcome = models.OutcomeFail
	}

	return result, nil
}

func record(result *models.ModerationResult, name string, outcome models.CheckOutcome, detail string) {
	result.Checks = append(result.Checks, models.ModerationCheck{
		Name:     name,
		Outcome:  outcome,
		Detail:   detail,
		Position: len(result.Checks),
	})
}

func (e *Engine) checkProfanity(result *models.ModerationResult, text string) {
	if goaway.IsProfane(text) {
		record(result, CheckProfanity, models.OutcomeFail,
			fmt.Sprintf("Profanity detected: %s", goaway.ExtractProfanity(text)))
		return
	}
	record(result, CheckProfanity, models.OutcomePass, "No profanity detected")
}

func (e *Engine) checkHateSpeech(result *models.ModerationResult, text string) {
	for _, pattern := range hatePatterns {
		if pattern.MatchString(text) {
			record(result, CheckHateSpeech, models.OutcomeFail,
				fmt.Sprintf("Hate speech pattern detected: %s", pattern.String()))
			return
		}
	}
	record(result, CheckHateSpeech, models.OutcomePass, "No hate speech detected")
}

func (e *Engine) checkSpam(result *models.ModerationResult, text string) {
	matches := 0
	for _, pattern := range spamPatterns {
		if pattern.MatchString(text) {
			matches++
		}
	}

	if matches >= 2 {
		record(result, CheckSpam, models.OutcomeFail,
			fmt.Sprintf("Multiple spam patterns detected: %d", matches))
		return
	}

	if repeated, token := hasRepeatedTokens(text); repeated {
		record(result, CheckSpam, models.OutcomeFail,
			fmt.Sprintf("Repeated token detected: %q", token))
		return
	}

	if tags := hashtagPattern.FindAllString(text, -1); len(tags) > 10 {
		record(result, CheckSpam, models.OutcomeFail,
			fmt.Sprintf("Excessive hashtags: %d", len(tags)))
		return
	}

	record(result, CheckSpam, models.OutcomePass, "No spam detected")
}

// hasRepeatedTokens flags five or more consecutive identical tokens.
func hasRepeatedTokens(text string) (bool, string) {
	tokens := strings.Fields(strings.ToLower(text))
	run := 1
	for i := 1; i < len(tokens); i++ {
		if tokens[i] == tokens[i-1] {
			run++
			if run >= 5 {
				return true, tokens[i]
			}
		} else {
			run = 1
		}
	}
	return false, ""
}

func (e *Engine) checkBlacklist(result *models.ModerationResult, text string, snap *settings.Snapshot) {
	textLower := strings.ToLower(text)
	var found []string
	for _, keyword := range snap.Keywords {
		if strings.Contains(textLower, keyword) {
			found = append(found, keyword)
		}
	}

	if len(found) > 0 {
		record(result, CheckBlacklist, models.OutcomeFail,
			fmt.Sprintf("Blacklisted keywords found: %s", strings.Join(found, ", ")))
		return
	}
	record(result, CheckBlacklist, models.OutcomePass, "No blacklisted keywords")
}

func (e *Engine) checkLinks(result *models.ModerationResult, text string, snap *settings.Snapshot) {
	urls := urlPattern.FindAllString(text, -1)
	if len(urls) == 0 {
		record(result, CheckLink, models.OutcomePass, "No links detected")
		return
	}
	if snap.BlockLinks {
		record(result, CheckLink, models.OutcomeFail,
			fmt.Sprintf("Links found and blocked: %d URL(s)", len(urls)))
		return
	}
	record(result, CheckLink, models.OutcomePass,
		fmt.Sprintf("Links allowed by settings: %d URL(s)", len(urls)))
}

func (e *Engine) checkDuplicate(ctx context.Context, result *models.ModerationResult, sub *models.Submission, snap *settings.Snapshot) error {
	if sub.MediaType != models.MediaTypeImage {
		record(result, CheckDuplicate, models.OutcomePass, "No image hash to compare")
		return nil
	}

	published, err := e.index.PublishedHashes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load published hashes: %w", err)
	}

	for _, media := range sub.Media {
		for _, existing := range published {
			distance := HammingDistance(media.Hash(), existing)
			if distance < snap.DuplicateThreshold {
				record(result, CheckDuplicate, models.OutcomeFail,
					fmt.Sprintf("Duplicate image detected (distance %d below threshold %d)", distance, snap.DuplicateThreshold))
				return nil
			}
		}
	}

	record(result, CheckDuplicate, models.OutcomePass, "No duplicate content")
	return nil
}

func (e *Engine) checkCaptionLength(result *models.ModerationResult, text string, snap *settings.Snapshot) {
	length := len([]rune(text))
	if length > snap.MaxCaptionLength {
		record(result, CheckCaptionLength, models.OutcomeFail,
			fmt.Sprintf("Caption too long: %d/%d chars", length, snap.MaxCaptionLength))
		return
	}
	record(result, CheckCaptionLength, models.OutcomePass,
		fmt.Sprintf("Caption length OK: %d chars", length))
}
