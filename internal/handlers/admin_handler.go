package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"spkr/internal/publisher"
	"spkr/internal/submission"
	"spkr/pkg/logger"
	"spkr/pkg/models"

	"github.com/gin-gonic/gin"
)

// PublishTrigger starts background publish attempts; the orchestrator is the
// production implementation.
type PublishTrigger interface {
	Enqueue(id string) error
}

type AdminHandler struct {
	service submission.Service
	trigger PublishTrigger
	logger  *logger.Logger
}

func NewAdminHandler(service submission.Service, trigger PublishTrigger, logger *logger.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		trigger: trigger,
		logger:  logger,
	}
}

// ListReviewQueue godoc
// @Summary      List submissions awaiting review
// @Description  Get pending and flagged submissions ordered by paid priority, then submission time
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        limit query int false "Number of submissions to return (max 100)"
// @Param        offset query int false "Offset for pagination"
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Router       /admin/submissions [get]
func (h *AdminHandler) ListReviewQueue(c *gin.Context) {
	limit := 20
	offset := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	subs, err := h.service.ListForReview(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list review queue: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch submissions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"submissions": subs, "count": len(subs), "offset": offset})
}

// ApproveSubmission godoc
// @Summary      Approve a submission
// @Description  Move a pending or flagged submission to approved. Flagged submissions may be approved as a moderator override.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Submission ID"
// @Success      200  {object}  models.Submission
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /admin/submissions/{id}/approve [post]
func (h *AdminHandler) ApproveSubmission(c *gin.Context) {
	sub, err := h.service.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondTransitionError(c, err, "approve")
		return
	}
	c.JSON(http.StatusOK, sub)
}

// RejectSubmission godoc
// @Summary      Reject a submission
// @Description  Move a pending or flagged submission to rejected. Rejection is terminal.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Submission ID"
// @Success      200  {object}  models.Submission
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /admin/submissions/{id}/reject [post]
func (h *AdminHandler) RejectSubmission(c *gin.Context) {
	sub, err := h.service.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondTransitionError(c, err, "reject")
		return
	}
	c.JSON(http.StatusOK, sub)
}

// PublishSubmission godoc
// @Summary      Publish an approved submission
// @Description  Start a background publish attempt against the media platform. Also retries failed publishes, except media rejections with unchanged media.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Submission ID"
// @Success      202  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /admin/submissions/{id}/publish [post]
func (h *AdminHandler) PublishSubmission(c *gin.Context) {
	id := c.Param("id")

	sub, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
		return
	}

	// Fast feedback before handing off to the orchestrator, which enforces
	// the same rules authoritatively.
	if sub.Status != models.StatusApproved && sub.Status != models.StatusPublishFailed {
		c.JSON(http.StatusConflict, gin.H{"error": "Submission is not in a publishable state"})
		return
	}
	if sub.Status == models.StatusPublishFailed && sub.PublishReason == models.ReasonMediaRejected {
		if !mediaReplaced(sub) {
			c.JSON(http.StatusConflict, gin.H{"error": publisher.ErrMediaRejected.Error()})
			return
		}
	}

	if err := h.trigger.Enqueue(id); err != nil {
		h.logger.Warn("Publish enqueue for submission %s refused: %v", id, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Publish workers are busy, retry later"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Publish started", "submission_id": id})
}

func mediaReplaced(sub *models.Submission) bool {
	if sub.PublishFailedAt == nil {
		return true
	}
	for _, m := range sub.Media {
		if m.CreatedAt.After(*sub.PublishFailedAt) {
			return true
		}
	}
	return false
}

func (h *AdminHandler) respondTransitionError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, submission.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
	case errors.Is(err, submission.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "Submission state does not allow this action"})
	default:
		h.logger.Error("Failed to %s submission: %v", action, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update submission"})
	}
}
