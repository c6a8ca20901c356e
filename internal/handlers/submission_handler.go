package handlers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"spkr/internal/submission"
	"spkr/pkg/logger"
	"spkr/pkg/models"

	"github.com/gin-gonic/gin"
)

var allowedImageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true}
var allowedVideoExts = map[string]bool{".mp4": true, ".mov": true}

type SubmissionHandler struct {
	service submission.Service
	logger  *logger.Logger
}

func NewSubmissionHandler(service submission.Service, logger *logger.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger,
	}
}

type CreateSubmissionRequest struct {
	Caption     string `form:"caption" binding:"required"`
	DisplayName string `form:"display_name"`
	Kind        string `form:"kind" binding:"omitempty,oneof=free promoted"`
	Type        string `form:"type" binding:"required,oneof=image video"`
}

// CreateSubmission godoc
// @Summary      Submit content for moderation
// @Description  Submit a caption with media files. Image submissions accept up to 10 images, video submissions exactly one video. The submission is moderated synchronously and enters the review queue.
// @Tags         submissions
// @Accept       multipart/form-data
// @Produce      json
// @Param        caption formData string true "Post caption (max length configurable, default 2200)"
// @Param        display_name formData string false "Public display name of the submitter"
// @Param        kind formData string false "Post kind (free or promoted)" Enums(free, promoted)
// @Param        type formData string true "Media type" Enums(image, video)
// @Param        images formData file false "Image files (jpg/jpeg/png/gif), up to 10 for image submissions"
// @Param        video formData file false "Video file (mp4/mov) for video submissions"
// @Success      201  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /submissions [post]
func (h *SubmissionHandler) CreateSubmission(c *gin.Context) {
	var req CreateSubmissionRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := models.PostKindFree
	if req.Kind == string(models.PostKindPromoted) {
		kind = models.PostKindPromoted
	}
	mediaType := models.MediaType(req.Type)

	uploads, err := h.collectUploads(c, mediaType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, result, err := h.service.Submit(c.Request.Context(), submission.IntakeRequest{
		Caption:     req.Caption,
		DisplayName: req.DisplayName,
		SubmitterIP: c.ClientIP(),
		Kind:        kind,
		MediaType:   mediaType,
		Uploads:     uploads,
	})
	if err != nil {
		var validationErr *submission.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
			return
		}
		h.logger.Error("Failed to create submission: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create submission"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"submission": sub,
		"moderation": gin.H{"outcome": result.Outcome},
	})
}

func (h *SubmissionHandler) collectUploads(c *gin.Context, mediaType models.MediaType) ([]submission.MediaUpload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, errors.New("failed to parse multipart form")
	}

	field, allowed := "images", allowedImageExts
	if mediaType == models.MediaTypeVideo {
		field, allowed = "video", allowedVideoExts
	}

	files := form.File[field]
	if len(files) == 0 {
		files = form.File[field+"[]"]
	}

	uploads := make([]submission.MediaUpload, 0, len(files))
	for _, file := range files {
		ext := strings.ToLower(filepath.Ext(file.Filename))
		if !allowed[ext] {
			return nil, errors.New("unsupported file format: " + file.Filename)
		}

		src, err := file.Open()
		if err != nil {
			return nil, errors.New("failed to read file: " + file.Filename)
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return nil, errors.New("failed to read file: " + file.Filename)
		}

		uploads = append(uploads, submission.MediaUpload{
			Filename:    file.Filename,
			ContentType: file.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return uploads, nil
}

// GetSubmission godoc
// @Summary      Get submission by ID
// @Description  Get submission details including media and current status
// @Tags         submissions
// @Produce      json
// @Param        id path string true "Submission ID"
// @Success      200  {object}  models.Submission
// @Failure      404  {object}  map[string]string
// @Router       /submissions/{id} [get]
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	sub, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
		return
	}
	c.JSON(http.StatusOK, sub)
}

// GetModerationDetail godoc
// @Summary      Get moderation history
// @Description  Get all moderation runs for a submission with per-check outcomes, newest first
// @Tags         submissions
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Submission ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /admin/submissions/{id}/moderation [get]
func (h *SubmissionHandler) GetModerationDetail(c *gin.Context) {
	results, err := h.service.ModerationDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, submission.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
			return
		}
		h.logger.Error("Failed to load moderation history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load moderation history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}
