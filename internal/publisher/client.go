package publisher

import (
	"context"
	"fmt"
)

type ContainerStatus string

const (
	ContainerInProgress ContainerStatus = "IN_PROGRESS"
	ContainerFinished   ContainerStatus = "FINISHED"
	ContainerError      ContainerStatus = "ERROR"
)

// PlatformClient is the external media API contract: stage media in a
// container, wait for remote processing, then publish the container.
type PlatformClient interface {
	CreateImageContainer(ctx context.Context, imageURL, caption string) (string, error)
	CreateVideoContainer(ctx context.Context, videoURL, caption string) (string, error)
	CreateCarouselItemContainer(ctx context.Context, imageURL string) (string, error)
	CreateCarouselContainer(ctx context.Context, childIDs []string, caption string) (string, error)
	ContainerStatus(ctx context.Context, containerID string) (ContainerStatus, error)
	Publish(ctx context.Context, containerID string) (string, error)
}

// APIError is a non-2xx response from the media platform. 4xx responses mean
// the request itself was rejected (bad media format, content policy) and must
// not be retried; everything else is transient.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("media api error (status %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Terminal() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}
