package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"spkr/pkg/config"
)

// GraphClient talks to an Instagram-Graph-style container API.
type GraphClient struct {
	baseURL     string
	accessToken string
	accountID   string
	httpClient  *http.Client
}

func NewGraphClient(cfg *config.Config) *GraphClient {
	return &GraphClient{
		baseURL:     strings.TrimRight(cfg.MediaAPIBaseURL, "/"),
		accessToken: cfg.MediaAccessToken,
		accountID:   cfg.MediaAccountID,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

type containerResponse struct {
	ID           string `json:"id"`
	StatusCode   string `json:"status_code"`
	ErrorMessage string `json:"error_message"`
	Error        *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *GraphClient) CreateImageContainer(ctx context.Context, imageURL, caption string) (string, error) {
	params := url.Values{}
	params.Set("image_url", imageURL)
	params.Set("caption", caption)
	return c.createContainer(ctx, params)
}

func (c *GraphClient) CreateVideoContainer(ctx context.Context, videoURL, caption string) (string, error) {
	params := url.Values{}
	params.Set("media_type", "REELS")
	params.Set("video_url", videoURL)
	params.Set("caption", caption)
	return c.createContainer(ctx, params)
}

func (c *GraphClient) CreateCarouselItemContainer(ctx context.Context, imageURL string) (string, error) {
	params := url.Values{}
	params.Set("image_url", imageURL)
	params.Set("is_carousel_item", "true")
	return c.createContainer(ctx, params)
}

func (c *GraphClient) CreateCarouselContainer(ctx context.Context, childIDs []string, caption string) (string, error) {
	params := url.Values{}
	params.Set("media_type", "CAROUSEL")
	params.Set("children", strings.Join(childIDs, ","))
	params.Set("caption", caption)
	return c.createContainer(ctx, params)
}

func (c *GraphClient) createContainer(ctx context.Context, params url.Values) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/media", c.baseURL, c.accountID)
	resp, err := c.post(ctx, endpoint, params)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("media api returned no container id")
	}
	return resp.ID, nil
}

func (c *GraphClient) ContainerStatus(ctx context.Context, containerID string) (ContainerStatus, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=status_code,error_message&access_token=%s",
		c.baseURL, containerID, url.QueryEscape(c.accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	switch resp.StatusCode {
	case "FINISHED":
		return ContainerFinished, nil
	case "ERROR", "EXPIRED":
		msg := resp.ErrorMessage
		if msg == "" {
			msg = "container processing failed"
		}
		return ContainerError, fmt.Errorf("%s", msg)
	default:
		return ContainerInProgress, nil
	}
}

func (c *GraphClient) Publish(ctx context.Context, containerID string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/media_publish", c.baseURL, c.accountID)
	params := url.Values{}
	params.Set("creation_id", containerID)
	resp, err := c.post(ctx, endpoint, params)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("media api returned no post id")
	}
	return resp.ID, nil
}

func (c *GraphClient) post(ctx context.Context, endpoint string, params url.Values) (*containerResponse, error) {
	params.Set("access_token", c.accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *GraphClient) do(req *http.Request) (*containerResponse, error) {
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var resp containerResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil && httpResp.StatusCode < 300 {
			return nil, fmt.Errorf("decode media api response: %w", err)
		}
	}
	if httpResp.StatusCode >= 300 {
		msg := http.StatusText(httpResp.StatusCode)
		if resp.Error != nil && resp.Error.Message != "" {
			msg = resp.Error.Message
		}
		return nil, &APIError{StatusCode: httpResp.StatusCode, Message: msg}
	}
	return &resp, nil
}
