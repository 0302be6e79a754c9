package linebot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// maxImageBytes caps a single downloaded image.
const maxImageBytes = 20 << 20

// Upload downloads the content of a LINE image message, stores it under
// the configured image directory and returns its public URL (or the
// file path when no base URL is configured).
func (c *Client) Upload(ctx context.Context, imageID string) (string, error) {
	if c.imageDir == "" {
		return "", fmt.Errorf("image directory is not configured")
	}

	resp, err := c.blob.GetMessageContent(imageID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch image content: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read image content: %w", err)
	}

	if err := os.MkdirAll(c.imageDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}

	name := uuid.New().String() + extensionForContentType(resp.Header.Get("Content-Type"))
	path := filepath.Join(c.imageDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}

	if c.imageBaseURL == "" {
		return path, nil
	}
	return fmt.Sprintf("%s/images/%s", c.imageBaseURL, name), nil
}

func extensionForContentType(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		// LINE serves photos as JPEG unless stated otherwise.
		return ".jpg"
	}
}
