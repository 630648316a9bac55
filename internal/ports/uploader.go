package ports

import "context"

// Uploader sends a local file to an external service (image host on failure,
// coverage collector on success) and returns the URL the service assigned.
type Uploader interface {
	UploadFile(ctx context.Context, endpoint string, path string) (url string, err error)
}
