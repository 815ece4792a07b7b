package export

import (
	"context"
	"os"
	"path/filepath"

	"bitbucket.org/mmdatafocus/stockflow_backend/utils"
)

// Sink receives a finished artifact. The pipeline does not care whether
// the bytes end up on disk, in a bucket or streamed to a browser.
type Sink interface {
	Save(ctx context.Context, artifact *Artifact) error
}

// FileSink writes artifacts into a local directory.
type FileSink struct {
	Dir string
}

func (s FileSink) Save(ctx context.Context, artifact *Artifact) error {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, artifact.Filename), artifact.Bytes, 0o644)
}

// GCSSink uploads artifacts to the configured Cloud Storage bucket.
type GCSSink struct{}

func (GCSSink) Save(ctx context.Context, artifact *Artifact) error {
	return utils.UploadBytesToGCS(ctx, artifact.Filename, artifact.Bytes, artifact.ContentType)
}
