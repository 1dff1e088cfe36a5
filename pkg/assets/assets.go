package assets

import (
	"context"
	"io"
)

// Transform directives understood by the asset host. The object-removal
// directive carries the caller-supplied target description verbatim; the
// host interprets everything after "prompt_" as the inpainting target.
const (
	TransformBackgroundRemoval = "background_removal"
	objectRemovalPrefix        = "gen_remove:prompt_"
)

// ObjectRemovalTransform builds the inpainting-removal directive for a
// target object description. The description is not escaped or validated;
// it is forwarded to the asset host as-is.
func ObjectRemovalTransform(object string) string {
	return objectRemovalPrefix + object
}

// Uploader stores image bytes on the asset host and returns a durable
// public URL, optionally applying a named transformation pipeline.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader, size int64) (string, error)
	UploadWithTransform(ctx context.Context, filename string, r io.Reader, size int64, transform string) (string, error)
}
