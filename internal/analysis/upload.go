package analysis

import (
	"context"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/analyst/internal/blob"
	"github.com/sells-group/analyst/internal/model"
)

// MaxUploadBytes caps a single uploaded file.
const MaxUploadBytes = 100 << 20

// uploadTypes are the accepted upload content types.
var uploadTypes = map[string]bool{
	"application/pdf": true,
	"text/plain":      true,
	"text/csv":        true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/json": true,
	"image/png":        true,
	"image/jpeg":       true,
	"image/webp":       true,
}

// AllowedUploadType reports whether contentType may be uploaded. Parameters
// such as charset are ignored.
func AllowedUploadType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return uploadTypes[mt]
}

// Upload stores a file in the upload bucket and returns a reference that
// can be passed in a create or deepen request.
func (s *Service) Upload(ctx context.Context, name, contentType string, data []byte) (model.FileRef, error) {
	if s.uploads == nil {
		return model.FileRef{}, eris.New("analysis: uploads are not configured")
	}
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if base == "" || base == "." || base == "/" {
		return model.FileRef{}, eris.Wrap(ErrInvalidInput, "file name is required")
	}
	if !AllowedUploadType(contentType) {
		return model.FileRef{}, eris.Wrapf(ErrInvalidInput, "content type %q is not allowed", contentType)
	}
	if len(data) > MaxUploadBytes {
		return model.FileRef{}, eris.Wrapf(ErrInvalidInput, "file exceeds %d bytes", MaxUploadBytes)
	}

	key, err := blob.CleanKey("uploads/" + uuid.NewString() + "/" + base)
	if err != nil {
		return model.FileRef{}, eris.Wrap(ErrInvalidInput, err.Error())
	}
	if err := s.uploads.Put(ctx, key, data, contentType); err != nil {
		return model.FileRef{}, eris.Wrapf(err, "analysis: store upload %s", base)
	}
	zap.L().Info("analysis: upload stored",
		zap.String("key", key),
		zap.String("content_type", contentType),
		zap.Int("bytes", len(data)),
	)
	return model.FileRef{URL: blob.Ref(key), Name: base, Size: int64(len(data))}, nil
}
