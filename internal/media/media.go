package media

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"relai/internal/models"
	"relai/internal/workflow"
)

var ErrUnsupportedType = errors.New("unsupported media type")

// mime.TypeByExtension depends on the host's mime tables, so the formats
// the backend accepts are listed here.
var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".heic": "image/heic",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/ogg",
	".webm": "audio/webm",
	".flac": "audio/flac",
}

// DetectContentType settles on a MIME type for an upload. A declared type
// wins when it is specific, then the file extension, then the bytes.
func DetectContentType(name, declared string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
		return mt
	}
	if ct, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	ct, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return ct
}

// Accepts reports whether contentType is valid for an asset kind.
func Accepts(kind models.AssetKind, contentType string) bool {
	switch kind {
	case models.KindPhoto:
		return strings.HasPrefix(contentType, "image/")
	case models.KindVoice:
		return strings.HasPrefix(contentType, "audio/")
	}
	return false
}

// NewFile builds an upload payload, rejecting content the backend would
// refuse for the given kind.
func NewFile(kind models.AssetKind, name, declared string, data []byte) (workflow.File, error) {
	ct := DetectContentType(name, declared, data)
	if !Accepts(kind, ct) {
		return workflow.File{}, fmt.Errorf("%w: %s for %s", ErrUnsupportedType, ct, kind)
	}
	return workflow.File{Name: name, ContentType: ct, Data: data}, nil
}
