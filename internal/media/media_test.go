package media

import (
	"errors"
	"testing"

	"relai/internal/models"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		declared string
		data     []byte
		want     string
	}{
		{"declared wins", "x.bin", "audio/ogg; codecs=opus", nil, "audio/ogg"},
		{"octet stream falls through to extension", "selfie.JPG", "application/octet-stream", nil, "image/jpeg"},
		{"extension", "memo.m4a", "", nil, "audio/mp4"},
		{"sniffed", "upload", "", pngHeader, "image/png"},
		{"unknown", "notes", "", []byte("plain words"), "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectContentType(tt.file, tt.declared, tt.data); got != tt.want {
				t.Errorf("DetectContentType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewFile(t *testing.T) {
	f, err := NewFile(models.KindPhoto, "me.png", "", pngHeader)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if f.ContentType != "image/png" || f.Name != "me.png" {
		t.Errorf("file = %+v", f)
	}

	if _, err := NewFile(models.KindVoice, "me.png", "", pngHeader); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("voice from png: err = %v, want ErrUnsupportedType", err)
	}
	if _, err := NewFile(models.KindPhoto, "notes.txt", "text/plain", nil); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("photo from text: err = %v, want ErrUnsupportedType", err)
	}
}
