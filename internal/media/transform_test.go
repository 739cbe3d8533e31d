package media

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DikoMolly/chekins/internal/assets"
	"github.com/DikoMolly/chekins/internal/postmedia"
)

func createTestJPEG(t *testing.T, dir, name string) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 128, A: 255})
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create test image: %v", err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return path
}

// brokenTool points at binaries that cannot exist, so probing reports
// the tools as unavailable.
func brokenTool() *VideoTool {
	return NewVideoTool("/nonexistent/ffmpeg", "/nonexistent/ffprobe")
}

func TestIsVideo(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"clip.mp4", true},
		{"clip.MOV", true},
		{"clip.avi", true},
		{"clip.wmv", true},
		{"clip.flv", true},
		{"clip.webm", true},
		{"clip.mkv", true},
		{"photo.jpg", false},
		{"photo.png", false},
		{"archive.zip", false},
		{"noextension", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsVideo(tt.path); got != tt.want {
				t.Errorf("IsVideo(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestProcessImage(t *testing.T) {
	dir := t.TempDir()
	src := createTestJPEG(t, dir, "photo.jpg")

	store := assets.NewMemoryStore()
	svc := NewService(store, brokenTool())

	result, err := svc.Process(context.Background(), src, "chekins_posts")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.Type != postmedia.MediaImage {
		t.Errorf("expected image result, got %s", result.Type)
	}
	if result.URL == "" || result.StorageID == "" {
		t.Errorf("expected stored asset, got %+v", result)
	}
	if result.PreviewURL != result.URL {
		t.Errorf("image preview must equal the main URL, got %s", result.PreviewURL)
	}
	if !strings.Contains(result.StorageID, "chekins_posts/") {
		t.Errorf("expected upload into chekins_posts folder, got %s", result.StorageID)
	}
	if store.Count() != 1 {
		t.Errorf("expected 1 uploaded object, got %d", store.Count())
	}

	// Source and intermediate must be gone.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected local files cleaned up, found %d entries", len(entries))
	}
}

func TestProcessImageInvalidFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.jpg")
	if err := os.WriteFile(src, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write broken file: %v", err)
	}

	store := assets.NewMemoryStore()
	svc := NewService(store, brokenTool())

	_, err := svc.Process(context.Background(), src, "chekins_posts")
	if err == nil {
		t.Fatal("expected error for undecodable image")
	}
	if !strings.Contains(err.Error(), "invalid file") {
		t.Errorf("error must identify an invalid file, got: %v", err)
	}
	if store.Count() != 0 {
		t.Errorf("nothing should be uploaded, got %d objects", store.Count())
	}
	if _, statErr := os.Stat(src); !os.IsNotExist(statErr) {
		t.Error("source file must be cleaned up after failure")
	}
}

func TestProcessImageUploadFailure(t *testing.T) {
	dir := t.TempDir()
	src := createTestJPEG(t, dir, "photo.jpg")

	store := assets.NewMemoryStore()
	store.UploadErr = errors.New("connection refused")
	svc := NewService(store, brokenTool())

	_, err := svc.Process(context.Background(), src, "chekins_posts")
	if err == nil {
		t.Fatal("expected upload error to propagate")
	}

	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		t.Fatalf("read temp dir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Errorf("expected cleanup after upload failure, found %d entries", len(entries))
	}
}

func TestProcessVideoWithoutTools(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(src, []byte("fake video bytes"), 0o644); err != nil {
		t.Fatalf("write fake video: %v", err)
	}

	store := assets.NewMemoryStore()
	svc := NewService(store, brokenTool())

	result, err := svc.Process(context.Background(), src, "chekins_posts")
	if err != nil {
		t.Fatalf("expected degraded success without ffmpeg, got: %v", err)
	}

	if result.Type != postmedia.MediaVideo {
		t.Errorf("expected video result, got %s", result.Type)
	}
	if result.URL != placeholderVideoURL {
		t.Errorf("expected placeholder video URL, got %s", result.URL)
	}
	if result.PreviewURL != placeholderThumbnailURL {
		t.Errorf("expected placeholder thumbnail URL, got %s", result.PreviewURL)
	}
	if store.Count() != 0 {
		t.Errorf("placeholder mode must not upload, got %d objects", store.Count())
	}
	if _, statErr := os.Stat(src); !os.IsNotExist(statErr) {
		t.Error("source file must be cleaned up in placeholder mode")
	}
}

func TestTranscodeOptionValidation(t *testing.T) {
	tool := NewVideoTool("ffmpeg", "ffprobe")

	if _, err := tool.Transcode(context.Background(), "clip.mp4", TranscodeOptions{Resolution: "4k"}); err == nil {
		t.Error("expected error for unsupported resolution")
	}
	if _, err := tool.Transcode(context.Background(), "clip.mp4", TranscodeOptions{Format: "avi"}); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestCompressImageOutputName(t *testing.T) {
	dir := t.TempDir()
	src := createTestJPEG(t, dir, "IMG_2041.jpg")

	out, err := compressImage(src, 85)
	if err != nil {
		t.Fatalf("compressImage failed: %v", err)
	}
	defer os.Remove(out)

	if filepath.Base(out) != "IMG_2041_compressed.jpg" {
		t.Errorf("unexpected output name: %s", filepath.Base(out))
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("expected compressed file on disk: %v", err)
	}
}
