// Package media turns uploaded files into web-ready assets: images are
// recompressed, videos are transcoded with a poster thumbnail. Source
// and intermediate files are always removed from local disk afterwards.
package media

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/DikoMolly/chekins/internal/assets"
	"github.com/DikoMolly/chekins/internal/logger"
	"github.com/DikoMolly/chekins/internal/postmedia"
)

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".mkv":  true,
}

// IsVideo reports whether the file extension marks a video. Everything
// else goes through the image pipeline.
func IsVideo(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// Result describes the stored assets for one processed media file.
type Result struct {
	Type       postmedia.MediaType
	URL        string
	StorageID  string
	PreviewURL string
}

const (
	placeholderVideoURL     = "https://cdn.chekins.app/placeholders/video.mp4"
	placeholderThumbnailURL = "https://cdn.chekins.app/placeholders/video_thumbnail.jpg"
)

const defaultJPEGQuality = 85

// Service processes media files and uploads the results.
type Service struct {
	assets  assets.Store
	video   *VideoTool
	quality int
}

type Option func(*Service)

func WithJPEGQuality(q int) Option {
	return func(s *Service) {
		if q > 0 && q <= 100 {
			s.quality = q
		}
	}
}

func NewService(store assets.Store, video *VideoTool, opts ...Option) *Service {
	s := &Service{
		assets:  store,
		video:   video,
		quality: defaultJPEGQuality,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process runs the pipeline matching the file type. The input file and
// any intermediates are removed before it returns, on every path.
func (s *Service) Process(ctx context.Context, filePath, folder string) (*Result, error) {
	if IsVideo(filePath) {
		return s.processVideo(ctx, filePath, folder)
	}
	return s.processImage(ctx, filePath, folder)
}

func (s *Service) processImage(ctx context.Context, filePath, folder string) (*Result, error) {
	generated := []string{filePath}
	defer func() { cleanupFiles(ctx, generated) }()

	compressedPath, err := compressImage(filePath, s.quality)
	if err != nil {
		return nil, err
	}
	generated = append(generated, compressedPath)

	asset, err := s.assets.Upload(ctx, compressedPath, folder)
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}

	return &Result{
		Type:       postmedia.MediaImage,
		URL:        asset.URL,
		StorageID:  asset.StorageID,
		PreviewURL: asset.URL,
	}, nil
}

func (s *Service) processVideo(ctx context.Context, filePath, folder string) (*Result, error) {
	log := logger.FromContext(ctx)
	generated := []string{filePath}
	defer func() { cleanupFiles(ctx, generated) }()

	meta, err := s.video.Probe(ctx, filePath)
	if err != nil {
		if errors.Is(err, ErrToolUnavailable) {
			// Degraded mode: without ffmpeg the post still gets media,
			// just a placeholder instead of the real rendition.
			log.Warn("video tools unavailable, using placeholder assets",
				"file", filePath, "error", err)
			return &Result{
				Type:       postmedia.MediaVideo,
				URL:        placeholderVideoURL,
				StorageID:  "placeholder-video",
				PreviewURL: placeholderThumbnailURL,
			}, nil
		}
		return nil, err
	}

	thumbPath, err := s.video.Thumbnail(ctx, filePath, meta.Duration)
	if err != nil {
		return nil, err
	}
	generated = append(generated, thumbPath)

	transcodedPath, err := s.video.Transcode(ctx, filePath, TranscodeOptions{
		Resolution: Resolution720p,
		Format:     FormatMP4,
	})
	if err != nil {
		return nil, err
	}
	generated = append(generated, transcodedPath)

	videoAsset, err := s.assets.Upload(ctx, transcodedPath, folder)
	if err != nil {
		return nil, fmt.Errorf("upload video: %w", err)
	}

	thumbAsset, err := s.assets.Upload(ctx, thumbPath, folder+"_thumbnails")
	if err != nil {
		// Don't leave a half-uploaded pair behind.
		if derr := s.assets.Delete(ctx, videoAsset.StorageID); derr != nil {
			log.Warn("failed to remove orphaned video asset",
				"storage_id", videoAsset.StorageID, "error", derr)
		}
		return nil, fmt.Errorf("upload video thumbnail: %w", err)
	}

	return &Result{
		Type:       postmedia.MediaVideo,
		URL:        videoAsset.URL,
		StorageID:  videoAsset.StorageID,
		PreviewURL: thumbAsset.URL,
	}, nil
}
