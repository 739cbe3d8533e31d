package media

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// compressImage re-encodes the image as a JPEG at the given quality and
// returns the path of the new file, written next to the original.
func compressImage(filePath string, quality int) (string, error) {
	img, err := imaging.Open(filePath, imaging.AutoOrientation(true))
	if err != nil {
		// Undecodable input is an invalid file, not a transient fault.
		return "", fmt.Errorf("invalid file %s: %w", filepath.Base(filePath), err)
	}

	base := strings.TrimSuffix(filePath, filepath.Ext(filePath))
	outPath := base + "_compressed.jpg"

	if err := imaging.Save(img, outPath, imaging.JPEGQuality(quality)); err != nil {
		return "", fmt.Errorf("save compressed image: %w", err)
	}
	return outPath, nil
}
