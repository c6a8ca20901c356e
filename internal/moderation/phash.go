package moderation

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math/bits"

	"github.com/corona10/goimagehash"
)

// ComputeHash decodes an image and returns its 64-bit perceptual hash.
func ComputeHash(r io.Reader) (uint64, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return 0, fmt.Errorf("failed to decode image: %w", err)
	}

	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("failed to compute perceptual hash: %w", err)
	}

	return hash.GetHash(), nil
}

// HammingDistance counts differing bits between two perceptual hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
