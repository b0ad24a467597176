package domaintest

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"github.com/Amund211/fetchlight/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// NewURL returns a unique image URL so tests sharing a cache never collide
func NewURL(t *testing.T) string {
	t.Helper()

	id, err := uuid.NewRandom()
	require.NoError(t, err)
	return fmt.Sprintf("https://images.example.com/%s.png", id.String())
}

func newPixels(width, height int) *image.RGBA {
	pixels := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			pixels.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	return pixels
}

func NewPNG(t *testing.T, width, height int) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	err := png.Encode(buf, newPixels(width, height))
	require.NoError(t, err)
	return buf.Bytes()
}

func NewGIF(t *testing.T, width, height int) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	err := gif.Encode(buf, newPixels(width, height), nil)
	require.NoError(t, err)
	return buf.Bytes()
}

// NewImage builds a decoded image as the decoder would return it for url
func NewImage(t *testing.T, url string, width, height int) *domain.Image {
	t.Helper()

	return &domain.Image{
		URL:     url,
		Format:  "png",
		Decoded: newPixels(width, height),
		Size:    width * height * 4,
	}
}
