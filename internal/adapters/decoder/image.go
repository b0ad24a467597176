package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/Amund211/fetchlight/internal/domain"
	"github.com/Amund211/fetchlight/internal/logging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var errEmptyPayload = errors.New("empty payload")

type imageDecoder struct {
	maxPixels int
}

// NewImageDecoder decodes the formats registered with the image package.
//
// Images with more than maxPixels pixels are rejected before their pixel data
// is decoded.
func NewImageDecoder(maxPixels int) *imageDecoder {
	return &imageDecoder{
		maxPixels: maxPixels,
	}
}

func (d *imageDecoder) Decode(ctx context.Context, data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: %w", domain.ErrDecodeFailure, errEmptyPayload)
	}

	config, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to read image header: %w", domain.ErrDecodeFailure, err)
	}

	if config.Width <= 0 || config.Height <= 0 {
		return nil, "", fmt.Errorf("%w: invalid dimensions %dx%d", domain.ErrDecodeFailure, config.Width, config.Height)
	}

	// Divide to avoid overflow on absurd headers
	if config.Width > d.maxPixels/config.Height {
		logging.FromContext(ctx).WarnContext(
			ctx,
			"Rejected oversized image",
			"format", format,
			"width", config.Width,
			"height", config.Height,
		)
		return nil, "", fmt.Errorf(
			"%w: %dx%d exceeds the limit of %d pixels",
			domain.ErrDecodeFailure, config.Width, config.Height, d.maxPixels,
		)
	}

	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to decode %s image: %w", domain.ErrDecodeFailure, format, err)
	}

	return decoded, format, nil
}

// Type assertion
var _ Decoder = (*imageDecoder)(nil)
