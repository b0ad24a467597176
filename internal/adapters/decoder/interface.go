package decoder

import (
	"context"
	"image"
)

// Decoder turns an encoded payload into an image.
//
// Returns the decoded image and the name of its format, e.g. "png".
type Decoder interface {
	Decode(ctx context.Context, data []byte) (image.Image, string, error)
}
