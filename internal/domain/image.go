package domain

import (
	"image"
	"time"
)

// Image is a decoded image together with where and when it was fetched.
//
// Images are shared by pointer between the result cache and every caller that
// receives them, so they must not be mutated after construction.
type Image struct {
	URL       string
	Format    string
	Decoded   image.Image
	Size      int
	FetchedAt time.Time
}

func (i *Image) Width() int {
	if i == nil || i.Decoded == nil {
		return 0
	}
	return i.Decoded.Bounds().Dx()
}

func (i *Image) Height() int {
	if i == nil || i.Decoded == nil {
		return 0
	}
	return i.Decoded.Bounds().Dy()
}
