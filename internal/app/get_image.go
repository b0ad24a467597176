package app

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/Amund211/fetchlight/internal/domain"
	"golang.org/x/sync/singleflight"
)

const getImageTimeout = 30 * time.Second

type GetImage func(ctx context.Context, url string) (*domain.Image, error)

type fetchResult struct {
	image *domain.Image
	err   error
}

// BuildGetImage waits for the outcome of a fetch through client.
//
// Concurrent calls for the same url share one fetch. The shared fetch is not
// cancelled when one of the callers gives up.
func BuildGetImage(client *ImageClient) GetImage {
	group := &singleflight.Group{}

	return func(ctx context.Context, url string) (*domain.Image, error) {
		resultChan := group.DoChan(url, func() (any, error) {
			fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), getImageTimeout)
			defer cancel()

			results := make(chan fetchResult, 1)
			request := client.FetchImage(fetchCtx, url, nil, func(image *domain.Image, err error) {
				results <- fetchResult{image: image, err: err}
			})
			// The completion only holds a weak reference to the client
			defer runtime.KeepAlive(client)

			select {
			case result := <-results:
				return result.image, result.err
			case <-fetchCtx.Done():
				if request != nil {
					request.Cancel()
				}
				return nil, fmt.Errorf("%w: %w", domain.ErrTransportFailure, fetchCtx.Err())
			}
		})

		select {
		case result := <-resultChan:
			if result.Err != nil {
				// NOTE: ImageClient handles its own logging
				return nil, fmt.Errorf("could not get image: %w", result.Err)
			}
			image, ok := result.Val.(*domain.Image)
			if !ok || image == nil {
				return nil, fmt.Errorf("could not get image: unexpected result %v", result.Val)
			}
			return image, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
