package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Amund211/fetchlight/internal/adapters/cache"
	"github.com/Amund211/fetchlight/internal/adapters/decoder"
	"github.com/Amund211/fetchlight/internal/adapters/transport"
	"github.com/Amund211/fetchlight/internal/app"
	"github.com/Amund211/fetchlight/internal/dispatch"
	"github.com/Amund211/fetchlight/internal/domain"
	"github.com/Amund211/fetchlight/internal/logging"
	"github.com/Amund211/fetchlight/internal/ratelimiting"

	_ "golang.org/x/crypto/x509roots/fallback"
)

const maxImageBytes = 10 * 1024 * 1024
const maxImagePixels = 40_000_000

// terminalSlot prints whatever is displayed in it
type terminalSlot struct{}

func (terminalSlot) DisplayImage(image *domain.Image) {
	if image == nil {
		fmt.Println("[slot] <placeholder>")
		return
	}
	fmt.Printf("[slot] %s\n", describe(image))
}

func describe(image *domain.Image) string {
	return fmt.Sprintf("%s: %s %dx%d (%d bytes)", image.URL, image.Format, image.Width(), image.Height(), image.Size)
}

// fetchAll fetches every url without a slot and waits for all of them
func fetchAll(ctx context.Context, client *app.ImageClient, urls []string) {
	start := time.Now()

	wg := sync.WaitGroup{}
	for _, url := range urls {
		wg.Add(1)
		client.FetchImage(ctx, url, nil, func(image *domain.Image, err error) {
			defer wg.Done()
			if err != nil {
				fmt.Printf("%s: %v\n", url, err)
				return
			}
			fmt.Println(describe(image))
		})
	}
	wg.Wait()

	fmt.Printf("Fetched %d images in %s\n", len(urls), time.Since(start).Round(time.Millisecond))
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("No image urls provided")
	}

	urls := os.Args[1:]

	logger := logging.NewRootLogger(os.Stderr, slog.LevelWarn)
	ctx := logging.AddToContext(context.Background(), logger)

	httpClient := &http.Client{
		Timeout: 10 * time.Second,
	}

	limiter := ratelimiting.NewWindowLimitRequestLimiter(20, 1*time.Second, time.Now, time.After)

	httpTransport, err := transport.NewHTTPTransport(httpClient, limiter, maxImageBytes)
	if err != nil {
		log.Fatalf("Failed to initialize HTTP transport: %v", err)
	}

	// All callbacks run on the queue, like a UI thread would
	queue := dispatch.NewSerialQueue()
	defer queue.Close()

	client, err := app.NewImageClient(
		httpTransport,
		decoder.NewImageDecoder(maxImagePixels),
		cache.NewTTLCache[*domain.Image](),
		dispatch.NewGateway(dispatch.WithExecutor(queue)),
		time.Now,
	)
	if err != nil {
		log.Fatalf("Failed to initialize image client: %v", err)
	}

	fmt.Println("Binding every url to the same slot, only the last one should be displayed")
	slot := terminalSlot{}
	resolved := make(chan struct{})
	for i, url := range urls {
		last := i == len(urls)-1
		client.BindImage(ctx, slot, url, nil, func(image *domain.Image, err error) {
			if !last {
				fmt.Printf("Unexpected completion for replaced url %s\n", url)
				return
			}
			if err != nil {
				fmt.Printf("Failed to fetch %s: %v\n", url, err)
			}
			close(resolved)
		})
	}
	if pendingURL, ok := client.PendingURL(slot); ok {
		fmt.Printf("Slot is waiting for %s\n", pendingURL)
	}
	<-resolved

	fmt.Println()
	fmt.Println("Fetching every url")
	fetchAll(ctx, client, urls)

	fmt.Println()
	fmt.Println("Fetching every url again, successful images are served from the cache")
	fetchAll(ctx, client, urls)
}
