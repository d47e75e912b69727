// Command tempuscacheserve is a small, runnable demonstration of the
// tempuscache library: it builds a cache, exercises Put/Get/Fetch/
// DeletePrefix against it, and prints a short run report.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	tempuscache "github.com/tempuscache-go/tempuscache/v2"
)

type user struct {
	Name string
}

func main() {
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	cache, err := tempuscache.New[user](
		tempuscache.WithMaxSize(20),
		tempuscache.WithSegmentCount(4),
		tempuscache.WithGetsPerPromote(3),
		tempuscache.WithShrinkRatio(0.25),
		tempuscache.WithLogger(logger),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tempuscacheserve: ", err)
		os.Exit(1)
	}
	defer cache.Close()

	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("user:%d", i)
		b := cache.Put(key, user{Name: key}, tempuscache.WithTTL(time.Minute))
		b.Release()
	}

	loaderCalls := 0
	loader := func(_ any, key string) (user, bool, error) {
		loaderCalls++
		if key == "user:missing" {
			return user{}, false, nil
		}
		return user{Name: key}, true, nil
	}

	b, err := cache.Fetch("user:9", loader, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fetch failed:", err)
		os.Exit(1)
	}
	if b != nil {
		fmt.Printf("fetched %s (cached hit, loader calls so far: %d)\n", b.Value().Name, loaderCalls)
		b.Release()
	}

	b, err = cache.Fetch("user:missing", loader, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "unexpected fetch error:", err)
	}
	if b == nil {
		fmt.Println("user:missing not found, as expected")
	}

	removed := cache.DeletePrefix("user:")
	fmt.Printf("deleted %d keys by prefix, effective budget is %d\n", removed, cache.MaxSizeEffective())
}
