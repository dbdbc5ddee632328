package photos

import (
	"context"
	"math/rand/v2"
)

// RandomPick returns up to n items chosen uniformly at random from one page
// of the subject's library. The page is shuffled with a uniform permutation
// before selection, so the result never favors the provider's page order.
func (f *Fetcher) RandomPick(ctx context.Context, subject string, n int) ([]MediaItem, error) {
	if n < 1 {
		n = 1
	}

	items, err := f.SearchPage(ctx, subject, MaxPageSize)
	if err != nil {
		return nil, err
	}

	rand.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})

	if n > len(items) {
		n = len(items)
	}
	return items[:n], nil
}
