package collection

type (
	// Iterator walks a sequence that may be produced lazily.
	Iterator[V any] interface {
		// HasNext reports whether another item is available.
		HasNext() bool
		// Next returns the next item and error.
		Next() (V, error)
	}

	// PageFetcher loads one page. It receives the token of the page to load
	// (nil for the first page) and returns the items plus the token of the
	// following page, nil when this is the last one.
	PageFetcher[V any] func(token []byte) ([]V, []byte, error)

	pagingIterator[V any] struct {
		fetch     PageFetcher[V]
		page      []V
		index     int
		nextToken []byte
		started   bool
		err       error
	}
)

// NewPagingIterator returns an iterator over all pages produced by fetch.
// Pages are loaded on demand; a fetch error is returned from Next and ends
// the iteration.
func NewPagingIterator[V any](fetch PageFetcher[V]) Iterator[V] {
	return &pagingIterator[V]{fetch: fetch}
}

func (it *pagingIterator[V]) HasNext() bool {
	if it.err != nil {
		return false
	}
	for it.index >= len(it.page) {
		if it.started && len(it.nextToken) == 0 {
			return false
		}
		it.loadPage()
		if it.err != nil {
			// Surface the error from Next rather than silently stopping.
			return true
		}
	}
	return true
}

func (it *pagingIterator[V]) Next() (V, error) {
	var zero V
	if !it.HasNext() {
		return zero, it.err
	}
	if it.err != nil {
		return zero, it.err
	}
	item := it.page[it.index]
	it.index++
	return item, nil
}

func (it *pagingIterator[V]) loadPage() {
	page, token, err := it.fetch(it.nextToken)
	it.started = true
	if err != nil {
		it.err = err
		return
	}
	it.page = page
	it.index = 0
	it.nextToken = token
}
