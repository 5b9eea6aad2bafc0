package collection

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPagingIteratorWalksAllPages(t *testing.T) {
	pages := map[string][]int{
		"":  {1, 2},
		"b": {3},
		"c": {4, 5},
	}
	next := map[string]string{"": "b", "b": "c", "c": ""}

	iterator := NewPagingIterator(func(token []byte) ([]int, []byte, error) {
		key := string(token)
		var nextToken []byte
		if next[key] != "" {
			nextToken = []byte(next[key])
		}
		return pages[key], nextToken, nil
	})

	var got []int
	for iterator.HasNext() {
		item, err := iterator.Next()
		require.NoError(t, err)
		got = append(got, item)
	}
	require.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestPagingIteratorEmptyFirstPage(t *testing.T) {
	iterator := NewPagingIterator(func(token []byte) ([]int, []byte, error) {
		return nil, nil, nil
	})
	require.False(t, iterator.HasNext())
}

func TestPagingIteratorSkipsEmptyMiddlePage(t *testing.T) {
	calls := 0
	iterator := NewPagingIterator(func(token []byte) ([]int, []byte, error) {
		calls++
		switch calls {
		case 1:
			return []int{1}, []byte("more"), nil
		case 2:
			return nil, []byte("last"), nil
		default:
			return []int{2}, nil, nil
		}
	})

	var got []int
	for iterator.HasNext() {
		item, err := iterator.Next()
		require.NoError(t, err)
		got = append(got, item)
	}
	require.Equal(t, []int{1, 2}, got)
}

func TestPagingIteratorSurfacesFetchError(t *testing.T) {
	fetchErr := errors.New("store unavailable")
	calls := 0
	iterator := NewPagingIterator(func(token []byte) ([]int, []byte, error) {
		calls++
		if calls == 1 {
			return []int{1}, []byte("more"), nil
		}
		return nil, nil, fetchErr
	})

	require.True(t, iterator.HasNext())
	item, err := iterator.Next()
	require.NoError(t, err)
	require.Equal(t, 1, item)

	require.True(t, iterator.HasNext())
	_, err = iterator.Next()
	require.ErrorIs(t, err, fetchErr)
	require.False(t, iterator.HasNext())
}
