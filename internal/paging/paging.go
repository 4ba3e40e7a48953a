// Package paging implements the two page-walking strategies shared by all
// adapters: link-header/offset paging for REST endpoints and cursor paging
// for GraphQL connections. Both expose the same streaming contract (fetch
// a page, yield its items, decide whether a next page exists) and both
// terminate on the first page reporting no further pages, never probing an
// extra page speculatively. Retry is never attempted here; that policy
// belongs to the transport collaborator.
package paging

import (
	"context"
	"net/http"
	"regexp"
)

// nextLinkRe matches Link header entries with rel="next" (RFC 5988).
var nextLinkRe = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// ParseNextLink extracts the "next" URL from a Link header value, or ""
// when the header carries no next relation.
func ParseNextLink(linkHeader string) string {
	matches := nextLinkRe.FindStringSubmatch(linkHeader)
	if len(matches) >= 2 {
		return matches[1]
	}
	return ""
}

// LinkFetchFunc requests one page at an absolute URL and returns its items
// together with the response headers, which carry the Link header used to
// locate the next page.
type LinkFetchFunc[T any] func(ctx context.Context, url string) ([]T, http.Header, error)

// WalkLink follows rel="next" Link headers from startURL, yielding each
// page's items in fetch order. It stops on the first page whose Link
// header names no next page. A yield error aborts the walk.
func WalkLink[T any](
	ctx context.Context,
	startURL string,
	fetch LinkFetchFunc[T],
	yield func([]T) error,
) error {
	url := startURL
	for url != "" {
		items, header, err := fetch(ctx, url)
		if err != nil {
			return err
		}
		if err := yield(items); err != nil {
			return err
		}
		url = ParseNextLink(header.Get("Link"))
	}
	return nil
}

// OffsetFetchFunc requests one page (1-based) of at most pageSize items.
type OffsetFetchFunc[T any] func(ctx context.Context, page, pageSize int) ([]T, http.Header, error)

// WalkOffset pages through a numbered/offset endpoint. The page boundary
// is an explicit rel="next" Link header when the response carries one;
// otherwise a page returning fewer than pageSize items is taken as the
// last. Items are yielded in fetch order.
func WalkOffset[T any](
	ctx context.Context,
	pageSize int,
	fetch OffsetFetchFunc[T],
	yield func([]T) error,
) error {
	for page := 1; ; page++ {
		items, header, err := fetch(ctx, page, pageSize)
		if err != nil {
			return err
		}
		if err := yield(items); err != nil {
			return err
		}

		if link := header.Get("Link"); link != "" {
			if ParseNextLink(link) == "" {
				return nil
			}
			continue
		}
		if len(items) < pageSize {
			return nil
		}
	}
}

// TotalFetchFunc requests one page starting at offset and reports the
// collection total alongside the page's items.
type TotalFetchFunc[T any] func(ctx context.Context, offset, pageSize int) ([]T, int, error)

// WalkTotal pages through an offset endpoint that reports the collection
// total, stopping exactly when the items fetched so far reach it. A
// collection whose size is an exact multiple of pageSize never costs an
// extra empty request. A short page before the total is reached also
// terminates the walk, covering collections that shrink mid-listing.
func WalkTotal[T any](
	ctx context.Context,
	pageSize int,
	fetch TotalFetchFunc[T],
	yield func([]T) error,
) error {
	offset := 0
	for {
		items, total, err := fetch(ctx, offset, pageSize)
		if err != nil {
			return err
		}
		if err := yield(items); err != nil {
			return err
		}
		offset += len(items)
		if offset >= total || len(items) < pageSize {
			return nil
		}
	}
}

// PageInfo reports the paging boundary of a GraphQL connection.
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// CursorFetchFunc requests one page of a connection. The cursor is ""
// for the first page and the previous page's endCursor afterwards; all
// other query variables must stay unchanged between pages.
type CursorFetchFunc[T any] func(ctx context.Context, cursor string) ([]T, PageInfo, error)

// WalkCursor pages through a GraphQL connection, yielding each page's
// nodes in fetch order. It stops on the first page with hasNextPage
// false.
func WalkCursor[T any](
	ctx context.Context,
	fetch CursorFetchFunc[T],
	yield func([]T) error,
) error {
	cursor := ""
	for {
		items, info, err := fetch(ctx, cursor)
		if err != nil {
			return err
		}
		if err := yield(items); err != nil {
			return err
		}
		if !info.HasNextPage {
			return nil
		}
		cursor = info.EndCursor
	}
}

// WalkCursorPrefetch behaves exactly like WalkCursor but starts fetching
// page N+1 while yield is still consuming page N. The next page is only
// requested once the current response has reported it exists, so no
// speculative probe happens, and the aggregate output is identical to the
// sequential walk.
func WalkCursorPrefetch[T any](
	ctx context.Context,
	fetch CursorFetchFunc[T],
	yield func([]T) error,
) error {
	type page struct {
		items []T
		info  PageInfo
		err   error
	}

	start := func(cursor string) <-chan page {
		// Buffered so an abandoned fetch cannot leak its goroutine.
		ch := make(chan page, 1)
		go func() {
			items, info, err := fetch(ctx, cursor)
			ch <- page{items: items, info: info, err: err}
		}()
		return ch
	}

	pending := start("")
	for {
		current := <-pending
		if current.err != nil {
			return current.err
		}

		if current.info.HasNextPage {
			pending = start(current.info.EndCursor)
		} else {
			pending = nil
		}

		if err := yield(current.items); err != nil {
			return err
		}
		if pending == nil {
			return nil
		}
	}
}

// CollectLink aggregates every page reached from startURL, preserving
// fetch order.
func CollectLink[T any](
	ctx context.Context,
	startURL string,
	fetch LinkFetchFunc[T],
) ([]T, error) {
	var all []T
	err := WalkLink(ctx, startURL, fetch, func(items []T) error {
		all = append(all, items...)
		return nil
	})
	return all, err
}

// CollectOffset aggregates every page of a numbered/offset endpoint,
// preserving fetch order.
func CollectOffset[T any](
	ctx context.Context,
	pageSize int,
	fetch OffsetFetchFunc[T],
) ([]T, error) {
	var all []T
	err := WalkOffset(ctx, pageSize, fetch, func(items []T) error {
		all = append(all, items...)
		return nil
	})
	return all, err
}

// CollectTotal aggregates every page of a total-reporting offset
// endpoint, preserving fetch order.
func CollectTotal[T any](
	ctx context.Context,
	pageSize int,
	fetch TotalFetchFunc[T],
) ([]T, error) {
	var all []T
	err := WalkTotal(ctx, pageSize, fetch, func(items []T) error {
		all = append(all, items...)
		return nil
	})
	return all, err
}

// CollectCursor aggregates every page of a connection, preserving fetch
// order.
func CollectCursor[T any](
	ctx context.Context,
	fetch CursorFetchFunc[T],
) ([]T, error) {
	var all []T
	err := WalkCursor(ctx, fetch, func(items []T) error {
		all = append(all, items...)
		return nil
	})
	return all, err
}
