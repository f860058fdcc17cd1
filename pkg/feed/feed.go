package feed

import (
	"context"
	"io"
)

// Feed yields a single chain's items in strictly increasing position order.
// Next returns io.EOF once the feed is exhausted.
type Feed interface {
	Next(ctx context.Context) (*Item, error)
}

// SliceFeed replays a fixed list of items.
type SliceFeed struct {
	items []*Item
	pos   int
}

// NewSliceFeed creates a feed over the given items.
func NewSliceFeed(items ...*Item) *SliceFeed {
	return &SliceFeed{items: items}
}

// Next implements Feed.
func (f *SliceFeed) Next(ctx context.Context) (*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.pos >= len(f.items) {
		return nil, io.EOF
	}

	item := f.items[f.pos]
	f.pos++

	return item, nil
}

// ChanFeed adapts a channel to a Feed. A closed channel ends the feed.
type ChanFeed struct {
	ch <-chan *Item
}

// NewChanFeed creates a feed reading from ch.
func NewChanFeed(ch <-chan *Item) *ChanFeed {
	return &ChanFeed{ch: ch}
}

// Next implements Feed.
func (f *ChanFeed) Next(ctx context.Context) (*Item, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case item, ok := <-f.ch:
		if !ok {
			return nil, io.EOF
		}
		return item, nil
	}
}
