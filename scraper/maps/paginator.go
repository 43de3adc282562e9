package maps

import (
	"context"
	"time"

	"maps-scraper/utils"
)

// Handle references one rendered result in the feed.
type Handle struct {
	Index int
	Href  string
	Label string
}

// FeedSnapshot is the feed as currently rendered.
type FeedSnapshot struct {
	Handles   []Handle
	EndOfList bool
}

// Feed is the scrollable results list.
type Feed interface {
	Snapshot(ctx context.Context) (FeedSnapshot, error)
	Advance(ctx context.Context) error
}

// PaginatorOptions tunes how long the paginator waits for the feed to grow.
type PaginatorOptions struct {
	MaxResults    int
	StallLimit    int
	GrowthTimeout time.Duration
	PollInterval  time.Duration
}

// Paginator yields unique result handles one at a time, scrolling the feed
// only when it runs out. It stops at MaxResults, at the end-of-list marker,
// or after StallLimit consecutive scrolls that loaded nothing. A Paginator
// cannot be restarted.
type Paginator struct {
	feed   Feed
	opts   PaginatorOptions
	seen   *utils.KeySet
	logger *utils.Logger

	queue   []Handle
	yielded int
	stalls  int
	done    bool
}

// NewPaginator creates a Paginator over feed.
func NewPaginator(feed Feed, opts PaginatorOptions, logger *utils.Logger) *Paginator {
	if opts.StallLimit < 1 {
		opts.StallLimit = 3
	}
	if opts.GrowthTimeout <= 0 {
		opts.GrowthTimeout = 5 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	return &Paginator{feed: feed, opts: opts, seen: utils.NewKeySet(), logger: logger}
}

// Next returns the next handle. ok is false once the sequence has ended.
func (p *Paginator) Next(ctx context.Context) (Handle, bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Handle{}, false, err
		}
		if p.opts.MaxResults > 0 && p.yielded >= p.opts.MaxResults {
			p.done = true
			p.queue = nil
			return Handle{}, false, nil
		}
		if len(p.queue) > 0 {
			h := p.queue[0]
			p.queue = p.queue[1:]
			p.yielded++
			return h, true, nil
		}
		if p.done {
			return Handle{}, false, nil
		}
		if err := p.refill(ctx); err != nil {
			return Handle{}, false, err
		}
	}
}

// Yielded returns how many handles have been handed out.
func (p *Paginator) Yielded() int { return p.yielded }

func (p *Paginator) refill(ctx context.Context) error {
	snap, err := p.feed.Snapshot(ctx)
	if err != nil {
		return err
	}
	if p.absorb(snap) > 0 {
		return nil
	}
	if snap.EndOfList {
		p.logger.Debug("[paginator] End of list after %d results", p.yielded)
		p.done = true
		return nil
	}

	before := len(snap.Handles)
	if err := p.feed.Advance(ctx); err != nil {
		return err
	}

	deadline := time.Now().Add(p.opts.GrowthTimeout)
	for {
		snap, err = p.feed.Snapshot(ctx)
		if err != nil {
			return err
		}
		if len(snap.Handles) > before || snap.EndOfList {
			p.stalls = 0
			p.absorb(snap)
			if snap.EndOfList && len(p.queue) == 0 {
				p.done = true
			}
			return nil
		}
		if !time.Now().Before(deadline) {
			break
		}
		if err := sleepCtx(ctx, p.opts.PollInterval); err != nil {
			return err
		}
	}

	p.stalls++
	p.logger.Debug("[paginator] Feed did not grow (%d/%d)", p.stalls, p.opts.StallLimit)
	if p.stalls >= p.opts.StallLimit {
		p.logger.Info("[paginator] Feed stalled; stopping at %d results", p.yielded)
		p.done = true
	}
	return nil
}

// absorb queues handles not seen before and returns how many were added.
func (p *Paginator) absorb(snap FeedSnapshot) int {
	added := 0
	for i, h := range snap.Handles {
		if h.Href == "" || !p.seen.Add(h.Href) {
			continue
		}
		h.Index = i
		p.queue = append(p.queue, h)
		added++
	}
	return added
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// domFeed reads the results feed of the main page.
type domFeed struct {
	page Page
}

type feedSnapshotJSON struct {
	Handles []struct {
		Href  string `json:"href"`
		Label string `json:"label"`
	} `json:"handles"`
	EndOfList bool `json:"endOfList"`
}

func (f *domFeed) Snapshot(ctx context.Context) (FeedSnapshot, error) {
	var raw feedSnapshotJSON
	if err := f.page.Evaluate(ctx, feedSnapshotScript, &raw); err != nil {
		return FeedSnapshot{}, err
	}
	snap := FeedSnapshot{EndOfList: raw.EndOfList, Handles: make([]Handle, 0, len(raw.Handles))}
	for i, h := range raw.Handles {
		snap.Handles = append(snap.Handles, Handle{Index: i, Href: h.Href, Label: h.Label})
	}
	return snap, nil
}

func (f *domFeed) Advance(ctx context.Context) error {
	var scrolled bool
	return f.page.Evaluate(ctx, scrollFeedScript, &scrolled)
}
