package coordinator

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Contributor produces one contribution for a channel. Unlike hook
// handlers (strictly sequential per spec.md's non-goal on parallel hook
// execution), contribution channels are explicitly specified as
// concurrent (§4.4: "concurrently invokes every callback"), so this is the
// one place in the kernel that fans work out with golang.org/x/sync/errgroup
// rather than running it sequentially.
type Contributor func(ctx context.Context) (string, error)

type namedContributor struct {
	name string
	fn   Contributor
}

// RegisterContributor appends name/fn to channel's ordered contributor
// list.
func (c *Coordinator) RegisterContributor(channel, name string, fn Contributor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contributors[channel] = append(c.contributors[channel], namedContributor{name: name, fn: fn})
}

// CollectContributions concurrently invokes every contributor registered
// for channel, waits for all of them, discards (and logs) any that fail,
// and returns the concatenation of successful outputs in registration
// order.
func (c *Coordinator) CollectContributions(ctx context.Context, channel string) string {
	c.mu.RLock()
	list := make([]namedContributor, len(c.contributors[channel]))
	copy(list, c.contributors[channel])
	c.mu.RUnlock()

	results := make([]string, len(list))
	ok := make([]bool, len(list))

	g, gctx := errgroup.WithContext(ctx)
	for i, nc := range list {
		i, nc := i, nc
		g.Go(func() error {
			out, err := nc.fn(gctx)
			if err != nil {
				c.logger.Warn("contribution failed", "channel", channel, "contributor", nc.name, "error", err)
				return nil
			}
			results[i] = out
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait() // individual failures are swallowed above; g.Wait() never returns a non-nil error here

	out := ""
	for i, v := range results {
		if ok[i] {
			out += v
		}
	}
	return out
}
