package collection

import (
	"context"
	"fmt"
	"time"

	"impulse-go/internal/ratelimit"
)

// NodePause is the fixed delay after each crawled node.
const NodePause = 500 * time.Millisecond

// Crawler builds a GroupTree by recursively walking the remote catalog.
type Crawler struct {
	client CatalogClient
	cache  TreeCache
	logger Logger
	pause  func(ctx context.Context, d time.Duration) error
}

// NewCrawler creates a Crawler. cache may be nil to disable tree caching.
func NewCrawler(client CatalogClient, cache TreeCache, logger Logger) *Crawler {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Crawler{
		client: client,
		cache:  cache,
		logger: logger,
		pause:  ratelimit.Sleep,
	}
}

// SetPause replaces the inter-node delay function. Tests pass a no-op.
func (c *Crawler) SetPause(pause func(ctx context.Context, d time.Duration) error) {
	c.pause = pause
}

// BuildTree crawls the hierarchy rooted at rootID. A node with children is
// recursed into and carries no replays; a childless node lists its replays.
func (c *Crawler) BuildTree(ctx context.Context, rootID string) (*GroupTree, error) {
	return c.build(ctx, rootID, 0)
}

func (c *Crawler) build(ctx context.Context, groupID string, depth int) (*GroupTree, error) {
	group, err := c.client.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("fetching group %s: %w", groupID, err)
	}
	c.logger.Info("exploring group", "group_id", groupID, "name", group.Name, "depth", depth)

	node := &GroupTree{
		ID:       groupID,
		Name:     group.Name,
		Children: []*GroupTree{},
		Replays:  []Replay{},
	}

	children, err := c.client.ListChildGroups(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("listing child groups of %s: %w", groupID, err)
	}

	if len(children) > 0 {
		c.logger.Info("found subgroups", "group_id", groupID, "count", len(children), "depth", depth)
		for _, child := range children {
			sub, err := c.build(ctx, child.ID, depth+1)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, sub)
		}
	} else {
		replays, err := c.client.ListReplays(ctx, groupID)
		if err != nil {
			return nil, fmt.Errorf("listing replays of %s: %w", groupID, err)
		}
		c.logger.Info("found replays", "group_id", groupID, "count", len(replays), "depth", depth)
		node.Replays = append(node.Replays, replays...)
	}

	if err := c.pause(ctx, NodePause); err != nil {
		return nil, err
	}
	return node, nil
}

// LoadOrBuild returns the cached tree for rootID when useCache is set and a
// cached copy exists; otherwise it crawls and caches the result.
func (c *Crawler) LoadOrBuild(ctx context.Context, rootID string, useCache bool) (*GroupTree, error) {
	if useCache && c.cache != nil {
		tree, err := c.cache.Load(rootID)
		if err != nil {
			c.logger.Warn("ignoring unreadable tree cache", "group_id", rootID, "error", err)
		} else if tree != nil {
			c.logger.Info("loaded group tree from cache", "group_id", rootID, "replays", tree.CountReplays())
			return tree, nil
		}
	}

	tree, err := c.BuildTree(ctx, rootID)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Save(tree); err != nil {
			c.logger.Warn("failed to cache group tree", "group_id", rootID, "error", err)
		}
	}
	return tree, nil
}
