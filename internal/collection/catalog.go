package collection

import "context"

//go:generate mockgen -source=catalog.go -destination=mocks/catalog.go -package=mocks

// CatalogClient is the remote replay catalog. Every call counts against the
// remote rate limit, including pagination continuations.
type CatalogClient interface {
	// GetGroup fetches a single group's metadata.
	GetGroup(ctx context.Context, groupID string) (*Group, error)

	// ListChildGroups returns every direct child of the group, across all pages.
	ListChildGroups(ctx context.Context, parentID string) ([]Group, error)

	// ListReplays returns every replay directly in the group, across all pages.
	ListReplays(ctx context.Context, groupID string) ([]Replay, error)

	// DownloadReplay fetches the raw replay bytes.
	DownloadReplay(ctx context.Context, replayID string) ([]byte, error)
}
