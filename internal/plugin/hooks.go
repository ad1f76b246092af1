package plugin

// Hook names fired by the apply engine
const (
	// HookRevisionPublished fires after a revision's content replaced its
	// parent. Args: revisionID uint64, productID uint64.
	HookRevisionPublished = "revision.published"

	// HookCachePurge fires when a product's cached representations should
	// be dropped. Args: productID uint64.
	HookCachePurge = "cache.purge"
)
