package market

import "context"

// Mirror hooks copy persisted rows into secondary stores. Failures are logged by
// callers and never block the primary dataset write.
type Mirror interface {
	MirrorBars(ctx context.Context, rows []EnrichedBar) error
}
