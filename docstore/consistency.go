package docstore

import "context"

// ConsistencyLevel defines the consistency requirements for Store reads.
type ConsistencyLevel int

const (
	// StrongConsistency requires reads from the primary database so that a Load observes
	// every Save that completed before it. This is the default, and the level the index
	// datastore uses, because a drain cycle must start from the authoritative document.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency allows reads from a replica, trading freshness for a reduced load
	// on the primary. Suitable for read-only listings that tolerate slightly stale documents.
	EventualConsistency
)

// contextKey is a private type to prevent context key collisions.
type contextKey string

// ConsistencyLevelKey is the context key used to store consistency level preferences.
const ConsistencyLevelKey contextKey = "docstore.consistency_level"

// WithStrongConsistency returns a context that routes Store reads to the primary database.
//
//	ctx = docstore.WithStrongConsistency(ctx)
//	doc, err := store.Load(ctx, name)
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, StrongConsistency)
}

// WithEventualConsistency returns a context that allows Store reads from a replica.
//
//	ctx = docstore.WithEventualConsistency(ctx)
//	doc, err := store.Load(ctx, name)
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, EventualConsistency)
}

// GetConsistencyLevel extracts the consistency level from the context.
// Without an explicit level it returns StrongConsistency.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	if level, ok := ctx.Value(ConsistencyLevelKey).(ConsistencyLevel); ok {
		return level
	}

	return StrongConsistency
}

// String provides a string representation of ConsistencyLevel for logging and debugging.
func (c ConsistencyLevel) String() string {
	switch c {
	case StrongConsistency:
		return "strong"
	case EventualConsistency:
		return "eventual"
	default:
		return "unknown"
	}
}
