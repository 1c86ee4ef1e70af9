// Package docproxy provides a serialized mutation proxy for a single remote mutable document.
//
// Many independent callers in one process can read and mutate the same externally hosted
// document through one Proxy without any server-side lock. The Proxy guarantees:
//   - Mutations run strictly one at a time, in the order Change was called (FIFO).
//   - Each mutation receives the value produced by the previous successful one.
//   - Exactly one fetch of the remote document happens per drain cycle, at its start.
//   - A Get issued while a drain cycle is active returns that cycle's final value.
//   - A failing fetch rejects every caller of its cycle; a failing mutation only its own caller.
//
// A drain cycle is the span from "the queue became non-empty" to "the queue is empty again".
// While no cycle is active, Get simply fetches; there is no caching.
//
// Known limitations:
//   - A hung Fetcher or Mutation stalls the whole cycle. WithFetchTimeout bounds the fetch step
//     for fetchers that honor their context; mutations have no timeout.
//   - When a mutation fails, the pre-mutation value is carried forward to the next mutation of
//     the same cycle instead of being re-fetched.
//   - Only callers sharing one Proxy instance are serialized. Writers in other processes are
//     not detected; the document store reports those as concurrency conflicts.
//
// Common usage pattern:
//
//	proxy, err := docproxy.New(func(ctx context.Context) (Profile, error) {
//		return client.LoadProfile(ctx, profileID)
//	}, docproxy.WithName(profileID))
//
//	err = proxy.Change(ctx, func(ctx context.Context, current Profile) (Profile, error) {
//		current.DisplayName = "Alice"
//		return client.SaveProfile(ctx, current)
//	})
//
//	latest, err := proxy.Get(ctx)
//
// A Registry owns one Proxy per document name and builds them lazily.
package docproxy
