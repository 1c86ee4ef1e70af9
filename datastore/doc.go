// Package datastore provides IndexStore, a key-value index kept in one JSON document per name.
//
// Each index document is a JSON object mapping entry keys to arbitrary JSON values. All reads
// and writes of a name go through one docproxy.Proxy, so concurrent writers in this process are
// applied strictly one after another and a read issued after a write observes it.
//
// Writers in other processes are detected by the store's optimistic versioning. A write that
// loses such a race reloads the document and reapplies its edit, backing off exponentially
// between attempts (see WithRetryOptions).
//
// Example:
//
//	index, err := datastore.NewIndexStore(store)
//	if err != nil {
//		return err
//	}
//	if err := index.Set(ctx, "profile-index", "basicProfile", json.RawMessage(`"kjz..."`)); err != nil {
//		return err
//	}
//	value, err := index.Get(ctx, "profile-index", "basicProfile")
package datastore
