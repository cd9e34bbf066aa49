// Package vectorindex stores chunk embeddings and answers nearest-neighbour
// queries.
//
// Each workspace maps to one collection (see CollectionName). Two backends
// implement Index:
//
//   - SQLiteIndex: an embedded database. Built with the sqlite_vec tag it
//     uses mattn/go-sqlite3 and computes similarity in SQL through the
//     sqlite-vec extension; the default build uses modernc.org/sqlite and
//     scores candidates in Go.
//   - QdrantIndex: a Qdrant server reached over REST.
//
// Records are keyed by chunk id, so re-upserting an unchanged chunk replaces
// it in place. Search results are returned in the backend's order and are
// never re-ordered by callers of this package.
//
// Backend outages surface as errors matching types.ErrVectorStoreUnavailable.
package vectorindex
