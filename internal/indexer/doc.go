// Package indexer keeps a workspace's vector index in step with its files.
//
// A Coordinator owns the index state (idle, indexing, paused, error) and
// runs the pipeline:
//
//  1. Enumerate: list workspace files with the enumerator rules
//  2. Diff: compare content hashes with the hashes stored in the index
//  3. Chunk: split each changed file into chunks (parallel)
//  4. Embed: turn chunk texts into vectors through the Embedder
//  5. Store: upsert the records, then prune the file's stale chunk ids
//  6. Cleanup: delete files that are indexed but no longer enumerated
//
// # Basic Usage
//
//	coord := indexer.New(enum, chunker, generator, index, indexer.Options{
//	    MaxConcurrency: 4,
//	    Debounce:       time.Second,
//	})
//
//	result, err := coord.StartIndexing(ctx, indexer.SinkFunc(func(p types.Progress) {
//	    fmt.Printf("%s %d/%d\n", p.Phase, p.Processed, p.Total)
//	}))
//
// # Single-flight
//
// Only one run executes at a time. StartIndexing and TriggerFullReindex
// return *types.AlreadyRunningError while another run holds the guard; the
// rejected call is not queued.
//
// # Incremental Indexing
//
// Files whose SHA-256 content hash matches the stored fileHash payload are
// skipped. TriggerFullReindex ignores stored hashes. Both remove records of
// files that were not enumerated.
//
// Chunk ids derive from path and line range, so unchanged ranges are updated
// in place. After upserting a file's new chunks the coordinator deletes that
// file's records whose ids are not in the new set, which drops ranges that
// shifted after an edit.
//
// # File Events
//
// HandleEvent applies watcher events. Modify events are debounced per path:
// each event restarts the path's timer and the file is re-indexed once the
// timer elapses. Create and delete events cancel any pending timer and are
// applied before HandleEvent returns. Work on the same path is serialized;
// distinct paths proceed concurrently.
//
// # Pause and Shutdown
//
// Pause is cooperative. Workers check the pause gate between files; an
// embedding or upsert that has started always completes. Close flushes the
// pending debounced paths synchronously and waits for event handlers.
//
// # Errors
//
// Parse errors and oversized files are collected in IndexingResult.Errors
// and do not stop the run. Embedding failures that survive retries and
// vector store outages stop scheduling new files and fail the run; records
// already written stay in place.
package indexer
