// Package writer implements the single-writer commit scheduler of an environment.
//
// Storage engines built on a memory-mapped B+tree allow exactly one write transaction
// at a time. Instead of letting every goroutine contend for it, all mutations are
// submitted to a Writer as WriteOp closures. One dedicated goroutine (pinned to its OS
// thread, since some engines tie write transactions to the thread that opened them)
// applies them in submission order and groups them into batches, one write transaction
// per batch.
//
// Submission modes:
//
//   - PutSync: wait until the batch holding the op is committed. The wait is bounded by
//     the context; on expiry the op remains queued and will still be applied.
//   - PutAsync: return immediately and learn the outcome through completion hooks or
//     from the next CommitSync/CommitAsync.
//
// A batch is all-or-nothing. If one op fails or panics, the transaction is aborted
// and every caller waiting on that batch receives the error.
//
// Usage:
//
//	w := writer.New(env, &writer.Options{MaxBatchSize: 1000})
//	defer w.Shutdown(context.Background())
//
//	err := w.PutSync(ctx, true, func(txn db.Writer) error {
//		return txn.Put("users", key, value)
//	})
package writer
