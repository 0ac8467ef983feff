// Package keel is the composition root for keel, the durability and
// integrity layer of a record-keeping platform.
//
// It wires three pieces behind one call:
//
//   - An atomic record store: every write goes to a temporary file, is read
//     back and compared, and only then renamed over the previous version,
//     which is kept as a single .bak slot.
//   - A hash-chained audit log: one append-only JSON-lines file per
//     category, where each entry carries the SHA-256 of its canonical form
//     and the hash of its predecessor. Verify replays a category and
//     reports chain breaks, sequence gaps and tampered entries.
//   - A transaction orchestrator: a unit of work stages writes and audit
//     entries, commits them together or rolls back, and leaves a trace of
//     every step in the "transactions" category.
//
// Usage:
//
//	eng, err := keel.New("./ledger", keel.WithLogger(logger))
//
//	res := eng.Orchestrator.Execute(ctx, func(ctx context.Context, tx *keel.Tx) (any, error) {
//		if err := tx.Write(ctx, "payments/p-1", core.Object{"amount": core.Int(100)}); err != nil {
//			return nil, err
//		}
//		return nil, tx.Append(ctx, "payments", "PAYMENT_CREATED", nil)
//	})
//
//	result, err := eng.Log.Verify(ctx, "payments")
package keel
