// Package uid maps byte strings to short fixed-width surrogate keys and back.
//
// Two strategies implement the Lookup interface:
//
//   - Hash (NewHashLookup): the surrogate is the hash of the value. On a collision
//     the following slots (hash+1, hash+2, ...) are probed. A slot is only reused
//     after its stored bytes were compared with the value, so two different values
//     never share a surrogate. Giving up after MaxProbes slots fails with db.ErrCollision.
//
//   - Sequence (NewSequenceLookup): the surrogate is the next free number. A reverse
//     index (<table>-idx) keyed by hash ++ id finds existing values.
//
// Rows are never rewritten or deleted, so a surrogate stays valid for the lifetime
// of the table. Put must run inside the single write transaction of the writer.
package uid
