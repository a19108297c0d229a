// Package serde defines how typed domain values are turned into key and value bytes.
//
// A Serializer appends to a pooled bytebuffer.Buffer, a Deserializer decodes a whole
// byte slice and copies everything out, so no reference into the memory map survives
// the transaction. Decoding errors always match db.ErrSerde, a truncated value is
// never returned half-built.
//
// The fixed-width serdes (Uint32, Uint64, Int64, Instant) are order preserving:
// comparing their encodings byte by byte gives the same result as comparing the
// values, which makes them usable as keys for ordered scans.
package serde
