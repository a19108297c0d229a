// Package composite contains serdes built from other serdes and a lookup table.
//
//   - ValTimeSerde: a value plus an instant, encoded as surrogate ++ 8 byte time,
//     so equal values share storage and encodings have a fixed length.
//   - RangeSerde: half-open integer ranges whose encodings sort like (start, end),
//     with key helpers to find the range containing a point.
//   - VariantSerde: stores small values inline and large ones as a surrogate,
//     marked by a leading tag byte.
package composite
