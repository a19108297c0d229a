// Package bytebuffer provides the pooled byte buffers used for every serialize and
// deserialize call in planb.
//
// Buffers are leased from a Pool in power-of-two size classes and must be released
// on every exit path. The preferred form is the scoped lease:
//
//	err := pool.With2(keySize, valueSize, func(k, v *bytebuffer.Buffer) error {
//		if err := keySerde.Serialize(k, key); err != nil {
//			return err
//		}
//		...
//		return txn.Put(table, k.Bytes(), v.Bytes())
//	})
//
// Size classes of 64 KiB and more are allocated with an anonymous mmap on unix
// platforms, smaller classes live on the Go heap.
package bytebuffer
