// Package util provides building blocks shared by the storage layers.
//
// The package contains:
//   - lockfreempsc: a lock-free multi-producer single-consumer Mailbox. Producers
//     push with atomic operations only, the single consumer drains everything queued
//     in one call and blocks on Notify() instead of polling. The writer uses it as
//     its submission queue.
//   - profile: a SizeHistogram with exponential buckets and ProfileTable, which scans
//     a sub-table and reports the size distribution of its keys and values.
package util
