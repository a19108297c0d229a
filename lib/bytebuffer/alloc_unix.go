//go:build unix

package bytebuffer

import (
	"golang.org/x/sys/unix"
)

// allocate returns a zeroed array of size bytes. Large classes are mapped anonymously
// so they live outside the Go heap and do not add GC pressure.
func allocate(size int) []byte {
	if size < OffHeapThreshold {
		return make([]byte, size)
	}
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		Logger.Warningf("anonymous mmap of %d bytes failed, using heap: %v", size, err)
		return make([]byte, size)
	}
	return buf
}

// free unmaps an off-heap array, heap arrays are left to the garbage collector
func free(buf []byte) {
	if len(buf) < OffHeapThreshold {
		return
	}
	if err := unix.Munmap(buf); err != nil {
		// the array came from the heap fallback in allocate
		Logger.Debugf("munmap of %d bytes: %v", len(buf), err)
	}
}
