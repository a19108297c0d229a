//go:build !unix

package bytebuffer

func allocate(size int) []byte {
	return make([]byte, size)
}

func free([]byte) {}
