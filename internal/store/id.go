package store

import (
	"hash/fnv"
	"strconv"
)

// fnv64a computes a stable 64-bit id for a (file_path, ordinal) pair.
func fnv64a(filePath string, ordinal int) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(filePath))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.Itoa(ordinal)))
	return h.Sum64()
}
