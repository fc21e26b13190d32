package utils

import (
	"hash/crc32"
)

// GetHashBucket 按 key 分桶，保证同一 key 落到同一个 worker
func GetHashBucket(key string, bucketSize uint32) uint32 {
	if bucketSize == 0 {
		return 0
	}
	return crc32.ChecksumIEEE([]byte(key)) % bucketSize
}
