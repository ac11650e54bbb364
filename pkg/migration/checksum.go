// SPDX-License-Identifier: Apache-2.0

package migration

import "hash/crc32"

// Checksum computes the Flyway-compatible checksum of a migration file's
// bytes: the IEEE CRC-32 of the content, reinterpreted as a signed 32-bit
// big-endian integer. Reinterpreting a big-endian byte sequence's bits as
// signed is the same operation as a plain two's-complement cast of the
// unsigned checksum, since no byte-order swap is involved.
func Checksum(content []byte) int32 {
	return int32(crc32.ChecksumIEEE(content))
}
