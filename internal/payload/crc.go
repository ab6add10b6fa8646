package payload

import "github.com/sigurn/crc16"

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Checksum computes CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF, no
// reflection, no final xor) over the bytes of s.
func Checksum(s string) uint16 {
	return crc16.Checksum([]byte(s), crcTable)
}
