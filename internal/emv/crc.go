package emv

import "fmt"

const (
	crc16Poly = 0x1021
	crc16Init = 0xFFFF
)

// Checksum computes CRC16-CCITT (poly 0x1021, init 0xFFFF, no reflection,
// no final xor) over the UTF-8 bytes of data and returns it as four
// uppercase hex digits.
func Checksum(data string) string {
	crc := uint16(crc16Init)
	for i := 0; i < len(data); i++ {
		crc ^= uint16(data[i]) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crc16Poly
			} else {
				crc <<= 1
			}
		}
	}
	return fmt.Sprintf("%04X", crc)
}
