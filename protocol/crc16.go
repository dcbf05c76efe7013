package protocol

// CRC16 is the CRC-16/MCRF4XX checksum (reflected CCITT polynomial, seed
// 0xFFFF) used to protect bridge frames on the USB side.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc = crc16Update(crc, b)
	}
	return crc
}

func crc16Update(crc uint16, b byte) uint16 {
	b ^= uint8(crc & 0xFF)
	b ^= b << 4
	b16 := uint16(b)
	return (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
}
