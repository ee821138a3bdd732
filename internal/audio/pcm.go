package audio

import "encoding/binary"

// DecodePCM interprets little-endian s16 bytes. A trailing odd byte is
// ignored.
func DecodePCM(b []byte) []int16 {
	out := make([]int16, len(b)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// EncodePCM serializes samples as little-endian s16 bytes.
func EncodePCM(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
