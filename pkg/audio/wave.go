// Package audio provides the PCM processing primitives for the Parley
// speech pipeline: a canonical WAV container encoder, little-endian int16
// sample conversion, a linear resampler, and the [Player] abstraction that
// playback adapters implement.
//
// This package lives under pkg/ because external playback adapters (local
// sound device, browser bridge, file sink) are expected to implement [Player].
package audio

import "encoding/binary"

// wavHeaderSize is the fixed size of the canonical RIFF/WAVE header produced
// by [EncodeWAV]: 12 bytes RIFF chunk descriptor, 24 bytes fmt chunk, 8 bytes
// data chunk header.
const wavHeaderSize = 44

// EncodeWAV encodes mono 16-bit linear PCM samples into a complete WAV file
// buffer. All multi-byte header fields are little-endian. The output is
// byte-exact for a given input: 44 header bytes followed by the samples in
// order, two bytes each.
//
// An empty sample slice yields a valid header-only 44-byte file. sampleRate
// must be non-negative; it is written verbatim into the header.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	dataLen := len(samples) * 2
	buf := make([]byte, wavHeaderSize+dataLen)

	le := binary.LittleEndian

	copy(buf[0:4], "RIFF")
	le.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	le.PutUint32(buf[16:20], 16)                   // fmt chunk size
	le.PutUint16(buf[20:22], 1)                    // linear PCM
	le.PutUint16(buf[22:24], 1)                    // mono
	le.PutUint32(buf[24:28], uint32(sampleRate))
	le.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate, 16-bit mono
	le.PutUint16(buf[32:34], 2)                    // block align
	le.PutUint16(buf[34:36], 16)                   // bits per sample

	copy(buf[36:40], "data")
	le.PutUint32(buf[40:44], uint32(dataLen))

	for i, s := range samples {
		le.PutUint16(buf[wavHeaderSize+i*2:], uint16(s))
	}
	return buf
}
