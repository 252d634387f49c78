package narration

import (
	"encoding/binary"
	"time"
)

// OpenAI pcm output is 24kHz signed 16-bit mono.
const pcmByteRate = 24000 * 2

// AudioDuration reports the playing time of a wav or raw pcm payload. It
// returns zero for formats it cannot measure.
func AudioDuration(b []byte, mimeType string) time.Duration {
	switch mimeType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return wavDuration(b)
	case "audio/pcm":
		return bytesAt(len(b), pcmByteRate)
	}
	return 0
}

func wavDuration(b []byte) time.Duration {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return 0
	}
	var byteRate uint32
	for off := 12; off+8 <= len(b); {
		id := string(b[off : off+4])
		size := int64(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		switch id {
		case "fmt ":
			if body+16 > len(b) {
				return 0
			}
			byteRate = binary.LittleEndian.Uint32(b[body+8 : body+12])
		case "data":
			if byteRate == 0 {
				return 0
			}
			// Streamed wav leaves the data size unset.
			n := int64(len(b) - body)
			if size < n {
				n = size
			}
			return bytesAt(int(n), int(byteRate))
		}
		next := int64(body) + size + size%2
		if next > int64(len(b)) {
			return 0
		}
		off = int(next)
	}
	return 0
}

func bytesAt(n, byteRate int) time.Duration {
	if n <= 0 || byteRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(byteRate))
}
