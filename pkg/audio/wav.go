package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotWAV indicates the buffer does not carry a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE buffer")

// DecodeWAV extracts the raw PCM payload and its format from a WAV buffer.
// Only 16-bit integer PCM is supported, which is what the VOICEVOX engine
// emits. Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(wav []byte) (Format, []byte, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return Format{}, nil, ErrNotWAV
	}

	le := binary.LittleEndian
	var format Format
	var haveFmt bool

	// Walk the chunk list. Chunks are word-aligned: odd sizes carry one
	// padding byte.
	pos := 12
	for pos+8 <= len(wav) {
		id := string(wav[pos : pos+4])
		size := int(le.Uint32(wav[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(wav) {
			return Format{}, nil, fmt.Errorf("audio: truncated %q chunk", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Format{}, nil, errors.New("audio: short fmt chunk")
			}
			audioFormat := le.Uint16(wav[body : body+2])
			if audioFormat != 1 {
				return Format{}, nil, fmt.Errorf("audio: unsupported WAV format code %d (want PCM)", audioFormat)
			}
			if bits := le.Uint16(wav[body+14 : body+16]); bits != 16 {
				return Format{}, nil, fmt.Errorf("audio: unsupported bit depth %d (want 16)", bits)
			}
			format = Format{
				Channels:   int(le.Uint16(wav[body+2 : body+4])),
				SampleRate: int(le.Uint32(wav[body+4 : body+8])),
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return Format{}, nil, errors.New("audio: data chunk before fmt chunk")
			}
			return format, wav[body : body+size], nil
		}

		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}

	return Format{}, nil, errors.New("audio: no data chunk found")
}
