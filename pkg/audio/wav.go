package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrMalformed reports an audio container that cannot be decoded. Callers
// match it with errors.Is to distinguish bad input from I/O failures.
var ErrMalformed = errors.New("malformed audio container")

const (
	headerSize = 44

	formatPCM       = 1 // 16-bit signed integer samples
	formatIEEEFloat = 3 // 32-bit float samples
)

// Header is the canonical 44-byte RIFF/WAVE header written by Encode.
type Header struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // total size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 = PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * 2
	BlockAlign    uint16 // NumChannels * 2
	BitsPerSample uint16 // always 16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // data byte length
}

// PCM is a decoded waveform: one float slice per channel, samples in [-1, 1].
type PCM struct {
	SampleRate int
	Channels   [][]float64
}

// Frames returns the per-channel sample count.
func (p *PCM) Frames() int {
	if len(p.Channels) == 0 {
		return 0
	}
	return len(p.Channels[0])
}

// ConvertSample scales a float sample to a signed 16-bit value. Negative
// values scale by 32768 and floor, positive values scale by 32767 and ceil,
// then the result clamps to the int16 range. A sample of -1.0 maps to -32768
// and 1.0 to 32767; out-of-domain input clamps instead of overflowing.
func ConvertSample(s float64) int16 {
	var v float64
	if s < 0 {
		v = math.Floor(s * 32768)
	} else {
		v = math.Ceil(s * 32767)
	}
	if v < -32768 {
		return -32768
	}
	if v > 32767 {
		return 32767
	}
	return int16(v)
}

// Encode serializes the waveform as an uncompressed 16-bit PCM WAV file with
// channels interleaved frame by frame. The output is deterministic: identical
// input produces byte-identical bytes.
func (p *PCM) Encode() ([]byte, error) {
	if len(p.Channels) == 0 || p.Frames() == 0 {
		return nil, fmt.Errorf("cannot encode empty waveform")
	}
	if p.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", p.SampleRate)
	}
	for i, ch := range p.Channels {
		if len(ch) != p.Frames() {
			return nil, fmt.Errorf("channel %d has %d samples, want %d", i, len(ch), p.Frames())
		}
	}

	numChannels := uint16(len(p.Channels))
	frames := p.Frames()
	dataSize := uint32(frames) * uint32(numChannels) * 2

	header := Header{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   formatPCM,
		NumChannels:   numChannels,
		SampleRate:    uint32(p.SampleRate),
		ByteRate:      uint32(p.SampleRate) * uint32(numChannels) * 2,
		BlockAlign:    numChannels * 2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+int(dataSize)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	interleaved := make([]int16, 0, frames*int(numChannels))
	for frame := 0; frame < frames; frame++ {
		for ch := 0; ch < int(numChannels); ch++ {
			interleaved = append(interleaved, ConvertSample(p.Channels[ch][frame]))
		}
	}
	if err := binary.Write(buf, binary.LittleEndian, interleaved); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// ParseHeader reads the canonical header back out of encoded bytes.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrMalformed, headerSize, len(data))
	}
	var header Header
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}
	if string(header.ChunkID[:]) != "RIFF" {
		return nil, fmt.Errorf("%w: missing RIFF tag", ErrMalformed)
	}
	if string(header.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing WAVE tag", ErrMalformed)
	}
	return &header, nil
}

// Decode parses a RIFF/WAVE container into float PCM. Both 16-bit integer and
// 32-bit IEEE float payloads are accepted; chunks other than "fmt " and "data"
// are skipped so containers with extra metadata still decode.
func Decode(data []byte) (*PCM, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("%w: need at least 12 bytes, got %d", ErrMalformed, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE tags", ErrMalformed)
	}

	var (
		audioFormat   uint16
		numChannels   uint16
		sampleRate    uint32
		bitsPerSample uint16
		payload       []byte
		haveFmt       bool
	)

	// Walk the chunk list after the 12-byte RIFF preamble.
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		pos += 8
		if size < 0 || pos+size > len(data) {
			return nil, fmt.Errorf("%w: chunk %q overruns container", ErrMalformed, id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: fmt chunk too short", ErrMalformed)
			}
			chunk := data[pos : pos+size]
			audioFormat = binary.LittleEndian.Uint16(chunk[0:2])
			numChannels = binary.LittleEndian.Uint16(chunk[2:4])
			sampleRate = binary.LittleEndian.Uint32(chunk[4:8])
			bitsPerSample = binary.LittleEndian.Uint16(chunk[14:16])
			haveFmt = true
		case "data":
			payload = data[pos : pos+size]
		}
		pos += size
		if size%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}

	if !haveFmt {
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrMalformed)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: missing data chunk", ErrMalformed)
	}
	if numChannels == 0 {
		return nil, fmt.Errorf("%w: zero channels", ErrMalformed)
	}
	if sampleRate == 0 {
		return nil, fmt.Errorf("%w: zero sample rate", ErrMalformed)
	}

	switch audioFormat {
	case formatPCM:
		if bitsPerSample != 16 {
			return nil, fmt.Errorf("%w: unsupported PCM bit depth %d", ErrMalformed, bitsPerSample)
		}
		return decodeInt16(payload, int(numChannels), int(sampleRate))
	case formatIEEEFloat:
		if bitsPerSample != 32 {
			return nil, fmt.Errorf("%w: unsupported float bit depth %d", ErrMalformed, bitsPerSample)
		}
		return decodeFloat32(payload, int(numChannels), int(sampleRate))
	default:
		return nil, fmt.Errorf("%w: unsupported audio format %d", ErrMalformed, audioFormat)
	}
}

func decodeInt16(payload []byte, channels, rate int) (*PCM, error) {
	blockAlign := channels * 2
	if len(payload)%blockAlign != 0 {
		return nil, fmt.Errorf("%w: data length %d not frame aligned", ErrMalformed, len(payload))
	}
	frames := len(payload) / blockAlign
	pcm := newPCM(channels, frames, rate)
	for frame := 0; frame < frames; frame++ {
		for ch := 0; ch < channels; ch++ {
			off := (frame*channels + ch) * 2
			raw := int16(binary.LittleEndian.Uint16(payload[off : off+2]))
			pcm.Channels[ch][frame] = float64(raw) / 32768
		}
	}
	return pcm, nil
}

func decodeFloat32(payload []byte, channels, rate int) (*PCM, error) {
	blockAlign := channels * 4
	if len(payload)%blockAlign != 0 {
		return nil, fmt.Errorf("%w: data length %d not frame aligned", ErrMalformed, len(payload))
	}
	frames := len(payload) / blockAlign
	pcm := newPCM(channels, frames, rate)
	for frame := 0; frame < frames; frame++ {
		for ch := 0; ch < channels; ch++ {
			off := (frame*channels + ch) * 4
			bits := binary.LittleEndian.Uint32(payload[off : off+4])
			pcm.Channels[ch][frame] = float64(math.Float32frombits(bits))
		}
	}
	return pcm, nil
}

func newPCM(channels, frames, rate int) *PCM {
	pcm := &PCM{
		SampleRate: rate,
		Channels:   make([][]float64, channels),
	}
	for ch := range pcm.Channels {
		pcm.Channels[ch] = make([]float64, frames)
	}
	return pcm
}
