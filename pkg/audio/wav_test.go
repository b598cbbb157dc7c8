package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineWave(rate int, seconds float64, freq float64) []float64 {
	n := int(float64(rate) * seconds)
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return samples
}

func TestEncodeHeaderRoundTrip(t *testing.T) {
	pcm := &PCM{
		SampleRate: 44100,
		Channels: [][]float64{
			sineWave(44100, 0.05, 440),
			sineWave(44100, 0.05, 880),
		},
	}

	data, err := pcm.Encode()
	require.NoError(t, err)

	header, err := ParseHeader(data)
	require.NoError(t, err)

	assert.Equal(t, uint16(2), header.NumChannels)
	assert.Equal(t, uint32(44100), header.SampleRate)
	assert.Equal(t, uint16(16), header.BitsPerSample)
	assert.Equal(t, uint16(formatPCM), header.AudioFormat)
	assert.Equal(t, uint32(44100*2*2), header.ByteRate)
	assert.Equal(t, uint16(4), header.BlockAlign)
	assert.Equal(t, uint32(pcm.Frames()*2*2), header.Subchunk2Size)
	assert.Equal(t, uint32(len(data)-8), header.ChunkSize)
	assert.Len(t, data, headerSize+pcm.Frames()*4)
}

func TestEncodeDeterministic(t *testing.T) {
	pcm := &PCM{
		SampleRate: 16000,
		Channels:   [][]float64{sineWave(16000, 0.1, 440)},
	}

	first, err := pcm.Encode()
	require.NoError(t, err)
	second, err := pcm.Encode()
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first, second), "identical input must produce byte-identical output")
}

func TestConvertSampleClamping(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want int16
	}{
		{"full scale positive", 1.0, 32767},
		{"full scale negative", -1.0, -32768},
		{"over domain clamps", 2.0, 32767},
		{"under domain clamps", -2.0, -32768},
		{"zero", 0, 0},
		{"positive rounds up", 0.00001, 1},
		{"negative rounds down", -0.00001, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConvertSample(tt.in))
		})
	}
}

func TestEncodeInterleavesFrames(t *testing.T) {
	pcm := &PCM{
		SampleRate: 8000,
		Channels: [][]float64{
			{0.5, 0.5},
			{-0.5, -0.5},
		},
	}

	data, err := pcm.Encode()
	require.NoError(t, err)

	want := ConvertSample(0.5)
	got := int16(binary.LittleEndian.Uint16(data[headerSize : headerSize+2]))
	assert.Equal(t, want, got, "first sample belongs to channel 0")

	want = ConvertSample(-0.5)
	got = int16(binary.LittleEndian.Uint16(data[headerSize+2 : headerSize+4]))
	assert.Equal(t, want, got, "second sample belongs to channel 1")
}

func TestEncodeRejectsEmptyAndRagged(t *testing.T) {
	_, err := (&PCM{SampleRate: 8000}).Encode()
	assert.Error(t, err)

	_, err = (&PCM{SampleRate: 0, Channels: [][]float64{{0.1}}}).Encode()
	assert.Error(t, err)

	ragged := &PCM{SampleRate: 8000, Channels: [][]float64{{0.1, 0.2}, {0.1}}}
	_, err = ragged.Encode()
	assert.Error(t, err)
}

func TestDecodeRoundTrip(t *testing.T) {
	original := &PCM{
		SampleRate: 16000,
		Channels:   [][]float64{{0.25, -0.25, 0.75, -0.75}},
	}

	data, err := original.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 16000, decoded.SampleRate)
	require.Len(t, decoded.Channels, 1)
	require.Equal(t, 4, decoded.Frames())

	// 16-bit quantization loses precision; values must round-trip within one step.
	for i, want := range original.Channels[0] {
		assert.InDelta(t, want, decoded.Channels[0][i], 1.0/32767)
	}
}

func TestDecodeFloat32Container(t *testing.T) {
	samples := []float32{0.5, -0.5, 1.0, -1.0}
	payload := new(bytes.Buffer)
	require.NoError(t, binary.Write(payload, binary.LittleEndian, samples))
	data := buildWAV(t, formatIEEEFloat, 1, 48000, 32, payload.Bytes())

	pcm, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 48000, pcm.SampleRate)
	require.Equal(t, 4, pcm.Frames())
	assert.InDelta(t, 0.5, pcm.Channels[0][0], 1e-6)
	assert.InDelta(t, -1.0, pcm.Channels[0][3], 1e-6)
}

func TestDecodeSkipsUnknownChunks(t *testing.T) {
	samples := []int16{100, -100}
	payload := new(bytes.Buffer)
	require.NoError(t, binary.Write(payload, binary.LittleEndian, samples))

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // patched below
	buf.WriteString("WAVE")
	// LIST chunk before fmt, as some encoders emit.
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(4))
	buf.WriteString("INFO")
	writeFmtChunk(&buf, formatPCM, 1, 8000, 16)
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(payload.Len()))
	buf.Write(payload.Bytes())

	data := buf.Bytes()
	binary.LittleEndian.PutUint32(data[4:8], uint32(len(data)-8))

	pcm, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 2, pcm.Frames())
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"too short", []byte("RIFF")},
		{"wrong tag", append([]byte("JUNK0000JUNK"), make([]byte, 64)...)},
		{"missing data chunk", buildWAV(t, formatPCM, 1, 8000, 16, nil)[:28]},
		{"truncated payload", truncatedWAV(t)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeUnsupportedFormat(t *testing.T) {
	data := buildWAV(t, 6 /* a-law */, 1, 8000, 8, []byte{0, 0})
	_, err := Decode(data)
	assert.ErrorIs(t, err, ErrMalformed)
}

func writeFmtChunk(buf *bytes.Buffer, format, channels uint16, rate uint32, bits uint16) {
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, format)
	binary.Write(buf, binary.LittleEndian, channels)
	binary.Write(buf, binary.LittleEndian, rate)
	binary.Write(buf, binary.LittleEndian, rate*uint32(channels)*uint32(bits)/8)
	binary.Write(buf, binary.LittleEndian, channels*bits/8)
	binary.Write(buf, binary.LittleEndian, bits)
}

func buildWAV(t *testing.T, format, channels uint16, rate uint32, bits uint16, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	buf.WriteString("WAVE")
	writeFmtChunk(&buf, format, channels, rate, bits)
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(payload)
	data := buf.Bytes()
	binary.LittleEndian.PutUint32(data[4:8], uint32(len(data)-8))
	return data
}

func truncatedWAV(t *testing.T) []byte {
	t.Helper()
	data := buildWAV(t, formatPCM, 1, 8000, 16, []byte{1, 2, 3, 4})
	// Claim more payload bytes than the container holds.
	binary.LittleEndian.PutUint32(data[len(data)-8:len(data)-4], 64)
	return data
}
