package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTestClip produces a minimal valid TS clip: n packets on PID 0x100,
// each with an incrementing continuity counter, the first carrying a PCR and
// a PES header with a PTS.
func buildTestClip(n int) []byte {
	raw := make([]byte, n*tsPacketSize)
	for i := 0; i < n; i++ {
		pkt := raw[i*tsPacketSize : (i+1)*tsPacketSize]
		pkt[0] = tsSyncByte
		pusi := byte(0x00)
		if i == 0 {
			pusi = 0x40
		}
		pkt[1] = pusi | 0x01 // PID high bits = 0x100>>8 = 1
		pkt[2] = 0x00        // PID low bits
		pkt[3] = 0x10 | byte(i%16)

		if i == 0 {
			pkt[3] = 0x30                 // adaptation field + payload, continuity counter 0
			pkt[4] = 7                    // adaptation field length: flags byte + 6-byte PCR
			pkt[5] = 0x10                 // PCR flag
			writePCR(pkt[6:12], 27000000) // 1 second at 27MHz
			payloadStart := 5 + int(pkt[4])
			pkt[payloadStart] = 0x00
			pkt[payloadStart+1] = 0x00
			pkt[payloadStart+2] = 0x01
			pkt[payloadStart+3] = 0xe0 // stream id
			pkt[payloadStart+7] = 0x80 // PTS only flag (binary 10 in top 2 bits)
			writeTimestamp(pkt[payloadStart+9:payloadStart+14], 0x20, 90000)
		}
	}
	return raw
}

func TestTSLoopBuffer_AlignsAndChunks(t *testing.T) {
	raw := buildTestClip(14)
	buf, err := NewTSLoopBuffer(raw)
	require.NoError(t, err)

	chunk := buf.NextChunk()
	assert.Len(t, chunk, tsChunkSize)
	for i := 0; i < tsChunkPacket; i++ {
		assert.Equal(t, byte(tsSyncByte), chunk[i*tsPacketSize])
	}
}

func TestTSLoopBuffer_ContinuityCounterIncrements(t *testing.T) {
	raw := buildTestClip(14)
	buf, err := NewTSLoopBuffer(raw)
	require.NoError(t, err)

	chunk := buf.NextChunk()
	prev := chunk[3] & 0x0f
	for i := 1; i < tsChunkPacket; i++ {
		cc := chunk[i*tsPacketSize+3] & 0x0f
		assert.Equal(t, (prev+1)%16, cc)
		prev = cc
	}
}

func TestTSLoopBuffer_LoopsSeamlessly(t *testing.T) {
	raw := buildTestClip(7)
	buf, err := NewTSLoopBuffer(raw)
	require.NoError(t, err)

	first := buf.NextChunk()
	second := buf.NextChunk()
	assert.NotEqual(t, first, second, "continuity counters should keep counting across the loop boundary")
}

func TestTSLoopBuffer_CloneResetsCursor(t *testing.T) {
	raw := buildTestClip(14)
	buf, err := NewTSLoopBuffer(raw)
	require.NoError(t, err)

	_ = buf.NextChunk()
	clone := buf.Clone()

	fresh, err := NewTSLoopBuffer(raw)
	require.NoError(t, err)

	assert.Equal(t, fresh.NextChunk(), clone.NextChunk())
}

func TestNewTSLoopBuffer_NoSyncByte(t *testing.T) {
	_, err := NewTSLoopBuffer(make([]byte, 100))
	require.Error(t, err)
}

func TestPCRRoundTrip(t *testing.T) {
	b := make([]byte, 6)
	writePCR(b, 123456789)
	assert.Equal(t, uint64(123456789), readPCR(b))
}

func TestTimestampRoundTrip(t *testing.T) {
	b := make([]byte, 5)
	writeTimestamp(b, 0x20, 4500000)
	assert.Equal(t, uint64(4500000), readTimestamp(b))
}
