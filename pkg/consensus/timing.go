package consensus

import (
	"math/bits"
	"time"
)

// MaxRound bounds the rounds end times are derived for. No session gets
// near it, and it keeps the arithmetic inside uint64.
const MaxRound = 1 << 20

const (
	DefaultBlockProcessingTime = 3 * time.Second
	DefaultLatencyTime         = 1 * time.Second
)

// Timing holds the round timeouts every validator of a session must agree on.
type Timing struct {
	// BlockProcessingTime includes both processing and downloading a block.
	BlockProcessingTime time.Duration
	LatencyTime         time.Duration
}

var DefaultTiming = Timing{
	BlockProcessingTime: DefaultBlockProcessingTime,
	LatencyTime:         DefaultLatencyTime,
}

func (t Timing) BlockTime() time.Duration {
	return t.BlockProcessingTime + 3*t.LatencyTime
}

// RoundEndTime returns the end of round in unix seconds, with rounds
// growing linearly in length.
func (t Timing) RoundEndTime(start uint64, round uint32) uint64 {
	return start + (uint64(round)+1)*t.blockSeconds()
}

// EndTimeThrough advances start through rounds 0..=round. ok is false for
// rounds past MaxRound or when the end time overflows.
func (t Timing) EndTimeThrough(start uint64, round uint32) (end uint64, ok bool) {
	if round > MaxRound {
		return 0, false
	}

	// round r lasts (r+1) block times
	r := uint64(round)
	hi, span := bits.Mul64((r+1)*(r+2)/2, t.blockSeconds())
	end, carry := bits.Add64(start, span, 0)
	if hi != 0 || carry != 0 {
		return 0, false
	}
	return end, true
}

func (t Timing) blockSeconds() uint64 {
	return uint64(t.BlockTime() / time.Second)
}
