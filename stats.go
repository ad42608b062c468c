package bridge

import (
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap/zapcore"
)

// Stats describes the traffic of a single conversion.
type Stats struct {
	// PullCalls and PushCalls count adapter invocations, including the final zero-length pull.
	PullCalls int
	PushCalls int

	// BytesPulled is the size of the UTF-8 input handed to the engine.
	BytesPulled int64
	// BytesPushed is the size of the UTF-8 output received from the engine.
	BytesPushed int64

	RunesRead    int64
	RunesWritten int64

	// PulledChecksum and PushedChecksum are XXH64 digests of the pulled and pushed byte streams.
	PulledChecksum uint64
	PushedChecksum uint64

	Duration time.Duration
}

func (s *Stats) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("PullCalls", s.PullCalls)
	enc.AddInt("PushCalls", s.PushCalls)
	enc.AddInt64("BytesPulled", s.BytesPulled)
	enc.AddInt64("BytesPushed", s.BytesPushed)
	enc.AddInt64("RunesRead", s.RunesRead)
	enc.AddInt64("RunesWritten", s.RunesWritten)
	enc.AddUint64("PulledChecksum", s.PulledChecksum)
	enc.AddUint64("PushedChecksum", s.PushedChecksum)
	enc.AddDuration("Duration", s.Duration)
	return nil
}

// statsRecorder accumulates Stats while the adapters run.
type statsRecorder struct {
	Stats

	pulled *xxhash.Digest
	pushed *xxhash.Digest
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{
		pulled: xxhash.New(),
		pushed: xxhash.New(),
	}
}

func (r *statsRecorder) recordPull(p []byte, runes int) {
	r.PullCalls++
	r.BytesPulled += int64(len(p))
	r.RunesRead += int64(runes)
	_, _ = r.pulled.Write(p)
}

func (r *statsRecorder) recordPush(p []byte) {
	r.PushCalls++
	r.BytesPushed += int64(len(p))
	_, _ = r.pushed.Write(p)
}

func (r *statsRecorder) finish(d time.Duration) Stats {
	r.PulledChecksum = r.pulled.Sum64()
	r.PushedChecksum = r.pushed.Sum64()
	r.Duration = d
	return r.Stats
}
