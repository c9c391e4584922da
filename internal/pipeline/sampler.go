package pipeline

import (
	"context"
	"time"

	"github.com/framefish/subsift/internal/video"
)

// fpsFallback is assumed when neither stream metadata nor timestamps give a
// playback rate.
const fpsFallback = 25.0

// runSampler is stage 3: it down-samples to at most one DetectionSample per
// 1/N second of estimated playback time while feeding every frame into the
// rolling history. The sampling beat is carried by frame arrival: when no
// frame exists at the instant a beat boundary passes, the next frame is
// sampled instead of the beat being dropped. No timers.
func runSampler(ctx context.Context, in <-chan frameItem, out chan<- sampleItem, metaFPS float64, lim Limits) {
	defer close(out)

	history := video.NewFrameHistory(lim.HistoryDepth)
	defer history.Close()

	interval := time.Duration(float64(time.Second) / lim.SamplesPerSecond)
	var nextBeat time.Duration
	var framesSeen uint64

	// FPS estimate: stream metadata wins; otherwise a running mean of PTS
	// deltas; otherwise the fallback.
	fps := metaFPS
	var lastPTS time.Duration
	var havePTS bool
	var ptsDeltaSum time.Duration
	var ptsDeltaN int

	frameTime := func(f *video.Frame) time.Duration {
		if pts, ok := f.PTS(); ok {
			return pts
		}
		rate := fps
		if rate <= 0 {
			rate = fpsFallback
		}
		return time.Duration(float64(f.Index()) / rate * float64(time.Second))
	}

	for {
		item, ok := recv(ctx, in)
		if !ok {
			return
		}
		if item.err != nil {
			send(ctx, out, sampleItem{err: item.err})
			return
		}
		frame := item.frame
		framesSeen++

		if pts, ok := frame.PTS(); ok {
			if havePTS && pts > lastPTS {
				ptsDeltaSum += pts - lastPTS
				ptsDeltaN++
				if metaFPS <= 0 && ptsDeltaN >= 2 {
					fps = float64(ptsDeltaN) * float64(time.Second) / float64(ptsDeltaSum)
				}
			}
			lastPTS = pts
			havePTS = true
		}

		t := frameTime(frame)
		history.Append(frame)

		if t < nextBeat {
			frame.Release()
			continue
		}
		for nextBeat <= t {
			nextBeat += interval
		}

		effFPS := fps
		if effFPS <= 0 {
			effFPS = fpsFallback
		}
		sample := &DetectionSample{
			Frame:      frame, // the stage's reference moves to the sample
			FrameIndex: frame.Index(),
			Time:       t,
			FPS:        effFPS,
			FramesSeen: framesSeen,
			History:    history.Snapshot(),
		}
		video.Tracef("sampler: frame %d sampled at %v (next beat %v, fps %.2f)", frame.Index(), t, nextBeat, effFPS)
		if !send(ctx, out, sampleItem{sample: sample}) {
			sample.History.Release()
			frame.Release()
			return
		}
	}
}
