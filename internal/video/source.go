package video

import "context"

// StreamInfo carries stream-level metadata from the decoder backend. Zero
// values mean unknown.
type StreamInfo struct {
	FPS         float64
	TotalFrames uint64
}

// Stream is an ordered sequence of decoded frames. Next returns io.EOF when
// the stream ends normally and a *DecodeError on decoder failure. Returned
// frames are owned by the caller (one reference).
type Stream interface {
	Next(ctx context.Context) (*Frame, error)
	Close() error
}

// Provider opens a decode session. Implementations wrap platform decoders;
// they are external collaborators behind this seam.
type Provider interface {
	Open(ctx context.Context) (Stream, StreamInfo, error)
}
