package export

import "sync"

// Encoder abstracts the hardware/software encoder the Export Pipeline
// drives, mirroring playback.Decoder's shape on the encode side. A real
// implementation might shell out to an ffmpeg subprocess, or
// call a platform encoder; this package only needs one WriteFrame call per
// composited output frame.
type Encoder interface {
	// Configure (re)initializes the encoder for the output geometry and
	// bitrate config.
	Configure(cfg Config) error

	// WriteFrame feeds one composited RGBA frame at timestampMicros
	// (relative to the export range's start).
	WriteFrame(rgba []byte, timestampMicros int64) error

	// WriteAudio feeds one volume-mixed PCM chunk at timestampMicros.
	WriteAudio(pcm []byte, timestampMicros int64) error

	// Finalize closes the container and returns the encoded bytes.
	Finalize() ([]byte, error)

	Close()
}

// Config is the export output configuration.
type Config struct {
	Width, Height int
	FrameRate     float64
	VideoBitrate  int // bits/s
	AudioBitrate  int // bits/s
	IncludeAudio  bool
}

// FakeEncoder is a deterministic Encoder test double, grounded on
// pkg/ffmpeg/ffmock.mockProcess the same way playback.FakeDecoder is: a
// configurable, gateable stand-in for a real subprocess/hardware encoder.
type FakeEncoder struct {
	mu sync.Mutex

	FailConfigure bool
	FailWrite     bool

	configured  bool
	cfg         Config
	videoFrames []FrameRecord
	audioChunks []FrameRecord
	finalized   bool
}

// FrameRecord captures one call to WriteFrame/WriteAudio for assertions.
type FrameRecord struct {
	TimestampMicros int64
	Size            int
}

func NewFakeEncoder() *FakeEncoder { return &FakeEncoder{} }

func (e *FakeEncoder) Configure(cfg Config) error {
	if e.FailConfigure {
		return errFakeEncoder
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configured = true
	e.cfg = cfg
	return nil
}

func (e *FakeEncoder) WriteFrame(rgba []byte, timestampMicros int64) error {
	if e.FailWrite {
		return errFakeEncoder
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.videoFrames = append(e.videoFrames, FrameRecord{TimestampMicros: timestampMicros, Size: len(rgba)})
	return nil
}

func (e *FakeEncoder) WriteAudio(pcm []byte, timestampMicros int64) error {
	if e.FailWrite {
		return errFakeEncoder
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.audioChunks = append(e.audioChunks, FrameRecord{TimestampMicros: timestampMicros, Size: len(pcm)})
	return nil
}

func (e *FakeEncoder) Finalize() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finalized = true
	return []byte("fake-mp4-blob"), nil
}

func (e *FakeEncoder) Close() {}

func (e *FakeEncoder) VideoFrames() []FrameRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]FrameRecord, len(e.videoFrames))
	copy(out, e.videoFrames)
	return out
}

func (e *FakeEncoder) Finalized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finalized
}

var errFakeEncoder = fakeEncoderError("fake encoder error")

type fakeEncoderError string

func (e fakeEncoderError) Error() string { return string(e) }
