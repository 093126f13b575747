package playback

import "sync"

// FakeDecoder is a deterministic Decoder test double, grounded on the
// pkg/ffmpeg/ffmock's mockProcess (a configurable, blockable stand-in for a
// real subprocess-backed dependency). Gate, when non-nil, is received
// from before every Decode call completes, letting a test pace decode
// work to exercise concurrent Seek coalescing.
type FakeDecoder struct {
	mu          sync.Mutex
	configured  bool
	flushCount  int
	decodeCount int
	lastConfig  []byte
	FailConfig  bool
	FailDecode  bool
	Gate        chan struct{}
}

func NewFakeDecoder() *FakeDecoder { return &FakeDecoder{} }

func (d *FakeDecoder) Configure(codecDescription []byte) error {
	if d.FailConfig {
		return errFakeDecoder
	}
	d.mu.Lock()
	d.configured = true
	d.lastConfig = codecDescription
	d.mu.Unlock()
	return nil
}

func (d *FakeDecoder) Decode(data []byte, timestampMicros int64, seekVersion uint64) (Frame, error) {
	if d.Gate != nil {
		<-d.Gate
	}
	if d.FailDecode {
		return Frame{}, errFakeDecoder
	}
	d.mu.Lock()
	d.decodeCount++
	d.mu.Unlock()
	return Frame{SeekVersion: seekVersion, TimestampMicros: timestampMicros, Data: data}, nil
}

func (d *FakeDecoder) Flush() error {
	d.mu.Lock()
	d.flushCount++
	d.mu.Unlock()
	return nil
}

func (d *FakeDecoder) Close() {}

func (d *FakeDecoder) DecodeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.decodeCount
}

func (d *FakeDecoder) FlushCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushCount
}

var errFakeDecoder = fakeDecoderError("fake decoder error")

type fakeDecoderError string

func (e fakeDecoderError) Error() string { return string(e) }
