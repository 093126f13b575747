package export

import (
	"fmt"
	"sync"

	"videoengine/pkg/video/mp4"
)

// mp4Timescale is the movie timescale and the video track's media timescale
// in MP4Encoder's output, matching the engine's own time unit (the engine
// works in microseconds throughout), so video timestamps need no
// conversion. The audio track's media timescale is pcmSampleRate; its
// microsecond deltas and duration are rescaled to it.
const mp4Timescale = 1_000_000

// pcmSampleRate and pcmChannelCount describe the fixed PCM format
// WriteAudio is fed, matching MixVolumeScaled's 16-bit little-endian
// output. A real encoder would negotiate this; this one assumes it.
const (
	pcmSampleRate   = 48000
	pcmChannelCount = 2
)

// MP4Encoder is a real (if minimal) Encoder: it muxes composited RGBA
// frames and mixed PCM audio into a valid, seekable ISOBMFF container
// rather than transcoding to a real video codec. Frames are stored as
// uncompressed "raw " samples (the historical QuickTime fourcc for
// uncompressed RGB) and audio as "sowt" (signed little-endian PCM)
// samples, so no H.264/AAC encoder is required to produce a loadable MP4.
//
// Structurally this accumulates per-sample stts/stsc/stsz/stco entries
// while writing each sample into the growing mdat payload, then assembles
// the moov box tree once the sample count is known. The box types
// themselves (Ftyp, Moov, Trak, Stbl, ...) come from pkg/video/mp4.
type MP4Encoder struct {
	mu sync.Mutex

	cfg   Config
	ready bool

	mdat []byte

	videoStts  []mp4.SttsEntry
	videoStco  []uint32
	videoStsz  []uint32
	videoCount uint32
	lastVideoTS int64
	haveVideo  bool

	audioStts  []mp4.SttsEntry
	audioStco  []uint32
	audioStsz  []uint32
	audioCount uint32
	lastAudioTS int64
	haveAudio  bool
}

func NewMP4Encoder() *MP4Encoder { return &MP4Encoder{} }

func (e *MP4Encoder) Configure(cfg Config) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("mp4encoder: invalid frame size %dx%d", cfg.Width, cfg.Height)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.ready = true
	return nil
}

func (e *MP4Encoder) WriteFrame(rgba []byte, timestampMicros int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return fmt.Errorf("mp4encoder: WriteFrame before Configure")
	}
	want := e.cfg.Width * e.cfg.Height * 4
	if len(rgba) != want {
		return fmt.Errorf("mp4encoder: frame size %d does not match %dx%d RGBA", len(rgba), e.cfg.Width, e.cfg.Height)
	}

	e.appendSample(&e.videoStts, &e.videoStco, &e.videoStsz, &e.lastVideoTS, &e.haveVideo, rgba, timestampMicros)
	e.videoCount++
	return nil
}

func (e *MP4Encoder) WriteAudio(pcm []byte, timestampMicros int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return fmt.Errorf("mp4encoder: WriteAudio before Configure")
	}

	e.appendSample(&e.audioStts, &e.audioStco, &e.audioStsz, &e.lastAudioTS, &e.haveAudio, pcm, timestampMicros)
	e.audioCount++
	return nil
}

// appendSample writes data into the shared mdat payload and records its
// chunk offset, size, and inter-sample delta, one chunk per sample (the
// simplest valid stsc layout, traded for per-sample seek granularity
// rather than run-length-compressed chunks).
func (e *MP4Encoder) appendSample(
	stts *[]mp4.SttsEntry, stco *[]uint32, stsz *[]uint32,
	lastTS *int64, have *bool, data []byte, timestampMicros int64,
) {
	if *have {
		delta := uint32(timestampMicros - *lastTS)
		if n := len(*stts); n > 0 && (*stts)[n-1].SampleDelta == delta {
			(*stts)[n-1].SampleCount++
		} else {
			*stts = append(*stts, mp4.SttsEntry{SampleCount: 1, SampleDelta: delta})
		}
	}
	*lastTS = timestampMicros
	*have = true

	*stco = append(*stco, uint32(len(e.mdat)))
	*stsz = append(*stsz, uint32(len(data)))
	e.mdat = append(e.mdat, data...)
}

func (e *MP4Encoder) Finalize() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	moov := e.buildMoov()

	const ftypSize = 8 + 8 // box header + ftyp body (4+4 brand/version, no compat brands)
	mdatOffset := uint32(ftypSize + moov.Size() + 8)
	for i := range e.videoStco {
		e.videoStco[i] += mdatOffset
	}
	for i := range e.audioStco {
		e.audioStco[i] += mdatOffset
	}
	// stco offsets above were computed before the shift; rebuild moov now
	// that they're patched so Stco boxes marshal the corrected values.
	moov = e.buildMoov()

	total := ftypSize + moov.Size() + 8 + len(e.mdat)
	out := make([]byte, total)
	pos := 0

	ftyp := mp4.Boxes{Box: &mp4.Ftyp{MajorBrand: [4]byte{'i', 's', 'o', '4'}, MinorVersion: 512}}
	ftyp.Marshal(out, &pos)
	moov.Marshal(out, &pos)

	mp4.WriteUint32(out, &pos, uint32(8+len(e.mdat)))
	mp4.Write(out, &pos, []byte{'m', 'd', 'a', 't'})
	mp4.Write(out, &pos, e.mdat)

	return out, nil
}

func (e *MP4Encoder) buildMoov() mp4.Boxes {
	children := []mp4.Boxes{
		{Box: &mp4.Mvhd{
			Timescale:   mp4Timescale,
			Rate:        0x00010000,
			Volume:      0x0100,
			Matrix:      identityMatrix,
			NextTrackID: 3,
		}},
	}
	if e.videoCount > 0 {
		children = append(children, e.videoTrak())
	}
	if e.audioCount > 0 {
		children = append(children, e.audioTrak())
	}
	return mp4.Boxes{Box: &mp4.Moov{}, Children: children}
}

var identityMatrix = [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}

func (e *MP4Encoder) videoTrak() mp4.Boxes {
	stbl := mp4.Boxes{
		Box: &mp4.Stbl{},
		Children: []mp4.Boxes{
			{
				Box: &mp4.Stsd{EntryCount: 1},
				Children: []mp4.Boxes{{Box: &rawVideoSampleEntry{width: uint16(e.cfg.Width), height: uint16(e.cfg.Height)}}},
			},
			{Box: &mp4.Stts{EntryCount: uint32(len(e.videoStts)), Entries: e.videoStts}},
			{Box: &mp4.Stsc{EntryCount: 1, Entries: []mp4.StscEntry{{FirstChunk: 1, SamplesPerChunk: 1, SampleDescriptionIndex: 1}}}},
			{Box: &mp4.Stsz{SampleCount: uint32(len(e.videoStsz)), EntrySize: e.videoStsz}},
			{Box: &mp4.Stco{EntryCount: uint32(len(e.videoStco)), ChunkOffset: e.videoStco}},
		},
	}
	minf := mp4.Boxes{
		Box: &mp4.Minf{},
		Children: []mp4.Boxes{
			{Box: &mp4.Vmhd{}},
			{Box: &mp4.Dinf{}, Children: []mp4.Boxes{
				{Box: &mp4.Dref{EntryCount: 1}, Children: []mp4.Boxes{{Box: &mp4.Url{FullBox: mp4.FullBox{Flags: [3]byte{0, 0, 1}}}}}},
			}},
			stbl,
		},
	}
	return mp4.Boxes{
		Box: &mp4.Trak{},
		Children: []mp4.Boxes{
			{Box: &mp4.Tkhd{
				FullBox:    mp4.FullBox{Flags: [3]byte{0, 0, 3}},
				TrackID:    1,
				DurationV0: uint32(videoDurationTicks(e.videoStts)),
				Matrix:     identityMatrix,
				Width:      uint32(e.cfg.Width) << 16,
				Height:     uint32(e.cfg.Height) << 16,
			}},
			{
				Box: &mp4.Mdia{},
				Children: []mp4.Boxes{
					{Box: &mp4.Mdhd{Timescale: mp4Timescale, Language: [3]byte{'u', 'n', 'd'}, DurationV0: uint32(videoDurationTicks(e.videoStts))}},
					{Box: &mp4.Hdlr{HandlerType: [4]byte{'v', 'i', 'd', 'e'}, Name: "VideoHandler"}},
					minf,
				},
			},
		},
	}
}

func (e *MP4Encoder) audioTrak() mp4.Boxes {
	// Audio deltas are recorded in microseconds; rescale them to the
	// pcmSampleRate media timescale the audio mdhd declares.
	audioStts := make([]mp4.SttsEntry, len(e.audioStts))
	for i, en := range e.audioStts {
		audioStts[i] = mp4.SttsEntry{SampleCount: en.SampleCount, SampleDelta: uint32(int64(en.SampleDelta) * pcmSampleRate / mp4Timescale)}
	}
	stbl := mp4.Boxes{
		Box: &mp4.Stbl{},
		Children: []mp4.Boxes{
			{
				Box: &mp4.Stsd{EntryCount: 1},
				Children: []mp4.Boxes{{Box: &pcmAudioSampleEntry{}}},
			},
			{Box: &mp4.Stts{EntryCount: uint32(len(audioStts)), Entries: audioStts}},
			{Box: &mp4.Stsc{EntryCount: 1, Entries: []mp4.StscEntry{{FirstChunk: 1, SamplesPerChunk: 1, SampleDescriptionIndex: 1}}}},
			{Box: &mp4.Stsz{SampleCount: uint32(len(e.audioStsz)), EntrySize: e.audioStsz}},
			{Box: &mp4.Stco{EntryCount: uint32(len(e.audioStco)), ChunkOffset: e.audioStco}},
		},
	}
	minf := mp4.Boxes{
		Box: &mp4.Minf{},
		Children: []mp4.Boxes{
			{Box: &mp4.Smhd{}},
			{Box: &mp4.Dinf{}, Children: []mp4.Boxes{
				{Box: &mp4.Dref{EntryCount: 1}, Children: []mp4.Boxes{{Box: &mp4.Url{FullBox: mp4.FullBox{Flags: [3]byte{0, 0, 1}}}}}},
			}},
			stbl,
		},
	}
	return mp4.Boxes{
		Box: &mp4.Trak{},
		Children: []mp4.Boxes{
			{Box: &mp4.Tkhd{
				FullBox:        mp4.FullBox{Flags: [3]byte{0, 0, 3}},
				TrackID:        2,
				AlternateGroup: 1,
				Volume:         0x0100,
				DurationV0:     uint32(videoDurationTicks(e.audioStts)),
				Matrix:         identityMatrix,
			}},
			{
				Box: &mp4.Mdia{},
				Children: []mp4.Boxes{
					{Box: &mp4.Mdhd{Timescale: pcmSampleRate, Language: [3]byte{'u', 'n', 'd'}, DurationV0: uint32(audioDurationTicks(e.audioStts))}},
					{Box: &mp4.Hdlr{HandlerType: [4]byte{'s', 'o', 'u', 'n'}, Name: "SoundHandler"}},
					minf,
				},
			},
		},
	}
}

func videoDurationTicks(entries []mp4.SttsEntry) int64 {
	var total int64
	for _, e := range entries {
		total += int64(e.SampleCount) * int64(e.SampleDelta)
	}
	return total
}

func audioDurationTicks(entries []mp4.SttsEntry) int64 {
	var micros int64
	for _, e := range entries {
		micros += int64(e.SampleCount) * int64(e.SampleDelta)
	}
	return micros * pcmSampleRate / mp4Timescale
}

func (e *MP4Encoder) Close() {}

// rawVideoSampleEntry describes uncompressed top-down RGBA samples, using
// the historical QuickTime "raw " fourcc for uncompressed video.
type rawVideoSampleEntry struct {
	mp4.SampleEntry
	width, height uint16
}

func (*rawVideoSampleEntry) Type() mp4.BoxType { return [4]byte{'r', 'a', 'w', ' '} }

func (b *rawVideoSampleEntry) Size() int { return 8 + 70 }

func (b *rawVideoSampleEntry) Marshal(buf []byte, pos *int) {
	b.SampleEntry.Marshal(buf, pos)
	mp4.WriteUint16(buf, pos, 0)     // PreDefined
	mp4.WriteUint16(buf, pos, 0)     // Reserved
	for i := 0; i < 3; i++ {
		mp4.WriteUint32(buf, pos, 0) // PreDefined2
	}
	mp4.WriteUint16(buf, pos, b.width)
	mp4.WriteUint16(buf, pos, b.height)
	mp4.WriteUint32(buf, pos, 0x00480000) // Horizresolution, 72 dpi
	mp4.WriteUint32(buf, pos, 0x00480000) // Vertresolution, 72 dpi
	mp4.WriteUint32(buf, pos, 0)          // Reserved2
	mp4.WriteUint16(buf, pos, 1)          // FrameCount
	var name [32]byte
	mp4.Write(buf, pos, name[:])
	mp4.WriteUint16(buf, pos, 32) // Depth, 32bpp RGBA
	mp4.WriteUint16(buf, pos, 0xffff)
}

// pcmAudioSampleEntry describes signed 16-bit little-endian PCM ("sowt"),
// matching MixVolumeScaled's output format.
type pcmAudioSampleEntry struct {
	mp4.SampleEntry
}

func (*pcmAudioSampleEntry) Type() mp4.BoxType { return [4]byte{'s', 'o', 'w', 't'} }

func (b *pcmAudioSampleEntry) Size() int { return 8 + 20 }

func (b *pcmAudioSampleEntry) Marshal(buf []byte, pos *int) {
	b.SampleEntry.Marshal(buf, pos)
	mp4.WriteUint16(buf, pos, 0) // EntryVersion
	for i := 0; i < 3; i++ {
		mp4.WriteUint16(buf, pos, 0) // Reserved
	}
	mp4.WriteUint16(buf, pos, pcmChannelCount)
	mp4.WriteUint16(buf, pos, 16) // SampleSize bits
	mp4.WriteUint16(buf, pos, 0)  // PreDefined
	mp4.WriteUint16(buf, pos, 0)  // Reserved2
	mp4.WriteUint32(buf, pos, pcmSampleRate<<16)
}
