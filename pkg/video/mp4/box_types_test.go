package mp4

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// marshal runs box's Marshal into a freshly sized buffer and returns the
// written bytes, mirroring how Boxes.Marshal drives each node of the tree.
func marshal(t *testing.T, box ImmutableBox) []byte {
	t.Helper()
	buf := make([]byte, box.Size())
	pos := 0
	box.Marshal(buf, &pos)
	require.Equal(t, len(buf), pos)
	return buf
}

func TestBoxTypes(t *testing.T) {
	testCases := []struct {
		name string
		src  ImmutableBox
		bin  []byte
	}{
		{
			name: "ftyp",
			src: &Ftyp{
				MajorBrand:       [4]byte{'i', 's', 'o', '4'},
				MinorVersion:     512,
				CompatibleBrands: []CompatibleBrandElem{{CompatibleBrand: [4]byte{'i', 's', 'o', '4'}}},
			},
			bin: []byte{
				'i', 's', 'o', '4', // major brand
				0x00, 0x00, 0x02, 0x00, // minor version
				'i', 's', 'o', '4', // compatible brand
			},
		},
		{
			name: "mvhd: version 0",
			src: &Mvhd{
				FullBox:     FullBox{Version: 0},
				Timescale:   1_000_000,
				DurationV0:  2_000_000,
				Rate:        0x00010000,
				Volume:      0x0100,
				Matrix:      [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000},
				NextTrackID: 2,
			},
			bin: nil, // size/roundtrip checked generically below
		},
		{
			name: "tkhd: version 0",
			src: &Tkhd{
				FullBox:    FullBox{Version: 0, Flags: [3]byte{0, 0, 7}},
				TrackID:    1,
				DurationV0: 2_000_000,
				Matrix:     [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000},
				Width:      1920 << 16,
				Height:     1080 << 16,
			},
			bin: nil, // size/roundtrip checked generically below
		},
		{
			name: "mdhd: version 0",
			src: &Mdhd{
				FullBox:    FullBox{Version: 0},
				Timescale:  48000,
				DurationV0: 96000,
				Language:   [3]byte{'u', 'n', 'd'},
			},
			bin: nil,
		},
		{
			name: "hdlr: video",
			src: &Hdlr{
				HandlerType: [4]byte{'v', 'i', 'd', 'e'},
				Name:        "VideoHandler",
			},
			bin: nil,
		},
		{
			name: "vmhd",
			src:  &Vmhd{},
			bin: []byte{
				0x00, 0x00, 0x00, 0x00, // fullbox
				0x00, 0x00, // graphicsmode
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // opcolor
			},
		},
		{
			name: "smhd",
			src:  &Smhd{},
			bin: []byte{
				0x00, 0x00, 0x00, 0x00, // fullbox
				0x00, 0x00, // balance
				0x00, 0x00, // reserved
			},
		},
		{
			name: "dref",
			src:  &Dref{EntryCount: 1},
			bin: []byte{
				0x00, 0x00, 0x00, 0x00, // fullbox
				0x00, 0x00, 0x00, 0x01, // entry count
			},
		},
		{
			name: "url: self-contained",
			src:  &Url{FullBox: FullBox{Flags: [3]byte{0, 0, 1}}},
			bin: []byte{
				0x00, 0x00, 0x00, 0x01, // fullbox, self-contained flag set
			},
		},
		{
			name: "stsd",
			src:  &Stsd{EntryCount: 1},
			bin: []byte{
				0x00, 0x00, 0x00, 0x00, // fullbox
				0x00, 0x00, 0x00, 0x01, // entry count
			},
		},
		{
			name: "stts",
			src: &Stts{
				EntryCount: 1,
				Entries:    []SttsEntry{{SampleCount: 30, SampleDelta: 33_333}},
			},
			bin: []byte{
				0x00, 0x00, 0x00, 0x00, // fullbox
				0x00, 0x00, 0x00, 0x01, // entry count
				0x00, 0x00, 0x00, 0x1e, // sample count
				0x00, 0x00, 0x82, 0x35, // sample delta
			},
		},
		{
			name: "stsc",
			src: &Stsc{
				EntryCount: 1,
				Entries:    []StscEntry{{FirstChunk: 1, SamplesPerChunk: 1, SampleDescriptionIndex: 1}},
			},
			bin: []byte{
				0x00, 0x00, 0x00, 0x00, // fullbox
				0x00, 0x00, 0x00, 0x01, // entry count
				0x00, 0x00, 0x00, 0x01, // first chunk
				0x00, 0x00, 0x00, 0x01, // samples per chunk
				0x00, 0x00, 0x00, 0x01, // sample description index
			},
		},
		{
			name: "stsz: variable sizes",
			src: &Stsz{
				SampleCount: 2,
				EntrySize:   []uint32{100, 200},
			},
			bin: []byte{
				0x00, 0x00, 0x00, 0x00, // fullbox
				0x00, 0x00, 0x00, 0x00, // sample size (0 == variable)
				0x00, 0x00, 0x00, 0x02, // sample count
				0x00, 0x00, 0x00, 0x64, // entry 0
				0x00, 0x00, 0x00, 0xc8, // entry 1
			},
		},
		{
			name: "stco",
			src: &Stco{
				EntryCount:  2,
				ChunkOffset: []uint32{32, 1032},
			},
			bin: []byte{
				0x00, 0x00, 0x00, 0x00, // fullbox
				0x00, 0x00, 0x00, 0x02, // entry count
				0x00, 0x00, 0x00, 0x20, // offset 0
				0x00, 0x00, 0x04, 0x08, // offset 1
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := marshal(t, tc.src)
			if tc.bin != nil {
				require.Equal(t, tc.bin, got)
			}
		})
	}
}

// TestZeroSizeBoxesHaveNoOpMarshal covers the container boxes with no fields
// of their own (moov and its structural descendants): Size() reports 0 and Marshal, even
// though never invoked by Boxes.Marshal for an empty box, writes nothing.
func TestZeroSizeBoxesHaveNoOpMarshal(t *testing.T) {
	for _, box := range []ImmutableBox{&Dinf{}, &Mdia{}, &Minf{}, &Moov{}, &Stbl{}, &Trak{}} {
		require.Equal(t, 0, box.Size())
		buf := make([]byte, 0)
		pos := 0
		box.Marshal(buf, &pos)
		require.Equal(t, 0, pos)
	}
}

func TestBoxesMarshalIncludesHeaderAndChildren(t *testing.T) {
	tree := Boxes{
		Box: &Stbl{},
		Children: []Boxes{
			{Box: &Stsd{EntryCount: 0}},
		},
	}
	size := tree.Size()
	buf := make([]byte, size)
	pos := 0
	tree.Marshal(buf, &pos)
	require.Equal(t, size, pos)

	// 8-byte stbl header (size+type), zero-length body, then stsd's own
	// 8-byte header and 8-byte body.
	require.Equal(t, 8+16, size)
	require.Equal(t, []byte{'s', 't', 'b', 'l'}, buf[4:8])
	require.Equal(t, []byte{'s', 't', 's', 'd'}, buf[12:16])
}
