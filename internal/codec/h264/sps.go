package h264

import (
	"errors"

	"videoengine/internal/codec/bits"
)

func readGolombSigned(buf []byte, pos *int) (int32, error) {
	v, err := bits.ReadGolombUnsigned(buf, pos)
	if err != nil {
		return 0, err
	}
	vi := int32(v)
	if (vi & 0x01) != 0 {
		return (vi + 1) / 2, nil
	}
	return -vi / 2, nil
}

// SpsHrd is a hypothetical reference decoder, part of the VUI.
type SpsHrd struct {
	CpbCntMinus1                       uint32
	BitRateScale                       uint8
	CpbSizeScale                       uint8
	BitRateValueMinus1                 []uint32
	CpbSizeValueMinus1                 []uint32
	CbrFlag                            []bool
	InitialCpbRemovalDelayLengthMinus1 uint8
	CpbRemovalDelayLengthMinus1        uint8
	DpbOutputDelayLengthMinus1         uint8
	TimeOffsetLength                   uint8
}

func (h *SpsHrd) unmarshal(buf []byte, pos *int) error { //nolint:funlen
	var err error
	h.CpbCntMinus1, err = bits.ReadGolombUnsigned(buf, pos)
	if err != nil {
		return err
	}

	tmp, err := bits.ReadBits(buf, pos, 4)
	if err != nil {
		return err
	}
	h.BitRateScale = uint8(tmp)

	tmp, err = bits.ReadBits(buf, pos, 4)
	if err != nil {
		return err
	}
	h.CpbSizeScale = uint8(tmp)

	for i := uint32(0); i <= h.CpbCntMinus1; i++ {
		v, err := bits.ReadGolombUnsigned(buf, pos)
		if err != nil {
			return err
		}
		h.BitRateValueMinus1 = append(h.BitRateValueMinus1, v)

		v, err = bits.ReadGolombUnsigned(buf, pos)
		if err != nil {
			return err
		}
		h.CpbSizeValueMinus1 = append(h.CpbSizeValueMinus1, v)

		vb, err := bits.ReadFlag(buf, pos)
		if err != nil {
			return err
		}
		h.CbrFlag = append(h.CbrFlag, vb)
	}

	tmp, err = bits.ReadBits(buf, pos, 5)
	if err != nil {
		return err
	}
	h.InitialCpbRemovalDelayLengthMinus1 = uint8(tmp)

	tmp, err = bits.ReadBits(buf, pos, 5)
	if err != nil {
		return err
	}
	h.CpbRemovalDelayLengthMinus1 = uint8(tmp)

	tmp, err = bits.ReadBits(buf, pos, 5)
	if err != nil {
		return err
	}
	h.DpbOutputDelayLengthMinus1 = uint8(tmp)

	tmp, err = bits.ReadBits(buf, pos, 5)
	if err != nil {
		return err
	}
	h.TimeOffsetLength = uint8(tmp)

	return nil
}

// SpsVui is the video usability information part of a SPS. Most engines
// never read these fields directly; they must still be parsed to walk past
// them and reach nothing (VUI is the last field in the SPS), so a caller
// that mutates the bitstream can round-trip what it didn't understand.
type SpsVui struct {
	AspectRatioInfoPresentFlag bool
	AspectRatioIdc             uint8
	SarWidth                   uint16
	SarHeight                  uint16
	OverscanInfoPresentFlag    bool
	OverscanAppropriateFlag    bool
	VideoSignalTypePresentFlag bool

	VideoFormat                  uint8
	VideoFullRangeFlag           bool
	ColourDescriptionPresentFlag bool

	ColourPrimaries         uint8
	TransferCharacteristics uint8
	MatrixCoefficients      uint8

	ChromaLocInfoPresentFlag bool

	ChromaSampleLocTypeTopField    uint32
	ChromaSampleLocTypeBottomField uint32

	TimingInfoPresentFlag bool

	NumUnitsInTick     uint32
	TimeScale          uint32
	FixedFrameRateFlag bool

	NalHRD *SpsHrd
	VclHRD *SpsHrd

	LowDelayHrdFlag          bool
	PicStructPresentFlag     bool
	BitstreamRestrictionFlag bool

	MotionVectorsOverPicBoundariesFlag bool
	MaxBytesPerPicDenom                uint32
	MaxBitsPerMbDenom                  uint32
	Log2MaxMvLengthHorizontal          uint32
	Log2MaxMvLengthVertical            uint32
	MaxNumReorderFrames                uint32
	MaxDecFrameBuffering               uint32
}

func (v *SpsVui) unmarshal(buf []byte, pos *int) error { //nolint:funlen,gocognit
	var err error
	v.AspectRatioInfoPresentFlag, err = bits.ReadFlag(buf, pos)
	if err != nil {
		return err
	}
	if v.AspectRatioInfoPresentFlag {
		if err := v.unmarshalAspectRatioInfo(buf, pos); err != nil {
			return err
		}
	}

	v.OverscanInfoPresentFlag, err = bits.ReadFlag(buf, pos)
	if err != nil {
		return err
	}
	if v.OverscanInfoPresentFlag {
		v.OverscanAppropriateFlag, err = bits.ReadFlag(buf, pos)
		if err != nil {
			return err
		}
	}

	v.VideoSignalTypePresentFlag, err = bits.ReadFlag(buf, pos)
	if err != nil {
		return err
	}
	if v.VideoSignalTypePresentFlag {
		if err := v.unmarshalVideoSignalType(buf, pos); err != nil {
			return err
		}
	}

	v.ChromaLocInfoPresentFlag, err = bits.ReadFlag(buf, pos)
	if err != nil {
		return err
	}
	if v.ChromaLocInfoPresentFlag {
		v.ChromaSampleLocTypeTopField, err = bits.ReadGolombUnsigned(buf, pos)
		if err != nil {
			return err
		}
		v.ChromaSampleLocTypeBottomField, err = bits.ReadGolombUnsigned(buf, pos)
		if err != nil {
			return err
		}
	}

	v.TimingInfoPresentFlag, err = bits.ReadFlag(buf, pos)
	if err != nil {
		return err
	}
	if v.TimingInfoPresentFlag {
		if err := v.unmarshalTimingInfo(buf, pos); err != nil {
			return err
		}
	}

	nalHrdPresent, err := bits.ReadFlag(buf, pos)
	if err != nil {
		return err
	}
	if nalHrdPresent {
		v.NalHRD = &SpsHrd{}
		if err := v.NalHRD.unmarshal(buf, pos); err != nil {
			return err
		}
	}

	vclHrdPresent, err := bits.ReadFlag(buf, pos)
	if err != nil {
		return err
	}
	if vclHrdPresent {
		v.VclHRD = &SpsHrd{}
		if err := v.VclHRD.unmarshal(buf, pos); err != nil {
			return err
		}
	}

	if nalHrdPresent || vclHrdPresent {
		v.LowDelayHrdFlag, err = bits.ReadFlag(buf, pos)
		if err != nil {
			return err
		}
	}

	v.PicStructPresentFlag, err = bits.ReadFlag(buf, pos)
	if err != nil {
		return err
	}

	v.BitstreamRestrictionFlag, err = bits.ReadFlag(buf, pos)
	if err != nil {
		return err
	}
	if v.BitstreamRestrictionFlag {
		if err := v.unmarshalBitstreamRestriction(buf, pos); err != nil {
			return err
		}
	}

	return nil
}

func (v *SpsVui) unmarshalAspectRatioInfo(buf []byte, pos *int) error {
	tmp, err := bits.ReadBits(buf, pos, 8)
	if err != nil {
		return err
	}
	v.AspectRatioIdc = uint8(tmp)

	if v.AspectRatioIdc == 255 { // Extended_SAR
		tmp, err := bits.ReadBits(buf, pos, 16)
		if err != nil {
			return err
		}
		v.SarWidth = uint16(tmp)

		tmp, err = bits.ReadBits(buf, pos, 16)
		if err != nil {
			return err
		}
		v.SarHeight = uint16(tmp)
	}
	return nil
}

func (v *SpsVui) unmarshalVideoSignalType(buf []byte, pos *int) error {
	tmp, err := bits.ReadBits(buf, pos, 3)
	if err != nil {
		return err
	}
	v.VideoFormat = uint8(tmp)

	v.VideoFullRangeFlag, err = bits.ReadFlag(buf, pos)
	if err != nil {
		return err
	}

	v.ColourDescriptionPresentFlag, err = bits.ReadFlag(buf, pos)
	if err != nil {
		return err
	}
	if v.ColourDescriptionPresentFlag {
		tmp, err := bits.ReadBits(buf, pos, 8)
		if err != nil {
			return err
		}
		v.ColourPrimaries = uint8(tmp)

		tmp, err = bits.ReadBits(buf, pos, 8)
		if err != nil {
			return err
		}
		v.TransferCharacteristics = uint8(tmp)

		tmp, err = bits.ReadBits(buf, pos, 8)
		if err != nil {
			return err
		}
		v.MatrixCoefficients = uint8(tmp)
	}

	return nil
}

func (v *SpsVui) unmarshalTimingInfo(buf []byte, pos *int) error {
	tmp, err := bits.ReadBits(buf, pos, 32)
	if err != nil {
		return err
	}
	v.NumUnitsInTick = uint32(tmp)

	tmp, err = bits.ReadBits(buf, pos, 32)
	if err != nil {
		return err
	}
	v.TimeScale = uint32(tmp)

	v.FixedFrameRateFlag, err = bits.ReadFlag(buf, pos)
	return err
}

func (v *SpsVui) unmarshalBitstreamRestriction(buf []byte, pos *int) error {
	var err error
	v.MotionVectorsOverPicBoundariesFlag, err = bits.ReadFlag(buf, pos)
	if err != nil {
		return err
	}
	v.MaxBytesPerPicDenom, err = bits.ReadGolombUnsigned(buf, pos)
	if err != nil {
		return err
	}
	v.MaxBitsPerMbDenom, err = bits.ReadGolombUnsigned(buf, pos)
	if err != nil {
		return err
	}
	v.Log2MaxMvLengthHorizontal, err = bits.ReadGolombUnsigned(buf, pos)
	if err != nil {
		return err
	}
	v.Log2MaxMvLengthVertical, err = bits.ReadGolombUnsigned(buf, pos)
	if err != nil {
		return err
	}
	v.MaxNumReorderFrames, err = bits.ReadGolombUnsigned(buf, pos)
	if err != nil {
		return err
	}
	v.MaxDecFrameBuffering, err = bits.ReadGolombUnsigned(buf, pos)
	return err
}

// SpsFramecropping is the frame cropping part of a SPS.
type SpsFramecropping struct {
	LeftOffset   uint32
	RightOffset  uint32
	TopOffset    uint32
	BottomOffset uint32
}

func (c *SpsFramecropping) unmarshal(buf []byte, pos *int) error {
	var err error
	c.LeftOffset, err = bits.ReadGolombUnsigned(buf, pos)
	if err != nil {
		return err
	}
	c.RightOffset, err = bits.ReadGolombUnsigned(buf, pos)
	if err != nil {
		return err
	}
	c.TopOffset, err = bits.ReadGolombUnsigned(buf, pos)
	if err != nil {
		return err
	}
	c.BottomOffset, err = bits.ReadGolombUnsigned(buf, pos)
	return err
}

// SPS is an H.264 sequence parameter set, decoded as far as the fields the
// engine's geometry detection needs (width, height, frame rate), while
// still walking the full syntax so malformed trailing fields are caught
// rather than silently truncating a well-formed one.
type SPS struct {
	ProfileIdc         uint8
	ConstraintSet0Flag bool
	ConstraintSet1Flag bool
	ConstraintSet2Flag bool
	ConstraintSet3Flag bool
	ConstraintSet4Flag bool
	ConstraintSet5Flag bool
	LevelIdc           uint8
	ID                 uint32

	ChromeFormatIdc                 uint32
	SeparateColourPlaneFlag         bool
	BitDepthLumaMinus8              uint32
	BitDepthChromaMinus8            uint32
	QpprimeYZeroTransformBypassFlag bool

	Log2MaxFrameNumMinus4 uint32
	PicOrderCntType       uint32

	Log2MaxPicOrderCntLsbMinus4 uint32

	DeltaPicOrderAlwaysZeroFlag bool
	OffsetForNonRefPic          int32
	OffsetForTopToBottomField   int32
	OffsetForRefFrames          []int32

	MaxNumRefFrames                uint32
	GapsInFrameNumValueAllowedFlag bool
	PicWidthInMbsMinus1            uint32
	PicHeightInMbsMinus1           uint32
	FrameMbsOnlyFlag               bool

	MbAdaptiveFrameFieldFlag bool
	Direct8x8InferenceFlag   bool

	FrameCropping *SpsFramecropping
	VUI           *SpsVui
}

// SPS errors.
var (
	ErrSPSBufferTooShort    = errors.New("buffer too short")
	ErrSPSWrongForbiddenBit = errors.New("wrong forbidden bit")
	ErrSPSWrongNalRefIdc    = errors.New("wrong nal_ref_idc")
	ErrSPSWrongType         = errors.New("not a SPS")
)

// Unmarshal decodes a SPS from a single NAL unit, starting at its one-byte
// NAL header (no AVCC length prefix or Annex-B start code). Emulation
// prevention bytes may still be present; Unmarshal strips them itself.
func (s *SPS) Unmarshal(nalu []byte) error { //nolint:funlen
	// ref: ISO/IEC 14496-10:2020

	buf := AntiCompetitionRemove(nalu)

	if len(buf) < 4 {
		return ErrSPSBufferTooShort
	}

	forbidden := buf[0] >> 7
	nalRefIdc := (buf[0] >> 5) & 0x03
	typ := NALUType(buf[0] & 0x1F)

	if forbidden != 0 {
		return ErrSPSWrongForbiddenBit
	}
	if nalRefIdc != 3 {
		return ErrSPSWrongNalRefIdc
	}
	if typ != NALUTypeSPS {
		return ErrSPSWrongType
	}

	s.ProfileIdc = buf[1]
	s.ConstraintSet0Flag = (buf[2] >> 7) == 1
	s.ConstraintSet1Flag = (buf[2]>>6)&0x01 == 1
	s.ConstraintSet2Flag = (buf[2]>>5)&0x01 == 1
	s.ConstraintSet3Flag = (buf[2]>>4)&0x01 == 1
	s.ConstraintSet4Flag = (buf[2]>>3)&0x01 == 1
	s.ConstraintSet5Flag = (buf[2]>>2)&0x01 == 1
	s.LevelIdc = buf[3]

	rest := buf[4:]
	pos := 0

	var err error
	s.ID, err = bits.ReadGolombUnsigned(rest, &pos)
	if err != nil {
		return err
	}

	if err := s.unmarshalProfileIdc(rest, &pos); err != nil {
		return err
	}

	s.Log2MaxFrameNumMinus4, err = bits.ReadGolombUnsigned(rest, &pos)
	if err != nil {
		return err
	}

	s.PicOrderCntType, err = bits.ReadGolombUnsigned(rest, &pos)
	if err != nil {
		return err
	}

	if err := s.unmarshalPicOrderCnt(rest, &pos); err != nil {
		return err
	}

	s.MaxNumRefFrames, err = bits.ReadGolombUnsigned(rest, &pos)
	if err != nil {
		return err
	}

	s.GapsInFrameNumValueAllowedFlag, err = bits.ReadFlag(rest, &pos)
	if err != nil {
		return err
	}

	s.PicWidthInMbsMinus1, err = bits.ReadGolombUnsigned(rest, &pos)
	if err != nil {
		return err
	}

	s.PicHeightInMbsMinus1, err = bits.ReadGolombUnsigned(rest, &pos)
	if err != nil {
		return err
	}

	s.FrameMbsOnlyFlag, err = bits.ReadFlag(rest, &pos)
	if err != nil {
		return err
	}

	if !s.FrameMbsOnlyFlag {
		s.MbAdaptiveFrameFieldFlag, err = bits.ReadFlag(rest, &pos)
		if err != nil {
			return err
		}
	}

	s.Direct8x8InferenceFlag, err = bits.ReadFlag(rest, &pos)
	if err != nil {
		return err
	}

	frameCroppingFlag, err := bits.ReadFlag(rest, &pos)
	if err != nil {
		return err
	}
	if frameCroppingFlag {
		s.FrameCropping = &SpsFramecropping{}
		if err := s.FrameCropping.unmarshal(rest, &pos); err != nil {
			return err
		}
	} else {
		s.FrameCropping = nil
	}

	vuiPresent, err := bits.ReadFlag(rest, &pos)
	if err != nil {
		return err
	}
	if vuiPresent {
		s.VUI = &SpsVui{}
		if err := s.VUI.unmarshal(rest, &pos); err != nil {
			return err
		}
	} else {
		s.VUI = nil
	}

	return nil
}

func (s *SPS) unmarshalProfileIdc(buf []byte, pos *int) error {
	var err error
	switch s.ProfileIdc {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		s.ChromeFormatIdc, err = bits.ReadGolombUnsigned(buf, pos)
		if err != nil {
			return err
		}
		if s.ChromeFormatIdc == 3 {
			s.SeparateColourPlaneFlag, err = bits.ReadFlag(buf, pos)
			if err != nil {
				return err
			}
		}

		s.BitDepthLumaMinus8, err = bits.ReadGolombUnsigned(buf, pos)
		if err != nil {
			return err
		}
		s.BitDepthChromaMinus8, err = bits.ReadGolombUnsigned(buf, pos)
		if err != nil {
			return err
		}
		s.QpprimeYZeroTransformBypassFlag, err = bits.ReadFlag(buf, pos)
		if err != nil {
			return err
		}

		seqScalingMatrixPresentFlag, err := bits.ReadFlag(buf, pos)
		if err != nil {
			return err
		}
		if seqScalingMatrixPresentFlag {
			return s.skipSeqScalingMatrix(buf, pos)
		}
	}
	return nil
}

// skipSeqScalingMatrix walks past the scaling-list matrix without keeping
// it: nothing downstream of SPS parsing (width/height/frame rate) needs it.
func (s *SPS) skipSeqScalingMatrix(buf []byte, pos *int) error {
	lim := 8
	if s.ChromeFormatIdc == 3 {
		lim = 12
	}

	for i := 0; i < lim; i++ {
		present, err := bits.ReadFlag(buf, pos)
		if err != nil {
			return err
		}
		if !present {
			continue
		}
		size := 16
		if i >= 6 {
			size = 64
		}
		if err := skipScalingList(buf, pos, size); err != nil {
			return err
		}
	}
	return nil
}

func skipScalingList(buf []byte, pos *int, size int) error {
	lastScale := int32(8)
	nextScale := int32(8)
	for j := 0; j < size; j++ {
		if nextScale != 0 {
			deltaScale, err := readGolombSigned(buf, pos)
			if err != nil {
				return err
			}
			nextScale = (lastScale + deltaScale + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return nil
}

func (s *SPS) unmarshalPicOrderCnt(buf []byte, pos *int) error {
	var err error
	switch s.PicOrderCntType {
	case 0:
		s.Log2MaxPicOrderCntLsbMinus4, err = bits.ReadGolombUnsigned(buf, pos)
		return err

	case 1:
		s.DeltaPicOrderAlwaysZeroFlag, err = bits.ReadFlag(buf, pos)
		if err != nil {
			return err
		}
		s.OffsetForNonRefPic, err = readGolombSigned(buf, pos)
		if err != nil {
			return err
		}
		s.OffsetForTopToBottomField, err = readGolombSigned(buf, pos)
		if err != nil {
			return err
		}
		numRefFramesInPicOrderCntCycle, err := bits.ReadGolombUnsigned(buf, pos)
		if err != nil {
			return err
		}
		s.OffsetForRefFrames = nil
		for i := uint32(0); i < numRefFramesInPicOrderCntCycle; i++ {
			v, err := readGolombSigned(buf, pos)
			if err != nil {
				return err
			}
			s.OffsetForRefFrames = append(s.OffsetForRefFrames, v)
		}
	}
	return nil
}

// Width returns the video width in pixels.
func (s SPS) Width() int {
	if s.FrameCropping != nil {
		return int(((s.PicWidthInMbsMinus1+1)*16 - (s.FrameCropping.LeftOffset+s.FrameCropping.RightOffset)*2))
	}
	return int((s.PicWidthInMbsMinus1 + 1) * 16)
}

// Height returns the video height in pixels.
func (s SPS) Height() int {
	f := uint32(0)
	if s.FrameMbsOnlyFlag {
		f = 1
	}
	if s.FrameCropping != nil {
		return int((2-f)*(s.PicHeightInMbsMinus1+1)*16 - (s.FrameCropping.TopOffset+s.FrameCropping.BottomOffset)*2)
	}
	return int((2 - f) * (s.PicHeightInMbsMinus1 + 1) * 16)
}

// FPS returns the frame rate in frames per second, or 0 if the VUI does not
// specify timing information.
func (s SPS) FPS() float64 {
	if s.VUI == nil || !s.VUI.TimingInfoPresentFlag || s.VUI.NumUnitsInTick == 0 {
		return 0
	}
	return float64(s.VUI.TimeScale) / (2 * float64(s.VUI.NumUnitsInTick))
}
