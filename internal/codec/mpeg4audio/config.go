package mpeg4audio

import (
	"errors"
	"fmt"

	"videoengine/internal/codec/bits"
)

// Config decode/encode errors.
var (
	ErrConfigDecodeTypeUnsupported     = errors.New("unsupported object type")
	ErrConfigDecodeSampleRateInvalid   = errors.New("invalid sample rate index")
	ErrConfigDecodeChannelUnsupported  = errors.New("channel configuration not supported")
	ErrConfigDecodeChannelInvalid      = errors.New("invalid channel configuration")
	ErrConfigDecodeUnsupported         = errors.New("unsupported extension")
	ErrConfigDecodeIndexInvalid        = errors.New("invalid extension sample rate index")
	ErrConfigEncodeChannelCountInvalid = errors.New("invalid channel count")
)

// Config is a decoded MPEG-4 Audio AudioSpecificConfig.
type Config struct {
	Type         ObjectType
	SampleRate   int
	ChannelCount int

	FrameLengthFlag    bool
	DependsOnCoreCoder bool
	CoreCoderDelay     uint16

	ExtensionSampleRate int
}

// Unmarshal decodes a Config from the bytes stored in an esds box's
// AudioSpecificConfig descriptor.
func (c *Config) Unmarshal(buf []byte) error {
	// ref: ISO/IEC 14496-3

	pos := 0

	tmp, err := bits.ReadBits(buf, &pos, 5)
	if err != nil {
		return err
	}
	c.Type = ObjectType(tmp)

	switch c.Type {
	case ObjectTypeAACLC, ObjectTypeSBR:
	default:
		return fmt.Errorf("%w: %d", ErrConfigDecodeTypeUnsupported, c.Type)
	}

	sampleRateIndex, err := bits.ReadBits(buf, &pos, 4)
	if err != nil {
		return err
	}

	switch {
	case sampleRateIndex <= 12:
		c.SampleRate = sampleRates[sampleRateIndex]
	case sampleRateIndex == 0x0F:
		tmp, err := bits.ReadBits(buf, &pos, 24)
		if err != nil {
			return err
		}
		c.SampleRate = int(tmp)
	default:
		return fmt.Errorf("%w (%d)", ErrConfigDecodeSampleRateInvalid, sampleRateIndex)
	}

	channelConfig, err := bits.ReadBits(buf, &pos, 4)
	if err != nil {
		return err
	}

	switch {
	case channelConfig == 0:
		return ErrConfigDecodeChannelUnsupported
	case channelConfig >= 1 && channelConfig <= 6:
		c.ChannelCount = int(channelConfig)
	case channelConfig == 7:
		c.ChannelCount = 8
	default:
		return fmt.Errorf("%w (%d)", ErrConfigDecodeChannelInvalid, channelConfig)
	}

	if c.Type == ObjectTypeSBR {
		return c.unmarshalSBR(buf, &pos)
	}
	return c.unmarshalAACLC(buf, &pos)
}

func (c *Config) unmarshalSBR(buf []byte, pos *int) error {
	idx, err := bits.ReadBits(buf, pos, 4)
	if err != nil {
		return err
	}

	switch {
	case idx <= 12:
		c.ExtensionSampleRate = sampleRates[idx]
	case idx == 0x0F:
		tmp, err := bits.ReadBits(buf, pos, 24)
		if err != nil {
			return err
		}
		c.ExtensionSampleRate = int(tmp)
	default:
		return fmt.Errorf("%w (%d)", ErrConfigDecodeIndexInvalid, idx)
	}
	return nil
}

func (c *Config) unmarshalAACLC(buf []byte, pos *int) error {
	var err error
	c.FrameLengthFlag, err = bits.ReadFlag(buf, pos)
	if err != nil {
		return err
	}

	c.DependsOnCoreCoder, err = bits.ReadFlag(buf, pos)
	if err != nil {
		return err
	}

	if c.DependsOnCoreCoder {
		tmp, err := bits.ReadBits(buf, pos, 14)
		if err != nil {
			return err
		}
		c.CoreCoderDelay = uint16(tmp)
	}

	extensionFlag, err := bits.ReadFlag(buf, pos)
	if err != nil {
		return err
	}
	if extensionFlag {
		return ErrConfigDecodeUnsupported
	}
	return nil
}

func (c Config) marshalSize() int {
	n := 5 + 4 + 3

	if _, ok := reverseSampleRates[c.SampleRate]; !ok {
		n += 28
	} else {
		n += 4
	}

	if c.Type == ObjectTypeSBR {
		if _, ok := reverseSampleRates[c.ExtensionSampleRate]; !ok {
			n += 28
		} else {
			n += 4
		}
	} else if c.DependsOnCoreCoder {
		n += 14
	}

	ret := n / 8
	if n%8 != 0 {
		ret++
	}
	return ret
}

// Marshal encodes a Config into AudioSpecificConfig bytes.
func (c Config) Marshal() ([]byte, error) {
	buf := make([]byte, c.marshalSize())
	pos := 0

	bits.WriteBits(buf, &pos, uint64(c.Type), 5)

	if idx, ok := reverseSampleRates[c.SampleRate]; ok {
		bits.WriteBits(buf, &pos, uint64(idx), 4)
	} else {
		bits.WriteBits(buf, &pos, 15, 4)
		bits.WriteBits(buf, &pos, uint64(c.SampleRate), 24)
	}

	var channelConfig int
	switch {
	case c.ChannelCount >= 1 && c.ChannelCount <= 6:
		channelConfig = c.ChannelCount
	case c.ChannelCount == 8:
		channelConfig = 7
	default:
		return nil, fmt.Errorf("%w (%d)", ErrConfigEncodeChannelCountInvalid, c.ChannelCount)
	}
	bits.WriteBits(buf, &pos, uint64(channelConfig), 4)

	if c.Type == ObjectTypeSBR {
		if idx, ok := reverseSampleRates[c.ExtensionSampleRate]; ok {
			bits.WriteBits(buf, &pos, uint64(idx), 4)
		} else {
			bits.WriteBits(buf, &pos, 0x0F, 4)
			bits.WriteBits(buf, &pos, uint64(c.ExtensionSampleRate), 24)
		}
		return buf, nil
	}

	if c.FrameLengthFlag {
		bits.WriteBits(buf, &pos, 1, 1)
	} else {
		bits.WriteBits(buf, &pos, 0, 1)
	}
	if c.DependsOnCoreCoder {
		bits.WriteBits(buf, &pos, 1, 1)
		bits.WriteBits(buf, &pos, uint64(c.CoreCoderDelay), 14)
	} else {
		bits.WriteBits(buf, &pos, 0, 1)
	}

	return buf, nil
}
