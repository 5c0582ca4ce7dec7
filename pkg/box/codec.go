package box

import (
	"bytes"
	"fmt"

	"github.com/bluenviron/mediacommon/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/pkg/codecs/h265"
	"github.com/deepch/vdk/codec/aacparser"
	"github.com/yapingcat/gomedia/go-codec"
)

// CodecInfo is what a sample entry says about its stream. Codec follows the
// RFC 6381 codecs parameter where the configuration record allows it.
type CodecInfo struct {
	Codec      string `json:"codec"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Extradata  []byte `json:"-"`
}

func (info *CodecInfo) String() string {
	if info.SampleRate > 0 {
		return fmt.Sprintf("%s %dHz %dch", info.Codec, info.SampleRate, info.Channels)
	}
	return fmt.Sprintf("%s %dx%d", info.Codec, info.Width, info.Height)
}

// safely runs fn and swallows a panic; the bit readers panic on short input.
func safely(fn func()) {
	defer func() { recover() }()
	fn()
}

func videoCodecInfo(entry *VisualSampleEntry) *CodecInfo {
	info := &CodecInfo{
		Codec:  entry.Format.String(),
		Width:  int(entry.Width),
		Height: int(entry.Height),
	}
	switch entry.Format {
	case TypeAVC1, TypeAVC3:
		if avcC := entry.Child(TypeAVCC); avcC != nil && len(avcC.Data) >= 4 {
			info.Extradata = avcC.Data
			info.Codec = fmt.Sprintf("%s.%02x%02x%02x", entry.Format, avcC.Data[1], avcC.Data[2], avcC.Data[3])
			safely(func() {
				spss, _ := codec.CovertExtradata(avcC.Data)
				if len(spss) == 0 {
					return
				}
				var sps h264.SPS
				if sps.Unmarshal(spss[0]) == nil {
					info.Width, info.Height = sps.Width(), sps.Height()
				}
			})
		}
	case TypeHVC1, TypeHEV1:
		if hvcC := entry.Child(TypeHVCC); hvcC != nil && len(hvcC.Data) >= 23 {
			info.Extradata = hvcC.Data
			info.Codec = fmt.Sprintf("%s.%d", entry.Format, hvcC.Data[1]&0x1f)
			safely(func() {
				sps := hvccNALU(hvcC.Data, 33)
				if sps == nil {
					return
				}
				var s h265.SPS
				if s.Unmarshal(sps) == nil {
					info.Width, info.Height = s.Width(), s.Height()
				}
			})
		}
	}
	return info
}

// hvccNALU returns the first NAL unit of naluType in an
// HEVCDecoderConfigurationRecord.
func hvccNALU(record []byte, naluType uint8) []byte {
	bs := codec.NewBitStream(record[22:])
	numOfArrays := bs.Uint8(8)
	for i := uint8(0); i < numOfArrays; i++ {
		bs.SkipBits(2)
		t := bs.Uint8(6)
		numNalus := bs.Uint16(16)
		for j := uint16(0); j < numNalus; j++ {
			n := bs.Uint16(16)
			nalu := bs.GetBytes(int(n))
			if t == naluType {
				return bytes.Clone(nalu)
			}
		}
	}
	return nil
}

func audioCodecInfo(entry *AudioSampleEntry) *CodecInfo {
	info := &CodecInfo{
		Codec:      entry.Format.String(),
		SampleRate: int(entry.SampleRate >> 16),
		Channels:   int(entry.ChannelCount),
	}
	esds := entry.Child(TypeESDS)
	if entry.Format != TypeMP4A || esds == nil || len(esds.Data) <= fullPrefixLen {
		return info
	}
	var objectType uint8
	var dsi []byte
	safely(func() {
		objectType, dsi = decodeESDescriptor(esds.Data[fullPrefixLen:])
	})
	if objectType != 0 {
		info.Codec = fmt.Sprintf("mp4a.%x", objectType)
	}
	info.Extradata = dsi
	if objectType == 0x40 && len(dsi) > 0 {
		if cd, err := aacparser.NewCodecDataFromMPEG4AudioConfigBytes(dsi); err == nil {
			info.Codec = fmt.Sprintf("mp4a.40.%d", cd.Config.ObjectType)
			info.SampleRate = cd.Config.SampleRate
			info.Channels = cd.ChannelLayout().Count()
		}
	}
	return info
}

// abstract aligned(8) expandable(2^28-1) class BaseDescriptor : bit(8) tag=0 {
// }
//
//	int sizeOfInstance = 0;
//	bit(1) nextByte;
//	bit(7) sizeOfInstance;
//	while(nextByte) {
//		bit(1) nextByte;
//		bit(7) sizeByte;
//		sizeOfInstance = sizeOfInstance<<7 | sizeByte;
//	}
func decodeESDescriptor(esd []byte) (objectType uint8, dsi []byte) {
	for len(esd) > 0 {
		bs := codec.NewBitStream(esd)
		tag := bs.Uint8(8)
		var size uint32
		for next := uint8(1); next == 1; {
			next = bs.GetBit()
			size = size<<7 | bs.Uint32(7)
		}
		switch tag {
		case 0x03: // ES_Descriptor
			bs.SkipBits(16)
			streamDependenceFlag := bs.GetBit()
			urlFlag := bs.GetBit()
			ocrStreamFlag := bs.GetBit()
			bs.SkipBits(5)
			if streamDependenceFlag == 1 {
				bs.SkipBits(16)
			}
			if urlFlag == 1 {
				bs.SkipBits(int(bs.Uint8(8)) * 8)
			}
			if ocrStreamFlag == 1 {
				bs.SkipBits(16)
			}
		case 0x04: // DecoderConfigDescriptor
			objectType = bs.Uint8(8)
			bs.SkipBits(8 + 24 + 32 + 32)
		case 0x05: // DecoderSpecificInfo
			return objectType, bytes.Clone(bs.GetBytes(int(size)))
		default:
			bs.SkipBits(int(size) * 8)
		}
		esd = bs.RemainData()
	}
	return
}
