package box

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"m7s.live/isobmff/pkg/util"
)

const (
	BasicBoxLen    = 8
	LargeBoxLen    = 16
	FullBoxLen     = 12
	fullPrefixLen  = 4
	userTypeLen    = 16
	sizeToEndOfBox = 0
	sizeLargeBox   = 1
)

// BoxType is a four character code.
type BoxType [4]byte

func f(s string) BoxType {
	return BoxType([]byte(s))
}

func (t BoxType) String() string {
	for _, c := range t {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", binary.BigEndian.Uint32(t[:]))
		}
	}
	return string(t[:])
}

func (t BoxType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

var (
	TypeFTYP = f("ftyp")
	TypeMOOV = f("moov")
	TypeMVHD = f("mvhd")
	TypeTRAK = f("trak")
	TypeTKHD = f("tkhd")
	TypeEDTS = f("edts")
	TypeELST = f("elst")
	TypeMDIA = f("mdia")
	TypeMDHD = f("mdhd")
	TypeHDLR = f("hdlr")
	TypeMINF = f("minf")
	TypeVMHD = f("vmhd")
	TypeSMHD = f("smhd")
	TypeSTBL = f("stbl")
	TypeSTSD = f("stsd")
	TypeSTTS = f("stts")
	TypeCTTS = f("ctts")
	TypeSTSS = f("stss")
	TypeSTSC = f("stsc")
	TypeSTSZ = f("stsz")
	TypeSTCO = f("stco")
	TypeCO64 = f("co64")
	TypeMVEX = f("mvex")
	TypeMEHD = f("mehd")
	TypeTREX = f("trex")
	TypeMOOF = f("moof")
	TypeMFHD = f("mfhd")
	TypeTRAF = f("traf")
	TypeTFHD = f("tfhd")
	TypeTFDT = f("tfdt")
	TypeTRUN = f("trun")
	TypeEMSG = f("emsg")
	TypeMDAT = f("mdat")
	TypeFREE = f("free")
	TypeSKIP = f("skip")
	TypeUUID = f("uuid")
	TypeDINF = f("dinf")
	TypeUDTA = f("udta")

	TypeAVC1 = f("avc1")
	TypeAVC3 = f("avc3")
	TypeHVC1 = f("hvc1")
	TypeHEV1 = f("hev1")
	TypeVP09 = f("vp09")
	TypeAV01 = f("av01")
	TypeMP4V = f("mp4v")
	TypeENCV = f("encv")
	TypeMP4A = f("mp4a")
	TypeENCA = f("enca")
	TypeAC3  = f("ac-3")
	TypeEC3  = f("ec-3")
	TypeOPUS = f("Opus")
	TypeFLAC = f("fLaC")
	TypeULAW = f("ulaw")
	TypeALAW = f("alaw")
	TypeAVCC = f("avcC")
	TypeHVCC = f("hvcC")
	TypeESDS = f("esds")

	TypeVIDE = f("vide")
	TypeSOUN = f("soun")
)

// IBox is implemented by every decoded box. Decode receives exactly the
// payload that follows the header. Encode writes header and payload and
// returns the byte count, which always equals Size.
type IBox interface {
	Type() BoxType
	Size() uint64
	Decode(payload []byte) error
	Encode(w io.Writer) (int, error)
	Summary() string
}

//	aligned(8) class Box (unsigned int(32) boxtype, optional unsigned int(8)[16] extended_type) {
//	    unsigned int(32) size;
//	    unsigned int(32) type = boxtype;
//	    if (size==1) {
//	       unsigned int(64) largesize;
//	    } else if (size==0) {
//	       // box extends to end of file
//	    }
//	    if (boxtype=='uuid') {
//	       unsigned int(8)[16] usertype = extended_type;
//	    }
//	}
type BasicBox struct {
	Offset     uint64   `json:"offset"`
	Size       uint64   `json:"size"`
	Type       BoxType  `json:"type"`
	UserType   [16]byte `json:"-"`
	HeaderSize int      `json:"headerSize"`
}

// Decode reads a header from r. It returns io.EOF when r is already at its
// end and io.ErrUnexpectedEOF when the header itself is cut short.
func (box *BasicBox) Decode(r io.Reader) (err error) {
	var buf [LargeBoxLen]byte
	if _, err = io.ReadFull(r, buf[:BasicBoxLen]); err != nil {
		return
	}
	box.HeaderSize = BasicBoxLen
	box.Size = uint64(binary.BigEndian.Uint32(buf[:4]))
	copy(box.Type[:], buf[4:8])
	if box.Size == sizeLargeBox {
		if _, err = io.ReadFull(r, buf[8:LargeBoxLen]); err != nil {
			return truncated(err)
		}
		box.Size = binary.BigEndian.Uint64(buf[8:])
		box.HeaderSize = LargeBoxLen
	}
	if box.Type == TypeUUID {
		if _, err = io.ReadFull(r, box.UserType[:]); err != nil {
			return truncated(err)
		}
		box.HeaderSize += userTypeLen
	}
	return box.validate()
}

// Parse decodes a header from the front of buf and returns its length.
func (box *BasicBox) Parse(buf []byte) (n int, err error) {
	if len(buf) < BasicBoxLen {
		return 0, io.ErrUnexpectedEOF
	}
	box.HeaderSize = BasicBoxLen
	box.Size = uint64(binary.BigEndian.Uint32(buf))
	copy(box.Type[:], buf[4:8])
	if box.Size == sizeLargeBox {
		if len(buf) < LargeBoxLen {
			return 0, io.ErrUnexpectedEOF
		}
		box.Size = binary.BigEndian.Uint64(buf[8:])
		box.HeaderSize = LargeBoxLen
	}
	if box.Type == TypeUUID {
		if len(buf) < box.HeaderSize+userTypeLen {
			return 0, io.ErrUnexpectedEOF
		}
		copy(box.UserType[:], buf[box.HeaderSize:])
		box.HeaderSize += userTypeLen
	}
	return box.HeaderSize, box.validate()
}

func (box *BasicBox) validate() error {
	if box.Size != sizeToEndOfBox && box.Size < uint64(box.HeaderSize) {
		return &Error{Op: "header", Type: box.Type, Err: fmt.Errorf("%w: size %d shorter than header %d", ErrInvalidHeader, box.Size, box.HeaderSize)}
	}
	return nil
}

// ToEnd reports whether the box extends to the end of the stream.
func (box *BasicBox) ToEnd() bool {
	return box.Size == sizeToEndOfBox
}

// PayloadSize is the declared size minus the header. It is zero for a box
// that extends to the end of the stream; the caller has to size those.
func (box *BasicBox) PayloadSize() uint64 {
	if box.ToEnd() {
		return 0
	}
	return box.Size - uint64(box.HeaderSize)
}

func (box *BasicBox) String() string {
	return fmt.Sprintf("%s offset=%d size=%d", box.Type, box.Offset, box.Size)
}

func truncated(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// aligned(8) class FullBox(unsigned int(32) boxtype, unsigned int(8) v, bit(24) f) extends Box(boxtype) {
//     unsigned int(8) version = v;
//     bit(24) flags = f;
// }

type FullBox struct {
	Version uint8  `json:"version"`
	Flags   uint32 `json:"flags"`
}

func (box *FullBox) decodeFull(b *util.Buffer) error {
	if !b.CanReadN(fullPrefixLen) {
		return fmt.Errorf("%w: missing version and flags", ErrInvalidData)
	}
	box.Version, _ = b.ReadByte()
	box.Flags = b.ReadUint24()
	return nil
}

func (box FullBox) encodeFull(b *util.Buffer) {
	b.WriteByte(box.Version)
	b.WriteUint24(box.Flags)
}

// checkVersion rejects versions above max.
func (box FullBox) checkVersion(max uint8) error {
	if box.Version > max {
		return fmt.Errorf("%w: version %d", ErrUnsupportedVersion, box.Version)
	}
	return nil
}

// boxSize adds the header length a payload of n bytes needs.
func boxSize(n uint64) uint64 {
	if n+BasicBoxLen > math.MaxUint32 {
		return n + LargeBoxLen
	}
	return n + BasicBoxLen
}

func writeHeader(b *util.Buffer, t BoxType, size uint64) {
	if size > math.MaxUint32 {
		b.WriteUint32(sizeLargeBox)
		b.Write(t[:])
		b.WriteUint64(size)
		return
	}
	b.WriteUint32(uint32(size))
	b.Write(t[:])
}

// payloadWriter is the part every concrete box shares with encodeBox.
type payloadWriter interface {
	IBox
	writePayload(b *util.Buffer)
}

func encodeBox(w io.Writer, box payloadWriter) (int, error) {
	size := box.Size()
	b := make(util.Buffer, 0, min(size, 1<<16))
	writeHeader(&b, box.Type(), size)
	box.writePayload(&b)
	return w.Write(b)
}

// need fails with ErrInvalidData when fewer than n bytes remain.
func need(b *util.Buffer, n int, what string) error {
	if !b.CanReadN(n) {
		return fmt.Errorf("%w: %s needs %d bytes, %d left", ErrInvalidData, what, n, b.Len())
	}
	return nil
}

// readCount reads a 32-bit entry count and checks that count entries of
// entrySize bytes fit in what is left.
func readCount(b *util.Buffer, entrySize int) (uint32, error) {
	if err := need(b, 4, "entry_count"); err != nil {
		return 0, err
	}
	count := b.ReadUint32()
	if uint64(count) > uint64(b.Len())/uint64(entrySize) {
		return 0, fmt.Errorf("%w: entry_count %d exceeds %d remaining bytes", ErrInvalidData, count, b.Len())
	}
	return count, nil
}

// Fixed32 is a 16.16 fixed point number.
type Fixed32 uint32

func (v Fixed32) Float() float64 {
	return float64(v) / (1 << 16)
}

// Fixed16 is an 8.8 fixed point number.
type Fixed16 uint16

func (v Fixed16) Float() float64 {
	return float64(v) / (1 << 8)
}

var UnityMatrix = [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}
