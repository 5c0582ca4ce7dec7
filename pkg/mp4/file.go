package mp4

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"slices"

	. "m7s.live/isobmff/pkg/box"
	"m7s.live/isobmff/pkg/util"
)

type (
	// MediaData locates the payload of one mdat box.
	MediaData struct {
		Offset uint64 `json:"offset"`
		Size   uint64 `json:"size"`
		ToEOF  bool   `json:"toEOF,omitempty"`
	}

	// File is the parsed view of one ISO-BMFF stream. Sample payloads are
	// never read; they are addressed by offset and size.
	File struct {
		Ftyp      *FileTypeBox
		Moov      *MovieBox
		Emsgs     []*EventMessageBox
		Fragments []*Fragment
		// MdatOffset and MdatSize describe the payload of the first mdat.
		MdatOffset  uint64
		MdatSize    uint64
		MdatToEOF   bool
		Mdats       []MediaData
		Tracks      map[uint32]*Track
		TrackErrors map[uint32]error
		Logger      *slog.Logger

		reader  *util.OffsetReader
		buf     util.Buffer
		pending uint64 // unread payload of the last mdat
		size    int64  // source length, -1 when unknown
		done    bool
	}
)

func NewFile(r io.Reader) *File {
	return &File{
		Tracks:      make(map[uint32]*Track),
		TrackErrors: make(map[uint32]error),
		Logger:      slog.Default(),
		reader:      util.NewOffsetReader(context.Background(), r),
		size:        sourceSize(r),
	}
}

// Parse parses a fully buffered file, including every fragment.
func Parse(data []byte) (*File, error) {
	file := NewFile(nil)
	return file, file.Parse(data)
}

func sourceSize(r io.Reader) int64 {
	switch s := r.(type) {
	case interface{ Len() int }:
		return int64(s.Len())
	case interface{ Stat() (fs.FileInfo, error) }:
		if fi, err := s.Stat(); err == nil && fi.Mode().IsRegular() {
			return fi.Size()
		}
	}
	return -1
}

// top-level boxes whose payload is buffered and decoded
func folded(t BoxType) bool {
	return t == TypeFTYP || t == TypeMOOV || t == TypeMOOF || t == TypeEMSG
}

// ReadHeader reads boxes until the first mdat header has been seen. The
// mdat payload is left unread. Reaching the end of the stream at a box
// boundary is not an error.
func (file *File) ReadHeader(ctx context.Context) error {
	return file.read(ctx, true)
}

// ReadFragments continues past the mdat ReadHeader stopped at and folds
// every later moof and emsg until the end of the stream.
func (file *File) ReadFragments(ctx context.Context) error {
	return file.read(ctx, false)
}

func (file *File) read(ctx context.Context, stopAtMdat bool) (err error) {
	r := file.reader.WithContext(ctx)
	if file.pending > 0 {
		if err = r.Skip(file.pending); err != nil {
			return
		}
		file.pending = 0
	}
	for !file.done {
		var h BasicBox
		h.Offset = r.Offset
		if err = h.Decode(r); err != nil {
			if errors.Is(err, io.EOF) {
				file.done = true
				return nil
			}
			return
		}
		switch {
		case h.Type == TypeMDAT:
			var size uint64
			if h.ToEnd() {
				file.done = true
				if payload := h.Offset + uint64(h.HeaderSize); file.size >= 0 && uint64(file.size) > payload {
					size = uint64(file.size) - payload
				}
			} else {
				size = h.PayloadSize()
				file.pending = size
			}
			file.addMdat(&h, size, h.ToEnd())
			if stopAtMdat || file.done {
				return nil
			}
			if err = r.Skip(file.pending); err != nil {
				return
			}
			file.pending = 0
		case folded(h.Type):
			if h.ToEnd() {
				file.done = true
				err = util.ReadAll(r, &file.buf)
			} else {
				err = util.ReadFull(r, &file.buf, h.PayloadSize())
			}
			if err != nil {
				return &Error{Op: "read", Type: h.Type, Err: err}
			}
			h.Size = uint64(h.HeaderSize) + uint64(file.buf.Len())
			if err = file.fold(&h, file.buf); err != nil {
				return
			}
		default:
			file.Logger.Debug("skip box", "type", h.Type, "offset", h.Offset, "size", h.Size)
			if h.ToEnd() {
				file.done = true
				return nil
			}
			if err = r.Skip(h.PayloadSize()); err != nil {
				return
			}
		}
	}
	return nil
}

// Parse folds every top-level box in data. data must start at a box boundary
// and the offsets recorded are relative to its first byte.
func (file *File) Parse(data []byte) error {
	total := uint64(len(data))
	for offset := uint64(0); offset < total; {
		var h BasicBox
		n, err := h.Parse(data[offset:])
		if err != nil {
			return err
		}
		h.Offset = offset
		size, toEnd := h.Size, h.ToEnd()
		if toEnd {
			size = total - offset
		}
		if size > total-offset {
			return &Error{Op: "parse", Type: h.Type, Err: fmt.Errorf("%w: size %d with %d left", io.ErrUnexpectedEOF, size, total-offset)}
		}
		h.Size = size
		payload := data[offset+uint64(n) : offset+size]
		switch {
		case h.Type == TypeMDAT:
			file.addMdat(&h, uint64(len(payload)), toEnd)
		case folded(h.Type):
			if err = file.fold(&h, payload); err != nil {
				return err
			}
		default:
			file.Logger.Debug("skip box", "type", h.Type, "offset", h.Offset, "size", h.Size)
		}
		offset += size
	}
	file.done = true
	return nil
}

func (file *File) addMdat(h *BasicBox, size uint64, toEnd bool) {
	md := MediaData{Offset: h.Offset + uint64(h.HeaderSize), Size: size, ToEOF: toEnd}
	if len(file.Mdats) == 0 {
		file.MdatOffset, file.MdatSize, file.MdatToEOF = md.Offset, md.Size, md.ToEOF
	}
	file.Mdats = append(file.Mdats, md)
}

func (file *File) fold(h *BasicBox, payload []byte) error {
	b, err := Decode(h, payload)
	if err != nil {
		return err
	}
	switch b := b.(type) {
	case *FileTypeBox:
		file.Ftyp = b
	case *MovieBox:
		return file.addMoov(b)
	case *MovieFragmentBox:
		return file.addMoof(b, h.Offset)
	case *EventMessageBox:
		file.Emsgs = append(file.Emsgs, b)
	}
	return nil
}

// addMoov builds a track per trak. A track whose tables cannot be resolved
// is left out and its error recorded; its siblings are unaffected.
func (file *File) addMoov(moov *MovieBox) error {
	if file.Moov != nil {
		return &Error{Op: "fold", Type: TypeMOOV, Err: fmt.Errorf("%w: duplicate moov", ErrInvalidData)}
	}
	file.Moov = moov
	for _, trak := range moov.Traks {
		id := trak.Tkhd.TrackID
		_, built := file.Tracks[id]
		_, failed := file.TrackErrors[id]
		if built || failed {
			return &Error{Op: "fold", Type: TypeTRAK, TrackID: id, Err: fmt.Errorf("%w: duplicate track id", ErrInvalidData)}
		}
		track, skipped, err := NewTrack(trak, moov.Trex(id))
		if err != nil {
			file.Logger.Warn("track dropped", "track", id, "error", err)
			file.TrackErrors[id] = err
			continue
		}
		if skipped > 0 {
			file.Logger.Warn("samples skipped", "track", id, "skipped", skipped)
		}
		file.Tracks[id] = track
		file.Logger.Debug("track", "track", id, "handler", track.Handler, "samples", len(track.Samples))
	}
	return nil
}

// TrackIDs returns the ids of the resolved tracks in ascending order.
func (file *File) TrackIDs() []uint32 {
	ids := make([]uint32, 0, len(file.Tracks))
	for id := range file.Tracks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (file *File) Track(trackID uint32) (*Track, error) {
	track, ok := file.Tracks[trackID]
	if !ok {
		if err, failed := file.TrackErrors[trackID]; failed {
			return nil, err
		}
		return nil, &Error{Op: "lookup", TrackID: trackID, Err: ErrTrakNotFound}
	}
	return track, nil
}

func (file *File) SampleCount(trackID uint32) (int, error) {
	track, err := file.Track(trackID)
	if err != nil {
		return 0, err
	}
	return track.SampleCount(), nil
}

// Sample returns the resolved sample with 1-based sampleID.
func (file *File) Sample(trackID, sampleID uint32) (*Sample, error) {
	track, err := file.Track(trackID)
	if err != nil {
		return nil, err
	}
	return track.Sample(sampleID)
}

// ReadSampleData reads the payload of a sample from ra, which must expose
// the same bytes the file was parsed from.
func (file *File) ReadSampleData(ra io.ReaderAt, trackID, sampleID uint32) ([]byte, error) {
	s, err := file.Sample(trackID, sampleID)
	if err != nil {
		return nil, err
	}
	data := make([]byte, s.Size)
	n, err := ra.ReadAt(data, int64(s.Offset))
	if n == len(data) {
		return data, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, &Error{Op: "read", TrackID: trackID, Sample: uint64(sampleID), Err: err}
}

// Offset is the number of bytes consumed from the source so far.
func (file *File) Offset() uint64 {
	return file.reader.Offset
}
