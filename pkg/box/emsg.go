package box

import (
	"bytes"
	"fmt"
	"io"

	"m7s.live/isobmff/pkg/util"
)

// aligned(8) class DASHEventMessageBox extends FullBox(‘emsg’, version, flags = 0) {
//     if (version==0) {
//         string scheme_id_uri;
//         string value;
//         unsigned int(32) timescale;
//         unsigned int(32) presentation_time_delta;
//         unsigned int(32) event_duration;
//         unsigned int(32) id;
//     } else if (version==1) {
//         unsigned int(32) timescale;
//         unsigned int(64) presentation_time;
//         unsigned int(32) event_duration;
//         unsigned int(32) id;
//         string scheme_id_uri;
//         string value;
//     }
//     unsigned int(8) message_data[];
// }

type EventMessageBox struct {
	FullBox
	SchemeIDURI           string `json:"schemeIdUri"`
	Value                 string `json:"value"`
	Timescale             uint32 `json:"timescale"`
	PresentationTimeDelta uint32 `json:"presentationTimeDelta,omitempty"`
	PresentationTime      uint64 `json:"presentationTime,omitempty"`
	EventDuration         uint32 `json:"eventDuration"`
	ID                    uint32 `json:"id"`
	MessageData           []byte `json:"messageData,omitempty"`
}

func (emsg *EventMessageBox) Type() BoxType { return TypeEMSG }

func (emsg *EventMessageBox) Size() uint64 {
	n := uint64(fullPrefixLen + len(emsg.SchemeIDURI) + 1 + len(emsg.Value) + 1 + len(emsg.MessageData))
	if emsg.Version == 1 {
		n += 20
	} else {
		n += 16
	}
	return boxSize(n)
}

func (emsg *EventMessageBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = emsg.decodeFull(&b); err != nil {
		return
	}
	if err = emsg.checkVersion(1); err != nil {
		return
	}
	if emsg.Version == 0 {
		if emsg.SchemeIDURI, err = readCString(&b); err != nil {
			return
		}
		if emsg.Value, err = readCString(&b); err != nil {
			return
		}
		if err = need(&b, 16, "emsg"); err != nil {
			return
		}
		emsg.Timescale = b.ReadUint32()
		emsg.PresentationTimeDelta = b.ReadUint32()
		emsg.EventDuration = b.ReadUint32()
		emsg.ID = b.ReadUint32()
	} else {
		if err = need(&b, 20, "emsg"); err != nil {
			return
		}
		emsg.Timescale = b.ReadUint32()
		emsg.PresentationTime = b.ReadUint64()
		emsg.EventDuration = b.ReadUint32()
		emsg.ID = b.ReadUint32()
		if emsg.SchemeIDURI, err = readCString(&b); err != nil {
			return
		}
		if emsg.Value, err = readCString(&b); err != nil {
			return
		}
	}
	emsg.MessageData = nil
	if b.Len() > 0 {
		emsg.MessageData = bytes.Clone(b)
	}
	return
}

func (emsg *EventMessageBox) writePayload(b *util.Buffer) {
	emsg.encodeFull(b)
	if emsg.Version == 0 {
		writeCString(b, emsg.SchemeIDURI)
		writeCString(b, emsg.Value)
		b.WriteUint32(emsg.Timescale)
		b.WriteUint32(emsg.PresentationTimeDelta)
		b.WriteUint32(emsg.EventDuration)
		b.WriteUint32(emsg.ID)
	} else {
		b.WriteUint32(emsg.Timescale)
		b.WriteUint64(emsg.PresentationTime)
		b.WriteUint32(emsg.EventDuration)
		b.WriteUint32(emsg.ID)
		writeCString(b, emsg.SchemeIDURI)
		writeCString(b, emsg.Value)
	}
	b.Write(emsg.MessageData)
}

func (emsg *EventMessageBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, emsg)
}

func (emsg *EventMessageBox) Summary() string {
	return fmt.Sprintf("version=%d scheme_id_uri=%q value=%q timescale=%d presentation_time=%d presentation_time_delta=%d event_duration=%d id=%d message_data=%d",
		emsg.Version, emsg.SchemeIDURI, emsg.Value, emsg.Timescale, emsg.PresentationTime, emsg.PresentationTimeDelta, emsg.EventDuration, emsg.ID, len(emsg.MessageData))
}

func readCString(b *util.Buffer) (string, error) {
	i := bytes.IndexByte(*b, 0)
	if i < 0 {
		return "", fmt.Errorf("%w: unterminated string", ErrInvalidData)
	}
	s := string(b.ReadN(i))
	b.Skip(1)
	return s, nil
}

func writeCString(b *util.Buffer, s string) {
	b.Write([]byte(s))
	b.WriteByte(0)
}
