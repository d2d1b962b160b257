/*
Copyright (c) 2019-2021 Andreas T Jonsson

This software is provided 'as-is', without any express or implied
warranty. In no event will the authors be held liable for any damages
arising from the use of this software.

Permission is granted to anyone to use this software for any purpose,
including commercial applications, and to alter it and redistribute it
freely, subject to the following restrictions:

1. The origin of this software must not be misrepresented; you must not
   claim that you wrote the original software. If you use this software
   in a product, an acknowledgment in the product documentation would be
   appreciated but is not required.
2. Altered source versions must be plainly marked as such, and must not be
   misrepresented as being the original software.
3. This notice may not be removed or altered from any source distribution.
*/

package capture

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
)

// LinkType tags exported captures. Events use the first user reserved DLT.
const LinkType = layers.LinkType(147)

var ErrLinkType = errors.New("not a bus capture")

// Encoder writes events as a pcap stream, one 4 byte record per event.
// Timestamps are synthetic and only preserve order.
type Encoder struct {
	writer *pcapgo.Writer
	start  time.Time
	n      int
}

func NewEncoder(w io.Writer, start time.Time) (*Encoder, error) {
	enc := &Encoder{writer: pcapgo.NewWriter(w), start: start}
	if err := enc.writer.WriteFileHeader(4, LinkType); err != nil {
		return nil, errors.Wrap(err, "could not write pcap header")
	}
	return enc, nil
}

func (enc *Encoder) Encode(e Event) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(e))

	ci := gopacket.CaptureInfo{
		Timestamp:     enc.start.Add(time.Duration(enc.n) * time.Microsecond),
		CaptureLength: len(buf),
		Length:        len(buf),
	}
	enc.n++
	return enc.writer.WritePacket(ci, buf[:])
}

// WritePcap exports events to w.
func WritePcap(w io.Writer, events []Event) error {
	enc, err := NewEncoder(w, time.Now())
	if err != nil {
		return err
	}
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return errors.Wrap(err, "could not write event")
		}
	}
	return nil
}

// ReadPcap imports events previously exported with WritePcap.
func ReadPcap(r io.Reader) ([]Event, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "could not read pcap header")
	}
	if pr.LinkType() != LinkType {
		return nil, errors.Wrapf(ErrLinkType, "link type %v", pr.LinkType())
	}

	var events []Event
	for {
		data, _, err := pr.ReadPacketData()
		if err == io.EOF {
			return events, nil
		} else if err != nil {
			return events, errors.Wrap(err, "could not read event")
		}
		if len(data) < 4 {
			return events, errors.New("short event record")
		}
		events = append(events, Event(binary.LittleEndian.Uint32(data)))
	}
}
