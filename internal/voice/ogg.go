package voice

import (
	"bufio"
	"io"
)

const oggHeaderSize = 23

type OggPage struct {
	IsHeader bool
	Packets  [][]byte
}

// OggReader splits an Ogg/Opus byte stream into opus packets.
type OggReader struct {
	r *bufio.Reader
}

func NewOggReader(r io.Reader) *OggReader {
	return &OggReader{r: bufio.NewReaderSize(r, 65536)}
}

// NextPage returns the next page, skipping garbage until a capture pattern.
func (o *OggReader) NextPage() (*OggPage, error) {
	if err := o.syncToPage(); err != nil {
		return nil, err
	}

	header := make([]byte, oggHeaderSize)
	if _, err := io.ReadFull(o.r, header); err != nil {
		return nil, unexpected(err)
	}

	headerType := header[1]
	pageSegments := header[22]

	segmentTable := make([]byte, pageSegments)
	if _, err := io.ReadFull(o.r, segmentTable); err != nil {
		return nil, unexpected(err)
	}

	pageSize := 0
	for _, seg := range segmentTable {
		pageSize += int(seg)
	}

	pageData := make([]byte, pageSize)
	if _, err := io.ReadFull(o.r, pageData); err != nil {
		return nil, unexpected(err)
	}

	isHeader := headerType&0x02 != 0
	if len(pageData) >= 8 {
		magic := string(pageData[:8])
		if magic == "OpusHead" || magic == "OpusTags" {
			isHeader = true
		}
	}

	return &OggPage{
		IsHeader: isHeader,
		Packets:  extractPackets(segmentTable, pageData),
	}, nil
}

func (o *OggReader) syncToPage() error {
	for {
		b, err := o.r.ReadByte()
		if err != nil {
			return err
		}

		if b != 'O' {
			continue
		}

		peek, err := o.r.Peek(3)
		if err != nil {
			return err
		}

		if string(peek) == "ggS" {
			_, _ = o.r.Discard(3)
			return nil
		}
	}
}

// extractPackets joins lacing values; a segment shorter than 255 bytes ends a
// packet. A packet continued on the next page is flushed at page end.
func extractPackets(segmentTable []byte, pageData []byte) [][]byte {
	var packets [][]byte
	var current []byte
	offset := 0

	for _, segSize := range segmentTable {
		size := int(segSize)
		if offset+size > len(pageData) {
			break
		}

		current = append(current, pageData[offset:offset+size]...)
		offset += size

		if segSize < 255 && len(current) > 0 {
			packet := make([]byte, len(current))
			copy(packet, current)
			packets = append(packets, packet)
			current = current[:0]
		}
	}

	if len(current) > 0 {
		packet := make([]byte, len(current))
		copy(packet, current)
		packets = append(packets, packet)
	}

	return packets
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
