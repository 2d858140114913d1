package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"github.com/arloliu/mebo/endian"
)

const (
	// HeaderSize is the width of a record header in bytes
	HeaderSize = 8

	// EndOfSession closes a record. It is never a valid sample.
	EndOfSession byte = 0xFF

	// MaxSample is the largest storable sample value
	MaxSample uint8 = EndOfSession - 1
)

var byteOrder = endian.GetBigEndianEngine()

// Samples is the ordered list of sample values of one record.
// It marshals to JSON as an array of numbers rather than base64.
type Samples []uint8

// MarshalJSON implements json.Marshaler
func (s Samples) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 2+len(s)*4)
	buf = append(buf, '[')
	for i, v := range s {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendUint(buf, uint64(v), 10)
	}
	return append(buf, ']'), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (s *Samples) UnmarshalJSON(data []byte) error {
	var values []uint8
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	if values == nil {
		values = []uint8{}
	}
	*s = values
	return nil
}

// Record is one session: a start time and the samples taken since.
type Record struct {
	StartAt      uint64  `json:"start_at" cbor:"start_at"`
	Temperatures Samples `json:"temperatures" cbor:"temperatures"`
}

// AppendHeader appends the record header for startAt to dst
func AppendHeader(dst []byte, startAt uint64) []byte {
	return byteOrder.AppendUint64(dst, startAt)
}

// EncodeRecord appends the encoding of rec to dst. A closed record is
// followed by EndOfSession.
func EncodeRecord(dst []byte, rec Record, closed bool) []byte {
	dst = AppendHeader(dst, rec.StartAt)
	dst = append(dst, rec.Temperatures...)
	if closed {
		dst = append(dst, EndOfSession)
	}
	return dst
}

// Encode encodes records as a complete log. All records but the last
// are closed.
func Encode(records []Record) []byte {
	var dst []byte
	for i, rec := range records {
		dst = EncodeRecord(dst, rec, i < len(records)-1)
	}
	return dst
}

// Decode scans a complete log held in memory.
func Decode(data []byte) []Record {
	records := make([]Record, 0)
	scanner := NewScanner(bytes.NewReader(data))
	for scanner.Next() {
		records = append(records, scanner.Record())
	}
	return records
}

// Scanner reads records from a log stream in order, oldest first.
//
// A header shorter than HeaderSize ends the scan cleanly. A record
// without terminator ends at the end of the stream.
type Scanner struct {
	r      *bufio.Reader
	header [HeaderSize]byte
	rec    Record
	err    error
}

// NewScanner returns a Scanner reading from r
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReader(r)}
}

// Next advances to the next record. It returns false at the end of the
// stream or on a read error, see Err.
func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}

	if _, err := io.ReadFull(s.r, s.header[:]); err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			s.err = err
		}
		return false
	}

	rec := Record{
		StartAt:      byteOrder.Uint64(s.header[:]),
		Temperatures: Samples{},
	}
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.err = err
				return false
			}
			break
		}
		if b == EndOfSession {
			break
		}
		rec.Temperatures = append(rec.Temperatures, b)
	}

	s.rec = rec
	return true
}

// Record returns the record read by the last call to Next
func (s *Scanner) Record() Record {
	return s.rec
}

// Err returns the first non-EOF error encountered
func (s *Scanner) Err() error {
	return s.err
}
