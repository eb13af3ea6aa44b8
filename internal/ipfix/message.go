// Package ipfix implements an IPFIX (RFC 7011) exporting process and a small decoder.
//
// Message layout:
//
//	Offset  Size  Description
//	------  ----  -----------
//	0       2     Version (10)
//	2       2     Total message length, header included
//	4       4     Export time, seconds since the epoch
//	8       4     Sequence number: data records sent before this message
//	12      4     Observation domain id
//	16      …     Sets
//
// Each set starts with a 2-byte set id and a 2-byte length that includes the set header.
// Set id 2 carries template records; set ids >= 256 carry data records of that template.
package ipfix

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"firestige.xyz/hsprobe/internal/template"
)

// ─── Protocol constants ────────────────────────────────────────────────────

const (
	Version = 10

	HeaderLen    = 16
	setHeaderLen = 4

	// TemplateSetID is the set id reserved for template sets.
	TemplateSetID = 2
	// SetIDDataMin is the lowest set id of a data set.
	SetIDDataMin = 256

	enterpriseBit = 0x8000

	// shortVarLenMax is the largest variable length encoded in one byte.
	shortVarLenMax = 254
	longVarLenFlag = 0xFF
)

// Header is the fixed message header.
type Header struct {
	Version    uint16
	Length     uint16
	ExportTime uint32
	Sequence   uint32
	DomainID   uint32
}

// ─── Encoding ──────────────────────────────────────────────────────────────

// appendHeader writes a message header. The length is back-filled by finishMessage.
func appendHeader(buf []byte, exportTime, seq, odid uint32) []byte {
	var h [HeaderLen]byte
	binary.BigEndian.PutUint16(h[0:2], Version)
	binary.BigEndian.PutUint32(h[4:8], exportTime)
	binary.BigEndian.PutUint32(h[8:12], seq)
	binary.BigEndian.PutUint32(h[12:16], odid)
	return append(buf, h[:]...)
}

func finishMessage(buf []byte) ([]byte, error) {
	if len(buf) > math.MaxUint16 {
		return nil, errors.Errorf("ipfix: message too large (%d bytes, max 65535)", len(buf))
	}
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(buf)))
	return buf, nil
}

// appendSetHeader opens a set. The length is back-filled by finishSet.
func appendSetHeader(buf []byte, setID uint16) []byte {
	return binary.BigEndian.AppendUint32(buf, uint32(setID)<<16)
}

// finishSet writes the length of the set starting at start.
func finishSet(buf []byte, start int) {
	binary.BigEndian.PutUint16(buf[start+2:start+4], uint16(len(buf)-start))
}

// appendTemplateRecord writes one template record (without set header).
func appendTemplateRecord(buf []byte, desc *template.Descriptor) []byte {
	buf = binary.BigEndian.AppendUint16(buf, desc.WireID())
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(desc.Fields)))
	for _, f := range desc.Fields {
		if f.Enterprise() {
			buf = binary.BigEndian.AppendUint16(buf, f.Type|enterpriseBit)
			buf = binary.BigEndian.AppendUint16(buf, f.Length)
			buf = binary.BigEndian.AppendUint32(buf, f.EnterpriseID)
			continue
		}
		buf = binary.BigEndian.AppendUint16(buf, f.Type)
		buf = binary.BigEndian.AppendUint16(buf, f.Length)
	}
	return buf
}

// templateSet encodes all descriptors as one template set.
func templateSet(descs []*template.Descriptor) []byte {
	if len(descs) == 0 {
		return nil
	}
	buf := appendSetHeader(nil, TemplateSetID)
	for _, d := range descs {
		buf = appendTemplateRecord(buf, d)
	}
	finishSet(buf, 0)
	return buf
}

// appendDataRecord writes the values of one record. Lengths must already match the fields.
func appendDataRecord(buf []byte, desc *template.Descriptor, values [][]byte) []byte {
	for i, f := range desc.Fields {
		v := values[i]
		if f.Variable() {
			buf = appendVarLen(buf, len(v))
		}
		buf = append(buf, v...)
	}
	return buf
}

func appendVarLen(buf []byte, n int) []byte {
	if n <= shortVarLenMax {
		return append(buf, byte(n))
	}
	buf = append(buf, longVarLenFlag)
	return binary.BigEndian.AppendUint16(buf, uint16(n))
}

// recordLen is the encoded size of a data record.
func recordLen(desc *template.Descriptor, values [][]byte) int {
	n := 0
	for i, f := range desc.Fields {
		if f.Variable() {
			if len(values[i]) <= shortVarLenMax {
				n++
			} else {
				n += 3
			}
		}
		n += len(values[i])
	}
	return n
}
