package ipfix

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"

	"firestige.xyz/hsprobe/internal/core/decoder"
	"firestige.xyz/hsprobe/internal/template"
)

// TemplateRecord is a decoded template definition.
type TemplateRecord struct {
	ID     uint16
	Fields []template.Field
}

// DataRecord is a decoded data record. Values align with the template's fields.
type DataRecord struct {
	TemplateID uint16
	Values     [][]byte
}

// Message is a decoded IPFIX message.
type Message struct {
	Header    Header
	Templates []TemplateRecord
	Records   []DataRecord
	// Skipped counts data sets whose template is unknown.
	Skipped int
}

type templateCacheKey struct {
	domainID   uint32
	templateID uint16
}

// Decoder decodes messages of any number of exporters. Templates are cached per
// observation domain.
type Decoder struct {
	lock  sync.RWMutex
	cache map[templateCacheKey][]template.Field
}

// NewDecoder creates a decoder with an empty template cache.
func NewDecoder() *Decoder {
	return &Decoder{cache: make(map[templateCacheKey][]template.Field)}
}

func (d *Decoder) set(domainID uint32, id uint16, fields []template.Field) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if len(fields) == 0 {
		delete(d.cache, templateCacheKey{domainID, id})
		return
	}
	d.cache[templateCacheKey{domainID, id}] = fields
}

func (d *Decoder) get(domainID uint32, id uint16) []template.Field {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.cache[templateCacheKey{domainID, id}]
}

// Decode parses one message. Data sets are decoded with templates learned from this or
// earlier messages of the same domain.
func (d *Decoder) Decode(raw []byte) (*Message, error) {
	c := decoder.NewCursor(raw)
	var m Message
	var err error

	if m.Header.Version, err = c.ReadU16(); err != nil {
		return nil, errors.Wrap(err, "ipfix: header")
	}
	if m.Header.Version != Version {
		return nil, errors.Errorf("ipfix: incompatible protocol version v%d, only v10 is supported", m.Header.Version)
	}
	m.Header.Length, _ = c.ReadU16()
	if int(m.Header.Length) < HeaderLen || int(m.Header.Length) > len(raw) {
		return nil, errors.Errorf("ipfix: invalid message length %d (have %d bytes)", m.Header.Length, len(raw))
	}
	if m.Header.ExportTime, err = c.ReadU32(); err != nil {
		return nil, errors.Wrap(err, "ipfix: header")
	}
	if m.Header.Sequence, err = c.ReadU32(); err != nil {
		return nil, errors.Wrap(err, "ipfix: header")
	}
	if m.Header.DomainID, err = c.ReadU32(); err != nil {
		return nil, errors.Wrap(err, "ipfix: header")
	}

	body := decoder.NewCursor(raw[HeaderLen:m.Header.Length])
	for body.Remaining() >= setHeaderLen {
		setID, _ := body.ReadU16()
		setLen, _ := body.ReadU16()
		if setLen < setHeaderLen {
			return nil, errors.Errorf("ipfix: set %d has invalid length %d", setID, setLen)
		}
		payload, err := body.ReadBytes(int(setLen) - setHeaderLen)
		if err != nil {
			return nil, errors.Wrapf(err, "ipfix: set %d", setID)
		}

		switch {
		case setID == TemplateSetID:
			if err := d.decodeTemplates(&m, payload); err != nil {
				return nil, errors.Wrap(err, "ipfix: unable to decode template")
			}
		case setID >= SetIDDataMin:
			if err := d.decodeData(&m, setID, payload); err != nil {
				return nil, errors.Wrapf(err, "ipfix: data set %d", setID)
			}
		}
		// Options templates (set id 3) carry nothing this decoder consumes.
	}
	return &m, nil
}

func (d *Decoder) decodeTemplates(m *Message, payload []byte) error {
	c := decoder.NewCursor(payload)
	for c.Remaining() >= 4 {
		id, _ := c.ReadU16()
		count, _ := c.ReadU16()

		fields := make([]template.Field, 0, count)
		for i := uint16(0); i < count; i++ {
			typ, err := c.ReadU16()
			if err != nil {
				return err
			}
			length, err := c.ReadU16()
			if err != nil {
				return err
			}
			var en uint32
			if typ&enterpriseBit != 0 {
				typ &^= enterpriseBit
				if en, err = c.ReadU32(); err != nil {
					return err
				}
			}
			fields = append(fields, fieldFor(en, typ, length))
		}

		// A record without fields withdraws the template.
		d.set(m.Header.DomainID, id, fields)
		m.Templates = append(m.Templates, TemplateRecord{ID: id, Fields: fields})
	}
	return nil
}

func fieldFor(en uint32, typ, length uint16) template.Field {
	f, ok := template.LookupElement(en, typ)
	if !ok {
		f = template.Field{Name: fmt.Sprintf("%d.%d", en, typ), EnterpriseID: en, Type: typ}
	}
	f.Length = length
	return f
}

func (d *Decoder) decodeData(m *Message, setID uint16, payload []byte) error {
	fields := d.get(m.Header.DomainID, setID)
	if fields == nil {
		m.Skipped++
		return nil
	}

	minLen := 0
	for _, f := range fields {
		if f.Variable() {
			minLen++
		} else {
			minLen += int(f.Length)
		}
	}
	if minLen == 0 {
		return nil
	}

	c := decoder.NewCursor(payload)
	// Trailing bytes shorter than a record are padding.
	for c.Remaining() >= minLen {
		values := make([][]byte, len(fields))
		for i, f := range fields {
			n := int(f.Length)
			if f.Variable() {
				l, err := c.ReadU8()
				if err != nil {
					return err
				}
				n = int(l)
				if l == longVarLenFlag {
					l16, err := c.ReadU16()
					if err != nil {
						return err
					}
					n = int(l16)
				}
			}
			v, err := c.ReadBytes(n)
			if err != nil {
				return err
			}
			values[i] = append([]byte(nil), v...)
		}
		m.Records = append(m.Records, DataRecord{TemplateID: setID, Values: values})
	}
	return nil
}

// ReadMessage reads one message from a stream transport.
func ReadMessage(r io.Reader) ([]byte, error) {
	hdr := make([]byte, HeaderLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint16(hdr[2:4]))
	if length < HeaderLen {
		return nil, errors.Errorf("ipfix: invalid message length %d", length)
	}
	msg := make([]byte, length)
	copy(msg, hdr)
	if _, err := io.ReadFull(r, msg[HeaderLen:]); err != nil {
		return nil, errors.Wrap(err, "ipfix: short message")
	}
	return msg, nil
}
