package wire

import (
	"fmt"

	"github.com/roach88/svcidl/internal/idl"
)

// Log is an encoded event ready for the execution environment.
type Log struct {
	Event  string      `json:"event"`
	Topics []idl.Topic `json:"topics"`
	Data   []byte      `json:"data"`
}

// EncodeEvent encodes an event value declared by the root interface.
// Topic 0 is the hash of the event name; each indexed field adds the hash
// of its canonical encoding, in declaration order.
func (c *Codec) EncodeEvent(name string, rec Record) (Log, error) {
	root := c.rootScope()
	if root == nil {
		return Log{}, encodeErr(name, "no schema to resolve event")
	}
	def, ok := root.TypeDef(name)
	if !ok || def.Kind != idl.KindEvent {
		return Log{}, encodeErr(name, "interface %s declares no event %q", root.Name, name)
	}

	data, err := c.encodeFields(root, def.Fields, rec, name)
	if err != nil {
		return Log{}, err
	}

	topics := []idl.Topic{idl.EventTopic(def.Name)}
	for _, f := range def.Fields {
		if !f.Indexed {
			continue
		}
		b, err := c.encode(root, f.Type, rec[f.Name], join(name, f.Name))
		if err != nil {
			return Log{}, err
		}
		topics = append(topics, idl.IndexTopic(b))
	}
	if len(topics) > idl.MaxIndexedFields+1 {
		return Log{}, encodeErr(name, "event has %d indexed fields, max %d", len(topics)-1, idl.MaxIndexedFields)
	}
	return Log{Event: def.Name, Topics: topics, Data: data}, nil
}

// DecodeEvent decodes the data of a log back into a record.
func (c *Codec) DecodeEvent(l Log) (Record, error) {
	root := c.rootScope()
	if root == nil {
		return nil, decodeErr(l.Event, "no schema to resolve event")
	}
	def, ok := root.TypeDef(l.Event)
	if !ok || def.Kind != idl.KindEvent {
		return nil, decodeErr(l.Event, "interface %s declares no event %q", root.Name, l.Event)
	}
	if err := c.dm.Wellformed(l.Data); err != nil {
		return nil, &Error{Code: ErrDecode, Path: l.Event, Message: "malformed event data", Err: err}
	}
	if err := checkCanonical(l.Data); err != nil {
		return nil, &Error{Code: ErrDecode, Path: l.Event, Message: "non-canonical event data", Err: err}
	}
	v, err := c.decodeFields(root, def.Fields, named(def.Name), l.Data, l.Event)
	if err != nil {
		return nil, err
	}
	rec, ok := v.(Record)
	if !ok {
		return nil, fmt.Errorf("event %s decoded to %T", l.Event, v)
	}
	return rec, nil
}
