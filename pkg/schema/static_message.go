package schema

// StaticMessage is a pre-sized alternative to Message for callers that
// encode or decode many messages of the same schema in a hot loop (a
// recorder's write path, a live playback reader) and want to avoid paying
// a map allocation per message. Field values live in a slice indexed by
// the field's position in the schema rather than hashed by name; Set/Get
// still take the field name so callers don't need to track offsets
// themselves.
type StaticMessage struct {
	fieldIndex map[string]int
	values     []any
}

// NewStaticMessage allocates a StaticMessage sized and indexed for s. The
// returned value's Set/Get are valid only for s's own field names; reusing
// it across messages of the same schema (resetting fields with Set between
// uses) is the intended pattern.
func NewStaticMessage(s *Schema) *StaticMessage {
	idx := make(map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		idx[f.Name] = i
	}
	return &StaticMessage{fieldIndex: idx, values: make([]any, len(s.Fields))}
}

// Set stores v under field. field must be one of the schema's own field
// names; an unknown field is a caller bug, not a runtime condition, so Set
// panics rather than silently dropping the value.
func (m *StaticMessage) Set(field string, v any) {
	i, ok := m.fieldIndex[field]
	if !ok {
		panic("schema: StaticMessage has no field " + field)
	}
	m.values[i] = v
}

// Get returns the value last Set under field, or nil if it was never set.
// Unlike Set, an unknown field is not a panic: Get is used by the compiled
// steps themselves while decoding a nested Complex field name that may not
// (yet) apply to this particular accessor.
func (m *StaticMessage) Get(field string) any {
	i, ok := m.fieldIndex[field]
	if !ok {
		return nil
	}
	return m.values[i]
}

// ToMessage copies m's values into a Message map for interop with the
// generic/CLI-inspector path.
func (m *StaticMessage) ToMessage(s *Schema) Message {
	out := make(Message, len(s.Fields))
	for _, f := range s.Fields {
		out[f.Name] = m.Get(f.Name)
	}
	return out
}

// FromMessage populates m's slots from msg, ignoring keys that aren't
// among m's own fields.
func (m *StaticMessage) FromMessage(msg Message) {
	for name, i := range m.fieldIndex {
		if v, ok := msg[name]; ok {
			m.values[i] = v
		}
	}
}
