package model

// FieldSource names where a mapped column value comes from: a message header,
// or the identity of the originating server. Modeled as a tagged value rather
// than a magic header name so a real header can never collide with it.
type FieldSource struct {
	header       string
	fromIdentity bool
}

// FromHeader binds a column to the named message header.
func FromHeader(name string) FieldSource {
	return FieldSource{header: name}
}

// FromSourceIdentity binds a column to the originating server's name.
func FromSourceIdentity() FieldSource {
	return FieldSource{fromIdentity: true}
}

// Header returns the bound header name and whether this source is header-backed.
func (f FieldSource) Header() (string, bool) {
	return f.header, !f.fromIdentity
}

// Resolve produces the bind value for one event. A missing header resolves to
// nil, which the driver binds as SQL NULL.
func (f FieldSource) Resolve(source string, msg *Message) any {
	if f.fromIdentity {
		return source
	}
	if v, ok := msg.Headers[f.header]; ok {
		return v
	}
	return nil
}

// ColumnMapping binds one field source to one destination column.
type ColumnMapping struct {
	Source FieldSource
	Column string
}

// MappingRule routes events with a matching Event header into one database
// table. Column order is the declared configuration order.
type MappingRule struct {
	Event      string
	DatabaseID string
	Table      string
	Columns    []ColumnMapping
}
