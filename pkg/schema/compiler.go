package schema

import (
	"fmt"
	"math"
	"strings"
)

// Encoder is the subset of the CDR and ROS1 wire encoders a compiled
// Routine needs. Both pkg/cdr.Encoder and pkg/ros1wire.Encoder satisfy this
// interface, so one compiled Routine body works against either codec —
// alignment (CDR) or its absence (ROS1) is handled entirely inside the
// concrete encoder, not here.
type Encoder interface {
	Bool(bool) error
	Int8(int8) error
	Uint8(uint8) error
	Int16(int16) error
	Uint16(uint16) error
	Int32(int32) error
	Uint32(uint32) error
	Int64(int64) error
	Uint64(uint64) error
	Float32(float32) error
	Float64(float64) error
	String(string) error
}

// Decoder is the Encoder's read-side counterpart.
type Decoder interface {
	Bool() (bool, error)
	Int8() (int8, error)
	Uint8() (uint8, error)
	Int16() (int16, error)
	Uint16() (uint16, error)
	Int32() (int32, error)
	Uint32() (uint32, error)
	Int64() (int64, error)
	Uint64() (uint64, error)
	Float32() (float32, error)
	Float64() (float64, error)
	String() (string, error)
}

// primitiveArrayEncoder is an optional capability a codec's Encoder can
// implement to batch a contiguous run of same-width primitives (adjacent
// struct fields, or array/sequence elements) into one aligned write instead
// of one call per value. pkg/cdr implements it, since CDR alignment makes
// the batching a real saving; a codec without alignment concerns (like
// pkg/ros1wire) can skip it, and the compiler falls back to one call per
// value, which is still correct, just unbatched.
type primitiveArrayEncoder interface {
	PrimitiveArray(n, sz int, bits func(i int) uint64) error
	PrimitiveSequence(n, sz int, bits func(i int) uint64) error
}

// primitiveArrayDecoder is the read-side counterpart of primitiveArrayEncoder.
type primitiveArrayDecoder interface {
	PrimitiveArray(n, sz int, store func(i int, bits uint64)) error
}

// Message is the tagged dynamic value a Routine encodes from or decodes
// into: field name -> scalar, string, []Message (complex array/sequence),
// []any (primitive array/sequence), or Message (a nested Complex value).
type Message map[string]any

// Getter is the field-read side of a message value. Message and
// StaticMessage both implement it, so a Routine's compiled steps dispatch
// against either without caring which one they were handed.
type Getter interface {
	Get(field string) any
}

// Get implements Getter.
func (m Message) Get(field string) any { return m[field] }

// Routine is the compiled pair of closures produced by Compiler.Compile,
// bound to one Schema and one wire codec. Encode/Decode are the
// map-based, reflection-free but allocating path for generic/CLI-inspector
// callers; EncodeStatic/DecodeStatic reuse the same compiled steps against
// a StaticMessage for callers that re-use one StaticMessage per schema on a
// hot path and want to avoid the per-message map allocation.
type Routine struct {
	Encode func(e Encoder, msg Message) error
	Decode func(d Decoder) (Message, error)

	schemaName string
	steps      []step
}

// EncodeStatic encodes sm directly, without ever materializing a Message.
func (r *Routine) EncodeStatic(e Encoder, sm *StaticMessage) error {
	for _, st := range r.steps {
		if err := st.encode(e, sm); err != nil {
			return fmt.Errorf("schema %s: field %s: %w", r.schemaName, st.name, err)
		}
	}
	return nil
}

// DecodeStatic decodes into sm's pre-sized slots directly, without ever
// materializing a Message.
func (r *Routine) DecodeStatic(d Decoder, sm *StaticMessage) error {
	for _, st := range r.steps {
		if st.names != nil {
			vals, err := st.decodeGroup(d)
			if err != nil {
				return fmt.Errorf("schema %s: field %s: %w", r.schemaName, st.name, err)
			}
			for i, nm := range st.names {
				sm.Set(nm, vals[i])
			}
			continue
		}
		v, err := st.decode(d)
		if err != nil {
			return fmt.Errorf("schema %s: field %s: %w", r.schemaName, st.name, err)
		}
		sm.Set(st.name, v)
	}
	return nil
}

// Resolver looks up a sibling schema by its fully-qualified name, for
// resolving Complex field references during compilation.
type Resolver func(name string) (*Schema, bool)

// Compiler compiles Schemas into Routines, caching by schema name for the
// lifetime of the Compiler instance. Per spec, caches are per-instance, not
// global: callers construct one Compiler per reader/writer.
type Compiler struct {
	cache     map[string]*Routine
	compiling map[string]bool // cycle guard, active during one Compile call tree
}

// NewCompiler returns an empty Compiler.
func NewCompiler() *Compiler {
	return &Compiler{cache: make(map[string]*Routine)}
}

// Compile returns the cached Routine for s, compiling it (and any Complex
// dependencies reachable from it) on first use. resolve is consulted for
// every Complex field encountered.
func (c *Compiler) Compile(s *Schema, resolve Resolver) (*Routine, error) {
	if r, ok := c.cache[s.Name]; ok {
		return r, nil
	}
	if c.compiling == nil {
		c.compiling = make(map[string]bool)
	}
	if c.compiling[s.Name] {
		return nil, newErr(ErrKindCycle, s.Name, "", "cyclic schema reference")
	}
	c.compiling[s.Name] = true
	defer delete(c.compiling, s.Name)

	steps, err := c.compileFields(s, resolve)
	if err != nil {
		return nil, err
	}
	r := &Routine{
		schemaName: s.Name,
		steps:      steps,
		Encode: func(e Encoder, msg Message) error {
			for _, st := range steps {
				if err := st.encode(e, msg); err != nil {
					return fmt.Errorf("schema %s: field %s: %w", s.Name, st.name, err)
				}
			}
			return nil
		},
		Decode: func(d Decoder) (Message, error) {
			msg := make(Message, len(steps))
			for _, st := range steps {
				if st.names != nil {
					vals, err := st.decodeGroup(d)
					if err != nil {
						return nil, fmt.Errorf("schema %s: field %s: %w", s.Name, st.name, err)
					}
					for i, nm := range st.names {
						msg[nm] = vals[i]
					}
					continue
				}
				v, err := st.decode(d)
				if err != nil {
					return nil, fmt.Errorf("schema %s: field %s: %w", s.Name, st.name, err)
				}
				msg[st.name] = v
			}
			return msg, nil
		},
	}
	c.cache[s.Name] = r
	return r, nil
}

// step is one compiled field: a direct encode/decode pair closing over the
// field's resolved type. Complex fields close over another Routine (which
// may itself already be cached), giving direct-pointer dispatch rather than
// a runtime type switch, per the compiled-closure design. encode reads
// through a Getter so the same step works against a Message or a
// StaticMessage.
//
// A step produced by grouping a run of adjacent same-width primitive
// fields (see compileFields) instead carries names (one per field in the
// run, in order) and decodeGroup, which decodes and returns all of them at
// once from a single batched read; decode is left nil for such a step.
type step struct {
	name   string
	names  []string
	encode func(e Encoder, msg Getter) error
	decode func(d Decoder) (any, error)

	decodeGroup func(d Decoder) ([]any, error)
}

// singleValue is a one-field Getter used to hand an array/sequence element
// to its element step without allocating a Message map per element.
type singleValue struct {
	name string
	v    any
}

func (s singleValue) Get(field string) any {
	if field != s.name {
		return nil
	}
	return s.v
}

// compileFields walks s's fields in order, batching maximal runs of two or
// more adjacent same-width primitive fields (see primitiveRunLen) into a
// single grouped step instead of compiling each separately, per the
// compiler's adjacent-primitive-grouping optimization.
func (c *Compiler) compileFields(s *Schema, resolve Resolver) ([]step, error) {
	steps := make([]step, 0, len(s.Fields))
	i := 0
	for i < len(s.Fields) {
		if n := primitiveRunLen(s.Fields, i); n >= 2 {
			steps = append(steps, compilePrimitiveGroup(s.Fields[i:i+n]))
			i += n
			continue
		}
		st, err := c.compileField(s.Name, s.Fields[i], resolve)
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
		i++
	}
	return steps, nil
}

// primitiveRunLen returns the length of the maximal run of fields starting
// at start that are all KindPrimitive and share the same fixed wire width
// (excluding Time/Duration, which aren't a single fixed-width value), or 0
// if fields[start] doesn't start such a run.
func primitiveRunLen(fields []Field, start int) int {
	if start >= len(fields) || fields[start].Type.Kind != KindPrimitive {
		return 0
	}
	sz, ok := primitiveWidth(fields[start].Type.Primitive)
	if !ok {
		return 0
	}
	n := 1
	for i := start + 1; i < len(fields); i++ {
		f := fields[i]
		if f.Type.Kind != KindPrimitive {
			break
		}
		s2, ok := primitiveWidth(f.Type.Primitive)
		if !ok || s2 != sz {
			break
		}
		n++
	}
	return n
}

// compilePrimitiveGroup compiles a run of adjacent same-width primitive
// fields into one step that reads/writes them as a single contiguous
// block via PrimitiveArray when the codec supports it, falling back to one
// call per field otherwise.
func compilePrimitiveGroup(fields []Field) step {
	names := make([]string, len(fields))
	prims := make([]Primitive, len(fields))
	for i, f := range fields {
		names[i] = f.Name
		prims[i] = f.Type.Primitive
	}
	sz, _ := primitiveWidth(prims[0])

	return step{
		name:  strings.Join(names, "+"),
		names: names,
		encode: func(e Encoder, msg Getter) error {
			if ae, ok := e.(primitiveArrayEncoder); ok {
				return ae.PrimitiveArray(len(names), sz, func(i int) uint64 {
					return primitiveToBits(prims[i], msg.Get(names[i]))
				})
			}
			for i, name := range names {
				if err := encodePrimitiveScalar(e, prims[i], msg.Get(name)); err != nil {
					return err
				}
			}
			return nil
		},
		decodeGroup: func(d Decoder) ([]any, error) {
			out := make([]any, len(names))
			if ad, ok := d.(primitiveArrayDecoder); ok {
				if err := ad.PrimitiveArray(len(names), sz, func(i int, bits uint64) {
					out[i] = primitiveFromBits(prims[i], bits)
				}); err != nil {
					return nil, err
				}
				return out, nil
			}
			for i, p := range prims {
				v, err := decodePrimitiveScalar(d, p)
				if err != nil {
					return nil, err
				}
				out[i] = v
			}
			return out, nil
		},
	}
}

func (c *Compiler) compileField(schemaName string, f Field, resolve Resolver) (step, error) {
	name := f.Name
	switch f.Type.Kind {
	case KindPrimitive:
		enc, dec, err := compilePrimitive(schemaName, name, f.Type.Primitive)
		if err != nil {
			return step{}, err
		}
		return step{name: name, encode: enc, decode: dec}, nil

	case KindString, KindWString:
		return step{
			name: name,
			encode: func(e Encoder, msg Getter) error {
				s, _ := msg.Get(name).(string)
				return e.String(s)
			},
			decode: func(d Decoder) (any, error) { return d.String() },
		}, nil

	case KindArray, KindSequence:
		return c.compileArray(schemaName, f, resolve)

	case KindComplex:
		sub, ok := resolve(f.Type.ComplexName)
		if !ok {
			return step{}, newErr(ErrKindUnresolvedComplex, schemaName, name,
				"unresolved complex type %q", f.Type.ComplexName)
		}
		sr, err := c.Compile(sub, resolve)
		if err != nil {
			return step{}, err
		}
		return step{
			name: name,
			encode: func(e Encoder, msg Getter) error {
				nested, _ := msg.Get(name).(Message)
				return sr.Encode(e, nested)
			},
			decode: func(d Decoder) (any, error) { return sr.Decode(d) },
		}, nil

	default:
		return step{}, newErr(ErrKindUnknownType, schemaName, name, "unknown type kind %v", f.Type.Kind)
	}
}

func (c *Compiler) compileArray(schemaName string, f Field, resolve Resolver) (step, error) {
	name := f.Name
	elem := f.Type.Elem
	if elem == nil {
		return step{}, newErr(ErrKindParse, schemaName, name, "array/sequence field missing element type")
	}
	fixed := f.Type.Kind == KindArray
	length := f.Type.Length
	bound := f.Type.Length // bounded sequence cap, 0 == unbounded

	// A run of primitive array/sequence elements is itself a contiguous
	// same-width run (of one "field", repeated n times): batch it through
	// PrimitiveArray/PrimitiveSequence exactly like compilePrimitiveGroup
	// does for adjacent struct fields, rather than dispatching one
	// elemStep call per element.
	if elem.Kind == KindPrimitive {
		if sz, ok := primitiveWidth(elem.Primitive); ok {
			return compilePrimitiveArray(schemaName, name, elem.Primitive, sz, fixed, length, bound), nil
		}
	}

	elemField := Field{Name: name, Type: *elem}
	elemStep, err := c.compileField(schemaName, elemField, resolve)
	if err != nil {
		return step{}, err
	}

	return step{
		name: name,
		encode: func(e Encoder, msg Getter) error {
			items, _ := msg.Get(name).([]any)
			if fixed && len(items) != length {
				return newErr(ErrKindArraySize, schemaName, name,
					"array length mismatch: want %d, got %d", length, len(items))
			}
			if !fixed && bound > 0 && len(items) > bound {
				return newErr(ErrKindArraySize, schemaName, name,
					"sequence exceeds bound %d: got %d", bound, len(items))
			}
			if !fixed {
				if err := e.Uint32(uint32(len(items))); err != nil {
					return err
				}
			}
			for _, item := range items {
				if err := elemStep.encode(e, singleValue{name: name, v: item}); err != nil {
					return err
				}
			}
			return nil
		},
		decode: func(d Decoder) (any, error) {
			n := length
			if !fixed {
				u, err := d.Uint32()
				if err != nil {
					return nil, err
				}
				n = int(u)
				if bound > 0 && n > bound {
					return nil, newErr(ErrKindArraySize, schemaName, name,
						"sequence exceeds bound %d: got %d", bound, n)
				}
			}
			items := make([]any, n)
			for i := 0; i < n; i++ {
				v, err := elemStep.decode(d)
				if err != nil {
					return nil, err
				}
				items[i] = v
			}
			return items, nil
		},
	}, nil
}

// compilePrimitiveArray compiles a fixed or sequence array of a single
// primitive type into one step that batches the whole element run through
// PrimitiveArray/PrimitiveSequence when the codec supports it, falling back
// to one encode/decode call per element otherwise.
func compilePrimitiveArray(schemaName, name string, prim Primitive, sz int, fixed bool, length, bound int) step {
	return step{
		name: name,
		encode: func(e Encoder, msg Getter) error {
			items, _ := msg.Get(name).([]any)
			if fixed && len(items) != length {
				return newErr(ErrKindArraySize, schemaName, name,
					"array length mismatch: want %d, got %d", length, len(items))
			}
			if !fixed && bound > 0 && len(items) > bound {
				return newErr(ErrKindArraySize, schemaName, name,
					"sequence exceeds bound %d: got %d", bound, len(items))
			}
			bits := func(i int) uint64 { return primitiveToBits(prim, items[i]) }
			if ae, ok := e.(primitiveArrayEncoder); ok {
				if fixed {
					return ae.PrimitiveArray(len(items), sz, bits)
				}
				return ae.PrimitiveSequence(len(items), sz, bits)
			}
			if !fixed {
				if err := e.Uint32(uint32(len(items))); err != nil {
					return err
				}
			}
			for _, item := range items {
				if err := encodePrimitiveScalar(e, prim, item); err != nil {
					return err
				}
			}
			return nil
		},
		decode: func(d Decoder) (any, error) {
			n := length
			if !fixed {
				u, err := d.Uint32()
				if err != nil {
					return nil, err
				}
				n = int(u)
				if bound > 0 && n > bound {
					return nil, newErr(ErrKindArraySize, schemaName, name,
						"sequence exceeds bound %d: got %d", bound, n)
				}
			}
			items := make([]any, n)
			if ad, ok := d.(primitiveArrayDecoder); ok {
				if err := ad.PrimitiveArray(n, sz, func(i int, bits uint64) {
					items[i] = primitiveFromBits(prim, bits)
				}); err != nil {
					return nil, err
				}
				return items, nil
			}
			for i := 0; i < n; i++ {
				v, err := decodePrimitiveScalar(d, prim)
				if err != nil {
					return nil, err
				}
				items[i] = v
			}
			return items, nil
		},
	}
}

// compilePrimitive compiles a single scalar field. Time/Duration are the one
// exception to the single-value model below (they're wire-encoded as a pair
// of int32 seconds/nanoseconds), so they keep their own closures; every other
// primitive reuses encodePrimitiveScalar/decodePrimitiveScalar, the same
// per-value fallback compilePrimitiveGroup and compilePrimitiveArray call
// when a codec doesn't implement the batched primitiveArrayEncoder/Decoder
// capability.
func compilePrimitive(schemaName, name string, p Primitive) (
	func(e Encoder, msg Getter) error,
	func(d Decoder) (any, error),
	error,
) {
	if p == Time || p == Duration {
		return func(e Encoder, msg Getter) error {
				nanos, _ := msg.Get(name).(int64)
				sec, nsec := splitNanos(nanos)
				if err := e.Int32(sec); err != nil {
					return err
				}
				return e.Int32(nsec)
			},
			func(d Decoder) (any, error) {
				sec, err := d.Int32()
				if err != nil {
					return nil, err
				}
				nsec, err := d.Int32()
				if err != nil {
					return nil, err
				}
				return joinNanos(sec, nsec), nil
			}, nil
	}
	if _, ok := primitiveWidth(p); !ok {
		return nil, nil, newErr(ErrKindUnknownType, schemaName, name, "unknown primitive %q", p)
	}
	return func(e Encoder, msg Getter) error { return encodePrimitiveScalar(e, p, msg.Get(name)) },
		func(d Decoder) (any, error) { return decodePrimitiveScalar(d, p) }, nil
}

// primitiveWidth returns the fixed wire width, in bytes, of the primitives
// that encode as a single scalar value (everything except Time/Duration,
// which are a pair of int32s and never participate in primitive grouping).
func primitiveWidth(p Primitive) (sz int, ok bool) {
	switch p {
	case Bool, Int8, Uint8, Byte, Char:
		return 1, true
	case Int16, Uint16:
		return 2, true
	case Int32, Uint32, Float32:
		return 4, true
	case Int64, Uint64, Float64:
		return 8, true
	default:
		return 0, false
	}
}

// primitiveToBits reinterprets v's dynamic value (the Go type a compiled
// field normally holds for p) as the uint64 bit pattern PrimitiveArray/
// PrimitiveSequence batch into one write; the concrete codec is responsible
// for choosing byte order when it serializes those bits.
func primitiveToBits(p Primitive, v any) uint64 {
	switch p {
	case Bool:
		b, _ := v.(bool)
		if b {
			return 1
		}
		return 0
	case Int8:
		n, _ := v.(int8)
		return uint64(uint8(n))
	case Uint8, Byte, Char:
		n, _ := v.(uint8)
		return uint64(n)
	case Int16:
		n, _ := v.(int16)
		return uint64(uint16(n))
	case Uint16:
		n, _ := v.(uint16)
		return uint64(n)
	case Int32:
		n, _ := v.(int32)
		return uint64(uint32(n))
	case Uint32:
		n, _ := v.(uint32)
		return uint64(n)
	case Int64:
		n, _ := v.(int64)
		return uint64(n)
	case Uint64:
		n, _ := v.(uint64)
		return n
	case Float32:
		f, _ := v.(float32)
		return uint64(math.Float32bits(f))
	case Float64:
		f, _ := v.(float64)
		return math.Float64bits(f)
	default:
		return 0
	}
}

// primitiveFromBits is primitiveToBits's inverse, used by a batched
// PrimitiveArray decode to turn the bits the codec read back into p's usual
// Go value.
func primitiveFromBits(p Primitive, bits uint64) any {
	switch p {
	case Bool:
		return bits != 0
	case Int8:
		return int8(uint8(bits))
	case Uint8, Byte, Char:
		return uint8(bits)
	case Int16:
		return int16(uint16(bits))
	case Uint16:
		return uint16(bits)
	case Int32:
		return int32(uint32(bits))
	case Uint32:
		return uint32(bits)
	case Int64:
		return int64(bits)
	case Uint64:
		return bits
	case Float32:
		return math.Float32frombits(uint32(bits))
	case Float64:
		return math.Float64frombits(bits)
	default:
		return nil
	}
}

// encodePrimitiveScalar writes a single primitive value through e's typed
// methods; it's the per-value fallback compilePrimitiveGroup and
// compilePrimitiveArray use when the codec doesn't implement
// primitiveArrayEncoder, and is also compilePrimitive's own encode path.
func encodePrimitiveScalar(e Encoder, p Primitive, v any) error {
	switch p {
	case Bool:
		b, _ := v.(bool)
		return e.Bool(b)
	case Int8:
		n, _ := v.(int8)
		return e.Int8(n)
	case Uint8, Byte, Char:
		n, _ := v.(uint8)
		return e.Uint8(n)
	case Int16:
		n, _ := v.(int16)
		return e.Int16(n)
	case Uint16:
		n, _ := v.(uint16)
		return e.Uint16(n)
	case Int32:
		n, _ := v.(int32)
		return e.Int32(n)
	case Uint32:
		n, _ := v.(uint32)
		return e.Uint32(n)
	case Int64:
		n, _ := v.(int64)
		return e.Int64(n)
	case Uint64:
		n, _ := v.(uint64)
		return e.Uint64(n)
	case Float32:
		f, _ := v.(float32)
		return e.Float32(f)
	case Float64:
		f, _ := v.(float64)
		return e.Float64(f)
	default:
		return fmt.Errorf("schema: no scalar encoder for primitive %q", p)
	}
}

// decodePrimitiveScalar is encodePrimitiveScalar's read-side counterpart.
func decodePrimitiveScalar(d Decoder, p Primitive) (any, error) {
	switch p {
	case Bool:
		return d.Bool()
	case Int8:
		return d.Int8()
	case Uint8, Byte, Char:
		return d.Uint8()
	case Int16:
		return d.Int16()
	case Uint16:
		return d.Uint16()
	case Int32:
		return d.Int32()
	case Uint32:
		return d.Uint32()
	case Int64:
		return d.Int64()
	case Uint64:
		return d.Uint64()
	case Float32:
		return d.Float32()
	case Float64:
		return d.Float64()
	default:
		return nil, fmt.Errorf("schema: no scalar decoder for primitive %q", p)
	}
}

func splitNanos(nanos int64) (sec, nsec int32) {
	const billion = int64(1e9)
	s := nanos / billion
	n := nanos % billion
	if n < 0 {
		n += billion
		s--
	}
	return int32(s), int32(n)
}

func joinNanos(sec, nsec int32) int64 {
	return int64(sec)*1e9 + int64(nsec)
}
