package query

import (
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// Operation is the declarative description of how to extract a value from a
// parsed document. It is a closed set: Text, Attr, Exist, Object, and Map.
// Adapters build trees of these and hand them to an Evaluator, so extraction
// logic stays plain data and can be serialized for tests.
type Operation interface {
	kind() string
}

// Text extracts the trimmed text content of the first element matched by
// Query relative to the current context. If Includes is set and the text does
// not contain it, the result is the empty string rather than an error.
type Text struct {
	Query    *Query
	Includes string
}

// Attr extracts the named attribute of the first matched element. A missing
// match or attribute yields an empty string; unless Optional is set, it is
// also logged as a warning.
type Attr struct {
	Query    *Query
	Name     string
	Optional bool
}

// Exist reports whether evaluating Inner yields a non-empty result.
type Exist struct {
	Inner Operation
}

// Object narrows the context to the element matched by Query (keeping the
// current context when Query is nil) and evaluates each field operation
// against it, producing a record.
type Object struct {
	Query  *Query
	Fields map[string]Operation
}

// Map evaluates Item once per element matched by Query, with that element as
// context, producing a list of records.
type Map struct {
	Query *Query
	Item  map[string]Operation
}

func (Text) kind() string   { return "text" }
func (Attr) kind() string   { return "attr" }
func (Exist) kind() string  { return "exist" }
func (Object) kind() string { return "object" }
func (Map) kind() string    { return "map" }

// Query selects elements relative to the current context. Either a plain CSS
// selector, or a selector with Or alternatives tried in order until one
// matches, which keeps adapters resilient to markup variants.
type Query struct {
	Selector string  `json:"selector,omitempty"`
	Or       []Query `json:"or,omitempty"`
}

// Sel is shorthand for a plain selector query.
func Sel(selector string) *Query {
	return &Query{Selector: selector}
}

// UnmarshalJSON accepts either a bare selector string or the structured
// {selector, or} form.
func (q *Query) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.WithStack(err)
		}
		*q = Query{Selector: s}
		return nil
	}

	type alias Query
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return errors.WithStack(err)
	}
	*q = Query(a)
	return nil
}

// envelope is the tagged wire shape of an operation.
type envelope struct {
	Type     string                     `json:"type"`
	Query    *Query                     `json:"query,omitempty"`
	Includes string                     `json:"includes,omitempty"`
	Name     string                     `json:"name,omitempty"`
	Optional bool                       `json:"optional,omitempty"`
	Inner    json.RawMessage            `json:"inner,omitempty"`
	Fields   map[string]json.RawMessage `json:"fields,omitempty"`
	Item     map[string]json.RawMessage `json:"item,omitempty"`
}

// Marshal serializes an operation tree into its tagged JSON wire shape.
func Marshal(op Operation) ([]byte, error) {
	env, err := toEnvelope(op)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(env)
	return data, errors.WithStack(err)
}

// Unmarshal parses the tagged JSON wire shape back into an operation tree.
// An unknown type tag is an error: it means an adapter definition is broken,
// not that a document looked unexpected.
func Unmarshal(data []byte) (Operation, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.WithStack(err)
	}
	return fromEnvelope(&env)
}

func toEnvelope(op Operation) (*envelope, error) {
	switch o := op.(type) {
	case Text:
		return &envelope{Type: "text", Query: o.Query, Includes: o.Includes}, nil
	case Attr:
		return &envelope{Type: "attr", Query: o.Query, Name: o.Name, Optional: o.Optional}, nil
	case Exist:
		inner, err := Marshal(o.Inner)
		if err != nil {
			return nil, err
		}
		return &envelope{Type: "exist", Inner: inner}, nil
	case Object:
		fields, err := marshalOps(o.Fields)
		if err != nil {
			return nil, err
		}
		return &envelope{Type: "object", Query: o.Query, Fields: fields}, nil
	case Map:
		item, err := marshalOps(o.Item)
		if err != nil {
			return nil, err
		}
		return &envelope{Type: "map", Query: o.Query, Item: item}, nil
	case nil:
		return nil, errors.New("cannot marshal nil operation")
	default:
		return nil, errors.Errorf("cannot marshal operation kind %q", op.kind())
	}
}

func fromEnvelope(env *envelope) (Operation, error) {
	switch env.Type {
	case "text":
		return Text{Query: env.Query, Includes: env.Includes}, nil
	case "attr":
		return Attr{Query: env.Query, Name: env.Name, Optional: env.Optional}, nil
	case "exist":
		if len(env.Inner) == 0 {
			return nil, errors.New("exist operation requires an inner operation")
		}
		inner, err := Unmarshal(env.Inner)
		if err != nil {
			return nil, err
		}
		return Exist{Inner: inner}, nil
	case "object":
		fields, err := unmarshalOps(env.Fields)
		if err != nil {
			return nil, err
		}
		return Object{Query: env.Query, Fields: fields}, nil
	case "map":
		item, err := unmarshalOps(env.Item)
		if err != nil {
			return nil, err
		}
		return Map{Query: env.Query, Item: item}, nil
	default:
		return nil, errors.Errorf("unknown operation type %q", env.Type)
	}
}

func marshalOps(ops map[string]Operation) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(ops))
	for name, op := range ops {
		data, err := Marshal(op)
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", name)
		}
		out[name] = data
	}
	return out, nil
}

func unmarshalOps(raw map[string]json.RawMessage) (map[string]Operation, error) {
	out := make(map[string]Operation, len(raw))
	for name, data := range raw {
		op, err := Unmarshal(data)
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", name)
		}
		out[name] = op
	}
	return out, nil
}
