package datamodel

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/robindai518/libiec61850/internal/eventlog"
	logpkg "github.com/robindai518/libiec61850/pkg/log"
)

var (
	ErrUnknownAttribute = errors.New("datamodel: unknown attribute")
	ErrTypeMismatch     = errors.New("datamodel: type mismatch")
)

// Type is the basic type of a data attribute.
type Type string

const (
	TypeBool      Type = "bool"
	TypeFloat     Type = "float"
	TypeInt       Type = "int"
	TypeString    Type = "string"
	TypeTimestamp Type = "timestamp"
)

func (t Type) valid() bool {
	switch t {
	case TypeBool, TypeFloat, TypeInt, TypeString, TypeTimestamp:
		return true
	}
	return false
}

// File is the YAML layout of a model file.
type File struct {
	Name       string          `yaml:"name"`
	Attributes []AttributeSpec `yaml:"attributes"`
}

// AttributeSpec declares one data attribute and its initial value.
type AttributeSpec struct {
	Ref   string      `yaml:"ref"`
	Type  Type        `yaml:"type"`
	Value interface{} `yaml:"value"`
}

// Model is a flat set of data attributes addressed by object reference
// (LD/LN.DO.DA). All reads and writes go through one coarse lock.
type Model struct {
	name string
	log  logpkg.Logger

	mu       sync.Mutex
	attrs    map[string]*attribute
	controls []*LogControl
}

type attribute struct {
	ref   string
	typ   Type
	value interface{} // bool | float64 | int64 | string | eventlog.Timestamp
}

// DefaultFile describes the GenericIO sample device.
func DefaultFile() File {
	return File{
		Name: "GenericIO",
		Attributes: []AttributeSpec{
			{Ref: "GenericIO/GGIO1.AnIn1.mag.f", Type: TypeFloat, Value: 1.0},
			{Ref: "GenericIO/GGIO1.AnIn1.t", Type: TypeTimestamp},
			{Ref: "GenericIO/GGIO1.SPCSO1.stVal", Type: TypeBool, Value: true},
			{Ref: "GenericIO/GGIO1.SPCSO1.t", Type: TypeTimestamp},
		},
	}
}

// Load reads a YAML model file. An empty path yields the default model.
func Load(path string, logger logpkg.Logger) (*Model, error) {
	if path == "" {
		return New(DefaultFile(), logger)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	return New(f, logger)
}

// New builds a model from its declaration.
func New(f File, logger logpkg.Logger) (*Model, error) {
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	m := &Model{name: f.Name, log: logger.WithComponent("datamodel"), attrs: make(map[string]*attribute, len(f.Attributes))}
	for _, spec := range f.Attributes {
		if spec.Ref == "" || !strings.Contains(spec.Ref, "/") {
			return nil, fmt.Errorf("invalid attribute reference %q", spec.Ref)
		}
		if !spec.Type.valid() {
			return nil, fmt.Errorf("attribute %s: unknown type %q", spec.Ref, spec.Type)
		}
		if _, dup := m.attrs[spec.Ref]; dup {
			return nil, fmt.Errorf("duplicate attribute %s", spec.Ref)
		}
		v, err := normalize(spec.Type, spec.Value)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", spec.Ref, err)
		}
		m.attrs[spec.Ref] = &attribute{ref: spec.Ref, typ: spec.Type, value: v}
	}
	return m, nil
}

// normalize converts a YAML scalar to the Go representation of t. A nil value
// yields the zero value.
func normalize(t Type, v interface{}) (interface{}, error) {
	switch t {
	case TypeBool:
		if v == nil {
			return false, nil
		}
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeFloat:
		switch x := v.(type) {
		case nil:
			return float64(0), nil
		case float64:
			return x, nil
		case int:
			return float64(x), nil
		}
	case TypeInt:
		switch x := v.(type) {
		case nil:
			return int64(0), nil
		case int:
			return int64(x), nil
		case int64:
			return x, nil
		case float64:
			if x == math.Trunc(x) {
				return int64(x), nil
			}
		}
	case TypeString:
		if v == nil {
			return "", nil
		}
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeTimestamp:
		switch x := v.(type) {
		case nil:
			return eventlog.Timestamp{}, nil
		case eventlog.Timestamp:
			return x, nil
		}
	}
	return nil, fmt.Errorf("%w: %T is not %s", ErrTypeMismatch, v, t)
}

// Name returns the model (device) name.
func (m *Model) Name() string { return m.name }

// Refs returns every attribute reference in sorted order.
func (m *Model) Refs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.attrs))
	for ref := range m.attrs {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

// Get returns the current value and type of an attribute.
func (m *Model) Get(ref string) (interface{}, Type, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attrs[ref]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownAttribute, ref)
	}
	return a.value, a.typ, nil
}

// TimeRef returns the reference of the "t" attribute of the data object that
// owns ref: LD/LN.DO.x.y -> LD/LN.DO.t. It returns "" when ref has no data
// object part.
func TimeRef(ref string) string {
	slash := strings.IndexByte(ref, '/')
	if slash < 0 {
		return ""
	}
	parts := strings.SplitN(ref[slash+1:], ".", 3)
	if len(parts) < 2 {
		return ""
	}
	return ref[:slash+1] + parts[0] + "." + parts[1] + ".t"
}
