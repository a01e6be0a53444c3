package follower

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Serializer turns domain values to and from bytes for the event log and
// the wire envelope. The default JSONSerializer covers everything this
// module needs; a wire-format-specific serializer is an external
// collaborator per the runtime specification.
type Serializer interface {
	Serialize(v any) ([]byte, error)
	Deserialize(typeName string, data []byte) (any, error)
}

// TypeRegistry resolves a wire envelope's TypeName to a constructor for
// the zero value of the concrete event kind it decodes to. It is
// process-wide and read-mostly: register every known event type before
// the first Tell(bytes) call, then only ever read from it.
type TypeRegistry struct {
	mu    sync.RWMutex
	zeros map[string]func() any
}

// NewTypeRegistry returns an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{zeros: make(map[string]func() any)}
}

// Register associates typeName with a constructor for the zero value of
// the event kind it names. Re-registering the same name overwrites the
// prior constructor.
func (r *TypeRegistry) Register(typeName string, zero func() any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zeros[typeName] = zero
}

// Get returns the constructor registered for typeName, if any.
func (r *TypeRegistry) Get(typeName string) (func() any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.zeros[typeName]
	return fn, ok
}

// JSONSerializer is the default Serializer, backed by encoding/json and a
// TypeRegistry for resolving the concrete Go type to unmarshal into.
type JSONSerializer struct {
	Registry *TypeRegistry
}

func NewJSONSerializer(registry *TypeRegistry) *JSONSerializer {
	return &JSONSerializer{Registry: registry}
}

func (s *JSONSerializer) Serialize(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (s *JSONSerializer) Deserialize(typeName string, data []byte) (any, error) {
	zero, ok := s.Registry.Get(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: unregistered type %q", ErrDeserialization, typeName)
	}
	v := zero()
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	return v, nil
}
