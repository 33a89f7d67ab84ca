package graph

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
)

// MergePolicy decides how a partial update is folded into a channel's current value.
type MergePolicy int

const (
	// Replace overwrites the current value with the update.
	Replace MergePolicy = iota
	// Append concatenates the update onto the current slice. The channel type must be a slice.
	Append
)

func (p MergePolicy) String() string {
	switch p {
	case Replace:
		return "replace"
	case Append:
		return "append"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ChannelSpec declares one key of the graph state.
type ChannelSpec struct {
	Name   string
	Policy MergePolicy
	// Type is the declared Go type; values written to the channel must be assignable to it.
	Type reflect.Type
	// Private channels are not inherited by fan-out branches.
	Private bool
}

// ChannelOption configures a ChannelSpec.
type ChannelOption func(*ChannelSpec)

// Private marks the channel as not inherited by fan-out branches.
func Private() ChannelOption {
	return func(s *ChannelSpec) {
		s.Private = true
	}
}

// Channel declares a state channel holding values of type T.
//
//	graph.Channel[string]("topic", graph.Replace)
//	graph.Channel[[]llm.Message]("messages", graph.Append)
func Channel[T any](name string, policy MergePolicy, opts ...ChannelOption) ChannelSpec {
	spec := ChannelSpec{
		Name:   name,
		Policy: policy,
		Type:   reflect.TypeFor[T](),
	}
	for _, opt := range opts {
		opt(&spec)
	}
	return spec
}

func (s ChannelSpec) validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: empty channel name", ErrInvalidChannel)
	}
	if s.Type == nil {
		return fmt.Errorf("%w: channel %q has no type", ErrInvalidChannel, s.Name)
	}
	switch s.Policy {
	case Replace:
	case Append:
		if s.Type.Kind() != reflect.Slice {
			return fmt.Errorf("%w: append channel %q must be a slice, got %s", ErrInvalidChannel, s.Name, s.Type)
		}
	default:
		return fmt.Errorf("%w: channel %q has unknown policy %s", ErrInvalidChannel, s.Name, s.Policy)
	}
	return nil
}

func (s ChannelSpec) sameAs(o ChannelSpec) bool {
	return s.Policy == o.Policy && s.Type == o.Type && s.Private == o.Private
}

// merge folds update into current according to the channel policy.
func (s ChannelSpec) merge(current, update any) (any, error) {
	if s.Policy == Replace {
		if err := s.check(update); err != nil {
			return nil, err
		}
		return update, nil
	}

	var add reflect.Value
	if update != nil {
		uv := reflect.ValueOf(update)
		switch {
		case uv.Type().AssignableTo(s.Type):
			add = uv.Convert(s.Type)
		case uv.Type().AssignableTo(s.Type.Elem()):
			add = reflect.Append(reflect.MakeSlice(s.Type, 0, 1), uv)
		default:
			return nil, fmt.Errorf("%w: cannot append %T to %s", ErrChannelType, update, s.Type)
		}
	}

	size := 0
	if add.IsValid() {
		size = add.Len()
	}
	var cur reflect.Value
	if current != nil {
		cur = reflect.ValueOf(current)
		if !cur.Type().AssignableTo(s.Type) {
			return nil, fmt.Errorf("%w: current value %T is not %s", ErrChannelType, current, s.Type)
		}
		cur = cur.Convert(s.Type)
		size += cur.Len()
	}

	// Always build a fresh slice so the result never shares a backing array with old state.
	out := reflect.MakeSlice(s.Type, 0, size)
	if cur.IsValid() {
		out = reflect.AppendSlice(out, cur)
	}
	if add.IsValid() {
		out = reflect.AppendSlice(out, add)
	}
	return out.Interface(), nil
}

func (s ChannelSpec) check(v any) error {
	if v == nil {
		switch s.Type.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
			return nil
		}
		return fmt.Errorf("%w: nil is not a valid %s", ErrChannelType, s.Type)
	}
	if !reflect.TypeOf(v).AssignableTo(s.Type) {
		return fmt.Errorf("%w: got %T, want %s", ErrChannelType, v, s.Type)
	}
	return nil
}

// coerce converts a generically decoded value (as produced by encoding/json) into the declared type.
func (s ChannelSpec) coerce(v any) (any, error) {
	if v == nil {
		return nil, s.check(nil)
	}
	if reflect.TypeOf(v).AssignableTo(s.Type) {
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	ptr := reflect.New(s.Type)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelType, err)
	}
	return ptr.Elem().Interface(), nil
}

// Channels is the frozen set of channel declarations of a compiled graph.
type Channels map[string]ChannelSpec

// NewChannels validates the declarations and indexes them by name.
func NewChannels(specs ...ChannelSpec) (Channels, error) {
	c := make(Channels, len(specs))
	for _, spec := range specs {
		if err := spec.validate(); err != nil {
			return nil, err
		}
		if prev, ok := c[spec.Name]; ok && !prev.sameAs(spec) {
			return nil, fmt.Errorf("%w: channel %q declared twice", ErrInvalidChannel, spec.Name)
		}
		c[spec.Name] = spec
	}
	return c, nil
}

// Names returns the declared channel names in sorted order.
func (c Channels) Names() []string {
	return slices.Sorted(maps.Keys(c))
}

// Merge returns a new state with partial folded into old. Neither argument is modified.
// Keys absent from partial are carried over unchanged.
func (c Channels) Merge(old, partial State) (State, error) {
	result := make(State, len(old)+len(partial))
	maps.Copy(result, old)

	for _, k := range slices.Sorted(maps.Keys(partial)) {
		spec, ok := c[k]
		if !ok {
			return nil, &StateError{Channel: k, Err: ErrUndeclaredChannel}
		}
		v, err := spec.merge(result[k], partial[k])
		if err != nil {
			return nil, &StateError{Channel: k, Err: err}
		}
		result[k] = v
	}
	return result, nil
}

// Merge folds partial into old using the given channel declarations.
func Merge(old, partial State, channels Channels) (State, error) {
	return channels.Merge(old, partial)
}

// Decode rehydrates a state loaded from a checkpoint store into the declared types.
func (c Channels) Decode(raw map[string]any) (State, error) {
	out := make(State, len(raw))
	for k, v := range raw {
		spec, ok := c[k]
		if !ok {
			return nil, &StateError{Channel: k, Err: ErrUndeclaredChannel}
		}
		tv, err := spec.coerce(v)
		if err != nil {
			return nil, &StateError{Channel: k, Err: err}
		}
		out[k] = tv
	}
	return out, nil
}

// inheritable returns the entries of s that fan-out branches receive.
func (c Channels) inheritable(s State) State {
	out := make(State, len(s))
	for k, v := range s {
		if spec, ok := c[k]; ok && !spec.Private {
			out[k] = v
		}
	}
	return out
}

// union layers other's declarations under c. Shared names must agree.
func (c Channels) union(other Channels) (Channels, error) {
	out := maps.Clone(c)
	for name, spec := range other {
		if prev, ok := out[name]; ok {
			if prev.Policy != spec.Policy || prev.Type != spec.Type {
				return nil, fmt.Errorf("%w: channel %q declared as %s %s and %s %s",
					ErrInvalidChannel, name, prev.Policy, prev.Type, spec.Policy, spec.Type)
			}
			continue
		}
		out[name] = spec
	}
	return out, nil
}
