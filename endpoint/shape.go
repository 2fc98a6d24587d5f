package endpoint

import (
	"fmt"
	"reflect"
)

// LayerKind identifies a wrapper layer of a return shape.
type LayerKind int

const (
	AsyncLayer LayerKind = iota + 1
	OptionalLayer
)

func (k LayerKind) String() string {
	switch k {
	case AsyncLayer:
		return "async"
	case OptionalLayer:
		return "optional"
	default:
		return "unknown"
	}
}

// asyncWrapper is implemented by *async.Future[T].
type asyncWrapper interface {
	AsyncElem() reflect.Type
	NewPendingAny() (future any, complete func(result any, err error))
}

// optionalWrapper is implemented by optional.Value[T].
type optionalWrapper interface {
	OptionalElem() reflect.Type
	WrapAny(result any) (wrapped any, ok bool)
}

type layer struct {
	kind LayerKind
	typ  reflect.Type
}

// Shape describes a declared return type: which wrapper layers surround
// the payload the decoder must produce.
type Shape struct {
	Declared reflect.Type
	// Payload is the effective payload type handed to decoders.
	Payload  reflect.Type
	Async    bool
	Optional bool
	// layers are ordered outermost first.
	layers []layer
}

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// UnwrapShape strips at most one async layer and at most one optional
// layer, in either order, from declared. A nil declared type is any.
func UnwrapShape(declared reflect.Type) Shape {
	if declared == nil {
		declared = anyType
	}
	s := Shape{Declared: declared}
	t := declared
	for {
		if w, ok := wrapperOf[asyncWrapper](t); ok && !s.Async {
			s.Async = true
			s.layers = append(s.layers, layer{kind: AsyncLayer, typ: t})
			t = w.AsyncElem()
			continue
		}
		if w, ok := wrapperOf[optionalWrapper](t); ok && !s.Optional {
			s.Optional = true
			s.layers = append(s.layers, layer{kind: OptionalLayer, typ: t})
			t = w.OptionalElem()
			continue
		}
		break
	}
	s.Payload = t
	return s
}

// wrapperOf reports whether the zero value of t implements W.
func wrapperOf[W any](t reflect.Type) (W, bool) {
	var none W
	if t.Kind() == reflect.Interface {
		return none, false
	}
	w, ok := reflect.Zero(t).Interface().(W)
	return w, ok
}

// Layers returns the wrapper kinds, outermost first.
func (s Shape) Layers() []LayerKind {
	kinds := make([]LayerKind, len(s.layers))
	for i, l := range s.layers {
		kinds[i] = l.kind
	}
	return kinds
}

func (s Shape) String() string {
	out := s.Payload.String()
	for i := len(s.layers) - 1; i >= 0; i-- {
		out = fmt.Sprintf("%s<%s>", s.layers[i].kind, out)
	}
	return out
}

// Wrap converts a decoded payload into a value of the declared type,
// boxed as any. For async shapes the result holds an already completed
// future.
func (s Shape) Wrap(payload any) (any, error) {
	return wrap(s.layers, payload)
}

// Pending builds the declared value of an async shape before the payload
// is known. complete resolves the embedded future exactly as Wrap would
// have built it. Pending panics on shapes without an async layer.
func (s Shape) Pending() (declared any, complete func(payload any, err error)) {
	k := -1
	for i, l := range s.layers {
		if l.kind == AsyncLayer {
			k = i
			break
		}
	}
	if k < 0 {
		panic("endpoint: Pending on a synchronous shape " + s.String())
	}

	w, _ := wrapperOf[asyncWrapper](s.layers[k].typ)
	future, finish := w.NewPendingAny()
	inner := s.layers[k+1:]
	complete = func(payload any, err error) {
		if err != nil {
			finish(nil, err)
			return
		}
		finish(wrap(inner, payload))
	}

	declared, err := wrap(s.layers[:k], future)
	if err != nil {
		panic(err)
	}
	return declared, complete
}

func wrap(layers []layer, v any) (any, error) {
	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		switch l.kind {
		case OptionalLayer:
			w, _ := wrapperOf[optionalWrapper](l.typ)
			wrapped, ok := w.WrapAny(v)
			if !ok {
				return nil, fmt.Errorf("endpoint: decoded %T does not fit %s", v, l.typ)
			}
			v = wrapped
		case AsyncLayer:
			w, _ := wrapperOf[asyncWrapper](l.typ)
			future, finish := w.NewPendingAny()
			finish(v, nil)
			v = future
		}
	}
	return v, nil
}
