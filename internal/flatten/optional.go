package flatten

// Maybe is a value that may be absent. The zero Maybe is absent.
type Maybe[T any] struct {
	value T
	ok    bool
}

// Some wraps a present value.
func Some[T any](v T) Maybe[T] {
	return Maybe[T]{value: v, ok: true}
}

// None returns an absent value.
func None[T any]() Maybe[T] {
	return Maybe[T]{}
}

// FromPtr treats a nil pointer as absent.
func FromPtr[T any](p *T) Maybe[*T] {
	if p == nil {
		return None[*T]()
	}
	return Some(p)
}

// NonEmpty treats the empty string as absent.
func NonEmpty(s string) Maybe[string] {
	if s == "" {
		return None[string]()
	}
	return Some(s)
}

// Text lifts a (text, ok) pair into a Maybe.
func Text(s string, ok bool) Maybe[string] {
	if !ok {
		return None[string]()
	}
	return NonEmpty(s)
}

// Get returns the value and whether it is present.
func (m Maybe[T]) Get() (T, bool) {
	return m.value, m.ok
}

// Ptr returns a pointer to a copy of the value, or nil when absent.
func (m Maybe[T]) Ptr() *T {
	if !m.ok {
		return nil
	}
	v := m.value
	return &v
}

// Then applies f when m is present. Absence short-circuits.
func Then[T, U any](m Maybe[T], f func(T) Maybe[U]) Maybe[U] {
	if !m.ok {
		return None[U]()
	}
	return f(m.value)
}

// Deref follows a pointer to an optional string.
func Deref(p *string) Maybe[string] {
	if p == nil {
		return None[string]()
	}
	return NonEmpty(*p)
}
