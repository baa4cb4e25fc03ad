package tabstorage

// Binding is a typed view of a single storage key with a fallback value used
// while nothing has been stored yet.
type Binding[T any] struct {
	storage *Storage
	key     string
	initial T
}

func Bind[T any](storage *Storage, key string, initial T) *Binding[T] {
	return &Binding[T]{
		storage: storage,
		key:     key,
		initial: initial,
	}
}

func (b *Binding[T]) Key() string {
	return b.key
}

// Load returns the stored value, or the initial value when the key is absent
// or cannot be decoded.
func (b *Binding[T]) Load() T {
	var value T
	ok, err := b.storage.Get(b.key, &value)
	if err != nil {
		b.storage.logger.Warn().Err(err).Str("key", b.key).Msg("Binding: falling back to initial value")
		return b.initial
	}
	if !ok {
		return b.initial
	}
	return value
}

func (b *Binding[T]) Store(value T) error {
	return b.storage.Set(b.key, value)
}
