package tabstorage

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	syncerrors "github.com/jrsteele09/go-resource-sync/internal/errors"
)

// TabIDKey is the tab-tier key holding the tab identifier. It is the only
// key that is not namespaced by the tab identifier itself.
const TabIDKey = "tabId"

// ErrStorage wraps every tier I/O failure
var ErrStorage = syncerrors.ErrStorage

// Storage gives one tab an independent working copy of session data on top
// of a durable tier shared by every tab. Writes go to both tiers; reads prefer
// the tab tier and promote durable values into it on a miss.
type Storage struct {
	tab     Tier
	durable Tier
	tabID   string
	logger  zerolog.Logger
	newID   func() string

	// held across both tier writes so this tab never observes a half-applied write
	mu sync.Mutex
}

type Option func(*Storage)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Storage) {
		s.logger = logger
	}
}

// WithIDGenerator overrides how a new tab identifier is produced
func WithIDGenerator(newID func() string) Option {
	return func(s *Storage) {
		s.newID = newID
	}
}

// New opens a Storage for one tab. The tab identifier is read from the tab
// tier, or generated and cached there when the tab is new.
func New(tab, durable Tier, options ...Option) (*Storage, error) {
	if tab == nil {
		return nil, fmt.Errorf("[tabstorage.New] tab tier is required")
	}
	if durable == nil {
		return nil, fmt.Errorf("[tabstorage.New] durable tier is required")
	}

	s := &Storage{
		tab:     tab,
		durable: durable,
		logger:  log.Logger,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range options {
		opt(s)
	}

	tabID, ok, err := tab.Get(TabIDKey)
	if err != nil {
		return nil, syncerrors.Wrapf(err, "[tabstorage.New] read tab id")
	}
	if !ok || tabID == "" {
		tabID = s.newID()
		if err := tab.Set(TabIDKey, tabID); err != nil {
			return nil, syncerrors.Wrapf(err, "[tabstorage.New] store tab id")
		}
	}
	s.tabID = tabID
	return s, nil
}

// TabID returns the identifier of the tab this Storage belongs to
func (s *Storage) TabID() string {
	return s.tabID
}

func (s *Storage) tabKey(key string) string {
	return s.tabID + "_" + key
}

// GetRaw returns the serialized value for key. A durable value found on a tab
// miss is copied into the tab tier before returning.
func (s *Storage) GetRaw(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok, err := s.tab.Get(s.tabKey(key))
	if err != nil {
		return "", false, fmt.Errorf("tab tier get %q: %w: %w", key, syncerrors.ErrStorage, err)
	}
	if ok {
		return value, true, nil
	}

	value, ok, err = s.durable.Get(key)
	if err != nil {
		return "", false, fmt.Errorf("durable tier get %q: %w: %w", key, syncerrors.ErrStorage, err)
	}
	if !ok {
		return "", false, nil
	}

	if err := s.tab.Set(s.tabKey(key), value); err != nil {
		return "", false, fmt.Errorf("tab tier promote %q: %w: %w", key, syncerrors.ErrStorage, err)
	}
	s.logger.Debug().Str("tab_id", s.tabID).Str("key", key).Msg("promoted durable value into tab tier")
	return value, true, nil
}

// Get decodes the JSON value stored under key into out. It reports false,
// without error, when the key is absent from both tiers.
func (s *Storage) Get(key string, out any) (bool, error) {
	raw, ok, err := s.GetRaw(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// Set serializes value as JSON and writes it to the durable tier and then the
// tab tier.
func (s *Storage) Set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.durable.Set(key, string(data)); err != nil {
		return fmt.Errorf("durable tier set %q: %w: %w", key, syncerrors.ErrStorage, err)
	}
	if err := s.tab.Set(s.tabKey(key), string(data)); err != nil {
		return fmt.Errorf("tab tier set %q: %w: %w", key, syncerrors.ErrStorage, err)
	}
	return nil
}

// Remove clears key from both tiers
func (s *Storage) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.durable.Delete(key); err != nil {
		return fmt.Errorf("durable tier delete %q: %w: %w", key, syncerrors.ErrStorage, err)
	}
	if err := s.tab.Delete(s.tabKey(key)); err != nil {
		return fmt.Errorf("tab tier delete %q: %w: %w", key, syncerrors.ErrStorage, err)
	}
	return nil
}
