package stats

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxAverageCount bounds the running averages so old samples age out instead
// of freezing the value.
const maxAverageCount = 1000

type entry struct {
	Value float64 `json:"value"`
	Count int     `json:"count,omitempty"`
	Date  string  `json:"date,omitempty"`
}

// Store is a JSON-file-backed statistics store. It keeps per-group scalar
// values, day-keyed counters and bounded running averages. All methods are
// safe for concurrent use; every mutation is flushed to disk.
type Store struct {
	mu     sync.Mutex
	path   string
	data   map[string]map[string]entry
	now    func() time.Time
	logger *zap.Logger
}

// NewStore loads the store from path. A missing or corrupt file starts an
// empty store rather than failing.
func NewStore(path string, logger *zap.Logger) *Store {
	s := &Store{
		path:   path,
		data:   map[string]map[string]entry{},
		now:    time.Now,
		logger: logger,
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("stats: could not read store file, starting empty", zap.String("path", path), zap.Error(err))
		}
		return s
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		logger.Warn("stats: corrupt store file, starting empty", zap.String("path", path), zap.Error(err))
		s.data = map[string]map[string]entry{}
	}
	return s
}

// Get returns the stored value for group/key.
func (s *Store) Get(group, key string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[group][key]
	if !ok {
		return 0, false
	}
	return e.Value, true
}

// Put stores a scalar value for group/key, stamped with the current day.
func (s *Store) Put(group, key string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.group(group)[key] = entry{Value: value, Date: s.today()}
	s.flush()
}

// PutDaily stores value under group/key at most once per day. When a new day
// brings a larger counter than yesterday's, the delta is folded into the
// group's "average" running average. Meant for monotonic daily counters such
// as consumed Wh.
func (s *Store) PutDaily(group, key string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.group(group)
	today := s.today()
	previous, ok := g[key]
	if ok && previous.Date == today {
		return
	}
	if ok && value > previous.Value {
		s.updatePercentLocked(group, "average", value-previous.Value, 30)
	}
	g[key] = entry{Value: value, Date: today}
	s.flush()
}

// UpdatePercent folds value into the bounded running average at group/key and
// returns the new average.
func (s *Store) UpdatePercent(group, key string, value float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	avg := s.updatePercentLocked(group, key, value, maxAverageCount)
	s.flush()
	return avg
}

func (s *Store) updatePercentLocked(group, key string, newValue float64, maxCount int) float64 {
	g := s.group(group)
	e, ok := g[key]
	if !ok || e.Count == 0 {
		g[key] = entry{Value: newValue, Count: 1, Date: s.today()}
		return newValue
	}
	value, count := e.Value, e.Count
	if count >= maxCount {
		// drop one average-weight sample so the window stays bounded
		total := value*float64(count) - value
		count--
		value = total / float64(count)
	}
	value = (float64(count)*value + newValue) / float64(count+1)
	count++
	g[key] = entry{Value: value, Count: count, Date: s.today()}
	return value
}

// Remove deletes group/key if present.
func (s *Store) Remove(group, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.data[group]; ok {
		if _, ok := g[key]; ok {
			delete(g, key)
			s.flush()
		}
	}
}

// Snapshot returns a deep copy of the store contents for status reporting.
func (s *Store) Snapshot() map[string]map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[string]float64, len(s.data))
	for group, entries := range s.data {
		out[group] = make(map[string]float64, len(entries))
		for key, e := range entries {
			out[group][key] = e.Value
		}
	}
	return out
}

func (s *Store) group(name string) map[string]entry {
	g, ok := s.data[name]
	if !ok {
		g = map[string]entry{}
		s.data[name] = g
	}
	return g
}

func (s *Store) today() string {
	return s.now().Format("2006-01-02")
}

func (s *Store) flush() {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		s.logger.Error("stats: could not encode store", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		s.logger.Error("stats: could not write store file", zap.String("path", s.path), zap.Error(err))
	}
}
