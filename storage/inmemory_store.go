package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/luma/mrcp/protocol"
)

// DefaultMaxExchanges is how many exchanges an InmemoryStore keeps by
// default before dropping the oldest.
const DefaultMaxExchanges = 1000

type InmemoryStore struct {
	mu     sync.RWMutex
	values []byte

	// exchanges holds the paths of recorded exchanges, oldest first
	exchanges    []string
	recorded     map[string]struct{}
	maxExchanges int

	updatesMu   sync.Mutex
	updateChans []chan *Update

	// stop will be closed when Close() is called
	stop chan struct{}
}

type Option func(*InmemoryStore)

// WithMaxExchanges bounds the number of exchanges kept to n, recording a new one
// beyond n drops the oldest. Zero or less keeps everything.
func WithMaxExchanges(n int) Option {
	return func(i *InmemoryStore) {
		i.maxExchanges = n
	}
}

func NewInmemoryStore(opts ...Option) *InmemoryStore {
	i := &InmemoryStore{
		values:       []byte(""),
		recorded:     make(map[string]struct{}),
		maxExchanges: DefaultMaxExchanges,
		stop:         make(chan struct{}),
		updateChans:  make([]chan *Update, 0),
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

func (i *InmemoryStore) Close() error {
	i.updatesMu.Lock()
	defer i.updatesMu.Unlock()

	if !i.isRunning() {
		return nil
	}

	close(i.stop)

	for _, updateChan := range i.updateChans {
		close(updateChan)
	}
	i.updateChans = nil

	return nil
}

func (i *InmemoryStore) Record(ctx context.Context, channelID string, msg protocol.Message) error {
	base := EscapePathComponent(channelID) + ".:" + msg.GetRequestID().String()
	key := Path(channelID, msg.GetRequestID())

	switch m := msg.(type) {
	case *protocol.Request:
		if err := i.set(base+".method", key, string(m.Method), base); err != nil {
			return err
		}
		return i.set(base+".request", key, newRequestRecord(m), base)

	case *protocol.Response:
		return i.set(base+".responses.-1", key, newResponseRecord(m), base)

	case *protocol.Event:
		return i.set(base+".events.-1", key, newEventRecord(m), base)

	default:
		return fmt.Errorf("cannot record message of type %T", msg)
	}
}

// Set stores value at key, which is an sjson path.
func (i *InmemoryStore) Set(ctx context.Context, key []byte, value interface{}) error {
	return i.set(string(key), key, value, "")
}

// set writes value at the sjson path and notifies listeners with the value
// now stored at the gjson path key. exchange is the sjson path of the
// exchange being recorded, if any.
func (i *InmemoryStore) set(path string, key []byte, value interface{}, exchange string) (err error) {
	i.mu.Lock()
	i.values, err = sjson.SetBytes(i.values, path, value)
	if err != nil {
		i.mu.Unlock()
		return fmt.Errorf("Failed to set %s: %w", path, err)
	}

	if exchange != "" {
		if err := i.trackExchange(exchange); err != nil {
			i.mu.Unlock()
			return err
		}
	}

	updated := []byte(gjson.GetBytes(i.values, string(key)).Raw)
	i.mu.Unlock()

	i.publish(&Update{Key: key, Value: updated})

	return nil
}

// trackExchange remembers exchange and drops the oldest exchanges beyond
// maxExchanges. i.mu must be held.
func (i *InmemoryStore) trackExchange(exchange string) (err error) {
	if _, ok := i.recorded[exchange]; ok {
		return nil
	}

	i.recorded[exchange] = struct{}{}
	i.exchanges = append(i.exchanges, exchange)

	for i.maxExchanges > 0 && len(i.exchanges) > i.maxExchanges {
		oldest := i.exchanges[0]

		i.values, err = sjson.DeleteBytes(i.values, oldest)
		if err != nil {
			return fmt.Errorf("Failed to drop %s: %w", oldest, err)
		}

		delete(i.recorded, oldest)
		i.exchanges = i.exchanges[1:]
	}

	return nil
}

func (i *InmemoryStore) publish(update *Update) {
	i.updatesMu.Lock()
	defer i.updatesMu.Unlock()

	if !i.isRunning() {
		return
	}

	for _, updateChan := range i.updateChans {
		select {
		case updateChan <- update:
		default:
			// The listener is not keeping up, it misses this one
		}
	}
}

func (i *InmemoryStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	result := gjson.GetBytes(i.values, string(key))
	if !result.Exists() {
		return nil, ErrNotFound
	}

	return []byte(result.Raw), nil
}

func (i *InmemoryStore) ListenToUpdates() <-chan *Update {
	i.updatesMu.Lock()
	defer i.updatesMu.Unlock()

	updateChan := make(chan *Update, 255)
	if !i.isRunning() {
		close(updateChan)
		return updateChan
	}

	i.updateChans = append(i.updateChans, updateChan)

	return updateChan
}

// StopListening closes updates, which must have come from ListenToUpdates.
func (i *InmemoryStore) StopListening(updates <-chan *Update) {
	i.updatesMu.Lock()
	defer i.updatesMu.Unlock()

	for n, updateChan := range i.updateChans {
		if updateChan != updates {
			continue
		}

		close(updateChan)
		i.updateChans = append(i.updateChans[:n], i.updateChans[n+1:]...)
		return
	}
}

func (i *InmemoryStore) Restore(values []byte) error {
	if len(values) > 0 && !gjson.ValidBytes(values) {
		return fmt.Errorf("cannot restore from invalid JSON")
	}

	restored := make([]byte, len(values))
	copy(restored, values)

	i.mu.Lock()
	defer i.mu.Unlock()

	i.values = restored

	// Restored exchanges are not counted towards maxExchanges
	i.exchanges = nil
	i.recorded = make(map[string]struct{})

	return nil
}

func (i *InmemoryStore) Backup() ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(i.values) == 0 {
		return []byte("{}"), nil
	}

	backup := make([]byte, len(i.values))
	copy(backup, i.values)

	return backup, nil
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

var _ Store = (*InmemoryStore)(nil)
