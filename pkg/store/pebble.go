package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"echoclub/pkg/logger"
	"echoclub/pkg/models"

	"github.com/cockroachdb/pebble"
)

var db *pebble.DB

// seq is a per-process write counter baked into message keys so that two
// writes accepted on the same timestamp tick still have a stable total
// order across repeated reads.
var seq uint64

// lastTS tracks the last assigned server timestamp to keep assigned times
// monotonically non-decreasing even if the wall clock steps backwards.
var lastTS int64

// Key namespaces. Messages are keyed by a sortable timestamp+sequence id so
// ascending key iteration yields ascending timestamp order; presence and
// user records are keyed by identity.
const (
	msgPrefix      = "msg:"
	presencePrefix = "presence:"
	userPrefix     = "user:"
)

// Open opens (or creates) a Pebble database at the given path and keeps a
// global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

// ServerTime returns a store-assigned timestamp (UTC ns), monotonically
// non-decreasing across the writes this process accepts.
func ServerTime() int64 {
	for {
		now := time.Now().UTC().UnixNano()
		last := atomic.LoadInt64(&lastTS)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTS, last, now) {
			return now
		}
	}
}

// AppendMessage writes a new message with a store-assigned id and
// timestamp and returns the stored message. The id embeds the timestamp and
// a write sequence, so key order is timestamp order with a stable
// tie-break. Message timestamps are set exactly once here and never
// mutated afterwards.
func AppendMessage(msg models.Message) (models.Message, error) {
	if db == nil {
		return models.Message{}, fmt.Errorf("pebble not opened; call store.Open first")
	}
	ts := ServerTime()
	s := atomic.AddUint64(&seq, 1)
	msg.ID = fmt.Sprintf("%020d-%06d", ts, s)
	msg.TS = ts

	data, err := json.Marshal(msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	key := msgPrefix + msg.ID
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("append_message_failed", "key", key, "error", err)
		return models.Message{}, err
	}
	writesTotal.WithLabelValues("messages").Inc()
	logger.Debug("message_appended", "id", msg.ID, "system", msg.System)
	hub.notify(CollectionMessages)
	return msg, nil
}

// DeleteMessage removes a single message by its store-assigned id.
// Deleting an id that is already gone is not an error.
func DeleteMessage(id string) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if err := db.Delete([]byte(msgPrefix+id), pebble.Sync); err != nil {
		logger.Error("delete_message_failed", "id", id, "error", err)
		return err
	}
	deletesTotal.WithLabelValues("messages").Inc()
	hub.notify(CollectionMessages)
	return nil
}

// ListMessages returns all messages ordered ascending by timestamp (key
// order).
func ListMessages() ([]models.Message, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte(msgPrefix)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Error("list_messages_invalid_json", "key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// PutPresence upserts the presence entry for its UserID with a fresh
// server-assigned LastActive. A write for an already-present identity
// overwrites in place.
func PutPresence(e models.PresenceEntry) (models.PresenceEntry, error) {
	if db == nil {
		return models.PresenceEntry{}, fmt.Errorf("pebble not opened; call store.Open first")
	}
	if e.UserID == "" {
		return models.PresenceEntry{}, fmt.Errorf("presence entry missing user id")
	}
	e.LastActive = ServerTime()
	data, err := json.Marshal(e)
	if err != nil {
		return models.PresenceEntry{}, fmt.Errorf("failed to marshal presence entry: %w", err)
	}
	if err := db.Set([]byte(presencePrefix+e.UserID), data, pebble.Sync); err != nil {
		logger.Error("put_presence_failed", "user", e.UserID, "error", err)
		return models.PresenceEntry{}, err
	}
	writesTotal.WithLabelValues("presence").Inc()
	logger.Debug("presence_put", "user", e.UserID)
	hub.notify(CollectionPresence)
	return e, nil
}

// DeletePresence removes the presence entry for the given user id.
func DeletePresence(userID string) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if err := db.Delete([]byte(presencePrefix+userID), pebble.Sync); err != nil {
		logger.Error("delete_presence_failed", "user", userID, "error", err)
		return err
	}
	deletesTotal.WithLabelValues("presence").Inc()
	hub.notify(CollectionPresence)
	return nil
}

// ListPresence returns every presence entry. Order is key order and carries
// no meaning; callers sort for display.
func ListPresence() ([]models.PresenceEntry, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte(presencePrefix)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.PresenceEntry
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var e models.PresenceEntry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			logger.Error("list_presence_invalid_json", "key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, iter.Error()
}

// SaveUser persists a credential record keyed by lowercased name.
func SaveUser(u models.User) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	key := userPrefix + strings.ToLower(u.Name)
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("save_user_failed", "name", u.Name, "error", err)
		return err
	}
	logger.Info("user_saved", "name", u.Name, "id", u.ID)
	return nil
}

// GetUser looks up a credential record by name. The second return reports
// whether the record exists.
func GetUser(name string) (models.User, bool, error) {
	if db == nil {
		return models.User{}, false, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(userPrefix + strings.ToLower(name)))
	if err != nil {
		if err == pebble.ErrNotFound {
			return models.User{}, false, nil
		}
		return models.User{}, false, err
	}
	defer closer.Close()
	var u models.User
	if err := json.Unmarshal(v, &u); err != nil {
		return models.User{}, false, fmt.Errorf("invalid user record: %w", err)
	}
	return u, true, nil
}
