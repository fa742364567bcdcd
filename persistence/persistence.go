package persistence

import (
	"bytes"
	"encoding/gob"
	"time"

	"go.etcd.io/bbolt"

	"taskchat-client/models"
)

var (
	conversationsBucket = []byte("conversations")
	messagesBucket      = []byte("messages")
)

// Manager caches conversation state on disk so a fresh session can render
// without a round-trip. Message lists are stored whole per conversation.
type Manager struct {
	db *bbolt.DB
}

func NewManager(path string) (*Manager, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(conversationsBucket)
		if err != nil {
			return err
		}
		_, err = tx.CreateBucketIfNotExists(messagesBucket)
		return err
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &Manager{db: db}, nil
}

func (m *Manager) SaveConversation(conv *models.Conversation) error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(conversationsBucket)
		data, err := encodeToBinary(conv)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(conv.ID), data)
	})
}

func (m *Manager) LoadConversations() ([]models.Conversation, error) {
	var convs []models.Conversation

	err := m.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(conversationsBucket)
		cursor := bucket.Cursor()

		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var conv models.Conversation
			if err := decodeBinary(v, &conv); err != nil {
				continue
			}
			convs = append(convs, conv)
		}

		return nil
	})

	return convs, err
}

// SaveMessages replaces the cached message list of a conversation. The
// in-memory store is the source of truth, so whole-list replacement keeps
// the cache consistent with it.
func (m *Manager) SaveMessages(conversationID string, msgs []models.Message) error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(messagesBucket)
		data, err := encodeToBinary(msgs)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(conversationID), data)
	})
}

func (m *Manager) LoadMessages(conversationID string) ([]models.Message, error) {
	var msgs []models.Message

	err := m.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(messagesBucket)
		data := bucket.Get([]byte(conversationID))
		if data == nil {
			return nil
		}
		return decodeBinary(data, &msgs)
	})

	return msgs, err
}

// DeleteMessage rewrites the conversation's cached list without the given
// message.
func (m *Manager) DeleteMessage(conversationID, messageID string) error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(messagesBucket)
		data := bucket.Get([]byte(conversationID))
		if data == nil {
			return nil
		}

		var msgs []models.Message
		if err := decodeBinary(data, &msgs); err != nil {
			return err
		}

		kept := msgs[:0]
		for _, msg := range msgs {
			if msg.ID != messageID {
				kept = append(kept, msg)
			}
		}

		updated, err := encodeToBinary(kept)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(conversationID), updated)
	})
}

func (m *Manager) Close() error {
	return m.db.Close()
}

func encodeToBinary(data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(data)
	return buf.Bytes(), err
}

func decodeBinary(data []byte, target interface{}) error {
	buf := bytes.NewBuffer(data)
	return gob.NewDecoder(buf).Decode(target)
}
