package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"taskchat-client/models"
)

// SQLiteManager archives every observed message locally so history search
// keeps working across sessions and conversation switches.
type SQLiteManager struct {
	db *sql.DB
}

func NewSQLiteManager(path string) (*SQLiteManager, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	// Single writer; sqlite does not benefit from a pool.
	db.SetMaxOpenConns(1)

	return &SQLiteManager{db: db}, nil
}

func (m *SQLiteManager) InitTables() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			submission_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating conversations table: %w", err)
	}

	_, err = m.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			sender_name TEXT NOT NULL,
			sender_email TEXT,
			body TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			attachment_url TEXT,
			attachment_name TEXT,
			attachment_mime TEXT,
			attachment_size INTEGER,
			voice_url TEXT,
			voice_duration INTEGER,
			voice_name TEXT,
			reply_to_id TEXT,
			reply_to_sender TEXT,
			reply_to_snippet TEXT,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("creating messages table: %w", err)
	}

	_, err = m.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages(conversation_id, created_at)
	`)
	if err != nil {
		return fmt.Errorf("creating messages index: %w", err)
	}

	return nil
}

func (m *SQLiteManager) SaveConversation(conv *models.Conversation) error {
	_, err := m.db.Exec(`
		INSERT INTO conversations (id, submission_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET submission_id = excluded.submission_id
	`, conv.ID, conv.SubmissionID, conv.CreatedAt)
	return err
}

func (m *SQLiteManager) SaveMessage(msg *models.Message) error {
	var (
		attURL, attName, attMime sql.NullString
		attSize                  sql.NullInt64
		voiceURL, voiceName      sql.NullString
		voiceDuration            sql.NullInt64
		replyID, replySender     sql.NullString
		replySnippet             sql.NullString
	)
	if msg.Attachment != nil {
		attURL = sql.NullString{String: msg.Attachment.URL, Valid: true}
		attName = sql.NullString{String: msg.Attachment.Name, Valid: true}
		attMime = sql.NullString{String: msg.Attachment.MimeType, Valid: true}
		attSize = sql.NullInt64{Int64: msg.Attachment.Size, Valid: true}
	}
	if msg.Voice != nil {
		voiceURL = sql.NullString{String: msg.Voice.URL, Valid: true}
		voiceDuration = sql.NullInt64{Int64: int64(msg.Voice.Duration), Valid: true}
		voiceName = sql.NullString{String: msg.Voice.Name, Valid: true}
	}
	if msg.ReplyTo != nil {
		replyID = sql.NullString{String: msg.ReplyTo.MessageID, Valid: true}
		replySender = sql.NullString{String: msg.ReplyTo.Sender, Valid: true}
		replySnippet = sql.NullString{String: msg.ReplyTo.Snippet, Valid: true}
	}

	_, err := m.db.Exec(`
		INSERT INTO messages (
			id, conversation_id, sender_id, sender_name, sender_email,
			body, created_at,
			attachment_url, attachment_name, attachment_mime, attachment_size,
			voice_url, voice_duration, voice_name,
			reply_to_id, reply_to_sender, reply_to_snippet
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			body = excluded.body,
			attachment_url = excluded.attachment_url,
			attachment_name = excluded.attachment_name,
			attachment_mime = excluded.attachment_mime,
			attachment_size = excluded.attachment_size,
			voice_url = excluded.voice_url,
			voice_duration = excluded.voice_duration,
			voice_name = excluded.voice_name,
			reply_to_id = excluded.reply_to_id,
			reply_to_sender = excluded.reply_to_sender,
			reply_to_snippet = excluded.reply_to_snippet
	`,
		msg.ID, msg.ConversationID, msg.Author.ID, msg.Author.Name, msg.Author.Email,
		msg.Body, msg.CreatedAt,
		attURL, attName, attMime, attSize,
		voiceURL, voiceDuration, voiceName,
		replyID, replySender, replySnippet,
	)
	return err
}

func (m *SQLiteManager) LoadConversationMessages(conversationID string) ([]models.Message, error) {
	rows, err := m.db.Query(`
		SELECT id, conversation_id, sender_id, sender_name, sender_email,
			body, created_at,
			attachment_url, attachment_name, attachment_mime, attachment_size,
			voice_url, voice_duration, voice_name,
			reply_to_id, reply_to_sender, reply_to_snippet
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// SearchMessages matches body or sender name across every archived
// conversation, newest first.
func (m *SQLiteManager) SearchMessages(query string) ([]models.Message, error) {
	pattern := "%" + query + "%"
	rows, err := m.db.Query(`
		SELECT id, conversation_id, sender_id, sender_name, sender_email,
			body, created_at,
			attachment_url, attachment_name, attachment_mime, attachment_size,
			voice_url, voice_duration, voice_name,
			reply_to_id, reply_to_sender, reply_to_snippet
		FROM messages
		WHERE body LIKE ? OR sender_name LIKE ?
		ORDER BY created_at DESC
		LIMIT 100
	`, pattern, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (m *SQLiteManager) DeleteMessage(messageID string) error {
	_, err := m.db.Exec("DELETE FROM messages WHERE id = ?", messageID)
	return err
}

func (m *SQLiteManager) Close() error {
	return m.db.Close()
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		var (
			msg                      models.Message
			email                    sql.NullString
			createdAt                time.Time
			attURL, attName, attMime sql.NullString
			attSize                  sql.NullInt64
			voiceURL, voiceName      sql.NullString
			voiceDuration            sql.NullInt64
			replyID, replySender     sql.NullString
			replySnippet             sql.NullString
		)
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.Author.ID, &msg.Author.Name, &email,
			&msg.Body, &createdAt,
			&attURL, &attName, &attMime, &attSize,
			&voiceURL, &voiceDuration, &voiceName,
			&replyID, &replySender, &replySnippet,
		); err != nil {
			return nil, err
		}
		msg.Author.Email = email.String
		msg.CreatedAt = createdAt
		if attURL.Valid {
			msg.Attachment = &models.Attachment{
				URL:      attURL.String,
				Name:     attName.String,
				MimeType: attMime.String,
				Size:     attSize.Int64,
			}
		}
		if voiceURL.Valid {
			msg.Voice = &models.VoiceNote{
				URL:      voiceURL.String,
				Duration: int(voiceDuration.Int64),
				Name:     voiceName.String,
			}
		}
		if replyID.Valid {
			msg.ReplyTo = &models.ReplyRef{
				MessageID: replyID.String,
				Sender:    replySender.String,
				Snippet:   replySnippet.String,
			}
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
