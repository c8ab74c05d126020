package server

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pawlink/pawlink-chat/pkg/models"
	"github.com/pawlink/pawlink-chat/pkg/utils"
)

// Store is the persistence layer for conversations and messages.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateChat opens a conversation between an applicant and a coordinator
// about a pet.
func (s *Store) CreateChat(petID, petName, applicantID, coordinatorID string) (string, error) {
	id, err := utils.GenerateID(16)
	if err != nil {
		return "", err
	}
	_, err = s.db.Exec(
		`INSERT INTO chats (id, pet_id, pet_name, applicant_id, coordinator_id) VALUES (?, ?, ?, ?, ?)`,
		id, petID, petName, applicantID, coordinatorID,
	)
	if err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}
	return id, nil
}

// ChatsForUser lists every conversation the user participates in, newest
// activity first, with the last message preview and unread count.
func (s *Store) ChatsForUser(userID string) ([]models.ChatSession, error) {
	rows, err := s.db.Query(`
        SELECT c.id, c.pet_id, COALESCE(c.pet_name, ''), c.applicant_id, c.coordinator_id,
               COALESCE((SELECT m.text FROM messages m WHERE m.chat_id = c.id ORDER BY m.created_at DESC LIMIT 1), ''),
               COALESCE((SELECT m.created_at FROM messages m WHERE m.chat_id = c.id ORDER BY m.created_at DESC LIMIT 1), ''),
               (SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id AND m.sender_id != ? AND m.is_read = 0)
        FROM chats c
        WHERE c.applicant_id = ? OR c.coordinator_id = ?
        ORDER BY c.created_at DESC`,
		userID, userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := []models.ChatSession{}
	for rows.Next() {
		var cs models.ChatSession
		var applicantID, coordinatorID string
		if err := rows.Scan(&cs.ID, &cs.PetID, &cs.PetName, &applicantID, &coordinatorID,
			&cs.LastMessage, &cs.LastMessageTime, &cs.UnreadCount); err != nil {
			return nil, err
		}
		if userID == applicantID {
			cs.OtherParticipantRole = string(models.SenderCoordinator)
		} else {
			cs.OtherParticipantRole = string(models.SenderUser)
		}
		chats = append(chats, cs)
	}
	return chats, rows.Err()
}

// Participants returns both member user ids of a conversation.
func (s *Store) Participants(chatID string) (applicantID, coordinatorID string, err error) {
	err = s.db.QueryRow(`SELECT applicant_id, coordinator_id FROM chats WHERE id = ?`, chatID).
		Scan(&applicantID, &coordinatorID)
	if err == sql.ErrNoRows {
		return "", "", fmt.Errorf("chat %s not found", chatID)
	}
	return applicantID, coordinatorID, err
}

// Messages returns a conversation's full history in send order. Sender
// roles are classified relative to the requesting user.
func (s *Store) Messages(chatID, userID string) ([]models.Message, error) {
	rows, err := s.db.Query(`
        SELECT id, sender_id, text, is_read, created_at
        FROM messages WHERE chat_id = ? ORDER BY created_at ASC, id ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var m models.Message
		var isRead int
		var createdAt time.Time
		if err := rows.Scan(&m.ID, &m.SenderID, &m.Text, &isRead, &createdAt); err != nil {
			return nil, err
		}
		m.IsRead = isRead != 0
		m.Timestamp = createdAt
		m.Status = models.StatusSent
		if m.SenderID == userID {
			m.Sender = models.SenderUser
		} else {
			m.Sender = models.SenderCoordinator
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// InsertMessage persists a new message and returns it with the assigned id
// and timestamp.
func (s *Store) InsertMessage(chatID, senderID, text string) (*models.Message, error) {
	id, err := utils.GenerateID(16)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	_, err = s.db.Exec(
		`INSERT INTO messages (id, chat_id, sender_id, text, is_read, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		id, chatID, senderID, text, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &models.Message{
		ID:        id,
		Sender:    models.SenderUser,
		SenderID:  senderID,
		Text:      text,
		Timestamp: now,
		Status:    models.StatusSent,
	}, nil
}

// MarkRead flags every message the reader did not author as read and
// returns how many changed.
func (s *Store) MarkRead(chatID, readerID string) (int, error) {
	res, err := s.db.Exec(
		`UPDATE messages SET is_read = 1 WHERE chat_id = ? AND sender_id != ? AND is_read = 0`,
		chatID, readerID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteMessage removes a message. Only the author may delete.
func (s *Store) DeleteMessage(chatID, messageID, userID string) error {
	res, err := s.db.Exec(
		`DELETE FROM messages WHERE id = ? AND chat_id = ? AND sender_id = ?`,
		messageID, chatID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("message %s not found or not owned", messageID)
	}
	return nil
}
