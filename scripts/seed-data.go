package main

import (
	"log"

	"github.com/pawlink/pawlink-chat/pkg/database"
	"github.com/pawlink/pawlink-chat/pkg/utils"
)

func main() {
	if err := database.InitDatabase("data/pawlink.db"); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.DB.Close()

	applicantHash, err := utils.HashPassword("Applicant1pass")
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	coordinatorHash, err := utils.HashPassword("Coordinator1pass")
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	_, err = database.DB.Exec(`INSERT OR IGNORE INTO users (id, username, email, password_hash, role) VALUES
		('user-alice', 'alice', 'alice@example.com', ?, 'user'),
		('coord-casey', 'casey', 'casey@pawlink.example', ?, 'coordinator')`,
		applicantHash, coordinatorHash)
	if err != nil {
		log.Fatalf("Failed to insert users: %v", err)
	}

	_, err = database.DB.Exec(`INSERT OR IGNORE INTO chats (id, pet_id, pet_name, applicant_id, coordinator_id) VALUES
		('chat-biscuit', 'pet-biscuit', 'Biscuit', 'user-alice', 'coord-casey')`)
	if err != nil {
		log.Fatalf("Failed to insert chat: %v", err)
	}

	result, err := database.DB.Exec(`INSERT OR IGNORE INTO messages (id, chat_id, sender_id, text, is_read) VALUES
		('msg-1', 'chat-biscuit', 'coord-casey', 'Hi! Thanks for your interest in Biscuit. Do you have other pets at home?', 0),
		('msg-2', 'chat-biscuit', 'user-alice', 'No other pets, but a fenced yard and lots of time!', 1)`)
	if err != nil {
		log.Fatalf("Failed to insert messages: %v", err)
	}

	rows, _ := result.RowsAffected()
	log.Printf("Inserted %d message(s)", rows)

	log.Println("Seed data inserted successfully")
}
