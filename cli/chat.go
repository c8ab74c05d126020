package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pawlink/pawlink-chat/cli/config"
	"github.com/pawlink/pawlink-chat/internal/api"
	"github.com/pawlink/pawlink-chat/internal/chat"
	"github.com/pawlink/pawlink-chat/internal/transport"
	"github.com/pawlink/pawlink-chat/pkg/models"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Adoption conversation commands",
	Long:  "List conversations, read history, and chat live with adoption coordinators.",
}

var chatListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your conversations",
	RunE:  runChatList,
}

var chatOpenCmd = &cobra.Command{
	Use:   "open [chat-id]",
	Short: "Open a live conversation",
	Long:  "Open a conversation: loads history, marks it read, and streams new messages until interrupted.",
	Args:  cobra.ExactArgs(1),
	RunE:  runChatOpen,
}

var chatSendCmd = &cobra.Command{
	Use:   "send [chat-id] [message]",
	Short: "Send a single message without opening the conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runChatSend,
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history [chat-id]",
	Short: "Show conversation history",
	Args:  cobra.ExactArgs(1),
	RunE:  runChatHistory,
}

var chatTransportFlag string

func init() {
	chatCmd.AddCommand(chatListCmd)
	chatCmd.AddCommand(chatOpenCmd)
	chatCmd.AddCommand(chatSendCmd)
	chatCmd.AddCommand(chatHistoryCmd)

	chatOpenCmd.Flags().StringVarP(&chatTransportFlag, "transport", "t", "", "Realtime transport: ws, sse, or poll (default from config)")
}

// requireLogin loads the stored config and builds an authenticated API
// client, or tells the user what to run first.
func requireLogin() (*config.Config, *api.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		printError("Configuration not initialized")
		fmt.Println("Run: pawlink init")
		return nil, nil, err
	}
	if cfg.User.Token == "" || cfg.User.UserID == "" {
		printError("Not authenticated")
		fmt.Println("Run: pawlink auth login")
		return nil, nil, fmt.Errorf("not authenticated")
	}
	serverURL, err := config.GetServerURL()
	if err != nil {
		return nil, nil, err
	}
	return cfg, api.NewClient(serverURL, cfg.User.Token), nil
}

func runChatList(cmd *cobra.Command, args []string) error {
	cfg, client, err := requireLogin()
	if err != nil {
		return err
	}

	chats, err := client.GetChats(cmd.Context(), cfg.User.UserID)
	if err != nil {
		printError(fmt.Sprintf("Failed to fetch conversations: %v", err))
		return err
	}
	if len(chats) == 0 {
		fmt.Println("No conversations yet.")
		return nil
	}

	fmt.Printf("You have %d conversation(s):\n\n", len(chats))
	for i, cs := range chats {
		fmt.Printf("%d. %s\n", i+1, cs.ID)
		if cs.PetName != "" {
			fmt.Printf("   Pet: %s\n", cs.PetName)
		}
		fmt.Printf("   Last: %s\n", previewText(cs.LastMessage))
		if cs.UnreadCount > 0 {
			fmt.Printf("   Unread: %d\n", cs.UnreadCount)
		}
		fmt.Println()
	}
	return nil
}

func runChatSend(cmd *cobra.Command, args []string) error {
	cfg, client, err := requireLogin()
	if err != nil {
		return err
	}

	chatID := args[0]
	text := strings.Join(args[1:], " ")
	if err := client.SendMessage(cmd.Context(), chatID, text, cfg.User.UserID); err != nil {
		printError(fmt.Sprintf("Failed to send message: %v", err))
		return err
	}
	printSuccess("Message sent")
	return nil
}

func runChatHistory(cmd *cobra.Command, args []string) error {
	cfg, client, err := requireLogin()
	if err != nil {
		return err
	}

	msgs, err := client.FetchMessages(cmd.Context(), args[0], cfg.User.UserID)
	if err != nil {
		printError(fmt.Sprintf("Failed to fetch history: %v", err))
		return err
	}
	if len(msgs) == 0 {
		fmt.Println("No messages yet.")
		return nil
	}
	for _, m := range chat.Annotate(msgs) {
		printMessageLine(m, cfg.User.Username)
	}
	return nil
}

func runChatOpen(cmd *cobra.Command, args []string) error {
	cfg, client, err := requireLogin()
	if err != nil {
		return err
	}
	chatID := args[0]

	mode := chatTransportFlag
	if mode == "" {
		mode = cfg.Chat.Transport
	}
	if mode == "" {
		mode = "ws"
	}

	redraw := make(chan struct{}, 1)
	notify := func() {
		select {
		case redraw <- struct{}{}:
		default:
		}
	}

	// The session is created after the adapter, but the adapter handlers
	// only fire once the conversation is open, so closing over the
	// variable is safe.
	var session *chat.Session
	handlers := chat.Handlers{
		OnNewMessage: func(id string, m models.Message) {
			session.HandleNewMessage(id, m)
		},
		OnTyping: func(userID string) {
			fmt.Println("  ...typing")
		},
		OnError: func(detail string) {
			printError(fmt.Sprintf("Server error: %s", detail))
		},
	}

	sessionCfg := chat.SessionConfig{
		API:      client,
		UserID:   cfg.User.UserID,
		OnUpdate: notify,
	}

	// Deferred until the session exists and history is loaded.
	var startWatcher func()

	switch mode {
	case "ws":
		wsURL, err := config.GetWebSocketURL()
		if err != nil {
			return err
		}
		var adapter *chat.WSAdapter
		// Room membership is voided when the connection drops; the server
		// greeting after a reconnect is the cue to re-establish it.
		handlers.OnConnected = func(userID string) {
			if session == nil {
				return
			}
			if active := session.ActiveChat(); active != "" {
				adapter.JoinChat(active)
			}
		}
		adapter = chat.NewWSAdapter(transport.Config{
			URL:    wsURL,
			UserID: cfg.User.UserID,
			Token:  cfg.User.Token,
		}, handlers)
		sessionCfg.Realtime = adapter
		fmt.Println("Connecting over WebSocket...")
		if err := adapter.Connect(); err != nil {
			printError(fmt.Sprintf("Connection failed, retrying in background: %v", err))
		}
		defer adapter.Close()

	case "sse":
		sseURL, err := config.GetSSEURL()
		if err != nil {
			return err
		}
		adapter := chat.NewSSEAdapter(transport.Config{
			URL:    sseURL,
			UserID: cfg.User.UserID,
		}, client, handlers)
		fmt.Println("Connecting over SSE...")
		if err := adapter.Connect(); err != nil {
			printError(fmt.Sprintf("Connection failed, retrying in background: %v", err))
		}
		if err := adapter.Subscribe(cmd.Context(), chatID); err != nil {
			printError(fmt.Sprintf("Subscribe failed: %v", err))
		}
		defer adapter.Close(context.Background())

	case "poll":
		interval := time.Duration(cfg.Chat.PollInterval) * time.Second
		if interval <= 0 {
			interval = chat.DefaultPollInterval
		}
		watcher := chat.NewWatcher(client, interval, func(msgs []models.Message) {
			session.HandlePolled(msgs)
		})
		fmt.Println("Polling for new messages...")
		startWatcher = func() { watcher.SetTarget(chatID, cfg.User.UserID) }
		defer watcher.Stop()

	default:
		return fmt.Errorf("unknown transport %q (use ws, sse, or poll)", mode)
	}

	session = chat.NewSession(sessionCfg)
	if err := session.Open(cmd.Context(), chatID); err != nil {
		printError(fmt.Sprintf("Failed to open conversation: %v", err))
		return err
	}
	defer session.Close()
	if startWatcher != nil {
		startWatcher()
	}

	for _, m := range chat.Annotate(session.Messages()) {
		printMessageLine(m, cfg.User.Username)
	}
	fmt.Println("\nType a message and press enter. /quit to leave, /retry to resend the last failed message.")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	inputChan := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			inputChan <- scanner.Text()
		}
		close(inputChan)
	}()

	fmt.Printf("%s> ", cfg.User.Username)
	for {
		select {
		case <-interrupt:
			fmt.Println()
			printSuccess("Leaving conversation")
			return nil

		case <-redraw:
			msgs := chat.Annotate(session.Messages())
			if len(msgs) > 0 {
				printMessageLine(msgs[len(msgs)-1], cfg.User.Username)
			}
			fmt.Printf("%s> ", cfg.User.Username)

		case input, ok := <-inputChan:
			if !ok {
				printSuccess("Leaving conversation")
				return nil
			}
			input = strings.TrimSpace(input)
			switch {
			case input == "":
			case input == "/quit":
				printSuccess("Leaving conversation")
				return nil
			case input == "/retry":
				retryLastFailed(cmd.Context(), session)
			case strings.HasPrefix(input, "/"):
				fmt.Println("Unknown command. Available: /quit, /retry")
			default:
				if _, err := session.Send(cmd.Context(), input); err != nil {
					printError(fmt.Sprintf("Send failed: %v", err))
				}
			}
			fmt.Printf("%s> ", cfg.User.Username)
		}
	}
}

func retryLastFailed(ctx context.Context, session *chat.Session) {
	msgs := session.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Status == models.StatusFailed {
			if err := session.Retry(ctx, msgs[i].TempID); err != nil {
				printError(fmt.Sprintf("Retry failed: %v", err))
			} else {
				printSuccess("Message resent")
			}
			return
		}
	}
	fmt.Println("Nothing to retry.")
}

func previewText(text string) string {
	if text == "" {
		return "(no messages)"
	}
	if _, ok := models.IsImageMessage(text); ok {
		return "[image]"
	}
	if len(text) > 60 {
		return text[:60] + "..."
	}
	return text
}

func printMessageLine(m chat.DisplayMessage, username string) {
	if m.ShowTimeSeparator {
		fmt.Printf("--- %s ---\n", m.Timestamp.Local().Format("Jan 2 15:04"))
	}
	name := username
	if m.Sender != models.SenderUser {
		name = "coordinator"
	}
	text := m.Text
	if _, ok := models.IsImageMessage(text); ok {
		text = "[image]"
	}
	marker := ""
	switch m.Status {
	case models.StatusSending:
		marker = " (sending)"
	case models.StatusFailed:
		marker = " (failed)"
	}
	fmt.Printf("[%s] %s: %s%s\n", m.Timestamp.Local().Format("15:04"), name, text, marker)
}
