package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pawlink/pawlink-chat/cli/config"
)

var (
	username string
	email    string
	role     string
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  `Register, login, and logout commands for PawLink authentication.`,
}

var authRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new account",
	Long:  `Register a new PawLink account with username and email. Coordinators register with --role coordinator.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if username == "" {
			return fmt.Errorf("username is required (--username)")
		}
		if email == "" {
			return fmt.Errorf("email is required (--email)")
		}

		fmt.Print("Password: ")
		passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password := string(passwordBytes)

		fmt.Print("Confirm password: ")
		confirmBytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password confirmation: %w", err)
		}
		if password != string(confirmBytes) {
			printError("Passwords do not match")
			return fmt.Errorf("passwords do not match")
		}

		serverURL, err := config.GetServerURL()
		if err != nil {
			printError("Configuration not initialized")
			fmt.Println("Run: pawlink init")
			return err
		}

		reqBody := map[string]string{
			"username": username,
			"email":    email,
			"password": password,
			"role":     role,
		}
		jsonData, _ := json.Marshal(reqBody)

		res, err := http.Post(serverURL+"/auth/register", "application/json", bytes.NewBuffer(jsonData))
		if err != nil {
			printError("Registration failed: Server connection error")
			return err
		}
		defer res.Body.Close()

		body, _ := io.ReadAll(res.Body)

		if res.StatusCode != http.StatusCreated {
			var errRes map[string]string
			json.Unmarshal(body, &errRes)

			if strings.Contains(errRes["error"], "already exists") {
				printError(fmt.Sprintf("Registration failed: %s", errRes["error"]))
				fmt.Printf("Try: pawlink auth login --username %s\n", username)
			} else if strings.Contains(errRes["error"], "Invalid email") {
				printError("Registration failed: Invalid email format")
			} else if strings.Contains(errRes["error"], "weak") {
				printError("Registration failed: Password too weak")
				fmt.Println("Password must be at least 8 characters with mixed case and numbers")
			} else {
				printError(fmt.Sprintf("Registration failed: %s", errRes["error"]))
			}
			return fmt.Errorf("registration failed")
		}

		var authRes struct {
			Token     string    `json:"token"`
			UserID    string    `json:"user_id"`
			Username  string    `json:"username"`
			Email     string    `json:"email"`
			ExpiresAt time.Time `json:"expires_at"`
		}
		json.Unmarshal(body, &authRes)

		if err := config.UpdateUser(authRes.UserID, authRes.Username, authRes.Token); err != nil {
			fmt.Println("Warning: Failed to save token to config")
		}

		printSuccess("Account created successfully!")
		fmt.Printf("User ID: %s\n", authRes.UserID)
		fmt.Printf("Username: %s\n", authRes.Username)
		fmt.Printf("Email: %s\n", authRes.Email)
		fmt.Println("\nYou are now logged in!")
		fmt.Println("Try: pawlink chat list")

		return nil
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Login to your account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if username == "" && email == "" {
			return fmt.Errorf("username or email is required (--username / --email)")
		}

		fmt.Print("Password: ")
		passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}

		serverURL, err := config.GetServerURL()
		if err != nil {
			printError("Configuration not initialized")
			fmt.Println("Run: pawlink init")
			return err
		}

		reqBody := map[string]string{
			"username": username,
			"email":    email,
			"password": string(passwordBytes),
		}
		jsonData, _ := json.Marshal(reqBody)

		res, err := http.Post(serverURL+"/auth/login", "application/json", bytes.NewBuffer(jsonData))
		if err != nil {
			printError("Login failed: Server connection error")
			return err
		}
		defer res.Body.Close()

		body, _ := io.ReadAll(res.Body)

		if res.StatusCode != http.StatusOK {
			var errResp map[string]string
			json.Unmarshal(body, &errResp)
			switch {
			case strings.Contains(errResp["error"], "Invalid credentials"):
				printError("Login failed: Invalid credentials")
			case strings.Contains(errResp["error"], "not found"):
				printError("Login failed: Account not found")
				fmt.Println("Try: pawlink auth register")
			default:
				printError(fmt.Sprintf("Login failed: %s", errResp["error"]))
			}
			return fmt.Errorf("login failed")
		}

		var authRes struct {
			Token     string    `json:"token"`
			UserID    string    `json:"user_id"`
			Username  string    `json:"username"`
			ExpiresAt time.Time `json:"expires_at"`
		}
		json.Unmarshal(body, &authRes)

		if err := config.UpdateUser(authRes.UserID, authRes.Username, authRes.Token); err != nil {
			fmt.Println("Warning: Failed to save token to config")
		}

		printSuccess("Login successful!")
		fmt.Printf("Welcome back, %s\n", authRes.Username)
		fmt.Printf("Session expires: %s\n", authRes.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Logout and clear stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("Configuration not found")
			return err
		}

		if cfg.User.Token != "" {
			serverURL, _ := config.GetServerURL()
			req, _ := http.NewRequest(http.MethodPost, serverURL+"/auth/logout", nil)
			req.Header.Set("Authorization", "Bearer "+cfg.User.Token)
			if res, err := http.DefaultClient.Do(req); err == nil {
				res.Body.Close()
			}
		}

		if err := config.ClearUser(); err != nil {
			printError(fmt.Sprintf("Failed to clear credentials: %v", err))
			return err
		}
		printSuccess("Logged out successfully!")
		return nil
	},
}

var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("Configuration not initialized")
			return err
		}
		if cfg.User.Token == "" {
			printError("You are not logged in")
			fmt.Println("Run: pawlink auth login")
			return fmt.Errorf("not logged in")
		}
		fmt.Printf("User ID: %s\n", cfg.User.UserID)
		fmt.Printf("Username: %s\n", cfg.User.Username)
		return nil
	},
}

func init() {
	authCmd.AddCommand(authRegisterCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authWhoamiCmd)

	authRegisterCmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	authRegisterCmd.Flags().StringVarP(&email, "email", "e", "", "Email address")
	authRegisterCmd.Flags().StringVar(&role, "role", "user", "Account role: user or coordinator")

	authLoginCmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	authLoginCmd.Flags().StringVarP(&email, "email", "e", "", "Email address")
}
