package cli

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pawlink/pawlink-chat/cli/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and modify PawLink CLI configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("Configuration not initialized")
			fmt.Println("Run: pawlink init")
			return err
		}

		fmt.Println("Current Configuration:")
		fmt.Println("----------------------")

		v := reflect.ValueOf(*cfg)
		t := v.Type()

		for i := 0; i < v.NumField(); i++ {
			field := v.Field(i)
			typeField := t.Field(i)

			fmt.Printf("[%s]\n", typeField.Name)
			if field.Kind() == reflect.Struct {
				for j := 0; j < field.NumField(); j++ {
					subField := field.Field(j)
					subTypeField := field.Type().Field(j)
					tag := subTypeField.Tag.Get("yaml")
					if tag == "" {
						tag = subTypeField.Name
					}
					if subTypeField.Name == "Token" && subField.String() != "" {
						fmt.Printf("  %s: (set)\n", tag)
						continue
					}
					fmt.Printf("  %s: %v\n", tag, subField.Interface())
				}
			}
			fmt.Println()
		}

		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long:  `Set a configuration value. Key should be in format 'section.key' (e.g., chat.transport).`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		value := args[1]

		cfg, err := config.Load()
		if err != nil {
			printError("Configuration not initialized")
			return err
		}

		parts := strings.Split(key, ".")
		if len(parts) != 2 {
			return fmt.Errorf("invalid key format. Use 'section.key'")
		}

		section := strings.ToLower(parts[0])
		k := strings.ToLower(parts[1])

		updated := false

		switch section {
		case "server":
			switch k {
			case "host":
				cfg.Server.Host = value
				updated = true
			case "http_port":
				if v, err := strconv.Atoi(value); err == nil {
					cfg.Server.HTTPPort = v
					updated = true
				} else {
					return fmt.Errorf("invalid integer for http_port")
				}
			case "ws_port":
				if v, err := strconv.Atoi(value); err == nil {
					cfg.Server.WSPort = v
					updated = true
				} else {
					return fmt.Errorf("invalid integer for ws_port")
				}
			}
		case "chat":
			switch k {
			case "transport":
				if value != "ws" && value != "sse" && value != "poll" {
					return fmt.Errorf("transport must be ws, sse, or poll")
				}
				cfg.Chat.Transport = value
				updated = true
			case "poll_interval":
				if v, err := strconv.Atoi(value); err == nil && v > 0 {
					cfg.Chat.PollInterval = v
					updated = true
				} else {
					return fmt.Errorf("invalid positive integer for poll_interval")
				}
			}
		case "database":
			switch k {
			case "path":
				cfg.Database.Path = value
				updated = true
			}
		case "logging":
			switch k {
			case "level":
				cfg.Logging.Level = value
				updated = true
			}
		}

		if !updated {
			return fmt.Errorf("unknown configuration key: %s", key)
		}

		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		printSuccess(fmt.Sprintf("Updated %s to %s", key, value))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
