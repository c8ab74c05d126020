package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pawlink/pawlink-chat/cli/config"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Manage logs",
	Long:  `View, search, and manage PawLink CLI logs.`,
}

// isErrorRecord reports whether a line is an ERROR record in either of the
// logger's output formats (plain "[ERROR]" or JSON "level":"ERROR").
func isErrorRecord(line string) bool {
	return strings.Contains(line, "[ERROR]") || strings.Contains(line, `"level":"ERROR"`)
}

// forEachLogLine walks every .log file in dir and feeds each line to fn
// along with the file name and 1-based line number.
func forEachLogLine(dir string, fn func(file string, n int, line string)) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read log directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		f, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for n := 1; scanner.Scan(); n++ {
			fn(entry.Name(), n, scanner.Text())
		}
		f.Close()
	}
	return nil
}

var logsErrorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Show error logs",
	Long:  `Display error records from the log files.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Println("Error Logs:")
		fmt.Println("-----------")

		found := false
		err = forEachLogLine(cfg.Logging.Path, func(file string, n int, line string) {
			if isErrorRecord(line) {
				fmt.Printf("[%s] %s\n", file, line)
				found = true
			}
		})
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("No errors found in logs.")
		}
		return nil
	},
}

var logsSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search logs",
	Long:  `Search for a string in the log files.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.ToLower(args[0])
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Printf("Searching for \"%s\" in logs...\n", query)
		fmt.Println("-----------------------------------")

		found := false
		err = forEachLogLine(cfg.Logging.Path, func(file string, n int, line string) {
			if strings.Contains(strings.ToLower(line), query) {
				fmt.Printf("[%s:%d] %s\n", file, n, line)
				found = true
			}
		})
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("No matches found.")
		}
		return nil
	},
}

var logsCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old logs",
	Long:  `Delete all log files in the log directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		entries, err := os.ReadDir(cfg.Logging.Path)
		if err != nil {
			return fmt.Errorf("failed to read log directory: %w", err)
		}

		count := 0
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
				continue
			}
			if err := os.Remove(filepath.Join(cfg.Logging.Path, entry.Name())); err == nil {
				count++
			}
		}

		printSuccess(fmt.Sprintf("Deleted %d log files", count))
		return nil
	},
}

var logsRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Rotate logs",
	Long:  `Archive current logs and start fresh.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		entries, err := os.ReadDir(cfg.Logging.Path)
		if err != nil {
			return fmt.Errorf("failed to read log directory: %w", err)
		}

		stamp := time.Now().Format("20060102-150405")
		count := 0
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasSuffix(name, ".log") || strings.Contains(name, "archive") {
				continue
			}
			archived := fmt.Sprintf("%s.archive.%s.log", strings.TrimSuffix(name, ".log"), stamp)
			if err := os.Rename(filepath.Join(cfg.Logging.Path, name), filepath.Join(cfg.Logging.Path, archived)); err == nil {
				count++
			}
		}

		printSuccess(fmt.Sprintf("Rotated %d log files", count))
		return nil
	},
}

func init() {
	logsCmd.AddCommand(logsErrorsCmd)
	logsCmd.AddCommand(logsSearchCmd)
	logsCmd.AddCommand(logsCleanCmd)
	logsCmd.AddCommand(logsRotateCmd)
}
