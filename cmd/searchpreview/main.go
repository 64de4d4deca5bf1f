package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pders01/searchpreview/internal/config"
	"github.com/pders01/searchpreview/internal/debuglog"
)

// Version is the version of the application, set at build time
var Version = "dev"

var (
	configPath string
	logLevel   string
	quiet      bool
	permissive bool
)

var rootCmd = &cobra.Command{
	Use:           "searchpreview",
	Short:         "Preview search results with page info, media and interwiki links",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("searchpreview %s\n", Version)
		fmt.Println("Search result previews")
		fmt.Println("github.com/pders01/searchpreview")
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configGenCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the default config file",
	Run: func(cmd *cobra.Command, args []string) {
		configFile := defaultConfigFile()
		if err := config.GenerateDefaultConfig(configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default configuration at: %s\n", configFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error, off); overrides the config")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Skip startup banner")
	rootCmd.PersistentFlags().BoolVar(&permissive, "permissive", false, "Allow localhost and private network endpoints")

	configCmd.AddCommand(configGenCmd)
	rootCmd.AddCommand(versionCmd, configCmd, serveCmd, previewCmd, sessionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigFile() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "searchpreview", "config.toml")
}

// loadConfig reads and validates the configuration and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(permissive); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	if err := debuglog.Setup(debuglog.ParseLogLevel(level), cfg.Log.File); err != nil {
		return nil, err
	}
	return cfg, nil
}

func showBanner() {
	colors := []lipgloss.Color{
		lipgloss.Color("#36C"),
		lipgloss.Color("#447FF5"),
		lipgloss.Color("#72777D"),
	}

	lines := []string{
		"searchpreview",
		"",
		"page info, media and links for search results",
	}

	var coloredLines []string
	for i, line := range lines {
		if line == "" {
			coloredLines = append(coloredLines, line)
			continue
		}
		style := lipgloss.NewStyle().
			Foreground(colors[i%len(colors)]).
			Bold(i == 0)
		coloredLines = append(coloredLines, style.Render(line))
	}

	borderStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#36C")).
		Padding(0, 2).
		MarginTop(1)

	banner := lipgloss.JoinVertical(lipgloss.Center, coloredLines...)
	fmt.Println(borderStyle.Render(banner))
	fmt.Printf("%s\n\n", lipgloss.NewStyle().Foreground(lipgloss.Color("#72777D")).Render(Version))
}
