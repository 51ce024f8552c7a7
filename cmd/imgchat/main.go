package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"imgchat/internal/app"
	"imgchat/internal/tui"

	"github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	flagConfig string
	flagServer string
	flagUser   string
	flagMock   bool
)

func loadConfig() (app.Config, error) {
	path := flagConfig
	if path == "" {
		path = app.DefaultConfigPath()
	}
	cfg, err := app.LoadConfig(path)
	if err != nil {
		return app.Config{}, err
	}
	if env := os.Getenv("IMGCHAT_SERVER_URL"); env != "" && flagServer == "" {
		cfg.ServerURL = env
	}
	if flagServer != "" {
		cfg.ServerURL = flagServer
	}
	if flagUser != "" {
		cfg.UserID = flagUser
	}
	return cfg, nil
}

func newApplication() (*app.Application, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.NewApplication(cfg, flagMock), nil
}

func main() {
	root := &cobra.Command{
		Use:     "imgchat",
		Short:   "Chat about your images from the terminal",
		Long:    "imgchat is a terminal client for the image chat server.\n\nUpload an image, ask questions about it, and browse past conversations.\nUse without arguments for the interactive TUI, or with a subcommand for\none-shot operations.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication()
			if err != nil {
				return err
			}
			p := tea.NewProgram(tui.New(application), tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return err
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file")
	root.PersistentFlags().StringVar(&flagServer, "server", "", "Server base URL (overrides config)")
	root.PersistentFlags().StringVar(&flagUser, "user", "", "User ID (overrides config)")
	root.PersistentFlags().BoolVar(&flagMock, "mock", false, "Run against an in-memory backend, no server needed")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Check server and database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			st, err := application.Backend.Status(ctx)
			if err != nil {
				return fmt.Errorf("server unreachable: %w", err)
			}
			fmt.Printf("Server:   %s\n", st.Server)
			fmt.Printf("Database: %s\n", st.Database.Status)
			if st.Database.Error != "" {
				fmt.Printf("Error:    %s\n", st.Database.Error)
			}
			return nil
		},
	}

	var loginEmail, loginPassword string
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the user ID in the config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if loginEmail == "" || loginPassword == "" {
				return fmt.Errorf("both --email and --password are required")
			}
			application, err := newApplication()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			user, err := application.Backend.Login(ctx, loginEmail, loginPassword)
			if err != nil {
				return err
			}
			cfg := application.Config
			cfg.UserID = user.UserID
			cfg.Username = user.Username
			path := flagConfig
			if path == "" {
				path = app.DefaultConfigPath()
			}
			if err := app.SaveConfig(cfg, path); err != nil {
				return fmt.Errorf("logged in but could not save config: %w", err)
			}
			fmt.Printf("Logged in as %s (%s)\n", user.Username, user.UserID)
			return nil
		},
	}
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password")

	var regUsername, regEmail, regPassword string
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if regUsername == "" || regEmail == "" || regPassword == "" {
				return fmt.Errorf("--username, --email and --password are all required")
			}
			application, err := newApplication()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			userID, err := application.Backend.Register(ctx, regUsername, regEmail, regPassword)
			if err != nil {
				return err
			}
			fmt.Printf("Registered %s with user ID %s\n", regUsername, userID)
			fmt.Println("Run `imgchat login` to start using this account.")
			return nil
		},
	}
	registerCmd.Flags().StringVar(&regUsername, "username", "", "Desired username")
	registerCmd.Flags().StringVar(&regEmail, "email", "", "Account email")
	registerCmd.Flags().StringVar(&regPassword, "password", "", "Account password")

	var uploadTitle, uploadDescription string
	uploadCmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload an image without entering the TUI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			userID := application.Identity.CurrentUser().ID
			res, err := application.Backend.UploadImage(ctx, args[0], uploadTitle, uploadDescription, userID)
			if err != nil {
				return err
			}
			fmt.Printf("Uploaded: %s\n", res.ImageID)
			if res.GeneratedTitle != "" {
				fmt.Printf("Title:    %s\n", res.GeneratedTitle)
			}
			for _, label := range res.Labels {
				fmt.Printf("  %-16s %3.0f%%\n", label.Label, label.Confidence*100)
			}
			return nil
		},
	}
	uploadCmd.Flags().StringVar(&uploadTitle, "title", "", "Image title")
	uploadCmd.Flags().StringVar(&uploadDescription, "description", "", "Image description")

	root.AddCommand(statusCmd, loginCmd, registerCmd, uploadCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
