package main

import (
	"fmt"
	"os"

	"discordarchive/internal/config"
	"discordarchive/internal/database"
	"discordarchive/internal/discord"
	"discordarchive/internal/files"
	"discordarchive/internal/logger"
	"discordarchive/internal/service"

	"github.com/spf13/cobra"
)

const helpFooter = `
********************************************************
Any tool that automates actions on user accounts,
including this one, could result in account termination.
********************************************************

Obtaining a Discord token:
  1. Login to Discord in a browser.
  2. Open the Network tab in the inspector tools.
  3. Send a message in Discord.
  4. Find the request in the Network tab and copy the "Authorization"
     request header. Its value is your token.

Obtaining a channel ID:
  1. Go to Discord settings.
  2. Open the "Advanced" tab under "App Settings".
  3. Enable "Developer Mode".
  4. Right click any chat/channel and copy the ID.

Every option can also be set in the environment or a .env file:
DISCORD_TOKEN, DISCORD_USER_AGENT, DISCORD_API_URL, ARCHIVE_DIR,
ARCHIVE_INDEX_PATH, LOG_LEVEL, VERBOSE, REQUESTS_PER_MINUTE, HTTP_TIMEOUT.`

type globalFlags struct {
	token     string
	verbose   bool
	userAgent string
	outputDir string
	indexPath string
	apiURL    string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "discordarchive",
		Short:         "CLI Discord archiving tool, currently only able to archive pins",
		Version:       "0.0.1",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetHelpTemplate(root.HelpTemplate() + helpFooter + "\n")

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.token, "token", "t", "", "Discord token (env DISCORD_TOKEN)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Use verbose logging")
	pf.StringVarP(&flags.userAgent, "user-agent", "A", "", "Set a custom user agent when making Discord API requests")
	pf.StringVarP(&flags.outputDir, "output", "o", "", "Directory holding the json/ and static/ archive roots (default: current directory)")
	pf.StringVar(&flags.indexPath, "index", "", "Record archived snapshots, pins and attachments in this SQLite file")
	pf.StringVar(&flags.apiURL, "api-url", "", "Discord API base URL")
	pf.MarkHidden("api-url")

	root.AddCommand(newPinsCmd(flags))
	return root
}

func newPinsCmd(flags *globalFlags) *cobra.Command {
	var deleteAfter bool

	cmd := &cobra.Command{
		Use:   "pins <channel>",
		Short: "Archive pinned messages from a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return runPins(cmd, cfg, args[0], deleteAfter)
		},
	}
	cmd.Flags().BoolVarP(&deleteAfter, "delete", "D", false, "Delete pinned message after archive")

	return cmd
}

// loadConfig reads the environment and lets explicitly set flags win.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	set := cmd.Flags().Changed
	if set("token") {
		cfg.Token = flags.token
	}
	if set("verbose") {
		cfg.Verbose = flags.verbose
	}
	if set("user-agent") && flags.userAgent != "" {
		cfg.UserAgent = flags.userAgent
	}
	if set("output") {
		cfg.OutputDir = flags.outputDir
	}
	if set("index") {
		cfg.IndexPath = flags.indexPath
	}
	if set("api-url") {
		cfg.APIURL = flags.apiURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runPins(cmd *cobra.Command, cfg *config.Config, channelID string, deleteAfter bool) error {
	ctx := cmd.Context()
	l := logger.New(os.Stderr, logger.ParseLogLevel(cfg.LogLevel), cfg.Verbose)

	var index service.Index
	if cfg.IndexPath != "" {
		db, err := database.New(cfg.IndexPath)
		if err != nil {
			return fmt.Errorf("failed to open archive index: %w", err)
		}
		defer db.Close()
		index = db
	}

	client := discord.NewClient(discord.Options{
		BaseURL:           cfg.APIURL,
		Token:             cfg.Token,
		UserAgent:         cfg.UserAgent,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Timeout:           cfg.HTTPTimeout,
		Logger:            l.WithPrefix("api"),
	})
	storage := files.NewStorage(cfg.OutputDir)
	downloader := files.NewDownloader(storage, client, l)

	result, err := service.NewPinService(client, downloader, storage, index, l).ArchivePins(ctx, channelID)
	if err != nil {
		return err
	}

	if !deleteAfter {
		return nil
	}

	_, err = service.NewDeleter(client, index, l).DeletePins(ctx, channelID, result.Pins.Pins)
	return err
}
