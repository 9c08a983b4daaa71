package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"discordarchive/internal/database"
	"discordarchive/internal/discord"
	"discordarchive/internal/files"

	"github.com/charmbracelet/log"
)

// PinsAPI is the subset of the Discord client the pipeline needs.
type PinsAPI interface {
	GetPins(ctx context.Context, channelID string) (*discord.PinList, error)
	DeletePin(ctx context.Context, channelID, messageID string) error
}

type Archiver interface {
	Archive(ctx context.Context, rawURL string) (files.ArchivedFile, error)
}

type SnapshotWriter interface {
	WriteSnapshot(raw json.RawMessage, channelID string) (string, error)
}

// Index records what a run archived. Implemented by *database.DB.
type Index interface {
	RecordSnapshot(ctx context.Context, channelID, path string, pinCount int) error
	RecordPin(ctx context.Context, p database.Pin) error
	RecordAttachment(ctx context.Context, a database.Attachment) error
	MarkPinDeleted(ctx context.Context, channelID, messageID string) error
}

// ArchiveResult summarises one archive run.
type ArchiveResult struct {
	Pins         *discord.PinList
	SnapshotPath string
	Attachments  int
	Downloaded   int
	Skipped      int
}

type PinService struct {
	api       PinsAPI
	archiver  Archiver
	snapshots SnapshotWriter
	index     Index
	logger    *log.Logger
}

// NewPinService wires the pipeline. index may be nil when no archive index
// is configured.
func NewPinService(api PinsAPI, archiver Archiver, snapshots SnapshotWriter, index Index, logger *log.Logger) *PinService {
	if index == nil {
		index = nopIndex{}
	}
	return &PinService{
		api:       api,
		archiver:  archiver,
		snapshots: snapshots,
		index:     index,
		logger:    logger,
	}
}

// ArchivePins fetches the channel's pins, downloads every attachment in pin
// order, then writes the JSON snapshot. Any failure here is fatal to the run.
func (s *PinService) ArchivePins(ctx context.Context, channelID string) (*ArchiveResult, error) {
	s.logger.Debug("getting pins", "channel", channelID)
	list, err := s.api.GetPins(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pins for channel %s: %w", channelID, err)
	}
	s.logger.Info(fmt.Sprintf("found %d pins in channel %s", len(list.Pins), channelID))

	result := &ArchiveResult{Pins: list}
	if err := s.archiveAttachments(ctx, list, result); err != nil {
		return nil, err
	}

	path, err := s.snapshots.WriteSnapshot(list.Raw, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to save pins for channel %s: %w", channelID, err)
	}
	result.SnapshotPath = path
	s.logger.Info("saved pins to " + path)

	if err := s.index.RecordSnapshot(ctx, channelID, path, len(list.Pins)); err != nil {
		s.logger.Warn("archive index not updated", "err", err)
	}

	return result, nil
}

func (s *PinService) archiveAttachments(ctx context.Context, list *discord.PinList, result *ArchiveResult) error {
	for _, pin := range list.Pins {
		err := s.index.RecordPin(ctx, database.Pin{
			ID:              pin.ID,
			ChannelID:       pin.ChannelID,
			AuthorID:        pin.Author.ID,
			AuthorName:      pin.Author.Username,
			Content:         pin.Content,
			PostedAt:        pin.Timestamp,
			AttachmentCount: len(pin.Attachments),
		})
		if err != nil {
			s.logger.Warn("archive index not updated", "err", err)
		}

		for _, attachment := range pin.Attachments {
			result.Attachments++

			rawURL := attachment.ProxyURL
			if rawURL == "" {
				rawURL = attachment.URL
			}

			archived, err := s.archiver.Archive(ctx, rawURL)
			if errors.Is(err, files.ErrNoFileName) {
				s.logger.Warn("skipping attachment without a file name", "pin", pin.ID, "url", rawURL)
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to archive attachment of pin %s: %w", pin.ID, err)
			}

			if archived.Skipped {
				result.Skipped++
				continue
			}
			result.Downloaded++

			err = s.index.RecordAttachment(ctx, database.Attachment{
				URL:          archived.URL,
				PinID:        pin.ID,
				FileName:     attachment.Filename,
				ContentType:  attachment.ContentType,
				LocalPath:    archived.LocalPath,
				SizeBytes:    archived.SizeBytes,
				DeclaredSize: attachment.Size,
				Checksum:     archived.Checksum,
			})
			if err != nil {
				s.logger.Warn("archive index not updated", "err", err)
			}
		}
	}

	s.logger.Info(fmt.Sprintf("saved %d attachments", result.Attachments),
		"downloaded", result.Downloaded, "already_present", result.Skipped)
	return nil
}

type nopIndex struct{}

func (nopIndex) RecordSnapshot(context.Context, string, string, int) error { return nil }
func (nopIndex) RecordPin(context.Context, database.Pin) error { return nil }
func (nopIndex) RecordAttachment(context.Context, database.Attachment) error { return nil }
func (nopIndex) MarkPinDeleted(context.Context, string, string) error { return nil }
