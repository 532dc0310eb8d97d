// Package bootstrap creates the channels a hub starts with: the default
// "general" channel and any channels listed in a YAML seed file.
//
//	channels:
//	  - id: ops
//	    name: Operations
//	    description: On-call alerts
//	    created_by: platform
//	    permissions:
//	      subscribe: [all]
//	      publish: [dev]
//	      admin: [dev]
//	    metadata:
//	      pager: true
//
// Channels that already exist are left untouched, so seeding is safe to
// repeat on every start.
package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/notify"
)

// ErrInvalidSeed is returned for unreadable or malformed seed files.
var ErrInvalidSeed = errors.New("bootstrap: invalid seed file")

// Seed is the seed file layout.
type Seed struct {
	Channels []ChannelSeed `yaml:"channels"`
}

// ChannelSeed describes one channel. Nil permissions get the defaults.
type ChannelSeed struct {
	ID          string                     `yaml:"id"`
	Name        string                     `yaml:"name"`
	Description string                     `yaml:"description"`
	CreatedBy   string                     `yaml:"created_by"`
	Permissions *notify.ChannelPermissions `yaml:"permissions"`
	Metadata    map[string]any             `yaml:"metadata"`
}

// DefaultChannel is created on every start.
func DefaultChannel() ChannelSeed {
	return ChannelSeed{
		ID:          "general",
		Name:        "General",
		Description: "General team notifications",
		CreatedBy:   notify.SystemCreator,
	}
}

// Parse decodes a seed document. Unknown keys and channels without an id
// are rejected.
func Parse(r io.Reader) (*Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed Seed
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrInvalidSeed, err)
	}
	for i, ch := range seed.Channels {
		if ch.ID == "" {
			return nil, fmt.Errorf("%w: channels[%d]: id is required", ErrInvalidSeed, i)
		}
	}
	return &seed, nil
}

// LoadFile reads and parses the seed file at path.
func LoadFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrInvalidSeed, err)
	}
	return Parse(bytes.NewReader(data))
}

// ChannelCreator is implemented by *notify.Hub.
type ChannelCreator interface {
	CreateChannelWithOptions(ctx context.Context, p notify.CreateChannelParams) (*notify.Channel, error)
}

// Apply creates every channel in seeds, skipping ids that already exist, and
// reports how many were created.
func Apply(ctx context.Context, hub ChannelCreator, log *slog.Logger, seeds ...ChannelSeed) (int, error) {
	if log == nil {
		log = slog.Default()
	}

	created := 0
	for _, s := range seeds {
		_, err := hub.CreateChannelWithOptions(ctx, notify.CreateChannelParams{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			CreatedBy:   s.CreatedBy,
			Permissions: s.Permissions,
			Metadata:    s.Metadata,
		})
		switch {
		case errors.Is(err, notify.ErrAlreadyExists):
			log.LogAttrs(ctx, slog.LevelDebug, "seed channel exists", logger.ChannelID(s.ID))
		case err != nil:
			return created, fmt.Errorf("seed channel %q: %w", s.ID, err)
		default:
			created++
			log.LogAttrs(ctx, slog.LevelInfo, "channel created", logger.ChannelID(s.ID), logger.Component("bootstrap"))
		}
	}
	return created, nil
}

// Run creates the default channel and, when seedFile is not empty, the
// channels it lists.
func Run(ctx context.Context, hub ChannelCreator, seedFile string, log *slog.Logger) error {
	seeds := []ChannelSeed{DefaultChannel()}
	if seedFile != "" {
		seed, err := LoadFile(seedFile)
		if err != nil {
			return err
		}
		seeds = append(seeds, seed.Channels...)
	}
	_, err := Apply(ctx, hub, log, seeds...)
	return err
}
