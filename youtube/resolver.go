package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"ytplsync/internal/log"
	"ytplsync/storage"
)

// InputKind is how a channel input must be resolved.
type InputKind int

const (
	// InputChannelID is a bare UC… ID or a /channel/ URL.
	InputChannelID InputKind = iota
	// InputHandle is an @handle or a /@handle URL.
	InputHandle
	// InputUsername is a legacy /user/ URL.
	InputUsername
	// InputCustomURL is a /c/ URL, resolved by search.
	InputCustomURL
	// InputName is a plain channel name, resolved by search.
	InputName
)

func (k InputKind) String() string {
	switch k {
	case InputChannelID:
		return "id"
	case InputHandle:
		return "handle"
	case InputUsername:
		return "username"
	case InputCustomURL:
		return "custom-url"
	case InputName:
		return "name"
	default:
		return "unknown"
	}
}

// ParseChannelInput classifies a user-supplied channel reference and
// extracts the part used for lookup.
func ParseChannelInput(input string) (InputKind, string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0, "", fmt.Errorf("%w: empty channel", ErrInvalidURL)
	}
	if IsChannelID(s) {
		return InputChannelID, s, nil
	}
	if strings.HasPrefix(s, "@") {
		return InputHandle, strings.TrimPrefix(s, "@"), nil
	}
	if !strings.Contains(s, "youtube.com") {
		return InputName, s, nil
	}

	raw := s
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %q: %v", ErrInvalidURL, input, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return 0, "", fmt.Errorf("%w: %q has no channel path", ErrInvalidURL, input)
	}

	switch {
	case strings.HasPrefix(parts[0], "@") && len(parts[0]) > 1:
		return InputHandle, strings.TrimPrefix(parts[0], "@"), nil
	case parts[0] == "channel" && len(parts) > 1 && IsChannelID(parts[1]):
		return InputChannelID, parts[1], nil
	case parts[0] == "user" && len(parts) > 1 && parts[1] != "":
		return InputUsername, parts[1], nil
	case parts[0] == "c" && len(parts) > 1 && parts[1] != "":
		return InputCustomURL, parts[1], nil
	}
	return 0, "", fmt.Errorf("%w: %q is not a channel URL", ErrInvalidURL, input)
}

// channelLookup is the part of Client the resolver needs.
type channelLookup interface {
	ChannelByHandle(ctx context.Context, handle string) (*Channel, error)
	ChannelByUsername(ctx context.Context, username string) (*Channel, error)
	SearchChannels(ctx context.Context, query string, max int64) ([]Channel, error)
}

// ChannelResolver turns channel inputs into channel IDs, consulting and
// filling the channel mapping cache.
type ChannelResolver struct {
	api   channelLookup
	cache storage.ChannelMapStore
	log   zerolog.Logger
}

// NewChannelResolver creates a resolver. cache may be nil.
func NewChannelResolver(api channelLookup, cache storage.ChannelMapStore) *ChannelResolver {
	return &ChannelResolver{api: api, cache: cache, log: log.WithComponent("resolver")}
}

// Resolve returns the channel ID for input. Lookups by name go through
// search.list, which costs 100 units; every API result is cached.
func (r *ChannelResolver) Resolve(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)

	if r.cache != nil {
		id, err := r.cache.ChannelID(ctx, input)
		if err == nil && id != "" {
			r.log.Debug().Str("input", input).Str(log.FieldChannel, id).Msg("channel id from cache")
			return id, nil
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			r.log.Warn().Err(err).Str("input", input).Msg("channel cache lookup failed")
		}
	}

	kind, value, err := ParseChannelInput(input)
	if err != nil {
		return "", err
	}

	var id string
	switch kind {
	case InputChannelID:
		if value == input {
			return value, nil
		}
		id = value
	case InputHandle:
		ch, err := r.api.ChannelByHandle(ctx, value)
		if err != nil {
			return "", err
		}
		id = ch.ID
	case InputUsername:
		ch, err := r.api.ChannelByUsername(ctx, value)
		if err != nil {
			return "", err
		}
		id = ch.ID
	case InputCustomURL, InputName:
		r.log.Warn().Str("input", input).Msg("resolving channel with search (100 units); add it to the channel cache to avoid this")
		id, err = r.search(ctx, value)
		if err != nil {
			return "", err
		}
	}

	if r.cache != nil {
		if err := r.cache.PutChannelID(ctx, input, id); err != nil {
			r.log.Warn().Err(err).Str("input", input).Msg("failed to cache channel id")
		}
	}
	r.log.Info().Str("input", input).Str(log.FieldChannel, id).Str("via", kind.String()).Msg("resolved channel")
	return id, nil
}

// search prefers a case-insensitive exact title match, else the first result.
func (r *ChannelResolver) search(ctx context.Context, name string) (string, error) {
	results, err := r.api.SearchChannels(ctx, name, 5)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", fmt.Errorf("%q: %w", name, ErrChannelNotFound)
	}
	for _, ch := range results {
		if strings.EqualFold(ch.Title, name) {
			return ch.ID, nil
		}
	}
	return results[0].ID, nil
}
