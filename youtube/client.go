package youtube

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"ytplsync/internal/log"
	"ytplsync/internal/retry"
	"ytplsync/quota"
)

// WatchLaterID is the special playlist ID of the user's Watch Later list.
const WatchLaterID = "WL"

// MaxPageSize is the largest page the Data API returns.
const MaxPageSize = 50

// ErrStopPaging can be returned from a page callback to end paging early
// without error.
var ErrStopPaging = errors.New("youtube: stop paging")

// Channel is the subset of channel metadata used by this module.
type Channel struct {
	ID                string
	Title             string
	CustomURL         string
	UploadsPlaylistID string
	LikesPlaylistID   string
	VideoCount        uint64
}

// Playlist is a playlist owned by the authenticated user.
type Playlist struct {
	ID            string
	Title         string
	Description   string
	PrivacyStatus string
	ItemCount     int64
}

// PlaylistItem is one entry of a playlist.
type PlaylistItem struct {
	ItemID       string
	VideoID      string
	Title        string
	ChannelID    string
	ChannelTitle string
	Position     int64
	// AddedAt is when the item was added to the playlist.
	AddedAt time.Time
	// VideoPublishedAt is zero for deleted and private videos.
	VideoPublishedAt time.Time
	PrivacyStatus    string
}

// Video holds videos.list details.
type Video struct {
	ID            string
	Title         string
	Description   string
	ChannelID     string
	ChannelTitle  string
	PublishedAt   time.Time
	Duration      string
	PrivacyStatus string
	UploadStatus  string
	ViewCount     uint64
	LikeCount     uint64
	ThumbnailURL  string
}

// Client wraps the Data API service. Every call is checked against and
// charged to the quota tracker, and transient failures are retried.
type Client struct {
	svc   *yt.Service
	quota *quota.Tracker
	retry retry.Config
	log   zerolog.Logger
}

// NewClient builds a Data API client. Pass option.WithHTTPClient with an
// authorized client, or option.WithAPIKey for read-only use.
func NewClient(ctx context.Context, tracker *quota.Tracker, opts ...option.ClientOption) (*Client, error) {
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return NewClientFromService(svc, tracker), nil
}

// NewClientFromService wraps an existing service.
func NewClientFromService(svc *yt.Service, tracker *quota.Tracker) *Client {
	if tracker == nil {
		tracker = quota.NewTracker(quota.DefaultDailyLimit, 0)
	}
	return &Client{
		svc:   svc,
		quota: tracker,
		retry: retry.DefaultConfig(),
		log:   log.WithComponent("youtube"),
	}
}

// SetRetry replaces the retry policy.
func (c *Client) SetRetry(cfg retry.Config) { c.retry = cfg }

// SetLogger replaces the client logger.
func (c *Client) SetLogger(l zerolog.Logger) { c.log = l }

// Quota returns the tracker charged by the client.
func (c *Client) Quota() *quota.Tracker { return c.quota }

// call runs fn under the quota check and retry policy. cost is charged
// every time the server answers, successful or not.
func (c *Client) call(ctx context.Context, op string, cost int, fn func(ctx context.Context) error) error {
	notify := func(attempt int, err error, delay time.Duration) {
		c.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("backoff", delay).Msg("retrying api call")
	}

	return retry.DoNotify(ctx, c.retry, IsRetryableAPIError, notify, func(ctx context.Context) error {
		if !c.quota.CanAfford(cost) {
			if c.quota.Exhausted() {
				return retry.Permanent(&APIError{Op: op, Reason: ReasonQuotaExceeded, Code: 403, Err: ErrQuotaExceeded})
			}
			return retry.Permanent(fmt.Errorf("%s needs %d units, %d remaining: %w", op, cost, c.quota.Remaining(), ErrQuotaBudget))
		}

		err := fn(ctx)
		if hasResponse(err) {
			c.quota.Spend(cost)
			c.log.Debug().Str("op", op).Int(log.FieldCost, cost).Int("quota_used", c.quota.Used()).Msg("api call")
		}
		if err == nil {
			return nil
		}

		err = wrapAPIError(op, err)
		if errors.Is(err, ErrQuotaExceeded) {
			c.quota.MarkExhausted()
			return retry.Permanent(err)
		}
		return err
	})
}

const channelParts = "snippet,contentDetails,statistics"

func (c *Client) listChannel(ctx context.Context, op string, configure func(*yt.ChannelsListCall) *yt.ChannelsListCall) (*Channel, error) {
	var resp *yt.ChannelListResponse
	err := c.call(ctx, op, quota.CostList, func(ctx context.Context) error {
		var err error
		resp, err = configure(c.svc.Channels.List(strings.Split(channelParts, ","))).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, ErrChannelNotFound
	}
	return channelFromAPI(resp.Items[0]), nil
}

// ChannelByID fetches a channel by its UC… ID.
func (c *Client) ChannelByID(ctx context.Context, id string) (*Channel, error) {
	ch, err := c.listChannel(ctx, "channels.list", func(call *yt.ChannelsListCall) *yt.ChannelsListCall {
		return call.Id(id)
	})
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", id, err)
	}
	return ch, nil
}

// ChannelByHandle fetches a channel by its @handle (with or without the @).
func (c *Client) ChannelByHandle(ctx context.Context, handle string) (*Channel, error) {
	handle = strings.TrimPrefix(handle, "@")
	ch, err := c.listChannel(ctx, "channels.list", func(call *yt.ChannelsListCall) *yt.ChannelsListCall {
		return call.ForHandle(handle)
	})
	if err != nil {
		return nil, fmt.Errorf("handle @%s: %w", handle, err)
	}
	return ch, nil
}

// ChannelByUsername fetches a channel by its legacy /user/ name.
func (c *Client) ChannelByUsername(ctx context.Context, username string) (*Channel, error) {
	ch, err := c.listChannel(ctx, "channels.list", func(call *yt.ChannelsListCall) *yt.ChannelsListCall {
		return call.ForUsername(username)
	})
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", username, err)
	}
	return ch, nil
}

// MyChannel returns the authenticated user's channel.
func (c *Client) MyChannel(ctx context.Context) (*Channel, error) {
	ch, err := c.listChannel(ctx, "channels.list", func(call *yt.ChannelsListCall) *yt.ChannelsListCall {
		return call.Mine(true)
	})
	if err != nil {
		return nil, fmt.Errorf("own channel: %w", err)
	}
	return ch, nil
}

// SearchChannels runs a channel search. It costs 100 units.
func (c *Client) SearchChannels(ctx context.Context, query string, max int64) ([]Channel, error) {
	if max <= 0 || max > MaxPageSize {
		max = 5
	}
	var resp *yt.SearchListResponse
	err := c.call(ctx, "search.list", quota.CostSearch, func(ctx context.Context) error {
		var err error
		resp, err = c.svc.Search.List([]string{"snippet"}).
			Q(query).
			Type("channel").
			MaxResults(max).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	out := make([]Channel, 0, len(resp.Items))
	for _, item := range resp.Items {
		ch := Channel{}
		if item.Id != nil {
			ch.ID = item.Id.ChannelId
		}
		if item.Snippet != nil {
			if ch.ID == "" {
				ch.ID = item.Snippet.ChannelId
			}
			ch.Title = item.Snippet.Title
			if ch.Title == "" {
				ch.Title = item.Snippet.ChannelTitle
			}
		}
		if ch.ID != "" {
			out = append(out, ch)
		}
	}
	return out, nil
}

// ListPlaylistItems pages through a playlist, calling fn once per page.
// Every page is quota-checked separately. Returning ErrStopPaging from fn
// ends paging with a nil error.
func (c *Client) ListPlaylistItems(ctx context.Context, playlistID string, fn func(page []PlaylistItem) error) error {
	pageToken := ""
	for {
		var resp *yt.PlaylistItemListResponse
		err := c.call(ctx, "playlistItems.list", quota.CostList, func(ctx context.Context) error {
			call := c.svc.PlaylistItems.List([]string{"snippet", "contentDetails", "status"}).
				PlaylistId(playlistID).
				MaxResults(MaxPageSize).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return fmt.Errorf("playlist %s items: %w", playlistID, err)
		}

		page := make([]PlaylistItem, 0, len(resp.Items))
		for _, item := range resp.Items {
			page = append(page, playlistItemFromAPI(item))
		}
		if err := fn(page); err != nil {
			if errors.Is(err, ErrStopPaging) {
				return nil
			}
			return err
		}

		if resp.NextPageToken == "" {
			return nil
		}
		pageToken = resp.NextPageToken
	}
}

// FindPlaylist returns the user's playlist whose title equals title.
func (c *Client) FindPlaylist(ctx context.Context, title string) (*Playlist, error) {
	pageToken := ""
	for {
		var resp *yt.PlaylistListResponse
		err := c.call(ctx, "playlists.list", quota.CostList, func(ctx context.Context) error {
			call := c.svc.Playlists.List([]string{"snippet", "contentDetails", "status"}).
				Mine(true).
				MaxResults(MaxPageSize).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("find playlist %q: %w", title, err)
		}

		for _, p := range resp.Items {
			if p.Snippet != nil && p.Snippet.Title == title {
				return playlistFromAPI(p), nil
			}
		}
		if resp.NextPageToken == "" {
			return nil, fmt.Errorf("playlist %q: %w", title, ErrPlaylistNotFound)
		}
		pageToken = resp.NextPageToken
	}
}

// CreatePlaylist creates a playlist. It costs 50 units.
func (c *Client) CreatePlaylist(ctx context.Context, title, description, privacy string) (*Playlist, error) {
	if privacy == "" {
		privacy = "private"
	}
	body := &yt.Playlist{
		Snippet: &yt.PlaylistSnippet{Title: title, Description: description},
		Status:  &yt.PlaylistStatus{PrivacyStatus: privacy},
	}

	var created *yt.Playlist
	err := c.call(ctx, "playlists.insert", quota.CostInsert, func(ctx context.Context) error {
		var err error
		created, err = c.svc.Playlists.Insert([]string{"snippet", "status"}, body).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create playlist %q: %w", title, err)
	}
	return playlistFromAPI(created), nil
}

// InsertPlaylistItem appends videoID to the playlist, or puts it at
// position when position is non-nil. It returns the new item's ID and costs
// 50 units.
func (c *Client) InsertPlaylistItem(ctx context.Context, playlistID, videoID string, position *int64) (string, error) {
	snippet := &yt.PlaylistItemSnippet{
		PlaylistId: playlistID,
		ResourceId: &yt.ResourceId{Kind: "youtube#video", VideoId: videoID},
	}
	if position != nil {
		snippet.Position = *position
		// position 0 is the zero value and would be dropped otherwise
		snippet.ForceSendFields = []string{"Position"}
	}

	var item *yt.PlaylistItem
	err := c.call(ctx, "playlistItems.insert", quota.CostInsert, func(ctx context.Context) error {
		var err error
		item, err = c.svc.PlaylistItems.Insert([]string{"snippet"}, &yt.PlaylistItem{Snippet: snippet}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("insert %s into %s: %w", videoID, playlistID, err)
	}
	return item.Id, nil
}

// VideoDetails fetches videos in batches of 50. IDs the API does not return
// are absent from the map.
func (c *Client) VideoDetails(ctx context.Context, ids []string) (map[string]Video, error) {
	out := make(map[string]Video, len(ids))
	for start := 0; start < len(ids); start += MaxPageSize {
		end := min(start+MaxPageSize, len(ids))
		batch := ids[start:end]

		var resp *yt.VideoListResponse
		err := c.call(ctx, "videos.list", quota.CostList, func(ctx context.Context) error {
			var err error
			resp, err = c.svc.Videos.List([]string{"snippet", "contentDetails", "status", "statistics"}).
				Id(batch...).
				Context(ctx).
				Do()
			return err
		})
		if err != nil {
			return out, fmt.Errorf("video details: %w", err)
		}
		for _, v := range resp.Items {
			out[v.Id] = videoFromAPI(v)
		}
	}
	return out, nil
}

func channelFromAPI(ch *yt.Channel) *Channel {
	out := &Channel{ID: ch.Id}
	if ch.Snippet != nil {
		out.Title = ch.Snippet.Title
		out.CustomURL = ch.Snippet.CustomUrl
	}
	if ch.ContentDetails != nil && ch.ContentDetails.RelatedPlaylists != nil {
		out.UploadsPlaylistID = ch.ContentDetails.RelatedPlaylists.Uploads
		out.LikesPlaylistID = ch.ContentDetails.RelatedPlaylists.Likes
	}
	if ch.Statistics != nil {
		out.VideoCount = ch.Statistics.VideoCount
	}
	return out
}

func playlistFromAPI(p *yt.Playlist) *Playlist {
	out := &Playlist{ID: p.Id}
	if p.Snippet != nil {
		out.Title = p.Snippet.Title
		out.Description = p.Snippet.Description
	}
	if p.Status != nil {
		out.PrivacyStatus = p.Status.PrivacyStatus
	}
	if p.ContentDetails != nil {
		out.ItemCount = p.ContentDetails.ItemCount
	}
	return out
}

func playlistItemFromAPI(item *yt.PlaylistItem) PlaylistItem {
	out := PlaylistItem{ItemID: item.Id}
	if s := item.Snippet; s != nil {
		out.Title = s.Title
		out.ChannelID = s.VideoOwnerChannelId
		out.ChannelTitle = s.VideoOwnerChannelTitle
		out.Position = s.Position
		out.AddedAt = parseTime(s.PublishedAt)
		if s.ResourceId != nil {
			out.VideoID = s.ResourceId.VideoId
		}
	}
	if cd := item.ContentDetails; cd != nil {
		if out.VideoID == "" {
			out.VideoID = cd.VideoId
		}
		out.VideoPublishedAt = parseTime(cd.VideoPublishedAt)
	}
	if item.Status != nil {
		out.PrivacyStatus = item.Status.PrivacyStatus
	}
	return out
}

func videoFromAPI(v *yt.Video) Video {
	out := Video{ID: v.Id}
	if s := v.Snippet; s != nil {
		out.Title = s.Title
		out.Description = s.Description
		out.ChannelID = s.ChannelId
		out.ChannelTitle = s.ChannelTitle
		out.PublishedAt = parseTime(s.PublishedAt)
		if s.Thumbnails != nil && s.Thumbnails.Medium != nil {
			out.ThumbnailURL = s.Thumbnails.Medium.Url
		}
	}
	if v.ContentDetails != nil {
		out.Duration = v.ContentDetails.Duration
	}
	if v.Status != nil {
		out.PrivacyStatus = v.Status.PrivacyStatus
		out.UploadStatus = v.Status.UploadStatus
	}
	if v.Statistics != nil {
		out.ViewCount = v.Statistics.ViewCount
		out.LikeCount = v.Statistics.LikeCount
	}
	return out
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
