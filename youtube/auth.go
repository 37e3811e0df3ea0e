package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	yt "google.golang.org/api/youtube/v3"

	"ytplsync/internal/log"
	"ytplsync/storage"
)

// Scopes requested by the installed-app flow.
var Scopes = []string{yt.YoutubeScope}

// ErrNoCredentials means the OAuth client secrets file is missing.
var ErrNoCredentials = errors.New("youtube: OAuth client secrets not found")

// Authenticator runs the installed-app OAuth flow and keeps token.json
// up to date.
type Authenticator struct {
	// CredentialsFile is the client secrets JSON from the Cloud Console.
	CredentialsFile string
	// TokenFile caches the user's token (written mode 0600).
	TokenFile string
	// HTTPClient carries token exchanges and, through oauth2.NewClient, every
	// authorized request. Nil means http.DefaultClient.
	HTTPClient *http.Client
	// Prompt receives the consent URL. Nil prints it to stderr.
	Prompt func(authURL string)
	// ListenAddr is the loopback address of the redirect listener.
	ListenAddr string

	log zerolog.Logger
}

// NewAuthenticator creates an authenticator for the given files.
func NewAuthenticator(credentialsFile, tokenFile string, httpClient *http.Client) *Authenticator {
	return &Authenticator{
		CredentialsFile: credentialsFile,
		TokenFile:       tokenFile,
		HTTPClient:      httpClient,
		ListenAddr:      "127.0.0.1:0",
		log:             log.WithComponent("auth"),
	}
}

// OAuthConfig reads the client secrets.
func (a *Authenticator) OAuthConfig() (*oauth2.Config, error) {
	data, err := os.ReadFile(a.CredentialsFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (download OAuth 2.0 client credentials from the Google Cloud Console)", ErrNoCredentials, a.CredentialsFile)
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", a.CredentialsFile, err)
	}
	return cfg, nil
}

// Client returns an authorized HTTP client. A stored token is reused and
// refreshed as needed; otherwise the browser flow runs. Refreshed tokens are
// written back to TokenFile.
func (a *Authenticator) Client(ctx context.Context) (*http.Client, error) {
	cfg, err := a.OAuthConfig()
	if err != nil {
		return nil, err
	}

	tok, err := a.LoadToken()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			a.log.Warn().Err(err).Str("file", a.TokenFile).Msg("ignoring unreadable token")
		}
		tok, err = a.Authorize(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := a.SaveToken(tok); err != nil {
			return nil, err
		}
	}

	// the token source outlives ctx: refreshes must not fail during shutdown
	base := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, a.httpClient())
	src := &savingTokenSource{
		base: cfg.TokenSource(base, tok),
		last: tok,
		save: a.SaveToken,
		log:  a.log,
	}
	return oauth2.NewClient(base, oauth2.ReuseTokenSource(tok, src)), nil
}

func (a *Authenticator) httpClient() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return http.DefaultClient
}

// Authorize runs the loopback redirect flow with PKCE and returns a fresh token.
func (a *Authenticator) Authorize(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	addr := a.ListenAddr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("start redirect listener: %w", err)
	}
	defer ln.Close()

	flowCfg := *cfg
	flowCfg.RedirectURL = "http://" + ln.Addr().String() + "/"

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	authURL := flowCfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)

	codes := make(chan string, 1)
	errs := make(chan error, 1)
	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("state") != state {
				http.Error(w, "state mismatch", http.StatusBadRequest)
				return
			}
			if e := q.Get("error"); e != "" {
				http.Error(w, "authorization failed: "+e, http.StatusForbidden)
				select {
				case errs <- fmt.Errorf("authorization denied: %s", e):
				default:
				}
				return
			}
			code := q.Get("code")
			if code == "" {
				http.Error(w, "missing code", http.StatusBadRequest)
				return
			}
			_, _ = io.WriteString(w, "Authorization complete. You can close this window.\n")
			select {
			case codes <- code:
			default:
			}
		}),
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errs <- err:
			default:
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.prompt(authURL)

	var code string
	select {
	case code = <-codes:
	case err := <-errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, a.httpClient())
	tok, err := flowCfg.Exchange(exchangeCtx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	a.log.Info().Msg("authorization complete")
	return tok, nil
}

func (a *Authenticator) prompt(authURL string) {
	if a.Prompt != nil {
		a.Prompt(authURL)
		return
	}
	fmt.Fprintf(os.Stderr, "Open this URL in your browser to authorize access:\n\n  %s\n\n", authURL)
}

// LoadToken reads TokenFile.
func (a *Authenticator) LoadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(a.TokenFile)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token %s: %w", a.TokenFile, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("token %s holds no credentials", a.TokenFile)
	}
	return &tok, nil
}

// SaveToken writes tok to TokenFile with owner-only permissions.
func (a *Authenticator) SaveToken(tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := storage.WriteFileAtomic(a.TokenFile, data, 0o600); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// savingTokenSource persists tokens whenever the underlying source refreshes.
type savingTokenSource struct {
	mu   sync.Mutex
	base oauth2.TokenSource
	last *oauth2.Token
	save func(*oauth2.Token) error
	log  zerolog.Logger
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || tok.AccessToken != s.last.AccessToken {
		// Google omits the refresh token on refresh responses
		if tok.RefreshToken == "" && s.last != nil {
			tok.RefreshToken = s.last.RefreshToken
		}
		if err := s.save(tok); err != nil {
			s.log.Warn().Err(err).Msg("failed to persist refreshed token")
		}
		s.last = tok
	}
	return tok, nil
}
