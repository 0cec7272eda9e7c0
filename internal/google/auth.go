package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"remindcal/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

const (
	credentialsFile = "credentials.json"
	redirectURL     = "urn:ietf:wg:oauth:2.0:oob"
)

// OAuthConfig returns the read-only calendar OAuth2 config.
// It prioritizes explicit client credentials over a local credentials.json file.
func OAuthConfig(clientID, clientSecret string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{calendar.CalendarReadonlyScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("credentials.json not found. Please configure google.client_id and google.client_secret or place credentials.json in the working directory")
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = redirectURL // For desktop app flow
	return config, nil
}

// AuthCodeURL is the page an owner visits to authorize offline read access.
func AuthCodeURL(config *oauth2.Config, ownerID int64) string {
	return config.AuthCodeURL(fmt.Sprintf("owner-%d", ownerID), oauth2.AccessTypeOffline)
}

// TokenFromWeb exchanges an authorization code for a token.
func TokenFromWeb(ctx context.Context, config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(ctx, strings.TrimSpace(authCode))
}

// TokenStore keeps one OAuth token file per owner, named <owner>.json.
type TokenStore struct {
	dir string
}

func NewTokenStore(dir string) *TokenStore {
	return &TokenStore{dir: dir}
}

func (s *TokenStore) path(ownerID int64) string {
	return filepath.Join(s.dir, strconv.FormatInt(ownerID, 10)+".json")
}

// Load returns the owner's token, or models.ErrNotAuthenticated if there is none.
func (s *TokenStore) Load(ownerID int64) (*oauth2.Token, error) {
	f, err := os.Open(s.path(ownerID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("no google token for owner %d: %w", ownerID, models.ErrNotAuthenticated)
	}
	if err != nil {
		return nil, fmt.Errorf("could not load token for owner %d: %w", ownerID, err)
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("could not decode token for owner %d: %w", ownerID, err)
	}
	return tok, nil
}

// Save stores the owner's token, replacing any previous one.
func (s *TokenStore) Save(ownerID int64, token *oauth2.Token) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("unable to create token directory: %w", err)
	}
	f, err := os.OpenFile(s.path(ownerID), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// Delete removes the owner's token. Deleting a missing token is not an error.
func (s *TokenStore) Delete(ownerID int64) error {
	err := os.Remove(s.path(ownerID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unable to remove token for owner %d: %w", ownerID, err)
	}
	return nil
}

// Owners lists every owner with a stored token, in ascending order.
func (s *TokenStore) Owners() ([]int64, error) {
	files, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var owners []int64
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil {
			continue
		}
		owners = append(owners, id)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	return owners, nil
}
