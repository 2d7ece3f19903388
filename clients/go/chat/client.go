// Package chat provides a client for the chat server's REST and websocket APIs.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rooksgc/rooksgc-dev-server/internal/models"
)

// Client is a chat API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new client. A token saved by an earlier Login or
// Register is picked up from ConfigDir.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("CHAT_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".rooksgc")
	}

	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	_ = c.LoadToken()
	return c
}

// LoadToken loads the saved session token from disk.
func (c *Client) LoadToken() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "token"))
	if err != nil {
		return err
	}
	c.Token = strings.TrimSpace(string(data))
	return nil
}

// SaveToken saves the session token to disk.
func (c *Client) SaveToken() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.ConfigDir, "token"), []byte(c.Token), 0600)
}

// APIError is a failed API response.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat error %d %s: %s", e.Status, e.Code, e.Message)
}

type envelope struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do performs an HTTP request and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		json.Unmarshal(respBody, apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return err
	}
	if len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// Session is the result of Register and Login.
type Session struct {
	Token string          `json:"token"`
	User  *models.UserDTO `json:"user"`
}

// Register creates an account and keeps its token.
func (c *Client) Register(ctx context.Context, name, email, password string) (*Session, error) {
	return c.authenticate(ctx, "/api/v1/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
}

// Login exchanges credentials for a token and keeps it.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	return c.authenticate(ctx, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (c *Client) authenticate(ctx context.Context, path string, body map[string]string) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, path, body, &s); err != nil {
		return nil, err
	}
	c.Token = s.Token
	return &s, nil
}

// Me returns the user the current token belongs to.
func (c *Client) Me(ctx context.Context) (*models.UserDTO, error) {
	var u models.UserDTO
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/fetch-by-token", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateChannel creates a channel owned by the caller and returns its id.
func (c *Client) CreateChannel(ctx context.Context, name, description string) (int64, error) {
	var resp struct {
		ID int64 `json:"id"`
	}
	err := c.do(ctx, http.MethodPut, "/api/v1/chat/channel", map[string]string{
		"name":        name,
		"description": description,
	}, &resp)
	return resp.ID, err
}

// Channels lists the channels userID belongs to.
func (c *Client) Channels(ctx context.Context, userID int64) ([]models.ChannelDTO, error) {
	var out []models.ChannelDTO
	err := c.do(ctx, http.MethodGet, "/api/v1/chat/channels/"+strconv.FormatInt(userID, 10), nil, &out)
	return out, err
}

// AddChannelMember adds the user owning email to a channel.
func (c *Client) AddChannelMember(ctx context.Context, channelID int64, email string) (*models.UserDTO, error) {
	var u models.UserDTO
	path := fmt.Sprintf("/api/v1/chat/channel/%d/members", channelID)
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"email": email}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// LeaveChannel removes the caller from a channel.
func (c *Client) LeaveChannel(ctx context.Context, channelID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/chat/channel/%d/members/me", channelID), nil, nil)
}

// MessagesPage is a page of channel history.
type MessagesPage struct {
	ChannelID int64            `json:"channelId"`
	Messages  []models.Message `json:"messages"`
	HasMore   bool             `json:"has_more"`
}

// ChannelMessages retrieves channel history, newest first.
func (c *Client) ChannelMessages(ctx context.Context, channelID int64, limit int, before int64) (*MessagesPage, error) {
	path := fmt.Sprintf("/api/v1/chat/channel/%d/messages?limit=%d", channelID, limit)
	if before > 0 {
		path += fmt.Sprintf("&before=%d", before)
	}
	var page MessagesPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// PostMessage posts text to a channel.
func (c *Client) PostMessage(ctx context.Context, channelID int64, text string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/api/v1/chat/channel/%d/messages", channelID)
	err := c.do(ctx, http.MethodPost, path, map[string]any{"message": map[string]string{"text": text}}, &resp)
	return resp.ID, err
}

// Search finds channel messages containing every word of query.
func (c *Client) Search(ctx context.Context, channelID int64, query string) ([]models.Message, error) {
	var resp struct {
		Results []models.Message `json:"results"`
	}
	path := fmt.Sprintf("/api/v1/chat/channel/%d/search?q=%s", channelID, url.QueryEscape(query))
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.Results, err
}

// InviteResult mirrors the invite endpoint's response.
type InviteResult struct {
	ContactAdded bool            `json:"contactAdded"`
	Contact      *models.UserDTO `json:"contact,omitempty"`
	Invite       *models.Invite  `json:"invite,omitempty"`
}

// Invite asks the user owning email to become a contact.
func (c *Client) Invite(ctx context.Context, email, text string) (*InviteResult, error) {
	var res InviteResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/contacts/invite", map[string]string{"email": email, "text": text}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Accept accepts the invite sent by inviterID.
func (c *Client) Accept(ctx context.Context, inviterID int64) (*models.UserDTO, error) {
	var u models.UserDTO
	if err := c.do(ctx, http.MethodPost, "/api/v1/contacts/accept", map[string]int64{"inviterId": inviterID}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Contacts lists userID's contacts. The server only answers for the caller.
func (c *Client) Contacts(ctx context.Context, userID int64) ([]models.UserDTO, error) {
	var out []models.UserDTO
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/contacts", userID), nil, &out)
	return out, err
}

// Users lists every registered user.
func (c *Client) Users(ctx context.Context) ([]models.UserDTO, error) {
	var out []models.UserDTO
	err := c.do(ctx, http.MethodGet, "/api/v1/users", nil, &out)
	return out, err
}

// ChangePhoto sets the caller's photo URL.
func (c *Client) ChangePhoto(ctx context.Context, photo string) (*models.UserDTO, error) {
	var u models.UserDTO
	if err := c.do(ctx, http.MethodPatch, "/api/v1/users/me/photo", map[string]string{"photo": photo}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Invites lists the caller's pending invites.
func (c *Client) Invites(ctx context.Context) (incoming, outgoing []models.Invite, err error) {
	var resp struct {
		Incoming []models.Invite `json:"incoming"`
		Outgoing []models.Invite `json:"outgoing"`
	}
	err = c.do(ctx, http.MethodGet, "/api/v1/invites", nil, &resp)
	return resp.Incoming, resp.Outgoing, err
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var h HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Event is a frame received over the websocket.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Conn is a live websocket session.
type Conn struct {
	ws *websocket.Conn
}

// ErrNoToken is returned by Connect before Login or Register.
var ErrNoToken = errors.New("chat: not logged in")

// Connect opens a websocket session with the current token.
func (c *Client) Connect(ctx context.Context) (*Conn, error) {
	if c.Token == "" {
		return nil, ErrNoToken
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"token": {c.Token}}.Encode()

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &Conn{ws: ws}, nil
}

// Send emits a client event.
func (c *Conn) Send(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.ws.WriteJSON(Event{Event: event, Data: raw})
}

// Next blocks for the next server event, up to timeout. Zero waits forever.
func (c *Conn) Next(timeout time.Duration) (*Event, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	var ev Event
	if err := c.ws.ReadJSON(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Close ends the session.
func (c *Conn) Close() error {
	return c.ws.Close()
}
