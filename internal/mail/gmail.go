package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aurabot/aura/internal/config"
)

const (
	gmailBaseURL  = "https://gmail.googleapis.com/gmail/v1/users/me"
	tokenEndpoint = "https://oauth2.googleapis.com/token"
)

// Gmail talks to the Gmail REST API using an OAuth refresh token. Access
// tokens are refreshed lazily and cached until shortly before expiry.
type Gmail struct {
	cfg        config.MailConfig
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewGmail(cfg config.MailConfig) *Gmail {
	return &Gmail{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// token returns a valid access token, refreshing when the cached one is
// expired or within a minute of expiring.
func (g *Gmail) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.accessToken != "" && time.Now().Before(g.tokenExpiry.Add(-time.Minute)) {
		return g.accessToken, nil
	}

	form := url.Values{
		"client_id":     {g.cfg.ClientID},
		"client_secret": {g.cfg.ClientSecret},
		"refresh_token": {g.cfg.RefreshToken},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("refreshing access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("token refresh: unexpected status %d: %s", resp.StatusCode, body)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token refresh returned empty access token")
	}

	g.accessToken = tok.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return g.accessToken, nil
}

// doJSON performs an authenticated API call and decodes the JSON response
// into out (skipped when out is nil).
func (g *Gmail) doJSON(ctx context.Context, method, path string, body io.Reader, out any) error {
	tok, err := g.token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, gmailBaseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gmail request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gmail %s %s: unexpected status %d: %s", method, path, resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding gmail response: %w", err)
	}
	return nil
}

// part mirrors the Gmail API message payload tree.
type part struct {
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
	Headers  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Body struct {
		Data         string `json:"data"`
		AttachmentID string `json:"attachmentId"`
	} `json:"body"`
	Parts []*part `json:"parts"`
}

func (p *part) header(name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// FetchNextUnread returns the oldest unread inbox message from the user
// address, or nil when there is none. Only mail from the configured address
// is ever considered; anything else in the inbox is invisible to the agent.
func (g *Gmail) FetchNextUnread(ctx context.Context) (*Message, error) {
	query := fmt.Sprintf("is:unread from:%s in:inbox", g.cfg.UserAddress)
	var list struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	path := "/messages?maxResults=1&q=" + url.QueryEscape(query)
	if err := g.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, fmt.Errorf("listing unread messages: %w", err)
	}
	if len(list.Messages) == 0 {
		return nil, nil
	}

	var full struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
		Payload  *part  `json:"payload"`
	}
	if err := g.doJSON(ctx, http.MethodGet, "/messages/"+list.Messages[0].ID+"?format=full", nil, &full); err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", list.Messages[0].ID, err)
	}
	if full.Payload == nil {
		return nil, fmt.Errorf("message %s has no payload", full.ID)
	}

	return &Message{
		ID:         full.ID,
		ThreadID:   full.ThreadID,
		Subject:    full.Payload.header("Subject"),
		From:       full.Payload.header("From"),
		MessageID:  full.Payload.header("Message-ID"),
		References: full.Payload.header("References"),
		payload:    full.Payload,
	}, nil
}

// SendReply sends body as a reply in msg's thread, carrying the In-Reply-To
// and References headers so mail clients stitch the conversation together.
func (g *Gmail) SendReply(ctx context.Context, msg *Message, body string) error {
	subject := msg.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	references := msg.References
	if msg.MessageID != "" {
		if references != "" {
			references += " "
		}
		references += msg.MessageID
	}

	headers := []string{
		"To: " + g.cfg.UserAddress,
		"Subject: " + subject,
	}
	if msg.MessageID != "" {
		headers = append(headers, "In-Reply-To: "+msg.MessageID)
	}
	if references != "" {
		headers = append(headers, "References: "+references)
	}

	return g.sendRaw(ctx, headers, body, msg.ThreadID)
}

// Send delivers a standalone message to the user (reminders, error notices).
func (g *Gmail) Send(ctx context.Context, subject, body string) error {
	headers := []string{
		"To: " + g.cfg.UserAddress,
		"Subject: " + subject,
		fmt.Sprintf("Message-ID: <%s@aura>", uuid.NewString()),
	}
	return g.sendRaw(ctx, headers, body, "")
}

func (g *Gmail) sendRaw(ctx context.Context, headers []string, body, threadID string) error {
	headers = append(headers, "Content-Type: text/plain; charset=utf-8")
	raw := strings.Join(headers, "\r\n") + "\r\n\r\n" + body

	payload := map[string]string{
		"raw": base64.URLEncoding.EncodeToString([]byte(raw)),
	}
	if threadID != "" {
		payload["threadId"] = threadID
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if err := g.doJSON(ctx, http.MethodPost, "/messages/send", strings.NewReader(string(buf)), nil); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// Archive marks msg read and removes it from the inbox so the next poll
// never sees it again.
func (g *Gmail) Archive(ctx context.Context, msg *Message) error {
	body := `{"removeLabelIds":["UNREAD","INBOX"]}`
	if err := g.doJSON(ctx, http.MethodPost, "/messages/"+msg.ID+"/modify", strings.NewReader(body), nil); err != nil {
		return fmt.Errorf("archiving message %s: %w", msg.ID, err)
	}
	return nil
}

// attachment fetches and decodes an attachment body.
func (g *Gmail) attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	var resp struct {
		Data string `json:"data"`
	}
	path := "/messages/" + messageID + "/attachments/" + attachmentID
	if err := g.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching attachment: %w", err)
	}
	data, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(resp.Data, "="))
	if err != nil {
		return nil, fmt.Errorf("decoding attachment: %w", err)
	}
	return data, nil
}
