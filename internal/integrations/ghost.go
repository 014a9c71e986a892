package integrations

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const ghostTokenExpiry = 5 * time.Minute

// GhostClient publishes newsletters through the Ghost Admin API. The
// admin key has the form "id:secret" with a hex-encoded secret; requests
// authenticate with a short-lived HS256 JWT carrying the key id.
type GhostClient struct {
	client   *Client
	adminKey string

	mu           sync.Mutex
	token        string
	tokenExpires time.Time
}

func NewGhost(baseURL, adminKey string, logger *slog.Logger) *GhostClient {
	return &GhostClient{
		client:   NewClient("ghost", baseURL, logger),
		adminKey: adminKey,
	}
}

func (g *GhostClient) configured() bool {
	return g.client.BaseURL != "" && g.adminKey != ""
}

// generateToken mints the Admin API JWT.
func (g *GhostClient) generateToken() (string, error) {
	keyID, secret, ok := strings.Cut(g.adminKey, ":")
	if !ok {
		return "", fmt.Errorf("invalid Ghost admin key format, expected 'id:secret'")
	}

	secretBytes, err := hex.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("invalid Ghost admin key secret: %w", err)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(ghostTokenExpiry).Unix(),
		"aud": "/admin/",
	})
	token.Header["kid"] = keyID

	signed, err := token.SignedString(secretBytes)
	if err != nil {
		return "", fmt.Errorf("failed to sign Ghost token: %w", err)
	}
	return signed, nil
}

// authToken returns a cached token, refreshing one minute before expiry.
func (g *GhostClient) authToken() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" && time.Now().Before(g.tokenExpires) {
		return g.token, nil
	}

	token, err := g.generateToken()
	if err != nil {
		return "", err
	}
	g.token = token
	g.tokenExpires = time.Now().Add(ghostTokenExpiry - time.Minute)
	return token, nil
}

func (g *GhostClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	if !g.configured() {
		return ErrNotConfigured
	}

	token, err := g.authToken()
	if err != nil {
		return err
	}
	g.client.Headers = map[string]string{"Authorization": "Ghost " + token}
	return g.client.DoJSON(ctx, method, path, nil, body, out)
}

// TestConnection reads the site info.
func (g *GhostClient) TestConnection(ctx context.Context) ConnectionStatus {
	if !g.configured() {
		return ConnectionStatus{Message: "Not configured"}
	}

	start := time.Now()
	var out struct {
		Site struct {
			Title string `json:"title"`
		} `json:"site"`
	}
	if err := g.do(ctx, "GET", "/ghost/api/admin/site/", nil, &out); err != nil {
		return ConnectionStatus{Message: err.Error()}
	}
	return ConnectionStatus{
		OK:        true,
		Message:   fmt.Sprintf("Connected to %s", out.Site.Title),
		LatencyMS: time.Since(start).Milliseconds(),
	}
}

// Newsletter is an active Ghost newsletter (email audience).
type Newsletter struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
}

// Newsletters lists the active newsletters.
func (g *GhostClient) Newsletters(ctx context.Context) ([]Newsletter, error) {
	var out struct {
		Newsletters []Newsletter `json:"newsletters"`
	}
	if err := g.do(ctx, "GET", "/ghost/api/admin/newsletters/", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch newsletters: %w", err)
	}

	var active []Newsletter
	for _, n := range out.Newsletters {
		if n.Status == "active" {
			active = append(active, n)
		}
	}
	return active, nil
}

// Post is a post as returned by the Admin API.
type Post struct {
	ID          string `json:"id"`
	UUID        string `json:"uuid"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	URL         string `json:"url"`
	Status      string `json:"status"`
	UpdatedAt   string `json:"updated_at"`
	PublishedAt string `json:"published_at,omitempty"`
}

// PublishOptions control the second publish step of CreatePost.
type PublishOptions struct {
	Publish      bool   // move from draft to published
	SendEmail    bool   // send via newsletter email
	EmailOnly    bool   // email without publishing on the site
	NewsletterID string // preferred newsletter; first active one if empty
}

// mobiledoc wraps rendered HTML in a single HTML card, Ghost's internal
// document format.
func mobiledoc(html string) (string, error) {
	doc := map[string]interface{}{
		"version": "0.3.1",
		"atoms":   []interface{}{},
		"cards":   []interface{}{[]interface{}{"html", map[string]string{"html": html}}},
		"markups": []interface{}{},
		"sections": []interface{}{
			[]interface{}{1, "p", []interface{}{[]interface{}{0, []interface{}{}, 0, ""}}},
			[]interface{}{10, 0},
		},
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode mobiledoc: %w", err)
	}
	return string(payload), nil
}

// CreatePost creates the newsletter post. Ghost requires a two-step
// flow: the post is always created as a draft, then a PUT moves it to
// published; sending email needs the newsletter slug as a query
// parameter on that PUT.
func (g *GhostClient) CreatePost(ctx context.Context, title, html string, opts PublishOptions) (*Post, error) {
	if !g.configured() {
		return nil, ErrNotConfigured
	}

	doc, err := mobiledoc(html)
	if err != nil {
		return nil, err
	}

	var created struct {
		Posts []Post `json:"posts"`
	}
	body := map[string]interface{}{
		"posts": []map[string]interface{}{{
			"title":     title,
			"mobiledoc": doc,
			"status":    "draft",
		}},
	}
	if err := g.do(ctx, "POST", "/ghost/api/admin/posts/", body, &created); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	if len(created.Posts) == 0 {
		return nil, fmt.Errorf("ghost returned no post")
	}

	post := created.Posts[0]
	g.client.Logger.Info("created draft post", "post_id", post.ID, "title", title)

	if opts.SendEmail {
		slug, err := g.newsletterSlug(ctx, opts.NewsletterID)
		if err != nil {
			g.client.Logger.Warn("no newsletter available, publishing without email", "error", err)
		} else {
			path := fmt.Sprintf("/ghost/api/admin/posts/%s/?newsletter=%s", post.ID, slug)
			update := map[string]interface{}{
				"updated_at": post.UpdatedAt,
				"status":     "published",
			}
			if opts.EmailOnly {
				update["email_only"] = true
			}

			var published struct {
				Posts []Post `json:"posts"`
			}
			body := map[string]interface{}{"posts": []map[string]interface{}{update}}
			if err := g.do(ctx, "PUT", path, body, &published); err != nil {
				return nil, fmt.Errorf("failed to publish post with email: %w", err)
			}
			if len(published.Posts) > 0 {
				g.client.Logger.Info("post published with email", "post_id", post.ID, "newsletter", slug)
				return &published.Posts[0], nil
			}
		}
	}

	if opts.Publish {
		var published struct {
			Posts []Post `json:"posts"`
		}
		body := map[string]interface{}{
			"posts": []map[string]interface{}{{
				"updated_at": post.UpdatedAt,
				"status":     "published",
			}},
		}
		if err := g.do(ctx, "PUT", "/ghost/api/admin/posts/"+post.ID+"/", body, &published); err != nil {
			return nil, fmt.Errorf("failed to publish post: %w", err)
		}
		if len(published.Posts) > 0 {
			g.client.Logger.Info("post published", "post_id", post.ID)
			return &published.Posts[0], nil
		}
	}

	return &post, nil
}

// newsletterSlug resolves the preferred newsletter ID to its slug, or
// falls back to the first active newsletter.
func (g *GhostClient) newsletterSlug(ctx context.Context, newsletterID string) (string, error) {
	newsletters, err := g.Newsletters(ctx)
	if err != nil {
		return "", err
	}
	if len(newsletters) == 0 {
		return "", fmt.Errorf("no active newsletter")
	}

	if newsletterID != "" {
		for _, n := range newsletters {
			if n.ID == newsletterID {
				return n.Slug, nil
			}
		}
		g.client.Logger.Warn("newsletter not found, using first active", "newsletter_id", newsletterID)
	}
	return newsletters[0].Slug, nil
}

// DeletePost removes a post, used by the retention cleanup.
func (g *GhostClient) DeletePost(ctx context.Context, postID string) error {
	if err := g.do(ctx, "DELETE", "/ghost/api/admin/posts/"+postID+"/", nil, nil); err != nil {
		return fmt.Errorf("failed to delete post %s: %w", postID, err)
	}
	return nil
}
