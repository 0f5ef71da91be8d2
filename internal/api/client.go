package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go-asset-sync/internal/models"

	log "github.com/sirupsen/logrus"
)

const DefaultApiBaseUrl = "https://api.example-marketplace.com/v1"

// Response is the uniform result of every API call. OK is true only for
// a 2xx response; otherwise Error carries one of the closed error
// strings from errors.go. Body holds the raw response payload for the
// caller to decode.
type Response struct {
	Body  []byte
	OK    bool
	Error string
}

// Decode unmarshals the response body into v.
func (r Response) Decode(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

func okResponse(body []byte) Response {
	return Response{Body: body, OK: true}
}

func errResponse(errStr string) Response {
	return Response{Error: errStr}
}

// minEventInterval is the shortest allowed gap between two signals of
// the same screen-view event.
const minEventInterval = 2 * time.Second

// Client talks to the marketplace API. All methods return a Response;
// they never panic and never return Go errors to the caller.
type Client struct {
	BaseUrl    string
	HttpClient *http.Client

	// OnInvalidated is called once when the server rejects the current
	// token, after the token has been cleared. Re-armed by SetToken.
	OnInvalidated func()

	mu           sync.Mutex
	token        string
	invalidated  bool
	optedOut     bool
	lastSignaled map[string]time.Time
}

// NewClient creates an API client. A nil httpClient gets a default with
// the configured timeout.
func NewClient(baseUrl string, httpClient *http.Client, cfg models.Config) *Client {
	if baseUrl == "" {
		baseUrl = DefaultApiBaseUrl
	}
	if httpClient == nil {
		timeout := 30 * time.Second
		if cfg.ApiClientTimeoutSec > 0 {
			timeout = time.Duration(cfg.ApiClientTimeoutSec) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		BaseUrl:      baseUrl,
		HttpClient:   httpClient,
		token:        cfg.AccessToken,
		lastSignaled: map[string]time.Time{},
	}
}

// SetToken installs a new access token and re-arms the invalidation
// callback.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.invalidated = false
}

// Token returns the current access token, empty when logged out.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetOptedOut toggles the telemetry opt-out. While opted out, SignalEvent
// short-circuits without network traffic.
func (c *Client) SetOptedOut(optedOut bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.optedOut = optedOut
}

// invalidate clears the token and fires OnInvalidated at most once per
// token installation.
func (c *Client) invalidate() {
	c.mu.Lock()
	alreadyDone := c.invalidated
	c.invalidated = true
	c.token = ""
	cb := c.OnInvalidated
	c.mu.Unlock()

	if !alreadyDone && cb != nil {
		cb()
	}
}

// classifyTransportError maps a failed http.Client.Do error onto the
// error taxonomy.
func classifyTransportError(err error) string {
	if urlErr, ok := err.(*url.Error); ok {
		if urlErr.Timeout() {
			return ErrTimeout
		}
		if strings.Contains(urlErr.Error(), "proxyconnect") {
			return ErrProxy
		}
	}
	return ErrConnection
}

// looksUnauthorized reports whether a response body carries one of the
// server's authorization rejection markers.
func looksUnauthorized(body []byte) bool {
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "unauthorized") || strings.Contains(lower, "unauthenticated")
}

// request performs one API call. fullUrl must be absolute; payload, when
// non-nil, is sent as a JSON body. With authed the current token is
// required and attached.
func (c *Client) request(method, fullUrl string, payload interface{}, authed bool) Response {
	var token string
	if authed {
		token = c.Token()
		if token == "" {
			return errResponse(ErrNoToken)
		}
	}

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.WithError(err).Errorf("Failed to encode request payload for %s", fullUrl)
			return errResponse(ErrInternal)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, fullUrl, bodyReader)
	if err != nil {
		log.WithError(err).Errorf("Error creating request for %s", fullUrl)
		return errResponse(ErrInternal)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		log.WithError(err).Debugf("Request failed: %s %s", method, fullUrl)
		return errResponse(classifyTransportError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Errorf("Error reading response body from %s", fullUrl)
		return errResponse(ErrConnection)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		log.Debugf("Auth rejected (%d) for %s", resp.StatusCode, fullUrl)
		c.invalidate()
		return errResponse(ErrNotAuthorized)
	case resp.StatusCode >= 500:
		log.Warnf("Server error %d from %s", resp.StatusCode, fullUrl)
		return errResponse(ErrServer)
	case resp.StatusCode >= 400:
		// Some auth failures come back as a generic 4xx with a marker in
		// the body instead of a 401.
		if looksUnauthorized(body) {
			c.invalidate()
			return errResponse(ErrNotAuthorized)
		}
		return Response{Body: body, Error: ErrServer}
	}

	return okResponse(body)
}

func (c *Client) get(path string, authed bool) Response {
	return c.request(http.MethodGet, c.BaseUrl+"/"+path, nil, authed)
}

func (c *Client) post(path string, payload interface{}, authed bool) Response {
	return c.request(http.MethodPost, c.BaseUrl+"/"+path, payload, authed)
}

// LogIn authenticates with email and password and installs the returned
// access token on success.
func (c *Client) LogIn(email, password string) Response {
	payload := map[string]string{"email": email, "password": password}
	resp := c.post("login", payload, false)
	if !resp.OK {
		if resp.Error == ErrServer {
			resp.Error = ErrLoginFailed
		}
		return resp
	}

	var login models.LoginResponse
	if err := resp.Decode(&login); err != nil {
		log.WithError(err).Error("Failed to decode login response")
		return errResponse(ErrDecode)
	}
	if login.AccessToken == "" {
		return errResponse(ErrLoginFailed)
	}
	c.SetToken(login.AccessToken)
	log.Debugf("Logged in as user %d", login.User.ID)
	return resp
}

// LogOut notifies the server and clears the local token regardless of
// the server's answer.
func (c *Client) LogOut() Response {
	resp := c.post("logout", nil, true)
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	return resp
}

// GetAssets fetches one page of the public catalog.
func (c *Client) GetAssets(params models.AssetQueryParameters) Response {
	return c.request(http.MethodGet, models.ConstructAssetsUrl(c.BaseUrl, "assets", params), nil, true)
}

// GetUserAssets fetches one page of the user's purchased assets.
func (c *Client) GetUserAssets(params models.AssetQueryParameters) Response {
	return c.request(http.MethodGet, models.ConstructAssetsUrl(c.BaseUrl, "assets/my_assets", params), nil, true)
}

// GetCategories fetches the category tree.
func (c *Client) GetCategories() Response {
	return c.get("categories", true)
}

// PurchaseAsset spends credits on an asset.
func (c *Client) PurchaseAsset(assetID int) Response {
	resp := c.post(fmt.Sprintf("assets/%d/purchase", assetID), nil, true)
	if !resp.OK && len(resp.Body) > 0 {
		lower := strings.ToLower(string(resp.Body))
		if strings.Contains(lower, "enough credits") {
			resp.Error = ErrNotEnoughCredits
		} else if strings.Contains(lower, "already purchased") {
			resp.Error = ErrAlreadyPurchased
		}
	}
	return resp
}

// GetUserBalance fetches the subscription and on-demand credit balances.
func (c *Client) GetUserBalance() Response {
	return c.get("user/balance", true)
}

// GetSubscriptionDetails fetches the user's current plan.
func (c *Client) GetSubscriptionDetails() Response {
	return c.get("user/subscription", true)
}

// SignalEvent reports a telemetry event. Screen-view events repeated
// within minEventInterval are dropped with ErrTooFrequent, and while
// opted out nothing is sent at all.
func (c *Client) SignalEvent(name string, payload map[string]interface{}) Response {
	c.mu.Lock()
	if c.optedOut {
		c.mu.Unlock()
		return errResponse(ErrOptedOut)
	}
	if strings.HasPrefix(name, "view_screen") {
		now := time.Now()
		if last, ok := c.lastSignaled[name]; ok && now.Sub(last) < minEventInterval {
			c.mu.Unlock()
			return errResponse(ErrTooFrequent)
		}
		c.lastSignaled[name] = now
	}
	c.mu.Unlock()

	body := map[string]interface{}{"event": name}
	for k, v := range payload {
		body[k] = v
	}
	return c.post("events", body, true)
}
