package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

const tweetEndpoint = "https://api.twitter.com/2/tweets"

// TwitterSender publishes posts via the Twitter v2 API, signing requests with
// OAuth 1.0a user context.
type TwitterSender struct {
	consumerKey    string
	consumerSecret string
	accessToken    string
	accessSecret   string
	client         *http.Client
}

// NewTwitterSender creates a TwitterSender for the given app and user
// credentials. It uses a default HTTP client with a 10-second timeout.
func NewTwitterSender(consumerKey, consumerSecret, accessToken, accessSecret string) *TwitterSender {
	return &TwitterSender{
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		accessToken:    accessToken,
		accessSecret:   accessSecret,
		client:         &http.Client{Timeout: 10 * time.Second},
	}
}

// Post publishes the text and returns the created tweet id.
func (t *TwitterSender) Post(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("twitter: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tweetEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("twitter: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	auth, err := t.authorizationHeader(http.MethodPost, tweetEndpoint)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", auth)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("twitter: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("twitter: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("twitter: decode response: %w", err)
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("twitter: response missing tweet id")
	}
	return out.Data.ID, nil
}

// Name returns the sender identifier.
func (t *TwitterSender) Name() string {
	return "twitter"
}

// authorizationHeader builds the OAuth 1.0a header for a request with a JSON
// body. JSON bodies are not part of the signature base string; only the oauth
// params are signed.
func (t *TwitterSender) authorizationHeader(method, rawURL string) (string, error) {
	nonce, err := newNonce()
	if err != nil {
		return "", err
	}

	params := map[string]string{
		"oauth_consumer_key":     t.consumerKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(time.Now().Unix(), 10),
		"oauth_token":            t.accessToken,
		"oauth_version":          "1.0",
	}

	params["oauth_signature"] = t.sign(method, rawURL, params)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, percentEncode(k)+`="`+percentEncode(params[k])+`"`)
	}
	return "OAuth " + strings.Join(pairs, ", "), nil
}

func (t *TwitterSender) sign(method, rawURL string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(params[k]))
	}

	base := strings.ToUpper(method) + "&" +
		percentEncode(rawURL) + "&" +
		percentEncode(strings.Join(pairs, "&"))
	signingKey := percentEncode(t.consumerSecret) + "&" + percentEncode(t.accessSecret)

	mac := hmac.New(sha1.New, []byte(signingKey))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("twitter: generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// percentEncode applies the RFC 3986 encoding OAuth 1.0a requires. Only
// unreserved characters pass through unescaped.
func percentEncode(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		switch {
		case c >= 'A' && c <= 'Z',
			c >= 'a' && c <= 'z',
			c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
