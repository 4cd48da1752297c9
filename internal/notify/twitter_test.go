package notify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPercentEncode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abcABC123", "abcABC123"},
		{"-._~", "-._~"},
		{"hello world", "hello%20world"},
		{"a+b=c&d", "a%2Bb%3Dc%26d"},
		{"100%", "100%25"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, percentEncode(tt.in), tt.in)
	}
}

func TestAuthorizationHeaderShape(t *testing.T) {
	s := NewTwitterSender("ck", "cs", "at", "as")

	header, err := s.authorizationHeader("POST", tweetEndpoint)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(header, "OAuth "))
	for _, key := range []string{
		"oauth_consumer_key", "oauth_nonce", "oauth_signature_method",
		"oauth_timestamp", "oauth_token", "oauth_version", "oauth_signature",
	} {
		require.Contains(t, header, key+`="`)
	}
	require.Contains(t, header, `oauth_signature_method="HMAC-SHA1"`)
	require.Contains(t, header, `oauth_consumer_key="ck"`)
	require.Contains(t, header, `oauth_token="at"`)
}

func TestSignIsDeterministic(t *testing.T) {
	s := NewTwitterSender("ck", "cs", "at", "as")
	params := map[string]string{
		"oauth_consumer_key":     "ck",
		"oauth_nonce":            "fixed",
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        "1700000000",
		"oauth_token":            "at",
		"oauth_version":          "1.0",
	}

	first := s.sign("POST", tweetEndpoint, params)
	second := s.sign("POST", tweetEndpoint, params)
	require.Equal(t, first, second)
	require.NotEmpty(t, first)
}
