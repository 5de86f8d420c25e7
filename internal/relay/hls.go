package relay

import (
	"bufio"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// HLSRewriteParams carries the per-request identity baked into every
// rewritten URI so a later segment/key fetch can be routed back through
// the same session.
type HLSRewriteParams struct {
	BaseURL          string
	Username         string
	Password         string
	InputID          string
	VirtualID        string
	UserSessionToken string
}

var uriAttrPattern = regexp.MustCompile(`URI="([^"]*)"`)

// RewritePlaylist rewrites every segment/variant/key URI in an HLS playlist
// so it round-trips back through the gateway. Tags and attributes other
// than the URI itself pass through unchanged.
func RewritePlaylist(playlist, responseURL string, params HLSRewriteParams, codec *TokenCodec) (string, error) {
	base, err := url.Parse(responseURL)
	if err != nil {
		return "", fmt.Errorf("parsing response URL: %w", err)
	}

	var out strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(playlist))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "" || strings.HasPrefix(line, "#EXT-X-ENDLIST"):
			out.WriteString(line)
		case strings.HasPrefix(line, "#EXT-X-KEY") || strings.HasPrefix(line, "#EXT-X-MEDIA"):
			rewritten, err := rewriteAttrLine(line, base, params, codec)
			if err != nil {
				return "", err
			}
			out.WriteString(rewritten)
		case strings.HasPrefix(line, "#"):
			out.WriteString(line)
		default:
			rewritten, err := rewriteURILine(line, base, params, codec)
			if err != nil {
				return "", err
			}
			out.WriteString(rewritten)
		}
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scanning playlist: %w", err)
	}
	return out.String(), nil
}

func rewriteAttrLine(line string, base *url.URL, params HLSRewriteParams, codec *TokenCodec) (string, error) {
	match := uriAttrPattern.FindStringSubmatchIndex(line)
	if match == nil {
		return line, nil
	}
	uri := line[match[2]:match[3]]
	rewritten, err := rewriteURI(uri, base, params, codec)
	if err != nil {
		return "", err
	}
	return line[:match[2]] + rewritten + line[match[3]:], nil
}

func rewriteURILine(line string, base *url.URL, params HLSRewriteParams, codec *TokenCodec) (string, error) {
	return rewriteURI(strings.TrimSpace(line), base, params, codec)
}

func rewriteURI(uri string, base *url.URL, params HLSRewriteParams, codec *TokenCodec) (string, error) {
	resolved, err := resolveURL(base, uri)
	if err != nil {
		return "", fmt.Errorf("resolving URI %q: %w", uri, err)
	}
	token, err := codec.Seal(params.UserSessionToken, resolved)
	if err != nil {
		return "", fmt.Errorf("sealing token: %w", err)
	}
	return fmt.Sprintf("%s/hls/%s/%s/%s/%s/%s",
		strings.TrimRight(params.BaseURL, "/"),
		params.Username, params.Password, params.InputID, params.VirtualID, token), nil
}

func resolveURL(base *url.URL, ref string) (string, error) {
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(refURL).String(), nil
}

// DecodeHLSToken recovers the (user_session_token, upstream_url) pair
// embedded in an HLS URL token segment.
func DecodeHLSToken(token string, codec *TokenCodec) (sessionToken, upstreamURL string, err error) {
	return codec.Open(token)
}

// SynthesizeFallbackPlaylist builds a minimal one-segment playlist pointing
// at the gateway's own fallback-clip endpoint, served when an upstream
// playlist fetch fails but a "channel unavailable" clip is configured.
func SynthesizeFallbackPlaylist(clipURL string) string {
	var out strings.Builder
	out.WriteString("#EXTM3U\n")
	out.WriteString("#EXT-X-VERSION:3\n")
	out.WriteString("#EXT-X-TARGETDURATION:10\n")
	out.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	out.WriteString("#EXTINF:10.0,\n")
	out.WriteString(clipURL)
	out.WriteString("\n")
	return out.String()
}
