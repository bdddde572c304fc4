// Package cachekey derives stable cache keys from a request URL and its body.
package cachekey

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// FromRequest returns the cache key for a request to rawURL with the given body
//
// A JSON object body contributes its entries as sorted parameters, so
// {"b":1,"a":2} and {"a":2,"b":1} share a key. Any other non-empty body is
// appended verbatim.
func FromRequest(rawURL string, body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return rawURL
	}

	var params map[string]any
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&params); err != nil || params == nil || decoder.More() {
		return fmt.Sprintf("%s?body=%s", rawURL, escape(string(body)))
	}

	return FromParams(rawURL, params)
}

// ForCaller scopes key to the credentials a request is sent with
//
// Keys of requests without credentials are returned unchanged. The
// credentials themselves never appear in the key.
func ForCaller(key string, authorization string) string {
	if authorization == "" {
		return key
	}
	sum := sha256.Sum256([]byte(authorization))
	return key + "#caller=" + hex.EncodeToString(sum[:8])
}

// FromParams returns rawURL with params appended in key order
func FromParams(rawURL string, params map[string]any) string {
	if len(params) == 0 {
		return rawURL
	}

	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", key, escape(renderValue(params[key]))))
	}

	return fmt.Sprintf("%s?%s", rawURL, strings.Join(parts, "&"))
}

func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

// Percent-encode like encodeURIComponent
func escape(s string) string {
	escaped := url.QueryEscape(s)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	for _, unreserved := range []string{"!", "'", "(", ")", "*"} {
		escaped = strings.ReplaceAll(escaped, url.QueryEscape(unreserved), unreserved)
	}
	return escaped
}
