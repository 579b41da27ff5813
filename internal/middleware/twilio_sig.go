// Package middleware holds echo middleware for Twilio webhooks.
package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// ParamsKey is the echo context key holding the parsed webhook form.
const ParamsKey = "twilioParams"

// Signature computes the X-Twilio-Signature value for a webhook URL and its
// form parameters.
func Signature(authToken, fullURL string, params map[string]string) string {
	data := fullURL
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data += k + params[k]
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func validateTwilioSignature(authToken, signature, fullURL string, params map[string]string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Signature(authToken, fullURL, params)))
}

// TwilioAuth parses the form body of /twilio/* requests into ParamsKey and
// validates the request signature. Without an auth token the check is
// skipped, which is only meant for local development.
// publicBaseURL, when set, replaces scheme and host of the signed URL since
// Twilio signs the URL it called, not the one a proxy forwarded.
func TwilioAuth(authToken, publicBaseURL string) echo.MiddlewareFunc {
	if authToken == "" {
		log.Println("Warning: TWILIO_AUTH_TOKEN not set - webhook signatures are not validated")
	}
	base := strings.TrimRight(publicBaseURL, "/")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/twilio/") {
				return next(c)
			}

			bodyBytes, err := io.ReadAll(req.Body)
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to read request body")
			}

			formData, err := url.ParseQuery(string(bodyBytes))
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to parse form data")
			}

			params := make(map[string]string)
			for key, values := range formData {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}

			if authToken != "" {
				requestURL := base + req.URL.RequestURI()
				if base == "" {
					requestURL = "https://" + req.Host + req.URL.RequestURI()
				}
				if !validateTwilioSignature(authToken, req.Header.Get("X-Twilio-Signature"), requestURL, params) {
					return c.String(http.StatusUnauthorized, "Invalid Twilio signature")
				}
			}

			c.Set(ParamsKey, params)
			return next(c)
		}
	}
}

// Params returns the webhook form parsed by TwilioAuth.
func Params(c echo.Context) (map[string]string, bool) {
	params, ok := c.Get(ParamsKey).(map[string]string)
	return params, ok
}
