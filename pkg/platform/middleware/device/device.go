// Package device derives browser and device details from the User-Agent so
// declarations can record how they were submitted.
package device

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"civicdesk/pkg/requestcontext"
)

const (
	TypeMobile  = "mobile"
	TypeDesktop = "desktop"
	TypeBot     = "bot"
	TypeUnknown = "unknown"
)

// Parse turns a User-Agent string into device information.
func Parse(userAgent string) requestcontext.DeviceInfo {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return requestcontext.DeviceInfo{Browser: "Unknown Device", Type: TypeUnknown}
	}

	ua := useragent.New(userAgent)
	name, version := ua.Browser()

	browser := strings.TrimSpace(name + " " + version)
	if os := ua.OS(); os != "" {
		browser = strings.TrimSpace(browser + " on " + os)
	}

	info := requestcontext.DeviceInfo{
		Browser: browser,
		Type:    TypeDesktop,
		Model:   ua.Model(),
	}
	switch {
	case ua.Bot():
		info.Type = TypeBot
	case ua.Mobile():
		info.Type = TypeMobile
	}
	if info.Model == "" {
		info.Model = ua.Platform()
	}
	return info
}

// Middleware stores parsed device information in the request context.
// It must run after the metadata middleware.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		info := Parse(requestcontext.UserAgent(ctx))
		next.ServeHTTP(w, r.WithContext(requestcontext.WithDevice(ctx, info)))
	})
}
