package service

import "strings"

var mobileKeywords = []string{
	"android", "iphone", "ipod", "ipad", "windows phone",
	"blackberry", "mobile", "webos", "micromessenger",
	"symbian", "netfront", "midp", "wap", "opera mini", "ucbrowser",
}

// IsMobile reports whether the user agent looks like a phone or tablet.
func IsMobile(userAgent string, force bool) bool {
	if force {
		return true
	}
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return false
	}
	for _, kw := range mobileKeywords {
		if strings.Contains(ua, kw) {
			return true
		}
	}
	return false
}

// DeviceString describes a client as "Platform (Browser) - mobile|desktop".
func DeviceString(userAgent string, forceMobile bool) string {
	kind := "desktop"
	if IsMobile(userAgent, forceMobile) {
		kind = "mobile"
	}
	return platform(userAgent) + " (" + browser(userAgent) + ") - " + kind
}

func platform(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		return "iOS"
	case strings.Contains(ua, "macintosh"), strings.Contains(ua, "mac os"):
		return "Mac OS"
	case strings.Contains(ua, "linux"):
		return "Linux"
	default:
		return "unknown platform"
	}
}

// Edge and Chrome both carry "safari" and Edge also carries "chrome", so the
// most specific tokens are checked first.
func browser(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "micromessenger"):
		return "WeChat"
	case strings.Contains(ua, "edg"):
		return "Edge"
	case strings.Contains(ua, "chrome"), strings.Contains(ua, "crios"):
		return "Chrome"
	case strings.Contains(ua, "firefox"), strings.Contains(ua, "fxios"):
		return "Firefox"
	case strings.Contains(ua, "safari"):
		return "Safari"
	default:
		return "unknown browser"
	}
}
