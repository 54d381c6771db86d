package metrics

import (
	"net/http"
	"strconv"
	"strings"

	"marketfeed/logger"
)

// weightHeaders names the used/limit/remaining headers each venue returns on
// REST responses.
var weightHeaders = map[string]struct{ used, limit, remaining string }{
	"binance": {used: "X-MBX-USED-WEIGHT-1m"},
	"okx":     {used: "Rate-Limit-Used", limit: "Rate-Limit-Limit", remaining: "Rate-Limit-Remaining"},
	"bybit":   {limit: "X-Bapi-Limit", remaining: "X-Bapi-Limit-Status"},
	"kucoin":  {limit: "Gw-Ratelimit-Limit", remaining: "Gw-Ratelimit-Remaining"},
}

// UsedWeight reads the consumed request weight from venue response headers.
// ok is false when the venue sent nothing usable.
func UsedWeight(venue string, header http.Header) (int64, bool) {
	h, known := weightHeaders[strings.ToLower(venue)]
	if !known {
		return 0, false
	}
	if used, ok := firstInt(header.Get(h.used)); ok && h.used != "" {
		return used, true
	}
	if h.limit == "" || h.remaining == "" {
		return 0, false
	}
	limit, okL := firstInt(header.Get(h.limit))
	remaining, okR := firstInt(header.Get(h.remaining))
	if !okL || !okR {
		return 0, false
	}
	return max(limit-remaining, 0), true
}

// ReportUsedWeight publishes the venue's used weight when its headers carry one.
func ReportUsedWeight(log *logger.Log, venue string, header http.Header) {
	used, ok := UsedWeight(venue, header)
	if !ok {
		return
	}
	venueUsedWeight.WithLabelValues(venue).Set(float64(used))
	EmitMetric(log, venue+"_rest", "used_weight", used, "gauge", logger.Fields{"venue": venue})
}

// DetectLimit classifies an error response as a rate limit or an IP ban from
// its status code and the venue's wording.
func DetectLimit(venue string, status int, msg string) (rateLimit bool, ipBan bool) {
	lower := strings.ToLower(msg)
	switch strings.ToLower(venue) {
	case "okx":
		rateLimit = strings.Contains(lower, "too many requests") || strings.Contains(lower, "frequency limit")
		ipBan = strings.Contains(lower, "ip") && (strings.Contains(lower, "blocked") || strings.Contains(lower, "ban"))
	case "kucoin":
		rateLimit = strings.Contains(lower, "too many requests") || strings.Contains(lower, "rate limit")
		ipBan = strings.Contains(lower, "ip") && strings.Contains(lower, "limit") && strings.Contains(lower, "triggered")
	case "bybit":
		ipBan = strings.Contains(lower, "ip rate limit") || (strings.Contains(lower, "ip") && strings.Contains(lower, "ban"))
		rateLimit = !ipBan && (strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests") || strings.Contains(lower, "too many visits"))
	default:
		rateLimit = strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests")
		ipBan = strings.Contains(lower, "ip") && strings.Contains(lower, "ban")
	}
	// Binance answers 418 once an IP is banned for ignoring 429s.
	switch status {
	case http.StatusTooManyRequests:
		rateLimit = true
	case http.StatusTeapot:
		ipBan = true
	}
	return rateLimit, ipBan
}

// ReportLimitFromMessage records rate limit and IP ban events found in an
// error response. Anything else is ignored.
func ReportLimitFromMessage(log *logger.Log, venue string, status int, msg string) {
	rateLimit, ipBan := DetectLimit(venue, status, msg)
	fields := logger.Fields{"venue": venue, "status": status}
	if rateLimit {
		rateLimitEvents.WithLabelValues(venue, "rate_limit").Inc()
		EmitMetric(log, venue+"_rest", "rate_limit_exceeded", 1, "counter", fields)
		log.WithComponent(venue + "_rest").WithFields(fields).Warn("rate limit exceeded")
	}
	if ipBan {
		rateLimitEvents.WithLabelValues(venue, "ip_ban").Inc()
		EmitMetric(log, venue+"_rest", "ip_ban", 1, "counter", fields)
		log.WithComponent(venue + "_rest").WithFields(fields).Error("ip banned")
	}
}

// firstInt parses the first run of digits in s, so "120;w=1" yields 120.
func firstInt(s string) (int64, bool) {
	start := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.ParseInt(s[start:end], 10, 64)
	return n, err == nil
}
