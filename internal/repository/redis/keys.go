package redis

import "fmt"

const ns = "tixcinema:v1"

func KeySessionSummary(sessionID int64) string {
	return fmt.Sprintf("%s:session:%d:summary", ns, sessionID)
}

func KeyPromoCode(code string) string {
	return fmt.Sprintf("%s:promo:%s", ns, code)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelSeatsChanged() string {
	return ns + ":seats:changed"
}
