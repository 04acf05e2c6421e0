package sync

import (
	"math/rand"
	"strings"
	"time"

	"github.com/nhle/mailsync/internal/model"
)

// RandomInterval returns a delay of a whole number of seconds drawn
// uniformly from [min, max]. Bounds are truncated to seconds; if max is
// below min the result is min.
func RandomInterval(min, max time.Duration) time.Duration {
	lo := int64(min / time.Second)
	hi := int64(max / time.Second)
	if hi <= lo {
		return time.Duration(lo) * time.Second
	}
	return time.Duration(lo+rand.Int63n(hi-lo+1)) * time.Second
}

// FilterMails returns the mails whose subject or sender contains query,
// ignoring case. An empty query returns mails unchanged.
func FilterMails(mails []model.MailSummary, query string) []model.MailSummary {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return mails
	}

	out := make([]model.MailSummary, 0, len(mails))
	for _, m := range mails {
		if strings.Contains(strings.ToLower(m.Subject), q) ||
			strings.Contains(strings.ToLower(m.From.Name), q) ||
			strings.Contains(strings.ToLower(m.From.Address), q) {
			out = append(out, m)
		}
	}
	return out
}
