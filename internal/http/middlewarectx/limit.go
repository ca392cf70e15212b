package middlewarectx

import (
	"container/list"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/beauty-clinic/internal/http/response"
)

const (
	defaultIdleTTL    = 10 * time.Minute
	defaultMaxClients = 10000
)

type visitor struct {
	key  string
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter ограничивает частоту запросов с одного IP. Клиенты без запросов дольше
// idleTTL забываются, число отслеживаемых клиентов не превышает maxClients.
type RateLimiter struct {
	mu         sync.Mutex
	visitors   map[string]*list.Element
	order      *list.List // от недавних к давним
	rps        rate.Limit
	burst      int
	idleTTL    time.Duration
	maxClients int
	now        func() time.Time
}

// NewRateLimiter создаёт ограничитель на rps запросов в секунду с запасом burst.
// Нулевые idleTTL и maxClients заменяются значениями по умолчанию.
func NewRateLimiter(rps float64, burst int, idleTTL time.Duration, maxClients int) *RateLimiter {
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	if maxClients <= 0 {
		maxClients = defaultMaxClients
	}
	return &RateLimiter{
		visitors:   make(map[string]*list.Element),
		order:      list.New(),
		rps:        rate.Limit(rps),
		burst:      burst,
		idleTTL:    idleTTL,
		maxClients: maxClients,
		now:        time.Now,
	}
}

// Allow расходует токен клиента key.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.evictIdle(now)

	var v *visitor
	if el, ok := l.visitors[key]; ok {
		v = el.Value.(*visitor)
		l.order.MoveToFront(el)
	} else {
		if l.order.Len() >= l.maxClients {
			l.remove(l.order.Back())
		}
		v = &visitor{key: key, lim: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[key] = l.order.PushFront(v)
	}
	v.seen = now
	return v.lim.AllowN(now, 1)
}

// Len число отслеживаемых клиентов.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

func (l *RateLimiter) evictIdle(now time.Time) {
	for el := l.order.Back(); el != nil; el = l.order.Back() {
		if now.Sub(el.Value.(*visitor).seen) < l.idleTTL {
			return
		}
		l.remove(el)
	}
}

func (l *RateLimiter) remove(el *list.Element) {
	l.order.Remove(el)
	delete(l.visitors, el.Value.(*visitor).key)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware отвечает 429, когда клиент превысил лимит.
// Ключ берётся из RemoteAddr, заголовки прокси учитывает только RealIP.
func RateLimitMiddleware(limiter *RateLimiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !limiter.Allow(ip) {
				log.Warn("too many requests", slog.String("ip", ip))
				response.Fail(w, r, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
