package middleware

import (
	"container/list"
	"net/http"
	"sync"
	"time"

	"github.com/phi-labs/lambo/pkg/pool"
)

type rateEntry struct {
	clientIP string
	count    uint64
	lastSeen time.Time
}

// RateLimiter keeps client entries in arrival order (an ordered map
// implemented with a doubly linked list plus an index), so expiring
// entries older than the window is a cheap prefix drop from the head
// rather than a full scan (spec.md §4.3, original_source rate_limiter.rs
// which uses a LinkedHashMap for the same reason).
type RateLimiter struct {
	Limit     uint64
	WindowSec uint64

	mu      sync.Mutex
	order   *list.List
	byIP    map[string]*list.Element
}

func NewRateLimiter(limit, windowSec uint64) *RateLimiter {
	return &RateLimiter{
		Limit:     limit,
		WindowSec: windowSec,
		order:     list.New(),
		byIP:      make(map[string]*list.Element),
	}
}

func (rl *RateLimiter) ModifyRequest(r *http.Request, ctx pool.HandlerContext) (*http.Request, *http.Response) {
	clientIP := ""
	if ctx.ClientAddr != nil {
		clientIP = ctx.ClientAddr.IP.String()
	}
	if rl.register(clientIP) {
		return r, nil
	}
	return r, tooManyRequests()
}

func (rl *RateLimiter) ModifyResponse(resp *http.Response, ctx pool.HandlerContext) *http.Response {
	return resp
}

func (rl *RateLimiter) register(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	window := time.Duration(rl.WindowSec) * time.Second

	for front := rl.order.Front(); front != nil; {
		entry := front.Value.(*rateEntry)
		if now.Sub(entry.lastSeen) <= window {
			break
		}
		next := front.Next()
		rl.order.Remove(front)
		delete(rl.byIP, entry.clientIP)
		front = next
	}

	var count uint64
	if elem, ok := rl.byIP[clientIP]; ok {
		entry := elem.Value.(*rateEntry)
		count = entry.count
		rl.order.Remove(elem)
	}
	if count < ^uint64(0) {
		count++
	}
	entry := &rateEntry{clientIP: clientIP, count: count, lastSeen: now}
	rl.byIP[clientIP] = rl.order.PushBack(entry)

	return count <= rl.Limit
}
