package llm

import (
	"context"

	"golang.org/x/time/rate"
)

type rateLimited struct {
	next    Client
	limiter *rate.Limiter
}

// RateLimited 为 Client 增加客户端限速。rps <= 0 时直接返回原 Client。
// 等待被取消时返回超时类错误，不做任何重试。
func RateLimited(next Client, rps float64, burst int) Client {
	if rps <= 0 || next == nil {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *rateLimited) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, NewError(KindTimeout, "Request timed out", err)
	}
	return r.next.Chat(ctx, req)
}
