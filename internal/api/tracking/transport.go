package tracking

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// SessionStore 会话 Cookie 存取接口
type SessionStore interface {
	Cookies(ctx context.Context) (string, error)
	SaveCookies(ctx context.Context, cookies string) error
}

// SessionTransport 会话感知的 RoundTripper
// 出站请求附加固定请求头和已存储的 Cookie，
// 响应返回后把 Set-Cookie 收割进会话存储
type SessionTransport struct {
	base    http.RoundTripper
	session SessionStore
	origin  string
	referer string
	logger  *zap.Logger
}

// NewSessionTransport 创建会话感知传输层
func NewSessionTransport(base http.RoundTripper, session SessionStore, baseURL string, logger *zap.Logger) *SessionTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	origin := strings.TrimRight(baseURL, "/")
	return &SessionTransport{
		base:    base,
		session: session,
		origin:  origin,
		referer: origin + bootstrapPath,
		logger:  logger,
	}
}

// RoundTrip 实现 http.RoundTripper
func (t *SessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Accept", "*/*")
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	r.Header.Set("Origin", t.origin)
	r.Header.Set("Referer", t.referer)
	r.Header.Set("X-Requested-With", "XMLHttpRequest")

	cookies, err := t.session.Cookies(r.Context())
	if err != nil {
		// 读不到旧会话照常发请求，后端会当作未登录处理
		t.logger.Warn("Failed to load session cookies", zap.Error(err))
	}
	if cookies != "" {
		r.Header.Set("Cookie", cookies)
	}

	resp, err := t.base.RoundTrip(r)
	if err != nil {
		return nil, err
	}

	// 收割 Set-Cookie：每条取第一个分号前的 name=value，丢弃属性
	if joined := joinSetCookies(resp.Header.Values("Set-Cookie")); joined != "" {
		// Cookie 持久化失败不影响本次请求结果
		if err := t.session.SaveCookies(r.Context(), joined); err != nil {
			t.logger.Warn("Failed to persist session cookies", zap.Error(err))
		}
	}

	return resp, nil
}

func joinSetCookies(headers []string) string {
	var pairs []string
	for _, h := range headers {
		part := strings.TrimSpace(strings.SplitN(h, ";", 2)[0])
		if part != "" {
			pairs = append(pairs, part)
		}
	}
	return strings.Join(pairs, "; ")
}
