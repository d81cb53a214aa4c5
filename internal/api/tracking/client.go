package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/langchou/trackgazer/internal/models"
)

const (
	bootstrapPath = "/jsp/quickview.jsp"
	statusPath    = "/GenerateJSON"

	methodGetVehicleStatus = "getVehicleStatus"
	backendClassName       = "com.uffizio.tools.projectmanager.GenerateJSONAjax"

	// 后端固定请求参数
	defaultTimezoneOffset    = -330
	defaultInactiveTolerance = 3600000 // ms
	defaultDateFormat        = "dd-MM-yyyy HH:mm:ss"
)

// HTTPError 非 2xx 响应
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("api error %d", e.StatusCode)
}

// IsAuthError 会话失效类错误（401/403）
func (e *HTTPError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// ParseError 响应体规范化后仍无法解码
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("decode status response: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ErrNoData 响应格式正确但不含车辆数据
// 过期会话下后端会返回这种空载荷，与 HTTP/解析错误区分开
var ErrNoData = errors.New("no vehicle data in response")

// Client 跟踪后端 API 客户端
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient 创建客户端；transport 应为会话感知传输层
func NewClient(baseURL string, transport http.RoundTripper, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// InitializeSession 请求引导页，目的仅是让后端下发会话 Cookie
// Cookie 的捕获由传输层完成，这里只关心状态码
func (c *Client) InitializeSession(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+bootstrapPath, nil)
	if err != nil {
		return fmt.Errorf("create bootstrap request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bootstrap request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{StatusCode: resp.StatusCode}
	}
	return nil
}

// FetchStatus 查询车辆当前状态
// 返回 *HTTPError / *ParseError / ErrNoData 供上层重试策略消费
func (c *Client) FetchStatus(ctx context.Context, cfg models.VehicleConfig) (*VehicleStatus, error) {
	form := url.Values{}
	form.Set("javaclassmethodname", methodGetVehicleStatus)
	form.Set("javaclassname", backendClassName)
	form.Set("sImeiNo", cfg.ImeiNo)
	form.Set("vehicleType", cfg.VehicleType)
	form.Set("timezone", strconv.Itoa(defaultTimezoneOffset))
	form.Set("lInActiveTolrance", strconv.Itoa(defaultInactiveTolerance))
	form.Set("userDateTimeFormat", defaultDateFormat)
	form.Set("Flag", "Callfromservice")
	form.Set("link_id", "0")
	form.Set("user_id", "0")
	form.Set("project_id", "0")

	endpoint := c.baseURL + statusPath + "?method=" + methodGetVehicleStatus
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read status response: %w", err)
	}

	var envelope statusEnvelope
	if err := json.Unmarshal([]byte(NormalizeJSON(string(body))), &envelope); err != nil {
		return nil, &ParseError{Err: err}
	}

	status := envelope.vehicle()
	if status == nil {
		return nil, ErrNoData
	}
	return status, nil
}
