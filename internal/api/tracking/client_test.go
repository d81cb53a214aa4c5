package tracking

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/trackgazer/internal/models"
	"github.com/langchou/trackgazer/internal/repository"
	"github.com/langchou/trackgazer/internal/session"
)

func newTestClient(t *testing.T, serverURL string) (*Client, *session.Store) {
	t.Helper()
	sessionStore := session.NewStore(repository.NewMemoryStore())
	transport := NewSessionTransport(nil, sessionStore, serverURL, zap.NewNop())
	return NewClient(serverURL, transport, 5*time.Second), sessionStore
}

func TestFetchStatusDecodesLenientResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/GenerateJSON", r.URL.Path)
		assert.Equal(t, "getVehicleStatus", r.URL.Query().Get("method"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "getVehicleStatus", r.PostForm.Get("javaclassmethodname"))
		assert.Equal(t, "com.uffizio.tools.projectmanager.GenerateJSONAjax", r.PostForm.Get("javaclassname"))
		assert.Equal(t, "860000000000001", r.PostForm.Get("sImeiNo"))
		assert.Equal(t, "Bus", r.PostForm.Get("vehicleType"))
		assert.Equal(t, "-330", r.PostForm.Get("timezone"))
		assert.Equal(t, "3600000", r.PostForm.Get("lInActiveTolrance"))
		assert.Equal(t, "dd-MM-yyyy HH:mm:ss", r.PostForm.Get("userDateTimeFormat"))
		assert.Equal(t, "Callfromservice", r.PostForm.Get("Flag"))

		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))

		w.Write([]byte(`{root : [[{sts:'Running', vehicle_no:'MP09FA6814', latitude:'22.7196', longitude:'75.8577', speed:'42'}]]}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	status, err := client.FetchStatus(context.Background(), models.VehicleConfig{
		ImeiNo:      "860000000000001",
		VehicleType: "Bus",
	})
	require.NoError(t, err)
	assert.True(t, status.IsRunning())
	assert.Equal(t, "MP09FA6814", status.VehicleNo)
	assert.InDelta(t, 22.7196, status.LatitudeFloat(), 1e-9)
	assert.Equal(t, 42, status.SpeedInt())
}

func TestSessionTransportHarvestsCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 第一次请求不应携带 Cookie 头
		assert.Empty(t, r.Header.Get("Cookie"))
		w.Header().Add("Set-Cookie", "JSESSIONID=abc; Path=/; HttpOnly")
		w.Header().Add("Set-Cookie", "theme=dark; Max-Age=3600")
	}))
	defer srv.Close()

	client, sessionStore := newTestClient(t, srv.URL)
	require.NoError(t, client.InitializeSession(context.Background()))

	cookies, err := sessionStore.Cookies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "JSESSIONID=abc; theme=dark", cookies)
}

func TestSessionTransportSendsStoredCookies(t *testing.T) {
	var gotCookie atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie.Store(r.Header.Get("Cookie"))
		w.Write([]byte(`{root:[[]]}`))
	}))
	defer srv.Close()

	client, sessionStore := newTestClient(t, srv.URL)
	require.NoError(t, sessionStore.SaveCookies(context.Background(), "JSESSIONID=abc"))

	_, err := client.FetchStatus(context.Background(), models.VehicleConfig{ImeiNo: "1"})
	require.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, "JSESSIONID=abc", gotCookie.Load())
}

func TestSessionTransportKeepsCookiesWithoutSetCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{root:[[]]}`))
	}))
	defer srv.Close()

	client, sessionStore := newTestClient(t, srv.URL)
	require.NoError(t, sessionStore.SaveCookies(context.Background(), "JSESSIONID=abc"))

	_, err := client.FetchStatus(context.Background(), models.VehicleConfig{ImeiNo: "1"})
	require.ErrorIs(t, err, ErrNoData)

	cookies, err := sessionStore.Cookies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "JSESSIONID=abc", cookies)
}

func TestFetchStatusNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{root : [[]]}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	_, err := client.FetchStatus(context.Background(), models.VehicleConfig{ImeiNo: "1"})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestFetchStatusHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	_, err := client.FetchStatus(context.Background(), models.VehicleConfig{ImeiNo: "1"})

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.True(t, httpErr.IsAuthError())
}

func TestFetchStatusParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>session timed out</html>`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	_, err := client.FetchStatus(context.Background(), models.VehicleConfig{ImeiNo: "1"})

	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))
}
