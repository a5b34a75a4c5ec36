package jolokia

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler func(t *testing.T, body []byte) (int, string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		status, out := handler(t, body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(out))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Do(t *testing.T) {
	t.Run("read request", func(t *testing.T) {
		srv := newTestServer(t, func(t *testing.T, body []byte) (int, string) {
			var req Request
			require.NoError(t, json.Unmarshal(body, &req))
			assert.Equal(t, TypeRead, req.Type)
			assert.Equal(t, "java.lang:type=Memory", req.MBean)
			return http.StatusOK, `{"request": {"type": "read"}, "value": {"Verbose": false}, "status": 200}`
		})

		client, err := NewClient(ClientOptions{URL: srv.URL})
		require.NoError(t, err)

		resp, err := client.Do(context.Background(), Request{Type: TypeRead, MBean: "java.lang:type=Memory"})
		require.NoError(t, err)
		assert.False(t, resp.IsError())
		assert.NoError(t, resp.Err())
		assert.JSONEq(t, `{"Verbose": false}`, string(resp.Value))
	})

	t.Run("protocol error is carried in the response", func(t *testing.T) {
		srv := newTestServer(t, func(t *testing.T, body []byte) (int, string) {
			return http.StatusOK, `{"status": 404, "error_type": "javax.management.InstanceNotFoundException", "error": "no such mbean"}`
		})
		client, err := NewClient(ClientOptions{URL: srv.URL})
		require.NoError(t, err)

		resp, err := client.Do(context.Background(), Request{Type: TypeRead, MBean: "x:type=Y"})
		require.NoError(t, err)
		assert.True(t, resp.IsError())
		assert.True(t, IsProtocolError(resp.Err()))
		assert.Contains(t, resp.Err().Error(), "no such mbean")
	})

	t.Run("http failure is a transport error", func(t *testing.T) {
		srv := newTestServer(t, func(t *testing.T, body []byte) (int, string) {
			return http.StatusInternalServerError, "boom"
		})
		client, err := NewClient(ClientOptions{URL: srv.URL})
		require.NoError(t, err)

		_, err = client.Do(context.Background(), Request{Type: TypeVersion})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTransport))
		assert.False(t, IsProtocolError(err))
	})

	t.Run("url is required", func(t *testing.T) {
		_, err := NewClient(ClientOptions{})
		assert.Error(t, err)
	})
}

func TestClient_Bulk(t *testing.T) {
	srv := newTestServer(t, func(t *testing.T, body []byte) (int, string) {
		var reqs []Request
		require.NoError(t, json.Unmarshal(body, &reqs))
		require.Len(t, reqs, 2)
		return http.StatusOK, `[{"status": 200, "value": 1}, {"status": 200, "value": 2}]`
	})
	client, err := NewClient(ClientOptions{URL: srv.URL})
	require.NoError(t, err)

	resps, err := Bulk(context.Background(), client, []Request{{Type: TypeVersion}, {Type: TypeVersion}})
	require.NoError(t, err)
	require.Len(t, resps, 2)
	assert.Equal(t, "2", string(resps[1].Value))
}

func TestClient_Watches(t *testing.T) {
	srv := newTestServer(t, func(t *testing.T, body []byte) (int, string) {
		var reqs []Request
		require.NoError(t, json.Unmarshal(body, &reqs))
		out := make([]Response, len(reqs))
		for i, r := range reqs {
			out[i] = Response{Request: r, Status: 200, Value: json.RawMessage(`"` + r.MBean + `"`)}
		}
		data, err := json.Marshal(out)
		require.NoError(t, err)
		return http.StatusOK, string(data)
	})
	client, err := NewClient(ClientOptions{URL: srv.URL})
	require.NoError(t, err)

	var got []string
	h1, err := client.Register(Request{Type: TypeRead, MBean: "a:type=A"}, func(r *Response) {
		got = append(got, string(r.Value))
	})
	require.NoError(t, err)
	h2, err := client.Register(Request{Type: TypeRead, MBean: "b:type=B"}, func(r *Response) {
		got = append(got, string(r.Value))
	})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	require.NoError(t, client.Poll(context.Background()))
	assert.Equal(t, []string{`"a:type=A"`, `"b:type=B"`}, got)

	require.NoError(t, client.Unregister(h1))
	assert.Error(t, client.Unregister(h1))
	got = nil
	require.NoError(t, client.Poll(context.Background()))
	assert.Equal(t, []string{`"b:type=B"`}, got)

	_, err = client.Register(Request{}, nil)
	assert.Error(t, err)
}

func TestPathEscaping(t *testing.T) {
	path := JoinPath("org.acme", "type=a/b,name=x!y")
	assert.Equal(t, "org.acme/type=a!/b,name=x!!y", path)
	assert.Equal(t, []string{"org.acme", "type=a/b,name=x!y"}, SplitPath(path))
	assert.Nil(t, SplitPath(""))
	assert.Equal(t, []string{"java.lang"}, SplitPath("java.lang"))
}

func TestOptions_Config(t *testing.T) {
	cfg := DefaultOptions().Config()
	assert.Equal(t, 7, cfg["maxDepth"])
	assert.Equal(t, 50000, cfg["maxCollectionSize"])
	assert.NotContains(t, cfg, "ignoreErrors")

	cfg = Options{IgnoreErrors: true}.Config()
	assert.Equal(t, map[string]any{"ignoreErrors": true}, cfg)
}
