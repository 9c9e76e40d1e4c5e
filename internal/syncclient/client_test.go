package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientReorderSendsNullParent(t *testing.T) {
	var got []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/positions/update", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"pages":[{"id":"P3","type":"page","parent_id":null,"position":0}],"folders":[]}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	positions, err := client.Reorder(context.Background(), []Move{{ID: "P3", Type: "page", Position: 0}})
	require.NoError(t, err)

	require.Len(t, got, 1)
	parent, present := got[0]["parent_id"]
	assert.True(t, present)
	assert.Nil(t, parent)
	require.Len(t, positions.Pages, 1)
	assert.Equal(t, "P3", positions.Pages[0].ID)
}

func TestClientReturnsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"ITEM_NOT_FOUND","message":"Item not found","details":{"index":0}}}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "tok").Reorder(context.Background(), []Move{{ID: "x", Type: "page"}})
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, "ITEM_NOT_FOUND", httpErr.Code)
	assert.False(t, httpErr.Temporary())
}

func TestClientSignInStoresToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/signin" {
			_, _ = w.Write([]byte(`{"success":true,"data":{"token":"jwt","refresh_token":"rt","account_id":"acc_1"}}`))
			return
		}
		assert.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"success":true,"data":{"items":[{"id":"fd_1","type":"folder","name":"A","parent_id":null,"position":0}]}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	session, err := client.SignIn(context.Background(), "a@example.com", "secret-pass")
	require.NoError(t, err)
	assert.Equal(t, "acc_1", session.AccountID)
	assert.Equal(t, "jwt", client.Token())

	tree, err := client.Tree(context.Background())
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, "A", tree[0].Name)
}
