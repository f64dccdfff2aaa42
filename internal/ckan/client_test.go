package ckan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_PrependsScheme(t *testing.T) {
	c, err := New("192.168.92.1:5000", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.92.1:5000", c.baseURL)
}

func TestNew_RejectsInvalidURL(t *testing.T) {
	_, err := New("", nil)
	assert.Error(t, err)

	_, err = New("http://", nil)
	assert.Error(t, err)
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c, err := New("http://example.com/", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com", c.baseURL)
}

func TestGetDataset_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/3/action/package_show", r.URL.Path)
		assert.Equal(t, "traffic", r.URL.Query().Get("id"))
		assert.Equal(t, "secret", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result": map[string]any{
				"name":  "traffic",
				"title": "Traffic Data",
				"resources": []map[string]any{
					{"name": "traffic.csv", "last_modified": "2024-03-15T10:30:00"},
				},
			},
		})
	}))
	defer server.Close()

	client, err := New(server.URL, &Options{APIKey: "secret"})
	require.NoError(t, err)

	ds, err := client.GetDataset(context.Background(), "traffic")
	require.NoError(t, err)
	assert.Equal(t, "traffic", ds.Name)
	assert.Equal(t, "Traffic Data", ds.Title)
	require.Len(t, ds.Resources, 1)
	assert.Equal(t, "2024-03-15T10:30:00", ds.Resources[0].LastModified)
}

func TestGetDataset_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, err := New(server.URL, nil)
	require.NoError(t, err)

	_, err = client.GetDataset(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestGetDataset_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := New(server.URL, nil)
	require.NoError(t, err)

	_, err = client.GetDataset(context.Background(), "traffic")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, http.StatusInternalServerError, cerr.Status)
}

func TestGetDataset_APIFailureEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   map[string]string{"message": "Access denied"},
		})
	}))
	defer server.Close()

	client, err := New(server.URL, nil)
	require.NoError(t, err)

	_, err = client.GetDataset(context.Background(), "traffic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Access denied")
}

func TestSearchDatasets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/3/action/package_search", r.URL.Path)
		assert.Equal(t, "traffic", r.URL.Query().Get("q"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result": map[string]any{
				"count": 2,
				"results": []map[string]any{
					{"name": "traffic-2023"},
					{"name": "traffic-2024"},
				},
			},
		})
	}))
	defer server.Close()

	client, err := New(server.URL, nil)
	require.NoError(t, err)

	datasets, err := client.SearchDatasets(context.Background(), "traffic")
	require.NoError(t, err)
	require.Len(t, datasets, 2)
	assert.Equal(t, "traffic-2023", datasets[0].Name)
}

func TestSearchDatasets_EmptyResultIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result":  map[string]any{"count": 0, "results": []any{}},
		})
	}))
	defer server.Close()

	client, err := New(server.URL, nil)
	require.NoError(t, err)

	datasets, err := client.SearchDatasets(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, datasets)
}

func TestListDatasets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/3/action/package_list", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result":  []string{"alpha", "beta"},
		})
	}))
	defer server.Close()

	client, err := New(server.URL, nil)
	require.NoError(t, err)

	names, err := client.ListDatasets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)
}

func TestCreateDataset_PostsPayload(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/3/action/package_create", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "result": map[string]any{}})
	}))
	defer server.Close()

	client, err := New(server.URL, nil)
	require.NoError(t, err)

	err = client.CreateDataset(context.Background(), map[string]any{"name": "newdataset"})
	require.NoError(t, err)
	assert.Equal(t, "newdataset", received["name"])
}

func TestGetDatasetRaw_KeepsUnknownFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result": map[string]any{
				"name":         "traffic",
				"custom_field": "survives",
			},
		})
	}))
	defer server.Close()

	client, err := New(server.URL, nil)
	require.NoError(t, err)

	raw, err := client.GetDatasetRaw(context.Background(), "traffic")
	require.NoError(t, err)
	assert.Equal(t, "survives", raw["custom_field"])
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/3/action/status_show", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "result": map[string]any{}})
	}))
	defer server.Close()

	client, err := New(server.URL, nil)
	require.NoError(t, err)
	assert.NoError(t, client.Ping(context.Background()))
}
