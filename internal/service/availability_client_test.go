package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-ops-api/pkg/config"
)

func TestAvailabilityClientSendsServiceCredential(t *testing.T) {
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "Mo", r.URL.Query().Get("day"))
		assert.Equal(t, "P1", r.URL.Query().Get("period"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"available":[{"email":"alice@school.ae","level_label":"High School","subject":"Math","primary_class":"G10"}]}`)) //nolint:errcheck
	}))
	defer upstream.Close()

	client := NewAvailabilityClient(config.DutyConfig{
		AvailabilityURL:   upstream.URL,
		AvailabilityToken: "svc-token",
	}, nil)

	entries, err := client.Fetch(context.Background(), "Mo", "P1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer svc-token", gotAuth)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice@school.ae", entries[0].Email)
	assert.Equal(t, "High School", entries[0].LevelLabel)
}

func TestAvailabilityClientErrorPaths(t *testing.T) {
	disabled := NewAvailabilityClient(config.DutyConfig{}, nil)
	assert.False(t, disabled.Enabled())
	_, err := disabled.Fetch(context.Background(), "Mo", "P1")
	require.Error(t, err)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Without a configured token no Authorization header goes out.
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	client := NewAvailabilityClient(config.DutyConfig{AvailabilityURL: upstream.URL}, nil)
	_, err = client.Fetch(context.Background(), "Mo", "P1")
	require.Error(t, err)
}
