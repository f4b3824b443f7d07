package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/diagnosis/agency-portal/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookClient(t *testing.T) {
	type received struct {
		auth string
		body map[string]any
	}
	var got []received
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = append(got, received{auth: r.Header.Get("Authorization"), body: body})
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewWebhookClient(srv.URL, "crm-key", srv.Client())
	require.NoError(t, c.UpsertContact(context.Background(), Contact{CustomerID: "abc", Email: "a@b.co", Source: "checkout"}))
	require.NoError(t, c.UpsertDeal(context.Background(), Deal{CustomerID: "abc", Title: "Business", Stage: StagePaid, AmountCents: 150000}))

	require.Len(t, got, 2)
	assert.Equal(t, "Bearer crm-key", got[0].auth)
	assert.Equal(t, "contact", got[0].body["type"])
	assert.Equal(t, "deal", got[1].body["type"])
	data := got[1].body["data"].(map[string]any)
	assert.Equal(t, "paid", data["stage"])
	assert.EqualValues(t, 150000, data["amount_cents"])
}

func TestWebhookClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewWebhookClient(srv.URL, "", srv.Client()).UpsertContact(context.Background(), Contact{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=500")
}

func TestNewWithoutURLIsNoop(t *testing.T) {
	assert.IsType(t, Noop{}, New(config.CRMConfig{}))
}
