package midtrans

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"alpha-chat-go/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(apiURL, snapURL string) Client {
	return NewClient(config.MidtransConfig{
		ServerKey:   "server-key",
		APIBaseURL:  apiURL,
		SnapBaseURL: snapURL,
	})
}

func TestCreateSnapTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/snap/v1/transactions", r.URL.Path)
		expectedAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("server-key:"))
		assert.Equal(t, expectedAuth, r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		details := body["transaction_details"].(map[string]interface{})
		assert.Equal(t, "PREMIUM-abc", details["order_id"])

		fmt.Fprint(w, `{"token":"snap-token","redirect_url":"https://pay.example/x"}`)
	}))
	defer server.Close()

	client := testClient("", server.URL)
	result, err := client.CreateSnapTransaction(context.Background(), "PREMIUM-abc", decimal.NewFromInt(30000), "alice")

	assert.NoError(t, err)
	assert.Equal(t, "snap-token", result.Token)
	assert.Equal(t, "https://pay.example/x", result.RedirectURL)
}

func TestGetTransactionStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/PREMIUM-abc/status", r.URL.Path)
		fmt.Fprint(w, `{"order_id":"PREMIUM-abc","transaction_status":"settlement","status_code":"200","gross_amount":"30000.00"}`)
	}))
	defer server.Close()

	client := testClient(server.URL, "")
	status, err := client.GetTransactionStatus(context.Background(), "PREMIUM-abc")

	assert.NoError(t, err)
	assert.Equal(t, "settlement", status.TransactionStatus)
	assert.Equal(t, "200", status.StatusCode)
}

func TestVerifySignature(t *testing.T) {
	client := testClient("", "")

	payload := "PREMIUM-abc" + "200" + "30000.00" + "server-key"
	sum := sha512.Sum512([]byte(payload))

	status := &TransactionStatus{
		OrderID:      "PREMIUM-abc",
		StatusCode:   "200",
		GrossAmount:  "30000.00",
		SignatureKey: hex.EncodeToString(sum[:]),
	}
	assert.True(t, client.VerifySignature(status))

	status.SignatureKey = "forged"
	assert.False(t, client.VerifySignature(status))

	status.SignatureKey = ""
	assert.False(t, client.VerifySignature(status))
}
