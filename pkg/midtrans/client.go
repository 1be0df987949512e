// Package midtrans 提供了与 Midtrans 支付网关交互的客户端。
// Snap 接口用于创建支付会话，Core 接口用于查询交易的权威状态。
package midtrans

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"alpha-chat-go/internal/config"

	"github.com/shopspring/decimal"
)

// SnapResult 是创建支付会话的返回值。
type SnapResult struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// TransactionStatus 是网关返回的交易状态，字段与通知载荷一致。
type TransactionStatus struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
}

// Client defines the interface for the payment gateway.
type Client interface {
	// CreateSnapTransaction 为给定订单创建一个支付会话。
	CreateSnapTransaction(ctx context.Context, orderID string, amount decimal.Decimal, customerEmail string) (*SnapResult, error)
	// GetTransactionStatus 向网关查询订单的权威状态。
	GetTransactionStatus(ctx context.Context, orderID string) (*TransactionStatus, error)
	// VerifySignature 校验通知载荷的签名。
	VerifySignature(status *TransactionStatus) bool
}

type midtransClient struct {
	cfg    config.MidtransConfig
	client *http.Client
}

// NewClient creates a new Midtrans API client.
func NewClient(cfg config.MidtransConfig) Client {
	return &midtransClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// basicAuth 按 Midtrans 约定以 serverKey: 作为用户名生成认证头。
func (c *midtransClient) basicAuth() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.cfg.ServerKey+":"))
}

type snapRequest struct {
	TransactionDetails struct {
		OrderID     string          `json:"order_id"`
		GrossAmount decimal.Decimal `json:"gross_amount"`
	} `json:"transaction_details"`
	CustomerDetails *struct {
		Email string `json:"email,omitempty"`
	} `json:"customer_details,omitempty"`
	CreditCard struct {
		Secure bool `json:"secure"`
	} `json:"credit_card"`
}

// CreateSnapTransaction 调用 Snap API 创建支付会话。
func (c *midtransClient) CreateSnapTransaction(ctx context.Context, orderID string, amount decimal.Decimal, customerEmail string) (*SnapResult, error) {
	var req snapRequest
	req.TransactionDetails.OrderID = orderID
	req.TransactionDetails.GrossAmount = amount
	req.CreditCard.Secure = true
	if customerEmail != "" {
		req.CustomerDetails = &struct {
			Email string `json:"email,omitempty"`
		}{Email: customerEmail}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snap request: %w", err)
	}

	endpoint := c.cfg.SnapBaseURL + "/snap/v1/transactions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", c.basicAuth())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call snap api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("snap api returned %s: %s", resp.Status, string(respBody))
	}

	var result SnapResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode snap response: %w", err)
	}
	return &result, nil
}

// GetTransactionStatus 调用 Core API 查询订单状态。
// 通知处理流程以这里返回的状态为准，而不是直接信任通知体。
func (c *midtransClient) GetTransactionStatus(ctx context.Context, orderID string) (*TransactionStatus, error) {
	endpoint := fmt.Sprintf("%s/v2/%s/status", c.cfg.APIBaseURL, orderID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", c.basicAuth())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call status api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("transaction %s not found", orderID)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status api returned %s: %s", resp.Status, string(respBody))
	}

	var status TransactionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	return &status, nil
}

// VerifySignature 按 Midtrans 规则校验签名：
// sha512(order_id + status_code + gross_amount + server_key)。
func (c *midtransClient) VerifySignature(status *TransactionStatus) bool {
	if status.SignatureKey == "" {
		return false
	}
	payload := status.OrderID + status.StatusCode + status.GrossAmount + c.cfg.ServerKey
	sum := sha512.Sum512([]byte(payload))
	return hex.EncodeToString(sum[:]) == status.SignatureKey
}
