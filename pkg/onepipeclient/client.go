/**
 * @description
 * This package provides a client for the OnePipe payments API. It encapsulates
 * the logic for making authenticated HTTP requests to OnePipe's transact
 * endpoint, building the invoice payload, and parsing responses.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package onepipeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client is a client for the OnePipe API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new OnePipe API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// InvoiceRequest carries everything needed to raise an invoice against a
// customer's bank account.
type InvoiceRequest struct {
	TransactionRef  string
	TransactionDesc string
	Amount          int64 // in kobo
	CustomerRef     string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	AccountNumber   string
	BankCode        string
}

// transactRequest is the wire payload for OnePipe's transact endpoint.
type transactRequest struct {
	RequestRef  string `json:"request_ref"`
	RequestType string `json:"request_type"`
	Auth        struct {
		Type         *string `json:"type"`
		Secure       *string `json:"secure"`
		AuthProvider string  `json:"auth_provider"`
	} `json:"auth"`
	Transaction struct {
		TransactionRef       string  `json:"transaction_ref"`
		TransactionDesc      string  `json:"transaction_desc"`
		TransactionRefParent *string `json:"transaction_ref_parent"`
		Amount               int64   `json:"amount"`
		Customer             struct {
			CustomerRef string `json:"customer_ref"`
			Firstname   string `json:"firstname"`
			Surname     string `json:"surname"`
			Email       string `json:"email"`
			MobileNo    string `json:"mobile_no"`
		} `json:"customer"`
		Meta struct {
			AccountNumber string `json:"account_number,omitempty"`
			BankCode      string `json:"bank_code,omitempty"`
		} `json:"meta"`
	} `json:"transaction"`
}

// TransactResponse is the expected response from OnePipe's transact endpoint.
type TransactResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ProviderResponseCode string `json:"provider_response_code"`
		Provider             string `json:"provider"`
		Errors               []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"data"`
}

// ErrorResponse represents an error from the OnePipe API.
type ErrorResponse struct {
	StatusCode int
	Status     string `json:"status"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("onepipe api error (%d): %s - %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("onepipe api error (%d)", e.StatusCode)
}

// SendInvoice asks OnePipe to raise an invoice against the customer's bank
// account. The outcome of the actual charge arrives later via webhook; a
// successful call here only means OnePipe accepted the invoice.
func (c *Client) SendInvoice(ctx context.Context, req InvoiceRequest) (*TransactResponse, error) {
	payload := transactRequest{}
	payload.RequestRef = uuid.New().String()
	payload.RequestType = "send invoice"
	payload.Auth.AuthProvider = "BukaFresh"
	payload.Transaction.TransactionRef = req.TransactionRef
	payload.Transaction.TransactionDesc = req.TransactionDesc
	payload.Transaction.Amount = req.Amount
	payload.Transaction.Customer.CustomerRef = req.CustomerRef
	firstname, surname := splitName(req.CustomerName)
	payload.Transaction.Customer.Firstname = firstname
	payload.Transaction.Customer.Surname = surname
	payload.Transaction.Customer.Email = req.CustomerEmail
	payload.Transaction.Customer.MobileNo = req.CustomerPhone
	payload.Transaction.Meta.AccountNumber = req.AccountNumber
	payload.Transaction.Meta.BankCode = req.BankCode

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invoice request: %w", err)
	}

	url := c.BaseURL + "/v2/transact"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send invoice request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read invoice response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil {
			log.Printf("onepipeclient: non-JSON error response (%d): %s", resp.StatusCode, string(respBody))
		}
		return nil, apiErr
	}

	var result TransactResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode invoice response: %w", err)
	}
	return &result, nil
}

func splitName(full string) (string, string) {
	for i := 0; i < len(full); i++ {
		if full[i] == ' ' {
			return full[:i], full[i+1:]
		}
	}
	return full, ""
}
