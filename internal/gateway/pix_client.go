package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownOutcome marks gateway calls whose result could not be determined
// (timeouts, transport failures, 5xx). Callers must not treat it as a
// rejection: money may have moved, and the webhook is the authority.
var ErrUnknownOutcome = errors.New("gateway outcome unknown")

// RequestError is a definitive gateway rejection (4xx with a message).
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Message)
}

// IsRejection reports whether the gateway definitively refused the request.
func IsRejection(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr)
}

type PixGateway interface {
	CreateCharge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error)
	CreateTransfer(ctx context.Context, req *TransferRequest) (*TransferResponse, error)
	GetBalance(ctx context.Context) (*Balance, error)
}

type pixGateway struct {
	config     *Config
	httpClient *http.Client
}

type Config struct {
	BaseURL     string
	PublicKey   string
	SecretKey   string
	CallbackURL string
	Timeout     time.Duration
}

func NewPixGateway(config *Config) PixGateway {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &pixGateway{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// ClientInfo identifies the paying customer on a charge.
type ClientInfo struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Document string `json:"document"`
}

type ChargeRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	Identifier string          `json:"identifier"`
	Client     ClientInfo      `json:"client"`
}

type ChargeResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	CopyPaste     string `json:"copy_paste"`
	QRCodeBase64  string `json:"qr_code_base64"`
}

// Valid PIX key types accepted by the transfer endpoint.
var ValidPixKeyTypes = []string{"cpf", "cnpj", "phone", "email", "random"}

func IsValidPixKeyType(keyType string) bool {
	for _, t := range ValidPixKeyTypes {
		if t == keyType {
			return true
		}
	}
	return false
}

// OwnerInfo identifies the account holder receiving a transfer.
type OwnerInfo struct {
	Name     string `json:"name"`
	Document string `json:"document"`
}

type TransferRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	PixKey     string          `json:"pixKey"`
	PixKeyType string          `json:"pixKeyType"`
	Owner      OwnerInfo       `json:"owner"`
}

type TransferResponse struct {
	WithdrawID string `json:"withdraw_id"`
	Status     string `json:"status"`
}

type Balance struct {
	Available decimal.Decimal `json:"available"`
	Pending   decimal.Decimal `json:"pending"`
}

func (g *pixGateway) CreateCharge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	payload := map[string]interface{}{
		"amount":      req.Amount.InexactFloat64(),
		"identifier":  req.Identifier,
		"callbackUrl": g.config.CallbackURL,
		"client": map[string]string{
			"name":     req.Client.Name,
			"email":    req.Client.Email,
			"phone":    req.Client.Phone,
			"document": req.Client.Document,
		},
	}

	response, err := g.doRequest(ctx, http.MethodPost, "/pix/receive", payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		TransactionID string `json:"transactionId"`
		ID            string `json:"id"`
		Status        string `json:"status"`
		QRCode        struct {
			Code         string `json:"code"`
			Base64       string `json:"base64"`
			ImageURL     string `json:"imageUrl"`
			PixCopyPaste string `json:"pixCopyPaste"`
		} `json:"qrcode"`
		PixCode string `json:"pixCode"`
	}
	if err := json.Unmarshal(response, &result); err != nil {
		return nil, fmt.Errorf("failed to parse charge response: %w", err)
	}

	txID := result.TransactionID
	if txID == "" {
		txID = result.ID
	}
	if txID == "" {
		return nil, fmt.Errorf("charge response missing transaction id")
	}

	copyPaste := result.QRCode.PixCopyPaste
	if copyPaste == "" {
		copyPaste = result.QRCode.Code
	}
	if copyPaste == "" {
		copyPaste = result.PixCode
	}

	return &ChargeResponse{
		TransactionID: txID,
		Status:        result.Status,
		CopyPaste:     copyPaste,
		QRCodeBase64:  result.QRCode.Base64,
	}, nil
}

func (g *pixGateway) CreateTransfer(ctx context.Context, req *TransferRequest) (*TransferResponse, error) {
	if !IsValidPixKeyType(req.PixKeyType) {
		return nil, fmt.Errorf("invalid pix key type: %s", req.PixKeyType)
	}

	payload := map[string]interface{}{
		"amount":      req.Amount.InexactFloat64(),
		"pixKey":      req.PixKey,
		"pixKeyType":  req.PixKeyType,
		"callbackUrl": g.config.CallbackURL,
		"owner": map[string]string{
			"name":     req.Owner.Name,
			"document": req.Owner.Document,
		},
	}

	response, err := g.doRequest(ctx, http.MethodPost, "/transfers", payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		WithdrawID string `json:"withdrawId"`
		ID         string `json:"id"`
		Status     string `json:"status"`
		Withdraw   struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"withdraw"`
	}
	if err := json.Unmarshal(response, &result); err != nil {
		return nil, fmt.Errorf("failed to parse transfer response: %w", err)
	}

	withdrawID := result.WithdrawID
	if withdrawID == "" {
		withdrawID = result.Withdraw.ID
	}
	if withdrawID == "" {
		withdrawID = result.ID
	}
	if withdrawID == "" {
		return nil, fmt.Errorf("transfer response missing withdraw id")
	}

	status := result.Status
	if status == "" {
		status = result.Withdraw.Status
	}

	return &TransferResponse{
		WithdrawID: withdrawID,
		Status:     status,
	}, nil
}

func (g *pixGateway) GetBalance(ctx context.Context) (*Balance, error) {
	response, err := g.doRequest(ctx, http.MethodGet, "/balance", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Balance   float64 `json:"balance"`
		Available float64 `json:"available"`
		Pending   float64 `json:"pending"`
	}
	if err := json.Unmarshal(response, &result); err != nil {
		return nil, fmt.Errorf("failed to parse balance response: %w", err)
	}

	available := result.Available
	if available == 0 && result.Balance != 0 {
		available = result.Balance
	}

	return &Balance{
		Available: decimal.NewFromFloat(available).Round(2),
		Pending:   decimal.NewFromFloat(result.Pending).Round(2),
	}, nil
}

func (g *pixGateway) doRequest(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	url := strings.TrimRight(g.config.BaseURL, "/") + endpoint
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-public-key", g.config.PublicKey)
	req.Header.Set("x-secret-key", g.config.SecretKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		// Timeouts and transport failures: the request may or may not have
		// reached the gateway.
		return nil, fmt.Errorf("%w: %v", ErrUnknownOutcome, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrUnknownOutcome, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: gateway returned %d", ErrUnknownOutcome, resp.StatusCode)
	}

	if resp.StatusCode >= 400 {
		var errorResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		message := string(responseBody)
		if json.Unmarshal(responseBody, &errorResp) == nil {
			if errorResp.Message != "" {
				message = errorResp.Message
			} else if errorResp.Error != "" {
				message = errorResp.Error
			}
		}
		return nil, &RequestError{StatusCode: resp.StatusCode, Message: message}
	}

	return responseBody, nil
}

// Settlement outcomes derived from the gateway's status vocabulary.
const (
	OutcomeApproved = "approved"
	OutcomeRejected = "rejected"
	OutcomePending  = "pending"
)

// MapGatewayStatus maps the gateway's status strings to an internal
// settlement outcome. Unrecognized statuses stay pending so an unexpected
// callback can never settle a row.
func MapGatewayStatus(status string) string {
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return OutcomeApproved
	case "FAILED", "REFUNDED", "CHARGED_BACK", "CANCELED":
		return OutcomeRejected
	default:
		return OutcomePending
	}
}
