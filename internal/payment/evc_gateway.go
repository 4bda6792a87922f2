package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"eastleigh-be/internal/config"
	"eastleigh-be/internal/logger"

	"go.uber.org/zap"
)

const (
	waafiSchemaVersion = "1.0"
	waafiChannel       = "WEB"
	waafiService       = "API_PURCHASE"
	waafiPaymentMethod = "EVCPLUS"
	waafiCurrency      = "USD"
	waafiSuccessCode   = "2001"
)

type evcGateway struct {
	cfg        config.WaafiConfig
	httpClient *http.Client
	now        func() time.Time
}

// NewEvcGateway returns a WaafiPay EVC Plus purchase client.
func NewEvcGateway(cfg config.WaafiConfig) Gateway {
	if cfg.MerchantUID == "" || cfg.APIKey == "" {
		logger.L().Warn("WaafiPay credentials are empty")
	}

	return &evcGateway{
		cfg:        cfg,
		httpClient: newHTTPClient(),
		now:        time.Now,
	}
}

func (e *evcGateway) Method() Method { return MethodEVC }

type waafiRequest struct {
	SchemaVersion string             `json:"schemaVersion"`
	RequestID     string             `json:"requestId"`
	Timestamp     string             `json:"timestamp"`
	ChannelName   string             `json:"channelName"`
	ServiceName   string             `json:"serviceName"`
	ServiceParams waafiServiceParams `json:"serviceParams"`
}

type waafiServiceParams struct {
	MerchantUID     string               `json:"merchantUid"`
	APIUserID       string               `json:"apiUserId"`
	APIKey          string               `json:"apiKey"`
	PaymentMethod   string               `json:"paymentMethod"`
	PayerInfo       waafiPayerInfo       `json:"payerInfo"`
	TransactionInfo waafiTransactionInfo `json:"transactionInfo"`
}

type waafiPayerInfo struct {
	AccountNo string `json:"accountNo"`
}

type waafiTransactionInfo struct {
	ReferenceID string `json:"referenceId"`
	InvoiceID   string `json:"invoiceId"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

type waafiResponse struct {
	ResponseCode string `json:"responseCode"`
	ResponseMsg  string `json:"responseMsg"`
	Params       struct {
		TransactionID string `json:"transactionId"`
		State         string `json:"state"`
	} `json:"params"`
}

func (e *evcGateway) Charge(ctx context.Context, in ChargeRequest) (_ *ChargeResponse, err error) {
	ctx, span := startGatewaySpan(ctx, MethodEVC, in.ReceiptNumber)
	defer func() { endSpan(span, err) }()

	log := logger.FromCtx(ctx).With(
		zap.String("provider", string(MethodEVC)),
		zap.String("receipt_number", in.ReceiptNumber),
	)

	payload := waafiRequest{
		SchemaVersion: waafiSchemaVersion,
		RequestID:     in.ReceiptNumber,
		Timestamp:     e.now().UTC().Format(time.RFC3339),
		ChannelName:   waafiChannel,
		ServiceName:   waafiService,
		ServiceParams: waafiServiceParams{
			MerchantUID:   e.cfg.MerchantUID,
			APIUserID:     e.cfg.APIUserID,
			APIKey:        e.cfg.APIKey,
			PaymentMethod: waafiPaymentMethod,
			PayerInfo:     waafiPayerInfo{AccountNo: in.PhoneNumber},
			TransactionInfo: waafiTransactionInfo{
				ReferenceID: in.ReceiptNumber,
				InvoiceID:   in.ReceiptNumber,
				Amount:      in.Amount.String(),
				Currency:    waafiCurrency,
				Description: in.Description,
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	log.Info("Sending EVC Plus purchase request")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		log.Error("EVC Plus request failed", zap.Error(err))
		return nil, gatewayErrorf("evc plus request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gatewayErrorf("read evc plus response: %v", err)
	}

	var out waafiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		log.Error("Failed decoding EVC Plus response",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", raw),
		)
		return nil, gatewayErrorf("unexpected evc plus response (%d)", resp.StatusCode)
	}

	if out.ResponseCode != waafiSuccessCode {
		msg := firstNonEmpty(out.ResponseMsg, "Failed to initiate EVC Plus payment")
		log.Error("EVC Plus purchase rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("response_code", out.ResponseCode),
			zap.String("message", msg),
		)
		return nil, gatewayErrorf("%s", msg)
	}

	if out.Params.TransactionID == "" {
		return nil, gatewayErrorf("response carried no transactionId")
	}

	log.Info("EVC Plus purchase accepted", zap.String("transaction_id", out.Params.TransactionID))

	return &ChargeResponse{
		TransactionID: out.Params.TransactionID,
		Raw:           json.RawMessage(raw),
	}, nil
}
