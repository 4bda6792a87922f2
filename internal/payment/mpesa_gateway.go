package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"eastleigh-be/internal/config"
	"eastleigh-be/internal/logger"

	"go.uber.org/zap"
)

const (
	mpesaTokenPath       = "/oauth/v1/generate?grant_type=client_credentials"
	mpesaSTKPushPath     = "/mpesa/stkpush/v1/processrequest"
	mpesaTimestampLayout = "20060102150405"
	mpesaTransactionType = "CustomerPayBillOnline"
	mpesaAccountRef      = "Eastleigh Real Estate"
	mpesaSuccessCode     = "0"
)

type mpesaGateway struct {
	cfg        config.MpesaConfig
	httpClient *http.Client
	now        func() time.Time
	nairobi    *time.Location
}

// NewMpesaGateway returns a Daraja STK Push client.
func NewMpesaGateway(cfg config.MpesaConfig) Gateway {
	if cfg.ConsumerKey == "" || cfg.Passkey == "" {
		logger.L().Warn("M-Pesa credentials are empty")
	}

	return &mpesaGateway{
		cfg:        cfg,
		httpClient: newHTTPClient(),
		now:        time.Now,
		nairobi:    nairobiLocation(),
	}
}

func (m *mpesaGateway) Method() Method { return MethodMpesa }

type mpesaTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type mpesaSTKRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type mpesaSTKResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

// Password is base64(shortcode + passkey + timestamp) as Daraja requires.
func mpesaPassword(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

func (m *mpesaGateway) accessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.BaseURL+mpesaTokenPath, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(m.cfg.ConsumerKey, m.cfg.ConsumerSecret)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", gatewayErrorf("access token request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", gatewayErrorf("access token request returned %d", resp.StatusCode)
	}

	var out mpesaTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", gatewayErrorf("decode access token: %v", err)
	}
	if out.AccessToken == "" {
		return "", gatewayErrorf("empty access token")
	}
	return out.AccessToken, nil
}

func (m *mpesaGateway) Charge(ctx context.Context, in ChargeRequest) (_ *ChargeResponse, err error) {
	ctx, span := startGatewaySpan(ctx, MethodMpesa, in.ReceiptNumber)
	defer func() { endSpan(span, err) }()

	log := logger.FromCtx(ctx).With(
		zap.String("provider", string(MethodMpesa)),
		zap.String("receipt_number", in.ReceiptNumber),
	)

	token, err := m.accessToken(ctx)
	if err != nil {
		log.Error("Failed to obtain M-Pesa access token", zap.Error(err))
		return nil, err
	}

	timestamp := m.now().In(m.nairobi).Format(mpesaTimestampLayout)
	payload := mpesaSTKRequest{
		BusinessShortCode: m.cfg.ShortCode,
		Password:          mpesaPassword(m.cfg.ShortCode, m.cfg.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   mpesaTransactionType,
		Amount:            in.Amount.Ceil().IntPart(),
		PartyA:            in.PhoneNumber,
		PartyB:            m.cfg.ShortCode,
		PhoneNumber:       in.PhoneNumber,
		CallBackURL:       m.cfg.CallbackURL,
		AccountReference:  mpesaAccountRef,
		TransactionDesc:   in.Description,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+mpesaSTKPushPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	log.Info("Sending STK push request")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		log.Error("STK push request failed", zap.Error(err))
		return nil, gatewayErrorf("stk push request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gatewayErrorf("read stk push response: %v", err)
	}

	var out mpesaSTKResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		log.Error("Failed decoding STK push response",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", raw),
		)
		return nil, gatewayErrorf("unexpected stk push response (%d)", resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK || out.ResponseCode != mpesaSuccessCode {
		msg := firstNonEmpty(out.ErrorMessage, out.ResponseDescription, fmt.Sprintf("status %d", resp.StatusCode))
		log.Error("STK push rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("response_code", out.ResponseCode),
			zap.String("message", msg),
		)
		return nil, gatewayErrorf("%s", msg)
	}

	if out.CheckoutRequestID == "" {
		return nil, gatewayErrorf("response carried no CheckoutRequestID")
	}

	log.Info("STK push accepted",
		zap.String("transaction_id", out.CheckoutRequestID),
		zap.String("merchant_request_id", out.MerchantRequestID),
	)

	return &ChargeResponse{
		TransactionID: out.CheckoutRequestID,
		Raw:           json.RawMessage(raw),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func nairobiLocation() *time.Location {
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		logger.L().Warn("failed to load Nairobi location, using fixed EAT offset", zap.Error(err))
		return time.FixedZone("EAT", 3*60*60)
	}
	return loc
}
