package momo

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/fitstack/fitstack-settlement/internal/core/domain"
	"github.com/go-resty/resty/v2"
)

// Config holds the partner credentials and URLs for the create API.
type Config struct {
	Endpoint    string
	PartnerCode string
	PartnerName string
	StoreID     string
	AccessKey   string
	SecretKey   string
	RedirectURL string
	IPNURL      string
	RequestType string
	Lang        string
	AutoCapture bool
	Timeout     time.Duration
}

// Client implements ports.PaymentGateway against the MoMo create API.
type Client struct {
	cfg    Config
	signer *Signer
	http   *resty.Client
}

// NewClient creates a new MoMo gateway client.
func NewClient(cfg Config) *Client {
	httpClient := resty.New()
	httpClient.SetTimeout(cfg.Timeout)
	httpClient.SetHeader("Content-Type", "application/json")

	return &Client{
		cfg:    cfg,
		signer: NewSigner(cfg.SecretKey),
		http:   httpClient,
	}
}

// createRequest is the JSON body of POST /v2/gateway/api/create.
type createRequest struct {
	PartnerCode  string `json:"partnerCode"`
	PartnerName  string `json:"partnerName"`
	StoreID      string `json:"storeId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderID      string `json:"orderId"`
	OrderInfo    string `json:"orderInfo"`
	RedirectURL  string `json:"redirectUrl"`
	IpnURL       string `json:"ipnUrl"`
	Lang         string `json:"lang"`
	RequestType  string `json:"requestType"`
	AutoCapture  bool   `json:"autoCapture"`
	ExtraData    string `json:"extraData"`
	OrderGroupID string `json:"orderGroupId"`
	Signature    string `json:"signature"`
}

// createResponse is the create API answer.
type createResponse struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	ResponseTime int64  `json:"responseTime"`
	Message      string `json:"message"`
	ResultCode   int    `json:"resultCode"`
	PayURL       string `json:"payUrl"`
	Deeplink     string `json:"deeplink"`
	QRCodeURL    string `json:"qrCodeUrl"`
}

// CreateCharge signs and sends a captureWallet create request.
// Transport failures, timeouts and 5xx answers wrap domain.ErrGatewayUnavailable;
// a non-zero resultCode wraps domain.ErrGatewayRejected.
func (c *Client) CreateCharge(ctx context.Context, order domain.ChargeOrder) (*domain.ChargeResponse, error) {
	signature := c.signer.Sign(CreateRequestFields(CreateRequest{
		AccessKey:   c.cfg.AccessKey,
		Amount:      order.Amount,
		ExtraData:   order.ExtraData,
		IpnURL:      c.cfg.IPNURL,
		OrderID:     order.OrderID,
		OrderInfo:   order.OrderInfo,
		PartnerCode: c.cfg.PartnerCode,
		RedirectURL: c.cfg.RedirectURL,
		RequestID:   order.RequestID,
		RequestType: c.cfg.RequestType,
	}))

	body := createRequest{
		PartnerCode: c.cfg.PartnerCode,
		PartnerName: c.cfg.PartnerName,
		StoreID:     c.cfg.StoreID,
		RequestID:   order.RequestID,
		Amount:      order.Amount,
		OrderID:     order.OrderID,
		OrderInfo:   order.OrderInfo,
		RedirectURL: c.cfg.RedirectURL,
		IpnURL:      c.cfg.IPNURL,
		Lang:        c.cfg.Lang,
		RequestType: c.cfg.RequestType,
		AutoCapture: c.cfg.AutoCapture,
		ExtraData:   order.ExtraData,
		Signature:   signature,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(c.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	if resp.StatusCode() >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", domain.ErrGatewayUnavailable, resp.StatusCode())
	}

	var out createResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("%w: status %d, undecodable body: %v", domain.ErrGatewayUnavailable, resp.StatusCode(), err)
	}

	if out.ResultCode != domain.ResultCodeSuccess {
		log.Printf("MoMo refused order %s: resultCode=%d message=%q", order.OrderID, out.ResultCode, out.Message)
		return nil, fmt.Errorf("%w: resultCode=%d message=%q", domain.ErrGatewayRejected, out.ResultCode, out.Message)
	}

	return &domain.ChargeResponse{
		PayURL:       out.PayURL,
		ResultCode:   out.ResultCode,
		Message:      out.Message,
		ResponseTime: out.ResponseTime,
	}, nil
}
