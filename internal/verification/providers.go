package verification

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/config"
	"github.com/jafarshop/tablepos/internal/domain"
)

// bangkok is fixed at UTC+7; Thailand has no daylight saving
var bangkok = time.FixedZone("ICT", 7*60*60)

// SlipOKProvider verifies slips with the SlipOK API
type SlipOKProvider struct {
	client   *resty.Client
	branchID string
	logger   *zap.Logger
}

type slipOKResponse struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Success   bool    `json:"success"`
		TransRef  string  `json:"transRef"`
		TransDate string  `json:"transDate"` // 20060102
		TransTime string  `json:"transTime"` // 15:04:05
		Amount    float64 `json:"amount"`
		Sender    struct {
			DisplayName string `json:"displayName"`
			Name        string `json:"name"`
		} `json:"sender"`
	} `json:"data"`
}

// SlipOK error codes meaning the slip itself is bad rather than the request
var slipOKInvalidCodes = map[int]bool{
	1007: true, // no QR code in image
	1008: true, // QR code is not a transfer slip
	1012: true, // duplicate slip
	1013: true, // amount mismatch
	1014: true, // receiver account mismatch
}

// NewSlipOKProvider creates a SlipOK provider
func NewSlipOKProvider(cfg config.SlipOKConfig, logger *zap.Logger) *SlipOKProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetRetryCount(0).
		SetHeader("x-authorization", cfg.APIKey)
	return &SlipOKProvider{
		client:   client,
		branchID: cfg.BranchID,
		logger:   logger,
	}
}

func (p *SlipOKProvider) Name() string { return config.ProviderSlipOK }

func (p *SlipOKProvider) Verify(ctx context.Context, image []byte) (*domain.VerificationResult, error) {
	var body slipOKResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetFileReader("files", "slip.jpg", bytes.NewReader(image)).
		SetFormData(map[string]string{"log": "true"}).
		SetResult(&body).
		SetError(&body).
		Post("/" + p.branchID)
	if err != nil {
		return nil, fmt.Errorf("slipok request failed: %w", err)
	}

	if resp.IsError() {
		if resp.StatusCode() == http.StatusBadRequest && slipOKInvalidCodes[body.Code] {
			p.logger.Debug("SlipOK rejected slip", zap.Int("code", body.Code), zap.String("message", body.Message))
			return &domain.VerificationResult{IsValid: false, ProviderName: p.Name()}, nil
		}
		return nil, fmt.Errorf("slipok returned status %d: %s", resp.StatusCode(), body.Message)
	}

	if !body.Success || !body.Data.Success {
		return &domain.VerificationResult{IsValid: false, ProviderName: p.Name()}, nil
	}

	sender := body.Data.Sender.DisplayName
	if sender == "" {
		sender = body.Data.Sender.Name
	}

	transferredAt, err := time.ParseInLocation("20060102 15:04:05", body.Data.TransDate+" "+body.Data.TransTime, bangkok)
	if err != nil {
		return nil, fmt.Errorf("slipok returned unparseable transfer time %q %q: %w", body.Data.TransDate, body.Data.TransTime, err)
	}

	return &domain.VerificationResult{
		IsValid:       true,
		Amount:        body.Data.Amount,
		TransferredAt: transferredAt,
		SenderName:    sender,
		ProviderName:  p.Name(),
		Reference:     body.Data.TransRef,
	}, nil
}

// EasySlipProvider verifies slips with the EasySlip API
type EasySlipProvider struct {
	client *resty.Client
	logger *zap.Logger
}

type easySlipResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    struct {
		TransRef string `json:"transRef"`
		Date     string `json:"date"` // RFC 3339
		Amount   struct {
			Amount float64 `json:"amount"`
		} `json:"amount"`
		Sender struct {
			Account struct {
				Name struct {
					TH string `json:"th"`
					EN string `json:"en"`
				} `json:"name"`
			} `json:"account"`
		} `json:"sender"`
	} `json:"data"`
}

// EasySlip error messages meaning the slip itself is bad
var easySlipInvalidMessages = map[string]bool{
	"invalid_image":    true,
	"slip_not_found":   true,
	"qrcode_not_found": true,
	"duplicate_slip":   true,
}

// NewEasySlipProvider creates an EasySlip provider
func NewEasySlipProvider(cfg config.EasySlipConfig, logger *zap.Logger) *EasySlipProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetRetryCount(0).
		SetAuthToken(cfg.APIKey)
	return &EasySlipProvider{
		client: client,
		logger: logger,
	}
}

func (p *EasySlipProvider) Name() string { return config.ProviderEasySlip }

func (p *EasySlipProvider) Verify(ctx context.Context, image []byte) (*domain.VerificationResult, error) {
	var body easySlipResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetFileReader("file", "slip.jpg", bytes.NewReader(image)).
		SetResult(&body).
		SetError(&body).
		Post("/verify")
	if err != nil {
		return nil, fmt.Errorf("easyslip request failed: %w", err)
	}

	if resp.IsError() {
		if easySlipInvalidMessages[body.Message] {
			p.logger.Debug("EasySlip rejected slip", zap.String("message", body.Message))
			return &domain.VerificationResult{IsValid: false, ProviderName: p.Name()}, nil
		}
		return nil, fmt.Errorf("easyslip returned status %d: %s", resp.StatusCode(), body.Message)
	}

	if body.Status != http.StatusOK || body.Data.TransRef == "" {
		return &domain.VerificationResult{IsValid: false, ProviderName: p.Name()}, nil
	}

	transferredAt, err := time.Parse(time.RFC3339, body.Data.Date)
	if err != nil {
		return nil, fmt.Errorf("easyslip returned unparseable date %q: %w", body.Data.Date, err)
	}

	sender := body.Data.Sender.Account.Name.EN
	if sender == "" {
		sender = body.Data.Sender.Account.Name.TH
	}

	return &domain.VerificationResult{
		IsValid:       true,
		Amount:        body.Data.Amount.Amount,
		TransferredAt: transferredAt,
		SenderName:    sender,
		ProviderName:  p.Name(),
		Reference:     body.Data.TransRef,
	}, nil
}
