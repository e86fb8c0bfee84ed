// Package esimaccess is a client for the eSIM Access provisioning API.
// All response-shape quirks of the provider (envelope, error codes, LPA
// activation strings) are normalized here so callers never see them.
package esimaccess

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Sentinel errors for the provider error taxonomy. Callers branch on these
// with errors.Is.
var (
	// ErrInvalidPackage means the provider does not know the package code.
	ErrInvalidPackage = errors.New("esimaccess: unknown package code")
	// ErrAuthFailure means the access-code/secret-key pair was refused.
	ErrAuthFailure = errors.New("esimaccess: authentication failed")
	// ErrUnavailable covers transport failures and provider 5xx responses.
	ErrUnavailable = errors.New("esimaccess: provider unavailable")
)

// invalidPackageCode is the provider error code for an unknown package.
const invalidPackageCode = "000105"

// Config carries the static credentials and endpoint settings for the client.
// Credentials are validated by config.Load at startup, not per call.
type Config struct {
	BaseURL    string
	AccessCode string
	SecretKey  string
	// SMDPDomain is the fallback SM-DP+ address used when an activation
	// string cannot be parsed (e.g. "rsp.esimaccess.com").
	SMDPDomain string
}

// Client issues order, query, topup and catalog calls against eSIM Access.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a Client. httpClient may be nil, in which case a client with a
// 30s timeout is used.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// envelope is the provider's uniform response wrapper.
type envelope struct {
	Success   bool            `json:"success"`
	ErrorCode string          `json:"errorCode"`
	ErrorMsg  string          `json:"errorMsg"`
	Obj       json.RawMessage `json:"obj"`
}

// ProvisioningState reports how far an order has progressed at the provider.
type ProvisioningState int

const (
	// StatePending means the order is accepted but provisioning data is not
	// ready yet. Acceptance and readiness are distinct states.
	StatePending ProvisioningState = iota
	// StateReady means a profile with a non-empty ICCID is available.
	StateReady
	// StateNotFound means the provider does not know the order number.
	StateNotFound
)

// Profile is the normalized provisioning data for one eSIM.
type Profile struct {
	OrderNo        string
	ICCID          string
	ActivationCode string // extracted code, not the raw LPA string
	SmdpAddress    string
	QRCode         string
	RawAC          string // the LPA string as returned by the provider
}

// ProvisioningStatus is the result of QueryOrder.
type ProvisioningStatus struct {
	State   ProvisioningState
	Profile *Profile
}

// Package is one entry of the provider's purchasable catalog.
type Package struct {
	PackageCode      string   `json:"packageCode"`
	Name             string   `json:"name"`
	DataAmount       int64    `json:"dataAmount"` // MB, -1 for unlimited
	ValidityDays     int      `json:"validityDays"`
	RegionList       []string `json:"regionList"`
	CountryList      []string `json:"countryList"`
	IsTopUpAvailable bool     `json:"isTopUpAvailable"`
}

// SubmitOrder creates a provisioning order. transactionID must be unique per
// attempt; the provider uses it to dedup retried submissions. Returns the
// provider order number on acceptance.
func (c *Client) SubmitOrder(ctx context.Context, packageCode string, quantity int, transactionID string) (string, error) {
	body := map[string]interface{}{
		"transactionId": transactionID,
		"packageInfoList": []map[string]interface{}{
			{"packageCode": packageCode, "count": quantity},
		},
	}

	var obj struct {
		OrderNo string `json:"orderNo"`
	}
	if err := c.post(ctx, "/open/esim/order", body, &obj); err != nil {
		return "", err
	}
	if obj.OrderNo == "" {
		return "", fmt.Errorf("%w: order accepted without order number", ErrUnavailable)
	}
	return obj.OrderNo, nil
}

// QueryOrder fetches provisioning data for an order. The result is Ready only
// when the first returned profile carries a non-empty ICCID; an empty list or
// partial data is Pending (the provider answers before resources are
// allocated).
func (c *Client) QueryOrder(ctx context.Context, orderNo string) (ProvisioningStatus, error) {
	body := map[string]interface{}{
		"orderNo": orderNo,
		"pager":   map[string]int{"pageNum": 1, "pageSize": 20},
	}

	var obj struct {
		EsimList []struct {
			OrderNo   string `json:"orderNo"`
			ICCID     string `json:"iccid"`
			AC        string `json:"ac"`
			QRCodeURL string `json:"qrCodeUrl"`
		} `json:"esimList"`
	}
	err := c.post(ctx, "/open/esim/query", body, &obj)
	if err != nil {
		var pe *providerError
		if errors.As(err, &pe) && pe.notFound() {
			return ProvisioningStatus{State: StateNotFound}, nil
		}
		// A declined query while the batch is still allocating ("getting
		// resource") is not fatal; report pending and let the caller's poll
		// budget decide.
		if !errors.Is(err, ErrUnavailable) && !errors.Is(err, ErrAuthFailure) {
			return ProvisioningStatus{State: StatePending}, nil
		}
		return ProvisioningStatus{}, err
	}

	if len(obj.EsimList) == 0 || obj.EsimList[0].ICCID == "" {
		return ProvisioningStatus{State: StatePending}, nil
	}

	e := obj.EsimList[0]
	smdp, code := c.ParseActivationCode(e.AC)
	qr := e.QRCodeURL
	if qr == "" {
		qr = e.AC
	}
	return ProvisioningStatus{
		State: StateReady,
		Profile: &Profile{
			OrderNo:        e.OrderNo,
			ICCID:          e.ICCID,
			ActivationCode: code,
			SmdpAddress:    smdp,
			QRCode:         qr,
			RawAC:          e.AC,
		},
	}, nil
}

// TopUp applies a package to an existing eSIM. Single request, no polling.
// Returns the provider topup id when one is reported.
func (c *Client) TopUp(ctx context.Context, iccid, packageCode string) (string, error) {
	body := map[string]interface{}{
		"iccid":       iccid,
		"packageCode": packageCode,
		"quantity":    1,
	}

	var obj struct {
		TopupNo string `json:"topupNo"`
	}
	if err := c.post(ctx, "/open/esim/topup", body, &obj); err != nil {
		return "", err
	}
	return obj.TopupNo, nil
}

// ListPackages fetches the provider's purchasable catalog.
func (c *Client) ListPackages(ctx context.Context) ([]Package, error) {
	var obj struct {
		PackageList []Package `json:"packageList"`
	}
	if err := c.get(ctx, "/open/package/list", &obj); err != nil {
		return nil, err
	}
	return obj.PackageList, nil
}

// ParseActivationCode splits an LPA activation string of the form
// "LPA:<version>$<smdpAddress>$<code>" into its SM-DP+ address and activation
// code. Anything else falls back to the configured SM-DP+ domain with the raw
// string as the code. Every call site must go through here so the provider's
// format never leaks in two shapes.
func (c *Client) ParseActivationCode(ac string) (smdpAddress, activationCode string) {
	if strings.HasPrefix(ac, "LPA:") {
		parts := strings.Split(ac, "$")
		if len(parts) >= 3 {
			return parts[1], parts[2]
		}
	}
	return c.cfg.SMDPDomain, ac
}

// providerError is a declined (success=false) provider response.
type providerError struct {
	code string
	msg  string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("esimaccess: provider declined (code=%s): %s", e.code, e.msg)
}

// Unwrap maps well-known decline codes onto the sentinel taxonomy.
func (e *providerError) Unwrap() error {
	if e.code == invalidPackageCode || strings.Contains(strings.ToLower(e.msg), "package") {
		return ErrInvalidPackage
	}
	return nil
}

func (e *providerError) notFound() bool {
	m := strings.ToLower(e.msg)
	return strings.Contains(m, "not found") || strings.Contains(m, "not exist")
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("RT-AccessCode", c.cfg.AccessCode)
	req.Header.Set("RT-SecretKey", c.cfg.SecretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrAuthFailure, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if !env.Success {
		return &providerError{code: env.ErrorCode, msg: env.ErrorMsg}
	}
	if out != nil && len(env.Obj) > 0 {
		if err := json.Unmarshal(env.Obj, out); err != nil {
			return fmt.Errorf("%w: decode obj: %v", ErrUnavailable, err)
		}
	}
	return nil
}
