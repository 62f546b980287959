package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/patrickmn/go-cache"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/jwt"
)

const (
	defaultTimeout = 3 * time.Second
	tokenLifetime  = 5 * time.Minute
)

// Client talks to one attestlend node.
type Client struct {
	client    *http.Client
	cache     *cache.Cache
	userAgent string
	endpoint  string

	privatekey string
	issuer     string
	audience   string
}

// New returns a client for endpoint, e.g. "https://lend.example.com".
func New(endpoint string) *Client {
	httpClient := http.Client{
		Timeout: defaultTimeout,
	}

	c := &Client{
		client:    &httpClient,
		cache:     cache.New(10*time.Minute, 15*time.Minute),
		userAgent: "attestlend-client",
		endpoint:  strings.TrimSuffix(endpoint, "/"),
	}
	httpClient.Transport = c
	return c
}

func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	return http.DefaultTransport.RoundTrip(req)
}

// SetSigner makes every following request carry a bearer token signed with
// privatekey for the node at audience.
func (c *Client) SetSigner(privatekey, audience string) error {
	address, err := attestlend.PrivKeyToAddr(privatekey)
	if err != nil {
		return err
	}
	c.privatekey = privatekey
	c.issuer = attestlend.AddressString(address)
	c.audience = audience
	return nil
}

func (c *Client) bearer() (string, error) {
	now := time.Now()
	return jwt.Create(jwt.Claims{
		Issuer:         c.issuer,
		Subject:        jwt.Subject,
		Audience:       c.audience,
		IssuedAt:       strconv.FormatInt(now.Unix(), 10),
		ExpirationTime: strconv.FormatInt(now.Add(tokenLifetime).Unix(), 10),
	}, c.privatekey)
}

// APIError is a non-200 answer from the node.
type APIError struct {
	Status    int    `json:"-"`
	Message   string `json:"error"`
	Code      uint32 `json:"code"`
	Codespace string `json:"codespace"`
}

func (e *APIError) Error() string {
	if e.Codespace != "" {
		return fmt.Sprintf("%d %s/%d: %s", e.Status, e.Codespace, e.Code, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (c *Client) HttpRequest(ctx context.Context, method, path string, body any, response any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.privatekey != "" {
		token, err := c.bearer()
		if err != nil {
			return fmt.Errorf("failed to sign request: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if response == nil {
		return nil
	}
	err = json.NewDecoder(resp.Body).Decode(response)
	if err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}

	return nil
}

func (c *Client) WellKnown(ctx context.Context) (attestlend.WellKnownAttestlend, error) {
	cacheKey := "wellknown"
	if x, found := c.cache.Get(cacheKey); found {
		return x.(attestlend.WellKnownAttestlend), nil
	}

	var wk attestlend.WellKnownAttestlend
	if err := c.HttpRequest(ctx, http.MethodGet, "/.well-known/attestlend", nil, &wk); err != nil {
		return attestlend.WellKnownAttestlend{}, err
	}
	c.cache.Set(cacheKey, wk, cache.DefaultExpiration)
	return wk, nil
}

// GetEpoch fetches an epoch. id 0 asks for the current one and is never cached.
func (c *Client) GetEpoch(ctx context.Context, id uint32) (attestlend.Epoch, error) {
	path := "/epochs/current"
	cacheKey := ""
	if id != 0 {
		path = "/epochs/" + strconv.FormatUint(uint64(id), 10)
		cacheKey = "epoch:" + strconv.FormatUint(uint64(id), 10)
		if x, found := c.cache.Get(cacheKey); found {
			return x.(attestlend.Epoch), nil
		}
	}

	var epoch attestlend.Epoch
	if err := c.HttpRequest(ctx, http.MethodGet, path, nil, &epoch); err != nil {
		return attestlend.Epoch{}, err
	}
	if cacheKey != "" {
		c.cache.Set(cacheKey, epoch, cache.DefaultExpiration)
	}
	return epoch, nil
}

// Committee asks the node which witnesses must sign a claim.
func (c *Client) Committee(ctx context.Context, epochID uint32, identifier common.Hash, timestampS uint32) ([]attestlend.Witness, error) {
	cacheKey := fmt.Sprintf("committee:%d:%s:%d", epochID, identifier.Hex(), timestampS)
	if epochID != 0 {
		if x, found := c.cache.Get(cacheKey); found {
			return x.([]attestlend.Witness), nil
		}
	}

	epoch := "current"
	if epochID != 0 {
		epoch = strconv.FormatUint(uint64(epochID), 10)
	}
	path := fmt.Sprintf("/epochs/%s/committee?identifier=%s&timestamp=%d", epoch, identifier.Hex(), timestampS)

	var committee []attestlend.Witness
	if err := c.HttpRequest(ctx, http.MethodGet, path, nil, &committee); err != nil {
		return nil, err
	}
	if epochID != 0 {
		c.cache.Set(cacheKey, committee, cache.NoExpiration)
	}
	return committee, nil
}

// Loan mirrors the node's loan representation.
type Loan struct {
	ID               uint64 `json:"id"`
	Borrower         string `json:"borrower"`
	Lender           string `json:"lender"`
	Amount           string `json:"amount"`
	InterestRate     uint64 `json:"interestRate"`
	Duration         uint64 `json:"duration"`
	CollateralToken  string `json:"collateralToken"`
	CollateralAmount string `json:"collateralAmount"`
	Status           string `json:"status"`
	StartTime        uint64 `json:"startTime"`
}

type LoanRequest struct {
	Amount           string `json:"amount"`
	InterestRate     uint64 `json:"interestRate"`
	Duration         uint64 `json:"duration"`
	CollateralToken  string `json:"collateralToken"`
	CollateralAmount string `json:"collateralAmount"`
}

func (c *Client) RequestLoan(ctx context.Context, request LoanRequest) (Loan, error) {
	var loan Loan
	err := c.HttpRequest(ctx, http.MethodPost, "/loans", request, &loan)
	return loan, err
}

func (c *Client) GetLoan(ctx context.Context, id uint64) (Loan, error) {
	var loan Loan
	err := c.HttpRequest(ctx, http.MethodGet, "/loans/"+strconv.FormatUint(id, 10), nil, &loan)
	return loan, err
}

// UpdateCreditScore submits a proof about the signer and returns the stored score.
func (c *Client) UpdateCreditScore(ctx context.Context, proof attestlend.Proof) (string, error) {
	var result struct {
		CreditScore string `json:"creditScore"`
	}
	err := c.HttpRequest(ctx, http.MethodPost, "/users/credit-score", proof, &result)
	return result.CreditScore, err
}
