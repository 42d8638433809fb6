package solanatracker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"walletmirror/internal/models"
)

const defaultHost = "https://data.solanatracker.io"

// Client talks to the Solana Tracker data API. It is both the trade source
// (paginated wallet trade history) and the price source for the oracle.
type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
	maxPages   int
}

func NewClient(httpClient *http.Client, host, apiKey string, maxPages int) *Client {
	if host == "" {
		host = defaultHost
	}
	if maxPages <= 0 {
		maxPages = 10
	}
	return &Client{
		host:       strings.TrimRight(host, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		maxPages:   maxPages,
	}
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// TradesSince fetches the wallet's trades strictly newer than minTimestampMs,
// following pagination until the source reports no further pages or a page
// stops yielding events above the floor. The floor is applied locally even
// though the query is already bounded: the upstream boundary is inclusive and
// reapplying the boundary event would double-count it.
func (c *Client) TradesSince(ctx context.Context, wallet string, minTimestampMs int64) ([]models.TradeEvent, error) {
	if wallet == "" {
		return nil, fmt.Errorf("wallet address is required")
	}
	path := fmt.Sprintf("/wallet/%s/trades", url.PathEscape(wallet))

	var out []models.TradeEvent
	cursor := ""
	for page := 0; page < c.maxPages; page++ {
		query := url.Values{}
		if cursor != "" {
			query.Set("cursor", cursor)
		}
		body, err := c.doRequest(ctx, path, query)
		if err != nil {
			return nil, err
		}
		var pg tradesPage
		if err := json.Unmarshal(body, &pg); err != nil {
			return nil, fmt.Errorf("failed to decode trades page: %w", err)
		}

		fresh := 0
		for _, raw := range pg.Trades {
			var t trade
			if err := json.Unmarshal(raw, &t); err != nil {
				return nil, fmt.Errorf("failed to decode trade: %w", err)
			}
			if t.Time <= minTimestampMs {
				continue
			}
			fresh++
			out = append(out, toEvent(t, raw))
		}
		if !pg.HasNextPage || pg.NextCursor == "" || fresh == 0 {
			break
		}
		cursor = pg.NextCursor
	}
	return out, nil
}

// Price fetches the current USD price of a token. 429 responses surface as a
// rate-limited *APIError so the oracle can back off.
func (c *Client) Price(ctx context.Context, tokenAddress string) (decimal.Decimal, error) {
	if tokenAddress == "" {
		return decimal.Zero, fmt.Errorf("token address is required")
	}
	query := url.Values{}
	query.Set("token", tokenAddress)
	body, err := c.doRequest(ctx, "/price", query)
	if err != nil {
		return decimal.Zero, err
	}
	var pr priceResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode price: %w", err)
	}
	return pr.Price, nil
}

func toEvent(t trade, raw []byte) models.TradeEvent {
	return models.TradeEvent{
		EventTime:   t.Time,
		FromSymbol:  t.From.Token.Symbol,
		FromName:    t.From.Token.Name,
		FromAddress: t.From.Address,
		FromAmount:  t.From.Amount,
		ToSymbol:    t.To.Token.Symbol,
		ToName:      t.To.Token.Name,
		ToAddress:   t.To.Address,
		ToAmount:    t.To.Amount,
		PriceUsd:    t.Price.Usd,
		VolumeUsd:   t.Volume.Usd,
		Raw:         datatypes.JSON(raw),
	}
}
