package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"
)

// Config for the HTTP ledger client. Fee is the ledger's fixed per-transfer
// fee; the client attaches it to every call.
type Config struct {
	BaseURL string
	Fee     *big.Int
	Timeout time.Duration
}

// HTTPClient talks to the ledger service over its JSON transfer endpoint.
type HTTPClient struct {
	baseURL string
	fee     *big.Int
	http    *http.Client
}

func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	fee := cfg.Fee
	if fee == nil {
		fee = big.NewInt(0)
	}

	return &HTTPClient{
		baseURL: cfg.BaseURL,
		fee:     fee,
		http:    &http.Client{Timeout: timeout},
	}
}

// Fee returns the fixed per-transfer fee the client attaches.
func (c *HTTPClient) Fee() *big.Int { return new(big.Int).Set(c.fee) }

type transferRequest struct {
	To             string   `json:"to"`
	Amount         *big.Int `json:"amount"`
	Fee            *big.Int `json:"fee"`
	Memo           []byte   `json:"memo"`
	FromSubaccount []byte   `json:"from_subaccount,omitempty"`
	CreatedAtNanos int64    `json:"created_at_time,omitempty"`
}

type transferResponse struct {
	Ok *struct {
		BlockHeight uint64 `json:"block_height"`
	} `json:"ok,omitempty"`
	Err *TransferError `json:"err,omitempty"`
}

// Transfer posts the transfer and decodes the ledger's result union. A
// ledger-side rejection comes back as *TransferError; transport problems come
// back as plain errors. Either way the transfer did not take effect.
func (c *HTTPClient) Transfer(ctx context.Context, args TransferArgs) (BlockHeight, error) {
	const op = "ledger.HTTPClient.Transfer"

	req := transferRequest{
		To:             args.To,
		Amount:         args.Amount,
		Fee:            args.Fee,
		Memo:           args.Memo,
		FromSubaccount: args.FromSubaccount,
	}
	if req.Fee == nil {
		req.Fee = c.fee
	}
	if !args.CreatedAt.IsZero() {
		req.CreatedAtNanos = args.CreatedAt.UnixNano()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/transfer",
		bytes.NewReader(body),
	)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%s: ledger returned status %d", op, resp.StatusCode)
	}

	var out transferResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	switch {
	case out.Err != nil:
		if !knownKind(out.Err.Kind) {
			out.Err = &TransferError{Kind: KindOther, Message: out.Err.Error()}
		}
		return 0, out.Err
	case out.Ok != nil:
		return BlockHeight(out.Ok.BlockHeight), nil
	default:
		return 0, fmt.Errorf("%s: empty ledger response", op)
	}
}

func knownKind(k ErrorKind) bool {
	switch k {
	case KindBadFee, KindInsufficientFunds, KindTxTooOld,
		KindTxDuplicate, KindTxCreatedInFuture, KindOther:
		return true
	}
	return false
}
