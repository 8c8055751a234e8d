// authority_http.go - JSON over HTTP transport for the move authority
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"damas/shared"
)

const maxReplyBytes int64 = 1 << 20

type httpTransport struct {
	base   *url.URL
	client *http.Client
	tokens *tokenSource
}

func newHTTPTransport(base *url.URL, timeout time.Duration, tokens *tokenSource) *httpTransport {
	return &httpTransport{
		base:   base,
		client: &http.Client{Timeout: timeout},
		tokens: tokens,
	}
}

// call POSTs req as JSON to /<op> and decodes the reply.
func (t *httpTransport) call(ctx context.Context, op string, req, reply any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.base.JoinPath(op).String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if t.tokens != nil {
		token, err := t.tokens.Token()
		if err != nil {
			return fmt.Errorf("%s: sign token: %w", op, err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return &shared.AuthorityError{Op: op, Kind: shared.ErrAuthorityUnreachable, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return &shared.AuthorityError{Op: op, Status: resp.StatusCode, Kind: shared.ErrAuthorityUnreachable, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return &shared.AuthorityError{
			Op:     op,
			Status: resp.StatusCode,
			Kind:   kindForStatus(resp.StatusCode),
			Err:    errorFromBody(data),
		}
	}
	if err := json.Unmarshal(data, reply); err != nil {
		return &shared.AuthorityError{Op: op, Status: resp.StatusCode, Kind: shared.ErrAuthorityMalformedResponse, Err: err}
	}
	return nil
}

func (t *httpTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// kindForStatus maps a non-200 status to an error kind. 409 and 422 mean the
// authority rejected the move against its own board.
func kindForStatus(status int) error {
	switch {
	case status == http.StatusConflict, status == http.StatusUnprocessableEntity:
		return shared.ErrStaleIndex
	case status >= 500:
		return shared.ErrAuthorityUnreachable
	default:
		return shared.ErrAuthorityMalformedResponse
	}
}

func errorFromBody(data []byte) error {
	var er shared.ErrorReply
	if err := json.Unmarshal(data, &er); err == nil && er.Error != "" {
		return errors.New(er.Error)
	}
	if len(data) == 0 {
		return nil
	}
	if len(data) > 200 {
		data = data[:200]
	}
	return errors.New(string(bytes.TrimSpace(data)))
}
