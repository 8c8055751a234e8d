// authority_ws.go - WebSocket transport for the move authority
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"damas/shared"
)

// wsTransport keeps one connection and allows one call in flight. A failed
// read or write drops the connection; the next call dials again.
type wsTransport struct {
	mu      sync.Mutex
	url     string
	timeout time.Duration
	tokens  *tokenSource
	conn    *websocket.Conn
	seq     int
}

func dialWS(ctx context.Context, url string, timeout time.Duration, tokens *tokenSource) (*wsTransport, error) {
	t := &wsTransport{url: url, timeout: timeout, tokens: tokens}
	if err := t.connect(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *wsTransport) connect(ctx context.Context) error {
	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if t.tokens != nil {
		token, err := t.tokens.Token()
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		opts.HTTPHeader.Set("Authorization", "Bearer "+token)
	}
	dialCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, t.url, opts)
	if err != nil {
		return &shared.AuthorityError{Op: "dial", Kind: shared.ErrAuthorityUnreachable, Err: err}
	}
	t.conn = conn
	return nil
}

func (t *wsTransport) call(ctx context.Context, op string, req, reply any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		log.Printf("[authority] reconnecting to %s", t.url)
		if err := t.connect(ctx); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	t.seq++
	id := t.seq
	frame, err := json.Marshal(shared.Envelope{T: op, ID: id, M: payload})
	if err != nil {
		return fmt.Errorf("%s: encode envelope: %w", op, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := t.conn.Write(callCtx, websocket.MessageText, frame); err != nil {
		t.drop()
		return &shared.AuthorityError{Op: op, Kind: shared.ErrAuthorityUnreachable, Err: err}
	}

	for {
		_, data, err := t.conn.Read(callCtx)
		if err != nil {
			t.drop()
			return &shared.AuthorityError{Op: op, Kind: shared.ErrAuthorityUnreachable, Err: err}
		}
		var env shared.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return &shared.AuthorityError{Op: op, Kind: shared.ErrAuthorityMalformedResponse, Err: err}
		}
		if env.ID != id {
			log.Printf("[authority] dropping reply %d (%s), waiting for %d", env.ID, env.T, id)
			continue
		}
		if env.T == shared.EnvelopeError {
			var er shared.ErrorReply
			_ = json.Unmarshal(env.M, &er)
			return &shared.AuthorityError{Op: op, Kind: kindForCode(er.Code), Err: errors.New(er.Error)}
		}
		if env.T != op {
			return &shared.AuthorityError{
				Op:   op,
				Kind: shared.ErrAuthorityMalformedResponse,
				Err:  fmt.Errorf("reply type %q", env.T),
			}
		}
		if err := json.Unmarshal(env.M, reply); err != nil {
			return &shared.AuthorityError{Op: op, Kind: shared.ErrAuthorityMalformedResponse, Err: err}
		}
		return nil
	}
}

func (t *wsTransport) drop() {
	if t.conn != nil {
		_ = t.conn.Close(websocket.StatusInternalError, "call failed")
		t.conn = nil
	}
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close(websocket.StatusNormalClosure, "bye")
	t.conn = nil
	return err
}

func kindForCode(code string) error {
	switch code {
	case shared.CodeStaleIndex:
		return shared.ErrStaleIndex
	case shared.CodeInternal:
		return shared.ErrAuthorityUnreachable
	default:
		return shared.ErrAuthorityMalformedResponse
	}
}
