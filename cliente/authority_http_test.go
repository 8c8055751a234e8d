package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/google/go-cmp/cmp"

	"damas/shared"
)

func newHTTPAuthority(t *testing.T, h http.Handler, tokens *tokenSource, retries int) *RemoteAuthority {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse %q: %v", ts.URL, err)
	}
	return newRemoteAuthority(newHTTPTransport(u, 2*time.Second, tokens), retries, time.Millisecond)
}

func TestHTTPAuthorityOperations(t *testing.T) {
	var gotApply shared.ApplyUserMoveArgs
	mux := http.NewServeMux()
	mux.HandleFunc("/user_move", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s; want POST", r.Method)
		}
		_, _ = io.WriteString(w, `{"user_moves": {"5,0": [[4,1]], "5,2": [[4,1],[4,3]]}}`)
	})
	mux.HandleFunc("/apply_user_move", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotApply); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(shared.NewBoardReply(onlyRed))
	})
	mux.HandleFunc("/ai_move", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(shared.NewBoardReply(onlyBlack))
	})
	a := newHTTPAuthority(t, mux, nil, 1)
	ctx := context.Background()

	ix, err := a.FetchLegalMoves(ctx)
	if err != nil {
		t.Fatalf("FetchLegalMoves: %v", err)
	}
	if diff := cmp.Diff([]shared.Position{pos(5, 0), pos(5, 2)}, ix.Origins()); diff != "" {
		t.Errorf("origins mismatch (-want +got):\n%s", diff)
	}

	snap, err := a.SubmitHumanMove(ctx, firstMove, shared.RedMan)
	if err != nil {
		t.Fatalf("SubmitHumanMove: %v", err)
	}
	want := shared.ApplyUserMoveArgs{OldCoords: pos(5, 0), NewCoords: pos(4, 1), Piece: "r"}
	if diff := cmp.Diff(want, gotApply); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(onlyRed, snap); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	snap, err = a.RequestEngineMove(ctx)
	if err != nil {
		t.Fatalf("RequestEngineMove: %v", err)
	}
	if snap.NumRed != 0 || snap.NumBlack != 1 {
		t.Errorf("counts = %d/%d; want 0/1", snap.NumRed, snap.NumBlack)
	}
}

func TestHTTPAuthorityErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{"conflict", http.StatusConflict, `{"error":"not in index","code":"stale_index"}`, shared.ErrStaleIndex},
		{"unprocessable", http.StatusUnprocessableEntity, `{"error":"illegal move"}`, shared.ErrStaleIndex},
		{"server error", http.StatusBadGateway, `upstream down`, shared.ErrAuthorityUnreachable},
		{"bad request", http.StatusBadRequest, `{"error":"bad coords"}`, shared.ErrAuthorityMalformedResponse},
		{"not json", http.StatusOK, `<html>`, shared.ErrAuthorityMalformedResponse},
		{"missing counts", http.StatusOK, `{"board_state": [["."]]}`, shared.ErrAuthorityMalformedResponse},
		{"bad board", http.StatusOK, `{"board_state": [["x"]], "num_red": 0, "num_black": 0}`, shared.ErrAuthorityMalformedResponse},
		{"wrong size", http.StatusOK, `{"board_state": [["."]], "num_red": 12, "num_black": 12}`, shared.ErrAuthorityMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			a := newHTTPAuthority(t, h, nil, 1)

			_, err := a.SubmitHumanMove(context.Background(), firstMove, shared.RedMan)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("error = %v; want %v", err, tt.kind)
			}
			var ae *shared.AuthorityError
			if !errors.As(err, &ae) || ae.Op != shared.OpApplyUserMove {
				t.Errorf("error = %#v; want an AuthorityError for apply_user_move", err)
			}
		})
	}
}

func TestHTTPEngineReplyWrongBoardSize(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"board_state":[["."]],"num_red":12,"num_black":12}`)
	})
	a := newHTTPAuthority(t, h, nil, 1)

	snap, err := a.RequestEngineMove(context.Background())
	if !errors.Is(err, shared.ErrAuthorityMalformedResponse) {
		t.Fatalf("error = %v, size = %d; want malformed", err, snap.Board.Size())
	}
}

func TestHTTPErrorBodyIsReported(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"error":"move 5,0->4,1 is not in the current legal-move index"}`)
	})
	a := newHTTPAuthority(t, h, nil, 1)
	_, err := a.SubmitHumanMove(context.Background(), firstMove, shared.RedMan)
	if err == nil || !strings.Contains(err.Error(), "status 409") || !strings.Contains(err.Error(), "not in the current") {
		t.Errorf("error = %v; want status and server message", err)
	}
}

func TestFetchLegalMovesRetriesUnreachable(t *testing.T) {
	var calls atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"user_moves": {"5,0": [[4,1]]}}`)
	})
	a := newHTTPAuthority(t, h, nil, 3)

	ix, err := a.FetchLegalMoves(context.Background())
	if err != nil {
		t.Fatalf("FetchLegalMoves: %v", err)
	}
	if ix.Len() != 1 || calls.Load() != 3 {
		t.Errorf("index len %d after %d calls; want 1 after 3", ix.Len(), calls.Load())
	}
}

func TestFetchLegalMovesGivesUp(t *testing.T) {
	var calls atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	a := newHTTPAuthority(t, h, nil, 2)

	_, err := a.FetchLegalMoves(context.Background())
	if !errors.Is(err, shared.ErrAuthorityUnreachable) {
		t.Fatalf("error = %v; want unreachable", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d; want 2", calls.Load())
	}
}

func TestFetchLegalMovesDoesNotRetryMalformed(t *testing.T) {
	var calls atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"moves": {}}`)
	})
	a := newHTTPAuthority(t, h, nil, 3)

	_, err := a.FetchLegalMoves(context.Background())
	if !errors.Is(err, shared.ErrAuthorityMalformedResponse) {
		t.Fatalf("error = %v; want malformed (missing user_moves)", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d; want 1", calls.Load())
	}
}

func TestMutatingCallsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	a := newHTTPAuthority(t, h, nil, 5)

	if _, err := a.RequestEngineMove(context.Background()); !errors.Is(err, shared.ErrAuthorityUnreachable) {
		t.Fatalf("error = %v; want unreachable", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d; want 1", calls.Load())
	}
}

func TestUnreachableServer(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	u, _ := url.Parse(ts.URL)
	ts.Close()

	a := newRemoteAuthority(newHTTPTransport(u, time.Second, nil), 1, 0)
	if _, err := a.RequestEngineMove(context.Background()); !errors.Is(err, shared.ErrAuthorityUnreachable) {
		t.Errorf("error = %v; want unreachable", err)
	}
}

func TestBearerTokenIsSent(t *testing.T) {
	const secret = "s3cret"
	var header string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"user_moves": {}}`)
	})
	tokens := newTokenSource(secret, "ana")
	now := time.Now()
	tokens.now = func() time.Time { return now }
	a := newHTTPAuthority(t, h, tokens, 1)

	if _, err := a.FetchLegalMoves(context.Background()); err != nil {
		t.Fatalf("FetchLegalMoves: %v", err)
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		t.Fatalf("Authorization = %q; want a bearer token", header)
	}
	claims := parseClaims(t, raw, secret)
	if claims["sub"] != "ana" {
		t.Errorf("sub = %v; want ana", claims["sub"])
	}
	exp, _ := claims["exp"].(float64)
	if int64(exp) != now.Add(tokenTTL).Unix() {
		t.Errorf("exp = %v; want %d", claims["exp"], now.Add(tokenTTL).Unix())
	}
}

func parseClaims(t *testing.T, tokenString, secret string) jwt.MapClaims {
	t.Helper()
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		t.Fatalf("invalid token claims: %#v", token.Claims)
	}
	return claims
}

func TestConnectPicksTransport(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server = "http://127.0.0.1:1"
	a, err := Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect http: %v", err)
	}
	if _, ok := a.t.(*httpTransport); !ok {
		t.Errorf("transport = %T; want *httpTransport", a.t)
	}
	_ = a.Close()

	cfg.Server = "ftp://example.com"
	if _, err := Connect(context.Background(), cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Connect ftp error = %v; want ErrInvalidConfig", err)
	}
}
