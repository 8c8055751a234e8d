// authority.go - Move authority client: the three operations the game loop uses
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/form3tech-oss/jwt-go"

	"damas/shared"
)

// Authority is the external engine that owns the rules. Every call blocks
// until the authority answers or ctx ends.
type Authority interface {
	FetchLegalMoves(ctx context.Context) (shared.LegalMoveIndex, error)
	SubmitHumanMove(ctx context.Context, intent shared.MoveIntent, piece shared.Piece) (shared.Snapshot, error)
	RequestEngineMove(ctx context.Context) (shared.Snapshot, error)
}

// transport performs one request/response exchange for op.
type transport interface {
	call(ctx context.Context, op string, req, reply any) error
	Close() error
}

// RemoteAuthority implements Authority over an HTTP or WebSocket transport.
type RemoteAuthority struct {
	t          transport
	maxRetries int
	retryDelay time.Duration
}

// Connect picks the transport from the scheme of cfg.Server.
func Connect(ctx context.Context, cfg Config) (*RemoteAuthority, error) {
	u, err := url.Parse(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("%w: server %q: %v", ErrInvalidConfig, cfg.Server, err)
	}
	var tokens *tokenSource
	if cfg.AuthSecret != "" {
		tokens = newTokenSource(cfg.AuthSecret, cfg.Player)
	}

	var t transport
	switch u.Scheme {
	case "http", "https":
		t = newHTTPTransport(u, cfg.Timeout, tokens)
	case "ws", "wss":
		t, err = dialWS(ctx, u.String(), cfg.Timeout, tokens)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidConfig, u.Scheme)
	}
	log.Printf("[authority] using %s", u.Redacted())
	return newRemoteAuthority(t, cfg.MaxRetries, cfg.RetryDelay), nil
}

func newRemoteAuthority(t transport, maxRetries int, retryDelay time.Duration) *RemoteAuthority {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &RemoteAuthority{t: t, maxRetries: maxRetries, retryDelay: retryDelay}
}

// FetchLegalMoves is read-only, so unreachable errors are retried here.
func (a *RemoteAuthority) FetchLegalMoves(ctx context.Context) (shared.LegalMoveIndex, error) {
	var reply shared.UserMovesReply
	var err error
	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		reply = shared.UserMovesReply{}
		err = a.t.call(ctx, shared.OpUserMove, struct{}{}, &reply)
		if err == nil {
			break
		}
		if !errors.Is(err, shared.ErrAuthorityUnreachable) || ctx.Err() != nil {
			return shared.LegalMoveIndex{}, err
		}
		log.Printf("[authority] %s failed (attempt %d/%d): %v", shared.OpUserMove, attempt, a.maxRetries, err)
		if attempt == a.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return shared.LegalMoveIndex{}, ctx.Err()
		case <-time.After(a.retryDelay):
		}
	}
	if err != nil {
		return shared.LegalMoveIndex{}, err
	}
	if reply.UserMoves == nil {
		return shared.LegalMoveIndex{}, &shared.AuthorityError{
			Op:   shared.OpUserMove,
			Kind: shared.ErrAuthorityMalformedResponse,
			Err:  errors.New("missing user_moves"),
		}
	}
	return *reply.UserMoves, nil
}

// SubmitHumanMove is not retried: a lost reply may mean the move was applied.
func (a *RemoteAuthority) SubmitHumanMove(ctx context.Context, intent shared.MoveIntent, piece shared.Piece) (shared.Snapshot, error) {
	var reply shared.BoardReply
	args := shared.NewApplyUserMoveArgs(intent, piece)
	if err := a.t.call(ctx, shared.OpApplyUserMove, args, &reply); err != nil {
		return shared.Snapshot{}, err
	}
	return snapshotFrom(shared.OpApplyUserMove, reply)
}

func (a *RemoteAuthority) RequestEngineMove(ctx context.Context) (shared.Snapshot, error) {
	var reply shared.BoardReply
	if err := a.t.call(ctx, shared.OpAIMove, struct{}{}, &reply); err != nil {
		return shared.Snapshot{}, err
	}
	return snapshotFrom(shared.OpAIMove, reply)
}

func (a *RemoteAuthority) Close() error {
	return a.t.Close()
}

// snapshotFrom checks a board reply. The client only plays on a standard
// board, so any other size is malformed.
func snapshotFrom(op string, reply shared.BoardReply) (shared.Snapshot, error) {
	snap, err := reply.Snapshot()
	if err != nil {
		return shared.Snapshot{}, &shared.AuthorityError{Op: op, Kind: shared.ErrAuthorityMalformedResponse, Err: err}
	}
	if n := snap.Board.Size(); n != shared.DefaultSize {
		return shared.Snapshot{}, &shared.AuthorityError{
			Op:   op,
			Kind: shared.ErrAuthorityMalformedResponse,
			Err:  fmt.Errorf("board is %dx%d, want %dx%d", n, n, shared.DefaultSize, shared.DefaultSize),
		}
	}
	return snap, nil
}

const tokenTTL = time.Hour

// tokenSource signs the bearer tokens sent to the authority.
type tokenSource struct {
	secret  []byte
	subject string
	now     func() time.Time
}

func newTokenSource(secret, subject string) *tokenSource {
	return &tokenSource{secret: []byte(secret), subject: subject, now: time.Now}
}

func (s *tokenSource) Token() (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub": s.subject,
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
