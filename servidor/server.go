// server.go - Servidor da autoridade de jogadas (HTTP + WebSocket)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"nhooyr.io/websocket"

	"damas/shared"
)

const maxJSONBodyBytes int64 = 1 << 20

var (
	errBadRequest   = errors.New("bad request")
	errUnauthorized = errors.New("unauthorized")
)

// Server exposes a ScriptedAuthority over POST /<op> and over /ws.
type Server struct {
	authority *ScriptedAuthority
	secret    []byte // HS256 secret for bearer tokens; nil accepts anyone
}

func NewServer(a *ScriptedAuthority, secret string) *Server {
	s := &Server{authority: a}
	if secret != "" {
		s.secret = []byte(secret)
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	for _, op := range []string{shared.OpUserMove, shared.OpApplyUserMove, shared.OpAIMove} {
		mux.HandleFunc("/"+op, s.withAuth(s.withJSON(s.handleOp(op))))
	}
	mux.HandleFunc("/ws", s.withAuth(s.serveWS))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// dispatch runs op with its JSON payload. HTTP and WebSocket share it.
func (s *Server) dispatch(op string, payload []byte) (any, error) {
	switch op {
	case shared.OpUserMove:
		ix, err := s.authority.UserMoves()
		if err != nil {
			return nil, err
		}
		return shared.UserMovesReply{UserMoves: &ix}, nil
	case shared.OpApplyUserMove:
		var args shared.ApplyUserMoveArgs
		if err := json.Unmarshal(payload, &args); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		snap, err := s.authority.ApplyUserMove(args)
		if err != nil {
			return nil, err
		}
		return shared.NewBoardReply(snap), nil
	case shared.OpAIMove:
		snap, err := s.authority.AIMove()
		if err != nil {
			return nil, err
		}
		return shared.NewBoardReply(snap), nil
	default:
		return nil, fmt.Errorf("%w: unknown op %q", errBadRequest, op)
	}
}

// statusFor maps an error to its HTTP status and wire code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errNotInIndex), errors.Is(err, errOutOfOrder):
		return http.StatusConflict, shared.CodeStaleIndex
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, shared.CodeBadRequest
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, shared.CodeBadRequest
	default:
		return http.StatusInternalServerError, shared.CodeInternal
	}
}

// ---- HTTP ----

func (s *Server) withJSON(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if r.Body != nil && r.Body != http.NoBody {
			r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
		}
		h(w, r)
	}
}

func (s *Server) handleOp(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed", shared.CodeBadRequest)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			if isBodyTooLarge(err) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large", shared.CodeBadRequest)
				return
			}
			writeError(w, http.StatusBadRequest, "read body: "+err.Error(), shared.CodeBadRequest)
			return
		}
		reply, err := s.dispatch(op, body)
		if err != nil {
			status, code := statusFor(err)
			log.Printf("[RPC] %s: %d %v", op, status, err)
			writeError(w, status, err.Error(), code)
			return
		}
		writeJSON(w, reply)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	w.WriteHeader(status)
	writeJSON(w, shared.ErrorReply{Error: msg, Code: code})
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// ---- auth ----

func (s *Server) withAuth(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.secret == nil {
			h(w, r)
			return
		}
		sub, err := s.verify(r.Header.Get("Authorization"))
		if err != nil {
			log.Printf("[RPC] %s %s: %v", r.Method, r.URL.Path, err)
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			writeError(w, http.StatusUnauthorized, err.Error(), shared.CodeBadRequest)
			return
		}
		log.Printf("[RPC] %s %s from %s", r.Method, r.URL.Path, sub)
		h(w, r)
	}
}

// verify checks an "Authorization: Bearer <jwt>" header and returns the
// token subject.
func (s *Server) verify(header string) (string, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return "", fmt.Errorf("%w: missing bearer token", errUnauthorized)
	}
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUnauthorized, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: invalid token", errUnauthorized)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("%w: token has no subject", errUnauthorized)
	}
	return sub, nil
}

// ---- WebSocket ----

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		log.Printf("[RPC] ws accept: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "server error")
	log.Printf("[RPC] ws client %s connected", r.RemoteAddr)

	ctx := r.Context()
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Printf("[RPC] ws client %s left", r.RemoteAddr)
			default:
				log.Printf("[RPC] ws read: %v", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		if err := c.Write(ctx, websocket.MessageText, s.answer(data)); err != nil {
			log.Printf("[RPC] ws write: %v", err)
			return
		}
	}
}

// answer turns one request frame into its reply frame.
func (s *Server) answer(data []byte) []byte {
	var req shared.Envelope
	if err := json.Unmarshal(data, &req); err != nil {
		return errorFrame(0, fmt.Errorf("%w: %v", errBadRequest, err))
	}
	reply, err := s.dispatch(req.T, req.M)
	if err != nil {
		log.Printf("[RPC] ws %s #%d: %v", req.T, req.ID, err)
		return errorFrame(req.ID, err)
	}
	m, err := json.Marshal(reply)
	if err != nil {
		return errorFrame(req.ID, err)
	}
	out, _ := json.Marshal(shared.Envelope{T: req.T, ID: req.ID, M: m})
	return out
}

func errorFrame(id int, err error) []byte {
	_, code := statusFor(err)
	m, _ := json.Marshal(shared.ErrorReply{Error: err.Error(), Code: code})
	out, _ := json.Marshal(shared.Envelope{T: shared.EnvelopeError, ID: id, M: m})
	return out
}

// ponto de entrada do servidor
func main() {
	addr := flag.String("addr", getenv("DAMAS_ADDR", ":5000"), "listen address")
	scriptPath := flag.String("script", getenv("DAMAS_SCRIPT", ""), "JSON turn script to replay")
	secret := flag.String("auth-secret", getenv("DAMAS_AUTH_SECRET", ""), "HS256 secret required on bearer tokens")
	flag.Parse()

	if *scriptPath == "" {
		fmt.Fprintln(os.Stderr, "Uso: servidor -script <arquivo.json> [-addr :5000]")
		os.Exit(2)
	}
	script, err := LoadScript(*scriptPath)
	if err != nil {
		log.Fatal(err)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           NewServer(NewScriptedAuthority(script), *secret).routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.Printf("[RPC] Servidor escutando em %s (%d turnos)", *addr, len(script.Turns))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
