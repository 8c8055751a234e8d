// orchestrator.go - Turn loop alternating the human and the remote engine
package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"damas/shared"
)

// Phase is a state of the turn loop.
type Phase int

const (
	AwaitingHumanMoves Phase = iota
	AwaitingHumanGesture
	ApplyingHumanMove
	AwaitingEngineMove
	ApplyingEngineMove
	GameOver
)

var phaseNames = [...]string{
	AwaitingHumanMoves:   "awaiting-human-moves",
	AwaitingHumanGesture: "awaiting-human-gesture",
	ApplyingHumanMove:    "applying-human-move",
	AwaitingEngineMove:   "awaiting-engine-move",
	ApplyingEngineMove:   "applying-engine-move",
	GameOver:             "game-over",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Side returns whose turn the phase belongs to.
func (p Phase) Side() shared.Side {
	if p == AwaitingEngineMove || p == ApplyingEngineMove {
		return shared.Engine
	}
	return shared.Human
}

// Reasons a game ends.
const (
	ReasonNoPieces = "no pieces left"
	ReasonNoMoves  = "no legal moves"
)

// Outcome is the result of a finished game.
type Outcome struct {
	Winner shared.Side
	Reason string
}

func (o Outcome) String() string {
	return fmt.Sprintf("%s wins (%s %s)", o.Winner, o.Winner.Opponent(), o.Reason)
}

// Frame is what the view draws after every transition.
type Frame struct {
	Snapshot  shared.Snapshot
	Phase     Phase
	Selection *shared.Position
	Targets   []shared.Position
	Status    string
	Outcome   *Outcome
}

// View renders frames. The terminal UI is the production one.
type View interface {
	Render(Frame)
}

// RetryPrompter asks whether a failed authority call should be repeated.
type RetryPrompter interface {
	PromptRetry(ctx context.Context, err error) bool
}

// Orchestrator runs one game, one state transition at a time. It is not
// safe for concurrent use; Run owns it until it returns.
type Orchestrator struct {
	authority Authority
	input     *Dispatcher
	store     *BoardStore
	view      View
	prompt    RetryPrompter

	phase   Phase
	index   shared.LegalMoveIndex
	intent  shared.MoveIntent
	pending shared.Snapshot
	outcome Outcome
	turns   [2]int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithView(v View) Option {
	return func(o *Orchestrator) { o.view = v }
}

// WithRetryPrompter lets recoverable failures be retried. Without one, Run
// returns the first unreachable or malformed-response error.
func WithRetryPrompter(p RetryPrompter) Option {
	return func(o *Orchestrator) { o.prompt = p }
}

func NewOrchestrator(authority Authority, input *Dispatcher, store *BoardStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		authority: authority,
		input:     input,
		store:     store,
		phase:     AwaitingHumanMoves,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Phase returns the state the loop is in.
func (o *Orchestrator) Phase() Phase { return o.phase }

// Side returns the side whose turn it is.
func (o *Orchestrator) Side() shared.Side { return o.phase.Side() }

// Turns returns how many moves each side has had applied.
func (o *Orchestrator) Turns() (human, engine int) {
	return o.turns[shared.Human], o.turns[shared.Engine]
}

// Run plays until the game is over, ctx ends, or an error cannot be
// recovered. The board is only ever replaced by authority replies.
func (o *Orchestrator) Run(ctx context.Context) (Outcome, error) {
	o.render("")
	for o.phase != GameOver {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		err := o.step(ctx)
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			log.Printf("[turn] %s abandoned: %v", o.phase, err)
			return Outcome{}, ctxErr
		}
		if err := o.recover(ctx, err); err != nil {
			return Outcome{}, err
		}
	}
	return o.outcome, nil
}

func (o *Orchestrator) step(ctx context.Context) error {
	switch o.phase {
	case AwaitingHumanMoves:
		index, err := o.authority.FetchLegalMoves(ctx)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := index.Validate(o.store.Board(), shared.Human.Color()); err != nil {
			return &shared.AuthorityError{Op: shared.OpUserMove, Kind: shared.ErrAuthorityMalformedResponse, Err: err}
		}
		o.index = index
		if o.store.Count(shared.Human) == 0 {
			o.finish(shared.Engine, ReasonNoPieces)
			return nil
		}
		if index.IsEmpty() {
			o.finish(shared.Engine, ReasonNoMoves)
			return nil
		}
		o.enter(AwaitingHumanGesture, fmt.Sprintf("your move: %d pieces can move", index.Len()))

	case AwaitingHumanGesture:
		intent, err := o.awaitGesture(ctx)
		if err != nil {
			return err
		}
		o.intent = intent
		o.enter(ApplyingHumanMove, "sending "+intent.String())

	case ApplyingHumanMove:
		piece := o.store.Board().At(o.intent.From)
		snap, err := o.authority.SubmitHumanMove(ctx, o.intent, piece)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		o.apply(shared.Human, snap)
		if snap.Count(shared.Engine) == 0 {
			o.finish(shared.Human, ReasonNoPieces)
			return nil
		}
		o.enter(AwaitingEngineMove, "engine is thinking")

	case AwaitingEngineMove:
		snap, err := o.authority.RequestEngineMove(ctx)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		o.pending = snap
		o.enter(ApplyingEngineMove, "")

	case ApplyingEngineMove:
		o.apply(shared.Engine, o.pending)
		o.pending = shared.Snapshot{}
		if o.store.Count(shared.Human) == 0 {
			o.finish(shared.Engine, ReasonNoPieces)
			return nil
		}
		o.enter(AwaitingHumanMoves, "fetching your moves")

	case GameOver:
		return nil

	default:
		return fmt.Errorf("unknown phase %d", int(o.phase))
	}
	return nil
}

// awaitGesture installs the turn's only input listener and feeds its events
// to a fresh gesture until a move intent comes out.
func (o *Orchestrator) awaitGesture(ctx context.Context) (shared.MoveIntent, error) {
	l, err := o.input.Listen()
	if err != nil {
		return shared.MoveIntent{}, err
	}
	defer l.Close()

	g := NewGesture(o.store.Board(), o.index, shared.Human.Color())
	for {
		select {
		case <-ctx.Done():
			return shared.MoveIntent{}, ctx.Err()
		case ev := <-l.Events():
			if ev.Kind != EventCell {
				continue
			}
			next, intent, done := g.Activate(ev.Pos)
			if done {
				l.Close()
				log.Printf("[input] move %s", intent)
				return intent, nil
			}
			if sel, ok := next.Selection(); ok {
				if prev, had := g.Selection(); !had || prev != sel {
					log.Printf("[input] selected %s", sel)
				}
			}
			g = next
			o.renderGesture(g)
		}
	}
}

// recover applies the error policy. It returns nil when the loop should
// continue, possibly from a different phase.
func (o *Orchestrator) recover(ctx context.Context, err error) error {
	if errors.Is(err, shared.ErrStaleIndex) && o.phase == ApplyingHumanMove {
		log.Printf("[turn] move %s rejected as stale, refreshing legal moves: %v", o.intent, err)
		o.index = shared.LegalMoveIndex{}
		o.enter(AwaitingHumanMoves, "board changed, fetching your moves again")
		return nil
	}
	if !shared.IsRecoverable(err) {
		return err
	}
	log.Printf("[turn] %s failed: %v", o.phase, err)
	o.render("error: " + err.Error())
	if o.prompt == nil || !o.prompt.PromptRetry(ctx, err) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return shared.Wrapf(err, "%s", o.phase)
	}
	log.Printf("[turn] retrying %s", o.phase)
	o.render("retrying")
	return nil
}

func (o *Orchestrator) apply(side shared.Side, snap shared.Snapshot) {
	o.store.Apply(snap)
	o.turns[side]++
	log.Printf("[turn] %s move applied: red=%d black=%d", side, snap.NumRed, snap.NumBlack)
}

func (o *Orchestrator) enter(p Phase, status string) {
	log.Printf("[turn] %s -> %s", o.phase, p)
	o.phase = p
	o.render(status)
}

func (o *Orchestrator) finish(winner shared.Side, reason string) {
	o.outcome = Outcome{Winner: winner, Reason: reason}
	log.Printf("[turn] game over: %s", o.outcome)
	o.enter(GameOver, o.outcome.String())
}

func (o *Orchestrator) render(status string) {
	if o.view == nil {
		return
	}
	f := Frame{Snapshot: o.store.Snapshot(), Phase: o.phase, Status: status}
	if o.phase == GameOver {
		out := o.outcome
		f.Outcome = &out
	}
	o.view.Render(f)
}

func (o *Orchestrator) renderGesture(g Gesture) {
	if o.view == nil {
		return
	}
	f := Frame{Snapshot: o.store.Snapshot(), Phase: o.phase, Status: "choose a destination"}
	if sel, ok := g.Selection(); ok {
		f.Selection = &sel
		f.Targets = g.Targets()
	} else {
		f.Status = "choose a piece"
	}
	o.view.Render(f)
}
