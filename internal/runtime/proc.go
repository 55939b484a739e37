package runtime

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"

	"github.com/google/uuid"

	"github.com/agent-console/backend/internal/model"
)

// ProcConfig configures the agent CLI subprocess a Proc runtime drives.
type ProcConfig struct {
	Command string
	Args    []string
	Model   string
	Dir     string
}

// NewProcFactory returns a Factory producing subprocess-backed runtimes.
func NewProcFactory(cfg ProcConfig) Factory {
	return func(opts Options) (Runtime, error) {
		return newProc(cfg, opts)
	}
}

// Proc drives one agent session through an agent CLI subprocess. Each prompt
// turn spawns the process with the session identifier, streams its stdout as
// JSON-Lines events, and forwards every event verbatim through the emit
// callback while folding it into the conversation log.
type Proc struct {
	cfg   ProcConfig
	emit  EmitFunc
	asker Asker
	dec   *decoder

	sessionID string

	mu       sync.Mutex
	current  *turn
	queue    []string
	disposed bool
}

// turn is one in-flight prompt response. Kept by identity so a finished turn
// never clears state belonging to the turn that interrupted it.
type turn struct {
	cancel  context.CancelFunc
	stdinMu sync.Mutex
	stdin   io.WriteCloser
}

func newProc(cfg ProcConfig, opts Options) (*Proc, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("agent command not configured")
	}
	if opts.Emit == nil {
		return nil, fmt.Errorf("emit callback is required")
	}

	p := &Proc{
		cfg:       cfg,
		emit:      opts.Emit,
		asker:     opts.Asker,
		sessionID: uuid.New().String(),
	}
	var resumed []model.Message
	if opts.Resume != nil {
		p.sessionID = opts.Resume.SessionID
		resumed = opts.Resume.Messages
	}
	p.dec = newDecoder(resumed)
	return p, nil
}

// Submit starts a new response turn. With a response already in flight,
// SubmitQueue holds the prompt until the turn ends and SubmitInterrupt
// aborts the turn and redirects to the new prompt.
func (p *Proc) Submit(ctx context.Context, text string, behavior SubmitBehavior) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return model.ErrRuntimeDisposed
	}
	if p.current != nil {
		if behavior == SubmitQueue {
			p.queue = append(p.queue, text)
			return nil
		}
		p.current.cancel()
	}
	p.startTurnLocked(text)
	return nil
}

func (p *Proc) startTurnLocked(text string) {
	p.dec.AppendUser(text)

	turnCtx, cancel := context.WithCancel(context.Background())
	t := &turn{cancel: cancel}
	p.current = t
	go p.runTurn(turnCtx, t, text)
}

func (p *Proc) runTurn(ctx context.Context, t *turn, text string) {
	defer p.finishTurn(t)

	args := append(append([]string(nil), p.cfg.Args...),
		"--model", p.cfg.Model, "--session", p.sessionID)
	cmd := exec.CommandContext(ctx, p.cfg.Command, args...)
	cmd.Dir = p.cfg.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Printf("runtime %s: stdin pipe: %v", p.sessionID, err)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Printf("runtime %s: stdout pipe: %v", p.sessionID, err)
		return
	}
	if err := cmd.Start(); err != nil {
		log.Printf("runtime %s: start %s: %v", p.sessionID, p.cfg.Command, err)
		return
	}

	t.stdinMu.Lock()
	t.stdin = stdin
	t.stdinMu.Unlock()

	if err := t.writeLine(map[string]string{"type": "prompt", "text": text}); err != nil {
		log.Printf("runtime %s: write prompt: %v", p.sessionID, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, err := ParseEvent(line)
		if err != nil {
			log.Printf("runtime %s: %v", p.sessionID, err)
			continue
		}
		if ev.Type == EventUIRequest {
			go p.answerUIRequest(ctx, t, ev)
			continue
		}
		p.dec.Apply(ev)
		p.emit(ev)
	}

	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		log.Printf("runtime %s: agent process: %v", p.sessionID, err)
	}
}

// finishTurn runs when a turn's process has exited. It closes the turn out
// and drains the follow-up queue, unless a newer turn already took over.
func (p *Proc) finishTurn(t *turn) {
	p.mu.Lock()
	if p.current != t {
		p.mu.Unlock()
		return
	}
	p.current = nil

	if p.dec.Streaming() {
		// The process died without ending its turn; tell viewers.
		p.dec.EndTurn()
		ev := Event{Type: EventTurnEnd, Raw: json.RawMessage(`{"type":"turn_end","aborted":true}`)}
		p.mu.Unlock()
		p.emit(ev)
		p.mu.Lock()
	}

	if len(p.queue) > 0 && !p.disposed {
		next := p.queue[0]
		p.queue = p.queue[1:]
		p.startTurnLocked(next)
	}
	p.mu.Unlock()
}

// answerUIRequest bridges a runtime-initiated question to the viewers and
// writes the winning outcome back to the agent process.
func (p *Proc) answerUIRequest(ctx context.Context, t *turn, ev Event) {
	var req struct {
		ID      string          `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
		Default json.RawMessage `json:"default"`
	}
	if err := json.Unmarshal(ev.Raw, &req); err != nil {
		log.Printf("runtime %s: malformed ui_request: %v", p.sessionID, err)
		return
	}
	def := req.Default
	if def == nil {
		def = json.RawMessage(`null`)
	}

	outcome := def
	if p.asker != nil {
		outcome = p.asker.Ask(ctx, req.Method, req.Params, def)
	}

	reply := struct {
		Type    string          `json:"type"`
		ID      string          `json:"id"`
		Outcome json.RawMessage `json:"outcome"`
	}{Type: "ui_response", ID: req.ID, Outcome: outcome}
	if err := t.writeLine(reply); err != nil && ctx.Err() == nil {
		log.Printf("runtime %s: write ui_response: %v", p.sessionID, err)
	}
}

func (t *turn) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.stdinMu.Lock()
	defer t.stdinMu.Unlock()
	if t.stdin == nil {
		return fmt.Errorf("turn has no stdin")
	}
	_, err = t.stdin.Write(append(data, '\n'))
	return err
}

// Abort cancels the in-flight turn. Idempotent.
func (p *Proc) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.cancel()
	}
}

func (p *Proc) Streaming() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

func (p *Proc) Messages() []model.Message { return p.dec.Messages() }

func (p *Proc) ModelID() string { return p.cfg.Model }

func (p *Proc) SessionID() string { return p.sessionID }

// Dispose aborts any in-flight turn and drops queued follow-ups.
func (p *Proc) Dispose() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return nil
	}
	p.disposed = true
	p.queue = nil
	if p.current != nil {
		p.current.cancel()
		p.current = nil
	}
	return nil
}
