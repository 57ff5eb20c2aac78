// Package chat implements the question-and-answer panel that follows an
// analysis. A Panel owns its input, transcript, in-flight flag and last error,
// and talks to the analysis service through an Asker.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"termslens/internal/models"
	"termslens/internal/services"
)

// FallbackErrorMessage is shown when a failed round carries no usable message.
const FallbackErrorMessage = "Failed to get response. Please try again."

// Suggestions are offered while the transcript is empty.
var Suggestions = []string{
	"What are the cancellation policies?",
	"How is my data collected and shared?",
	"Are there any automatic renewals?",
}

var (
	ErrBusy              = errors.New("chat: a question is already in flight")
	ErrBlankQuestion     = errors.New("chat: question is blank")
	ErrUnknownSuggestion = errors.New("chat: unknown suggestion")
)

// Asker answers a question about a document.
type Asker interface {
	Chat(ctx context.Context, question, context string) (*models.ChatResponse, error)
}

// Observer receives a copy of the panel state after every change.
type Observer func(models.ChatState)

type Panel struct {
	mu        sync.Mutex
	asker     Asker
	context   string
	state     models.ChatState
	observers []Observer
}

func NewPanel(asker Asker, contextText string) *Panel {
	return &Panel{asker: asker, context: contextText}
}

// RestorePanel rebuilds a panel from a stored snapshot. A stored in-flight
// flag is dropped: no round can be outstanding in a fresh panel. The
// version carries on from the snapshot's.
func RestorePanel(asker Asker, contextText string, state models.ChatState) *Panel {
	p := NewPanel(asker, contextText)
	p.state = state.Clone()
	p.state.InFlight = false
	return p
}

func (p *Panel) Context() string {
	return p.context
}

func (p *Panel) State() models.ChatState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

// Empty reports whether the panel should show its suggestions.
func (p *Panel) Empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.state.Transcript) == 0
}

// Subscribe registers o for every later state change.
func (p *Panel) Subscribe(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

func (p *Panel) SetInput(input string) {
	p.commit(func(s *models.ChatState) { s.Input = input })
}

// ChooseSuggestion fills the input with suggestion i without submitting.
func (p *Panel) ChooseSuggestion(i int) error {
	if i < 0 || i >= len(Suggestions) {
		return fmt.Errorf("%w: %d", ErrUnknownSuggestion, i)
	}
	p.SetInput(Suggestions[i])
	return nil
}

// Submit sends the current input as a question. Blank input and submissions
// while another round is outstanding are rejected without touching state.
// A failed round restores the transcript to what it was before the call and
// returns the call's error; the same failure is visible in State().Error.
func (p *Panel) Submit(ctx context.Context) error {
	r, err := p.begin(nil)
	if err != nil {
		return err
	}
	_, err = p.finish(ctx, r)
	return err
}

// SubmitAsync validates and commits the optimistic state like Submit, then
// runs the call in the background. The returned channel receives the round's
// result once and is closed.
func (p *Panel) SubmitAsync(ctx context.Context) (<-chan error, error) {
	return p.async(ctx, nil)
}

// Ask starts a round for question directly. Taking the question and
// starting the round happen under one lock, so a concurrent caller either
// gets ErrBusy or a round with its own question. The input field is left
// alone on rejection. The returned state is the one the round committed.
func (p *Panel) Ask(ctx context.Context, question string) (models.ChatState, error) {
	r, err := p.begin(&question)
	if err != nil {
		return models.ChatState{}, err
	}
	return p.finish(ctx, r)
}

// AskAsync is Ask with the call running in the background.
func (p *Panel) AskAsync(ctx context.Context, question string) (<-chan error, error) {
	return p.async(ctx, &question)
}

func (p *Panel) async(ctx context.Context, question *string) (<-chan error, error) {
	r, err := p.begin(question)
	if err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() {
		defer close(done)
		_, err := p.finish(ctx, r)
		done <- err
	}()
	return done, nil
}

type round struct {
	question   string
	previous   []models.ChatMessage
	optimistic []models.ChatMessage
}

// begin asks question, or the current input when question is nil.
func (p *Panel) begin(question *string) (round, error) {
	p.mu.Lock()
	if p.state.InFlight {
		p.mu.Unlock()
		return round{}, ErrBusy
	}
	text := p.state.Input
	if question != nil {
		text = *question
	}
	text = strings.TrimSpace(text)
	if text == "" {
		p.mu.Unlock()
		return round{}, ErrBlankQuestion
	}

	r := round{question: text, previous: cloneTranscript(p.state.Transcript)}
	r.optimistic = append(cloneTranscript(r.previous), models.ChatMessage{Role: models.RoleUser, Content: text})

	p.state.Input = ""
	p.state.InFlight = true
	p.state.Error = ""
	p.state.Transcript = r.optimistic
	p.notifyLocked()
	return r, nil
}

func (p *Panel) finish(ctx context.Context, r round) (models.ChatState, error) {
	resp, err := p.asker.Chat(ctx, r.question, p.context)

	p.mu.Lock()
	if err != nil {
		p.state.Error = ErrorMessage(err)
		p.state.Transcript = r.previous
	} else {
		answer := ""
		if resp != nil {
			answer = resp.Answer
		}
		p.state.Transcript = append(cloneTranscript(r.optimistic), models.ChatMessage{Role: models.RoleAssistant, Content: answer})
	}
	p.state.InFlight = false
	return p.notifyLocked(), err
}

// ErrorMessage picks the text shown for a failed round: the server's detail,
// then the error's own message, then FallbackErrorMessage.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if detail := services.ErrorDetail(err); detail != "" {
		return detail
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return FallbackErrorMessage
}

func (p *Panel) commit(mutate func(*models.ChatState)) {
	p.mu.Lock()
	mutate(&p.state)
	p.notifyLocked()
}

// notifyLocked must be called with p.mu held and releases it before
// running observers. Every change bumps the state's version, so observers
// running concurrently can tell which snapshot is newer.
func (p *Panel) notifyLocked() models.ChatState {
	p.state.Version++
	snapshot := p.state.Clone()
	observers := append([]Observer(nil), p.observers...)
	p.mu.Unlock()

	for _, o := range observers {
		o(snapshot)
	}
	return snapshot
}

func cloneTranscript(t []models.ChatMessage) []models.ChatMessage {
	return append([]models.ChatMessage(nil), t...)
}
