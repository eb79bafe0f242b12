package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/comigor/dialchat-go/internal/config"
	"github.com/comigor/dialchat-go/internal/conversation"
	"github.com/comigor/dialchat-go/internal/llm"
	"github.com/comigor/dialchat-go/internal/logger"
	"github.com/comigor/dialchat-go/internal/transcript"

	"github.com/qmuntal/stateless" // FSM library
)

// FSM States
const (
	StateAwaitingSystemPrompt = "AwaitingSystemPrompt"
	StateAwaitingInput        = "AwaitingInput"
	StateCompleting           = "Completing"
	StateExited               = "Exited" // Terminal
)

// FSM Triggers
const (
	TriggerSystemPromptSet  = "SystemPromptSet"
	TriggerUserSubmitted    = "UserSubmitted"
	TriggerReplyReceived    = "ReplyReceived"
	TriggerCompletionFailed = "CompletionFailed"
	TriggerExit             = "Exit"
)

const (
	prompt         = "> "
	exitCommand    = "exit"
	askSystem      = "Provide System prompt or press 'enter' to continue."
	askQuestion    = "Type your question or 'exit' to quit."
	goodbyeMessage = "Exiting the chat. Goodbye!"
)

// Recorder receives every message committed to the conversation.
type Recorder interface {
	Save(ctx context.Context, e transcript.Entry) error
}

// Session is one interactive console conversation.
type Session struct {
	client     llm.Client
	cfg        config.ChatConfig
	deployment string
	recorder   Recorder

	conv    *conversation.Conversation
	fsm     *stateless.StateMachine
	pending string
}

// Option customises a Session.
type Option func(*Session)

// WithRecorder records committed messages, e.g. into a transcript.Store.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// New creates a session that sends each turn through client.
func New(client llm.Client, cfg config.Config, opts ...Option) *Session {
	s := &Session{
		client:     client,
		cfg:        cfg.Chat,
		deployment: cfg.Dial.Deployment,
		conv:       conversation.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.configure()
	return s
}

// ID returns the conversation ID used to tag transcript entries.
func (s *Session) ID() string { return s.conv.ID }

// Messages returns a snapshot of the conversation history.
func (s *Session) Messages() []conversation.Message { return s.conv.Messages() }

// State returns the current FSM state.
func (s *Session) State() string { return s.fsm.MustState().(string) }

// State: AwaitingSystemPrompt -> AwaitingInput <-> Completing; every live state may exit.
func (s *Session) configure() {
	s.fsm = stateless.NewStateMachine(StateAwaitingSystemPrompt)

	s.fsm.Configure(StateAwaitingSystemPrompt).
		Permit(TriggerSystemPromptSet, StateAwaitingInput).
		Permit(TriggerExit, StateExited)

	s.fsm.Configure(StateAwaitingInput).
		OnEntry(func(ctx context.Context, args ...any) error {
			logger.L.Debug("FSM: Entering StateAwaitingInput", "messages", s.conv.Len())
			return nil
		}).
		Permit(TriggerUserSubmitted, StateCompleting).
		Permit(TriggerExit, StateExited)

	s.fsm.Configure(StateCompleting).
		OnEntryFrom(TriggerUserSubmitted, func(ctx context.Context, args ...any) error {
			if len(args) != 1 {
				return errors.New("user submission without text")
			}
			text, ok := args[0].(string)
			if !ok {
				return fmt.Errorf("user submission of type %T", args[0])
			}
			s.pending = text
			logger.L.Debug("FSM: Entering StateCompleting", "stream", s.cfg.Stream, "bytes", len(text))
			return nil
		}).
		OnExit(func(ctx context.Context, args ...any) error {
			s.pending = ""
			return nil
		}).
		Permit(TriggerReplyReceived, StateAwaitingInput).
		Permit(TriggerCompletionFailed, StateAwaitingInput).
		Permit(TriggerExit, StateExited)

	s.fsm.Configure(StateExited).
		OnEntry(func(ctx context.Context, args ...any) error {
			logger.L.Debug("FSM: Entering StateExited", "session", s.conv.ID, "messages", s.conv.Len())
			return nil
		})
}

// Run drives the console loop until the user types "exit", input ends, or ctx is cancelled.
// Only context cancellation and internal faults are returned as errors; failed turns are printed.
func (s *Session) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	// the reader goroutine stops once Run returns
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := readLines(ctx, in)

	fmt.Fprintln(out, askSystem)
	fmt.Fprint(out, prompt)
	line, ok, err := next(ctx, lines)
	if err != nil {
		return s.abort(ctx, err)
	}
	if !ok {
		return s.exit(ctx, out, true)
	}
	if err := s.setSystemPrompt(ctx, line); err != nil {
		return err
	}

	fmt.Fprintln(out, askQuestion)
	for {
		switch s.State() {
		case StateAwaitingInput:
			fmt.Fprint(out, prompt)
			line, ok, err := next(ctx, lines)
			if err != nil {
				return s.abort(ctx, err)
			}
			if !ok {
				return s.exit(ctx, out, true)
			}
			text := strings.TrimSpace(line)
			if text == exitCommand {
				return s.exit(ctx, out, false)
			}
			if text == "" {
				continue
			}
			if err := s.fsm.FireCtx(ctx, TriggerUserSubmitted, line); err != nil {
				return err
			}

		case StateCompleting:
			if err := s.exchange(ctx, s.pending); err != nil {
				if ctx.Err() != nil {
					return s.abort(ctx, ctx.Err())
				}
				logger.L.Warn("completion failed", "error", err)
				fmt.Fprintf(out, "Error: %v\n", err)
				if err := s.fsm.FireCtx(ctx, TriggerCompletionFailed); err != nil {
					return err
				}
				continue
			}
			if err := s.fsm.FireCtx(ctx, TriggerReplyReceived); err != nil {
				return err
			}

		default:
			return fmt.Errorf("session in unexpected state %v", s.State())
		}
	}
}

// abort moves the session to Exited when ctx was cancelled and returns err.
func (s *Session) abort(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		_ = s.fsm.FireCtx(context.WithoutCancel(ctx), TriggerExit)
	}
	return err
}

func (s *Session) setSystemPrompt(ctx context.Context, line string) error {
	content := line
	if content == "" {
		content = s.cfg.SystemPrompt
	}
	msg := conversation.System(content)
	if err := s.conv.Add(msg); err != nil {
		return err
	}
	s.record(ctx, msg)
	return s.fsm.FireCtx(ctx, TriggerSystemPromptSet)
}

// exchange sends the history plus the user's text and commits both messages only on success.
func (s *Session) exchange(ctx context.Context, text string) error {
	user := conversation.User(text)
	messages, err := s.conv.Preview(user)
	if err != nil {
		return err
	}

	var reply conversation.Message
	if s.cfg.Stream {
		reply, err = s.client.Stream(ctx, messages)
	} else {
		reply, err = s.client.Complete(ctx, messages)
	}
	if err != nil {
		return err
	}

	if err := s.conv.Add(user); err != nil {
		return err
	}
	if err := s.conv.Add(reply); err != nil {
		return err
	}
	s.record(ctx, user, reply)
	return nil
}

func (s *Session) record(ctx context.Context, msgs ...conversation.Message) {
	if s.recorder == nil {
		return
	}
	for _, m := range msgs {
		err := s.recorder.Save(ctx, transcript.Entry{
			SessionID:  s.conv.ID,
			Deployment: s.deployment,
			Role:       string(m.Role),
			Content:    m.Content,
		})
		if err != nil {
			logger.L.Warn("failed to record message", "session", s.conv.ID, "role", m.Role, "error", err)
		}
	}
}

func (s *Session) exit(ctx context.Context, out io.Writer, eof bool) error {
	if eof {
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out, goodbyeMessage)
	return s.fsm.FireCtx(ctx, TriggerExit)
}

type lineResult struct {
	text string
	err  error
}

// readLines reads in on its own goroutine so a blocked read never outlives ctx.
func readLines(ctx context.Context, in io.Reader) <-chan lineResult {
	ch := make(chan lineResult)
	go func() {
		defer close(ch)
		r := bufio.NewReader(in)
		for {
			line, err := r.ReadString('\n')
			line = strings.TrimRight(line, "\r\n")
			if err != nil {
				if line != "" {
					select {
					case ch <- lineResult{text: line}:
					case <-ctx.Done():
						return
					}
				}
				if err != io.EOF {
					select {
					case ch <- lineResult{err: err}:
					case <-ctx.Done():
					}
				}
				return
			}
			select {
			case ch <- lineResult{text: line}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// next returns the next line, false at end of input, or ctx's error.
func next(ctx context.Context, lines <-chan lineResult) (string, bool, error) {
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case res, ok := <-lines:
		if !ok {
			return "", false, nil
		}
		if res.err != nil {
			return "", false, fmt.Errorf("read input: %w", res.err)
		}
		return res.text, true, nil
	}
}
