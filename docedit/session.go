package docedit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Session owns the lifecycle of one editing-engine instance. The handles
// never leave the request scope that created the session.
type Session struct {
	editor Editor
	dom    DOMHandle
	logger *slog.Logger
	once   sync.Once
}

// NewSession asks the factory for an engine instance. On factory failure the
// partial handles, if any, are torn down before returning — construction
// failure and normal teardown share one cleanup path.
func NewSession(ctx context.Context, factory EditorFactory, buf []byte, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	editor, dom, err := factory.Create(ctx, buf)
	if err != nil {
		s := &Session{editor: editor, dom: dom, logger: logger}
		s.Cleanup()
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return &Session{editor: editor, dom: dom, logger: logger}, nil
}

// Editor returns the engine handle.
func (s *Session) Editor() Editor {
	return s.editor
}

// Cleanup tears down the engine. Safe to call any number of times and over
// partially constructed sessions.
//
// The editor handle is destroyed synchronously so no further mutation is
// possible once Cleanup returns. The DOM graph is closed from a separate
// goroutine: closing it inline has been observed to retain memory, because
// its internal cycles are still reachable from the request frame at that
// moment — one scheduling hop lets them drop first.
//
// Errors from closing an already-closed handle are the expected idempotent
// state, not failures; they are logged at debug and swallowed. No cleanup
// error ever reaches the caller or blocks permit release.
func (s *Session) Cleanup() {
	s.once.Do(func() {
		if s.editor != nil {
			if err := s.editor.Destroy(); err != nil {
				s.logger.Debug("session: editor destroy", "error", err)
			}
		}
		if dom := s.dom; dom != nil {
			go func() {
				if err := dom.Close(); err != nil {
					s.logger.Debug("session: dom close", "error", err)
				}
			}()
		}
	})
}
