package api

import (
	"context"
	"sync"
)

// Scope ties requests to the lifetime of a view. Closing it, or cancelling
// the parent context, cancels every request still in flight and drops their
// results. No callback runs after Close returns, so callbacks must not call
// Close themselves.
type Scope struct {
	client *Client
	ctx    context.Context
	cancel context.CancelFunc

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func (c *Client) NewScope(parent context.Context) *Scope {
	ctx, cancel := context.WithCancel(parent)
	return &Scope{client: c, ctx: ctx, cancel: cancel}
}

// Context is cancelled when the scope closes.
func (s *Scope) Context() context.Context { return s.ctx }

// Go issues req in the background and hands the result to done. It reports
// false when the scope is already closed and nothing was sent.
func (s *Scope) Go(req Request, done func(Result)) bool {
	return s.spawn(func(ctx context.Context) func() {
		r := s.client.Do(ctx, req)
		return func() { done(r) }
	})
}

// Joystick reads the joystick in the background.
func (s *Scope) Joystick(done func(JoystickResult)) bool {
	return s.spawn(func(ctx context.Context) func() {
		r := s.client.Joystick(ctx)
		return func() { done(r) }
	})
}

func (s *Scope) spawn(call func(context.Context) func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		deliver := call(s.ctx)

		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed || s.ctx.Err() != nil {
			return
		}
		deliver()
	}()
	return true
}

// Close cancels outstanding requests and waits for them to finish.
func (s *Scope) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}
