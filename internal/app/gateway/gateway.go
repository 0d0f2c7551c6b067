// Package gateway attaches real-time connections to performance sessions
// and routes their commands.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/Setlist/internal/app"
	"github.com/dkeye/Setlist/internal/app/perform"
	"github.com/dkeye/Setlist/internal/core"
	"github.com/dkeye/Setlist/internal/domain"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dkeye/Setlist/internal/app/gateway"

// attachAttempts bounds retries when the session found in the store is
// destroyed between lookup and join.
const attachAttempts = 3

type Gateway struct {
	Registry *app.Registry
	Sessions *perform.Store
	Loader   core.SetlistLoader
	Verifier core.IdentityVerifier

	tracer trace.Tracer
}

func New(reg *app.Registry, sessions *perform.Store, loader core.SetlistLoader, verifier core.IdentityVerifier) *Gateway {
	return &Gateway{
		Registry: reg,
		Sessions: sessions,
		Loader:   loader,
		Verifier: verifier,
		tracer:   otel.Tracer(tracerName),
	}
}

type AttachRequest struct {
	SetlistID   domain.SetlistID
	Token       string
	DisplayName string
}

// Attach authenticates the caller and joins conn to the session of the
// requested setlist, creating the session when needed. The FullSnapshot is
// queued on conn before Attach returns. A connection already attached
// elsewhere is detached first.
func (g *Gateway) Attach(ctx context.Context, conn core.SignalConnection, req AttachRequest) (perform.JoinResult, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.Attach", trace.WithAttributes(
		attribute.String("setlist.id", string(req.SetlistID)),
		attribute.String("conn.id", string(conn.ID())),
	))
	defer span.End()

	res, err := g.attach(ctx, conn, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Err(err).Str("module", "gateway").Str("conn", string(conn.ID())).Str("setlist", string(req.SetlistID)).Msg("attach failed")
		return perform.JoinResult{}, err
	}
	span.SetAttributes(
		attribute.String("participant.role", string(res.Participant.Role)),
		attribute.Int64("state.version", int64(res.Snapshot.Version)),
	)
	span.SetStatus(codes.Ok, "")
	return res, nil
}

func (g *Gateway) attach(ctx context.Context, conn core.SignalConnection, req AttachRequest) (perform.JoinResult, error) {
	if req.SetlistID == "" {
		return perform.JoinResult{}, fmt.Errorf("%w: missing setlistId", domain.ErrBadPayload)
	}
	user, err := g.Verifier.Verify(ctx, req.Token)
	if err != nil {
		return perform.JoinResult{}, err
	}
	if name := strings.TrimSpace(req.DisplayName); name != "" {
		if err := user.SetDisplayName(name); err != nil {
			return perform.JoinResult{}, err
		}
	}

	if prev, ok := g.Registry.SetlistOf(conn.ID()); ok {
		g.Detach(ctx, conn.ID())
		log.Info().Str("module", "gateway").Str("conn", string(conn.ID())).Str("from", string(prev)).Str("to", string(req.SetlistID)).Msg("switching setlist")
	}

	for attempt := 0; attempt < attachAttempts; attempt++ {
		s, err := g.Sessions.GetOrCreate(ctx, req.SetlistID, g.Loader)
		if err != nil {
			return perform.JoinResult{}, err
		}
		res, err := s.Join(ctx, conn, user)
		if errors.Is(err, perform.ErrSessionClosed) {
			g.Sessions.Forget(s)
			continue
		}
		if err != nil {
			return perform.JoinResult{}, err
		}
		if !g.Registry.Attach(conn.ID(), req.SetlistID, res.Participant) {
			// The connection went away while joining.
			_ = s.Leave(ctx, conn.ID())
			return perform.JoinResult{}, fmt.Errorf("connection %s: %w", conn.ID(), domain.ErrNotFound)
		}
		return res, nil
	}
	return perform.JoinResult{}, fmt.Errorf("attach %s: %w", req.SetlistID, domain.ErrUnavailable)
}

// Detach removes the connection's participant from its session but keeps
// the connection bound.
func (g *Gateway) Detach(ctx context.Context, id domain.ConnectionID) {
	setlist, ok := g.Registry.SetlistOf(id)
	if !ok {
		return
	}
	g.Registry.Detach(id)
	s, ok := g.Sessions.Get(setlist)
	if !ok {
		return
	}
	if err := s.Leave(ctx, id); err != nil && !errors.Is(err, perform.ErrSessionClosed) {
		log.Warn().Err(err).Str("module", "gateway").Str("conn", string(id)).Str("setlist", string(setlist)).Msg("leave failed")
	}
}

// Disconnect is called once the transport is gone.
func (g *Gateway) Disconnect(ctx context.Context, id domain.ConnectionID) {
	g.Detach(ctx, id)
	g.Registry.Cancel(id)
	g.Registry.Unbind(id)
}

// Dispatch decodes a raw command and hands it to the sender's session
// without waiting for it to be applied. Errors returned here are for the
// originating connection only; rejections by the session are sent to it
// by the session itself.
func (g *Gateway) Dispatch(ctx context.Context, id domain.ConnectionID, raw []byte) error {
	cmd, err := core.DecodeCommand(raw)
	if err != nil {
		return err
	}
	return g.DispatchCommand(ctx, id, cmd)
}

func (g *Gateway) DispatchCommand(ctx context.Context, id domain.ConnectionID, cmd core.Command) error {
	_, span := g.tracer.Start(ctx, "gateway.Dispatch", trace.WithAttributes(
		attribute.String("conn.id", string(id)),
		attribute.String("command.kind", string(cmd.Kind)),
	))
	defer span.End()

	err := g.dispatch(id, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (g *Gateway) dispatch(id domain.ConnectionID, cmd core.Command) error {
	setlist, ok := g.Registry.SetlistOf(id)
	if !ok {
		return fmt.Errorf("%w: not attached to a setlist", domain.ErrNotFound)
	}
	s, ok := g.Sessions.Get(setlist)
	if !ok {
		return fmt.Errorf("session %s: %w", setlist, domain.ErrUnavailable)
	}
	switch err := s.Enqueue(id, cmd); {
	case err == nil:
		return nil
	case errors.Is(err, perform.ErrSessionBusy), errors.Is(err, perform.ErrSessionClosed):
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	default:
		return err
	}
}

// Binding reports the participant bound to a connection, if attached.
func (g *Gateway) Binding(id domain.ConnectionID) (app.Binding, bool) {
	b, ok := g.Registry.Get(id)
	if !ok || b.SetlistID == "" {
		return b, false
	}
	return b, true
}

// WhoAmI reads the connection's current participant record through its
// session, so the role is never stale.
func (g *Gateway) WhoAmI(ctx context.Context, id domain.ConnectionID) (domain.Participant, domain.SetlistID, bool) {
	b, ok := g.Binding(id)
	if !ok {
		return domain.Participant{}, "", false
	}
	s, ok := g.Sessions.Get(b.SetlistID)
	if !ok {
		return b.Participant, b.SetlistID, true
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return b.Participant, b.SetlistID, true
	}
	for _, p := range snap.Participants {
		if p.ConnectionID == id {
			return p, b.SetlistID, true
		}
	}
	return b.Participant, b.SetlistID, true
}
