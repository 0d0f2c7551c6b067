package signal

import (
	"context"
	"time"

	"github.com/dkeye/Setlist/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(c.id)).Msg("writePump ctx done")
			c.Close()
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn", string(c.id)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(c.id)).Msg("readPump closing")
		// Transport gone: detach synchronously before releasing the socket.
		ctl.Gateway.Disconnect(context.WithoutCancel(ctx), c.id)
		ctl.Limiter.Forget(c.id)
		c.Close()
		ctl.Metrics.ConnectionClosed()
	}()

	extend := func() { _ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait)) }
	extend()
	c.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(c.id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("readPump read error")
				}
				return
			}
			extend()
			ctl.handleSignal(ctx, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, c *WsSignalConn, data []byte) {
	msg, err := core.DecodeClientMessage(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("bad json")
		ctl.sendError(c, err)
		return
	}

	if msg.Type != core.TypePing && !ctl.Limiter.Allow(c.id) {
		ctl.sendError(c, errRateLimited)
		return
	}

	switch msg.Type {
	case core.TypeJoin:
		ctl.handleJoin(ctx, c, msg)
	case core.TypeLeave:
		ctl.handleLeave(ctx, c)
	case core.TypePing:
		ctl.handlePing(c)
	case core.TypeWhoAmI:
		ctl.handleWhoAmI(ctx, c)
	default:
		cmd, err := msg.Command()
		if err != nil {
			log.Warn().Str("module", "signal").Str("type", msg.Type).Msg("unknown signal")
			ctl.sendError(c, err)
			return
		}
		if err := ctl.Gateway.DispatchCommand(ctx, c.id, cmd); err != nil {
			ctl.sendError(c, err)
		}
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := core.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("sendJSON dropped")
	}
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, err error) {
	ctl.sendJSON(c, core.NewErrorMessage(err))
}
