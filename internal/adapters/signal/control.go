package signal

import (
	"context"
	"fmt"

	"github.com/dkeye/Setlist/internal/app/gateway"
	"github.com/dkeye/Setlist/internal/core"
	"github.com/dkeye/Setlist/internal/domain"
	"github.com/rs/zerolog/log"
)

var errRateLimited = fmt.Errorf("%w: slow down", domain.ErrRateLimited)

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: core.TypePong,
	}
	ctl.sendJSON(conn, resp)
}

// handleJoin attaches the connection to a setlist's session. The snapshot
// is queued by the session itself.
func (ctl *SignalWSController) handleJoin(ctx context.Context, conn *WsSignalConn, msg core.ClientMessage) {
	token := msg.Token
	if token == "" {
		token = conn.fallbackToken
	}
	res, err := ctl.Gateway.Attach(ctx, conn, gateway.AttachRequest{
		SetlistID:   msg.SetlistID,
		Token:       token,
		DisplayName: msg.DisplayName,
	})
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	log.Info().
		Str("module", "signal").
		Str("conn", string(conn.id)).
		Str("setlist", string(msg.SetlistID)).
		Str("user", string(res.Participant.UserID)).
		Str("role", string(res.Participant.Role)).
		Msg("join")
}

// handleLeave detaches from the current session; the socket stays open.
func (ctl *SignalWSController) handleLeave(ctx context.Context, conn *WsSignalConn) {
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Msg("leave")
	ctl.Gateway.Detach(ctx, conn.id)
	ctl.sendJSON(conn, map[string]any{
		"type": core.TypeLeft,
	})
}

func (ctl *SignalWSController) handleWhoAmI(ctx context.Context, conn *WsSignalConn) {
	resp := struct {
		Type         string              `json:"type"`
		ConnectionID domain.ConnectionID `json:"connectionId"`
		SetlistID    domain.SetlistID    `json:"setlistId,omitempty"`
		Participant  *domain.Participant `json:"participant,omitempty"`
	}{
		Type:         core.TypeWhoAmI,
		ConnectionID: conn.id,
	}
	if p, setlist, ok := ctl.Gateway.WhoAmI(ctx, conn.id); ok {
		resp.SetlistID = setlist
		resp.Participant = &p
	}
	ctl.sendJSON(conn, resp)
}
