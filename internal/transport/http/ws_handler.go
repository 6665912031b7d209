package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"slices"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredm/internal/auth"
	"github.com/vovakirdan/wiredm/internal/config"
	"github.com/vovakirdan/wiredm/internal/core"
	"github.com/vovakirdan/wiredm/internal/metrics"
	"github.com/vovakirdan/wiredm/internal/proto"
	"github.com/vovakirdan/wiredm/internal/utils"
)

// StatusSessionReplaced closes a socket whose user connected elsewhere.
const StatusSessionReplaced websocket.StatusCode = 4000

var errSessionEnded = errors.New("session ended")

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub      Gateway
	verifier auth.Verifier
	cfg      *config.Config
	limiter  *limiterPool
	metrics  *metrics.Gateway
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub Gateway, verifier auth.Verifier, cfg *config.Config, limiter *limiterPool, m *metrics.Gateway, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, verifier: verifier, cfg: cfg, limiter: limiter, metrics: m, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	// A credential presented at upgrade is checked before accepting the socket.
	token, presented := credentialFromRequest(r)
	var identity auth.Identity
	if presented {
		var err error
		identity, err = h.verifier.Verify(token)
		if err != nil {
			h.log.Debug().Err(err).Msg("ws upgrade rejected")
			stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.cfg.AllowedOrigins,
		InsecureSkipVerify: slices.Contains(h.cfg.AllowedOrigins, "*"),
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	if !presented {
		var protoErr *proto.Error
		identity, protoErr, err = h.authenticate(ctx, conn)
		if err != nil {
			h.log.Debug().Err(err).Msg("ws authentication failed")
			conn.Close(websocket.StatusPolicyViolation, "authentication required")
			return
		}
		if protoErr != nil {
			h.metrics.Error(protoErr.Code)
			_ = wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: protoErr})
			conn.Close(websocket.StatusPolicyViolation, protoErr.Msg)
			return
		}
	}

	client := core.NewClient(utils.NewID(), identity.UserID, identity.Username)
	h.hub.RegisterClient(ctx, client)
	defer h.hub.UnregisterClient(context.WithoutCancel(ctx), client)

	logger := h.log.With().Str("user_id", client.UserID).Str("session_id", client.ID).Logger()
	logger.Debug().Msg("ws session started")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, &logger)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client, &logger)
	}()

	err = <-errCh
	status, reason := closeStatus(err, client, &logger)

	// Close before cancelling: a cancelled read tears the socket down without a close frame.
	conn.Close(status, reason)
	cancel()
	<-errCh
}

func closeStatus(err error, client *core.Client, logger *zerolog.Logger) (websocket.StatusCode, string) {
	if errors.Is(err, errSessionEnded) {
		switch client.Reason() {
		case core.ReasonSessionReplaced:
			return StatusSessionReplaced, core.ReasonSessionReplaced
		case core.ReasonShutdown:
			return websocket.StatusGoingAway, core.ReasonShutdown
		}
		return websocket.StatusNormalClosure, "closing"
	}
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return websocket.StatusNormalClosure, "closing"
	}

	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		return status, "closing"
	}
	logger.Warn().Err(err).Msg("ws connection closed with error")
	return websocket.StatusInternalError, "internal error"
}

// authenticate waits for the first frame, which must be a valid auth frame.
func (h *WSHandler) authenticate(ctx context.Context, conn *websocket.Conn) (auth.Identity, *proto.Error, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.AuthTimeout)
	defer cancel()

	var inbound proto.Inbound
	if err := wsjson.Read(ctx, conn, &inbound); err != nil {
		return auth.Identity{}, nil, err
	}
	if inbound.Type != proto.InboundTypeAuth {
		return auth.Identity{}, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "authenticate first"}, nil
	}

	var data proto.AuthData
	if perr := decode(inbound.Data, &data); perr != nil {
		return auth.Identity{}, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "token is required"}, nil
	}
	if data.Protocol != 0 && data.Protocol != proto.ProtocolVersion {
		return auth.Identity{}, &proto.Error{Code: core.ErrCodeUnsupportedVersion, Msg: "unsupported protocol version"}, nil
	}

	identity, err := h.verifier.Verify(data.Token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws auth frame rejected")
		return auth.Identity{}, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "invalid token"}, nil
	}
	return identity, nil, nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, logger *zerolog.Logger) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		if typ != websocket.MessageText || json.Unmarshal(data, &inbound) != nil {
			if err := h.reject(ctx, conn, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "malformed frame"}); err != nil {
				return err
			}
			continue
		}

		if !h.limiter.Allow(client.UserID) {
			if err := h.reject(ctx, conn, &proto.Error{Code: core.ErrCodeRateLimited, Msg: "too many events"}); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			logger.Debug().Str("type", inbound.Type).Str("code", protoErr.Code).Msg("inbound rejected")
			if err := h.reject(ctx, conn, protoErr); err != nil {
				return err
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) reject(ctx context.Context, conn *websocket.Conn, perr *proto.Error) error {
	h.metrics.Error(perr.Code)
	return wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: perr})
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, logger *zerolog.Logger) error {
	write := func(event *core.Event) error {
		out, err := outboundFromEvent(client, event)
		if err != nil {
			logger.Error().Err(err).Str("event", event.Kind.String()).Msg("encode ws event")
			return nil
		}
		if err := wsjson.Write(ctx, conn, out); err != nil {
			logger.Error().Err(err).Msg("write ws event")
			return err
		}
		return nil
	}

	for {
		select {
		case event := <-client.Events:
			if err := write(event); err != nil {
				return err
			}
		case <-client.Done():
			// Flush what was queued before the session ended, e.g. session_replaced.
			for {
				select {
				case event := <-client.Events:
					if err := write(event); err != nil {
						return err
					}
				default:
					return errSessionEnded
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func credentialFromRequest(r *stdhttp.Request) (string, bool) {
	if token, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}
