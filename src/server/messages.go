package server

import (
	"encoding/json"
	"time"

	"trade-stream/src/models"
)

// -----------------------------------------------------------------------------
// Client Message Handling
//
// Inbound control protocol: {"action": "subscribe"|"unsubscribe"|"ping",
// "channel": <name>, "params": {...}}. A malformed message gets an error
// envelope back; the connection stays open either way.
// -----------------------------------------------------------------------------

func (s *Server) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MControlMessage
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.sendError(client, "invalid JSON message")
		return
	}

	switch cmd.Action {
	case models.ActionPing:
		s.Manager.Send(client, &models.MEnvelope{
			Type:      models.TypePong,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})

	case models.ActionSubscribe:
		s.handleSubscribe(client, &cmd)

	case models.ActionUnsubscribe:
		s.handleUnsubscribe(client, &cmd)

	default:
		s.sendError(client, "unknown action: "+cmd.Action)
	}
}

// -----------------------------------------------------------------------------

// normalizeParams fills config-driven defaults before key derivation, so the
// subscription key and the fetch loop always agree on the same values.
func (s *Server) normalizeParams(cmd *models.MControlMessage) {
	if cmd.Channel == models.ChannelOrderBook && cmd.Params.Limit <= 0 {
		cmd.Params.Limit = s.Config.Channels.OrderBookDepth
	}
}

// -----------------------------------------------------------------------------

func (s *Server) handleSubscribe(client *Client, cmd *models.MControlMessage) {
	if !models.IsChannel(cmd.Channel) {
		s.sendError(client, "unknown channel: "+cmd.Channel)
		return
	}

	s.normalizeParams(cmd)
	key, err := cmd.SubscriptionKey()
	if err != nil {
		s.sendError(client, err.Error())
		return
	}

	s.Registry.Subscribe(cmd.Channel, key, client.UserID, client)

	if s.Publishers != nil {
		if err := s.Publishers.EnsureLoop(cmd, key); err != nil {
			// Roll the registry entry back so no loop-less key lingers
			s.Registry.Unsubscribe(cmd.Channel, key, client.UserID, client)
			s.sendError(client, err.Error())
			return
		}
	}

	params := cmd.Params
	s.Manager.Send(client, &models.MEnvelope{
		Type:      models.TypeSubscribeSuccess,
		Channel:   cmd.Channel,
		Params:    &params,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// -----------------------------------------------------------------------------

func (s *Server) handleUnsubscribe(client *Client, cmd *models.MControlMessage) {
	if !models.IsChannel(cmd.Channel) {
		s.sendError(client, "unknown channel: "+cmd.Channel)
		return
	}

	s.normalizeParams(cmd)
	key, err := cmd.SubscriptionKey()
	if err != nil {
		s.sendError(client, err.Error())
		return
	}

	remaining := s.Registry.Unsubscribe(cmd.Channel, key, client.UserID, client)
	if remaining == 0 && s.Publishers != nil {
		s.Publishers.StopIfEmpty(cmd.Channel, key)
	}

	params := cmd.Params
	s.Manager.Send(client, &models.MEnvelope{
		Type:      models.TypeUnsubscribeSuccess,
		Channel:   cmd.Channel,
		Params:    &params,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// -----------------------------------------------------------------------------

func (s *Server) sendError(client *Client, message string) {
	s.Manager.Send(client, &models.MEnvelope{
		Type:      models.TypeError,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
