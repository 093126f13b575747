package hostproto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// envelope is the wire framing for both directions: a type tag plus a raw
// JSON payload, since Command and Event are Go interfaces with no direct
// JSON encoding of their own.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// encodeEvent frames an Event for the wire.
func encodeEvent(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: fmt.Sprintf("%T", e), Payload: payload})
}

// decodeCommand parses a wire envelope back into a concrete Command.
func decodeCommand(raw []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("hostproto: decode envelope: %w", err)
	}

	var cmd Command
	switch env.Type {
	case "hostproto.InitCanvas":
		cmd = &InitCanvas{}
	case "hostproto.RemoveSource":
		cmd = &RemoveSource{}
	case "hostproto.SetActiveClips":
		cmd = &SetActiveClips{}
	case "hostproto.Seek":
		cmd = &Seek{}
	case "hostproto.Play":
		cmd = &Play{}
	case "hostproto.Pause":
		cmd = &Pause{}
	case "hostproto.SetTrim":
		cmd = &SetTrim{}
	case "hostproto.SetMasterVolume":
		cmd = &SetMasterVolume{}
	case "hostproto.GetSamplesForSprites":
		cmd = &GetSamplesForSprites{}
	case "hostproto.StartExport":
		cmd = &StartExport{}
	case "hostproto.CancelExport":
		cmd = &CancelExport{}
	default:
		return nil, fmt.Errorf("hostproto: unknown command type %q", env.Type)
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, cmd); err != nil {
			return nil, fmt.Errorf("hostproto: decode %s: %w", env.Type, err)
		}
	}
	return derefCommand(cmd), nil
}

// derefCommand unwraps the pointer receiver used only to unmarshal into,
// back to the value type isCommand() is defined on.
func derefCommand(cmd Command) Command {
	switch c := cmd.(type) {
	case *InitCanvas:
		return *c
	case *RemoveSource:
		return *c
	case *SetActiveClips:
		return *c
	case *Seek:
		return *c
	case *Play:
		return *c
	case *Pause:
		return *c
	case *SetTrim:
		return *c
	case *SetMasterVolume:
		return *c
	case *GetSamplesForSprites:
		return *c
	case *StartExport:
		return *c
	case *CancelExport:
		return *c
	default:
		return cmd
	}
}

// ServeWebSocket upgrades r into a websocket connection and pumps commands
// to server.Dispatch while forwarding every event published on bus back to
// the client, grounded on pkg/web/routes.go's Logs handler (upgrade, then
// loop reading/writing until the connection or context ends). session, if
// non-nil, gates every inbound command on SessionStore.IsAuthorized except
// an initial {"type":"auth","payload":{"token":"..."}} handshake frame
// handshake.
func ServeWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request, server *Server, bus *Bus, session *SessionStore) error {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("hostproto: upgrade: %w", err)
	}
	defer conn.Close()

	connID := r.RemoteAddr
	if session != nil {
		defer session.Revoke(connID)
	}

	feed, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case e, ok := <-feed:
				if !ok {
					return
				}
				out, err := encodeEvent(e)
				if err != nil {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			<-done
			return nil
		}

		if session != nil && !session.IsAuthorized(connID) {
			if !tryAuthenticate(session, connID, raw) {
				return fmt.Errorf("hostproto: unauthorized")
			}
			continue
		}

		cmd, err := decodeCommand(raw)
		if err != nil {
			bus.Publish(Error{Message: err.Error(), Recoverable: true})
			continue
		}
		server.Dispatch(ctx, cmd)
	}
}

type authFrame struct {
	Token string `json:"token"`
}

func tryAuthenticate(session *SessionStore, connID string, raw []byte) bool {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type != "auth" {
		return false
	}
	var frame authFrame
	if err := json.Unmarshal(env.Payload, &frame); err != nil {
		return false
	}
	return session.Authenticate(connID, frame.Token)
}
