package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/protocol"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/claims"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/roster"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/village"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/war"
)

type Server struct {
	wars   *war.Store
	roster *roster.Roster
	claims *claims.Service
	grace  time.Duration
	log    *log.Logger

	upgrader  websocket.Upgrader
	validator *protocol.Validator

	mu      sync.Mutex
	clients map[uuid.UUID]chan []byte
}

func NewServer(wars *war.Store, ros *roster.Roster, clm *claims.Service, grace time.Duration, logger *log.Logger) *Server {
	return &Server{
		wars:   wars,
		roster: ros,
		claims: clm,
		grace:  grace,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		validator: protocol.MustValidator(),
		clients:   map[uuid.UUID]chan []byte{},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		playerID, out := s.handshake(conn)
		if playerID == uuid.Nil {
			return
		}
		defer s.dropClient(playerID)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type != protocol.TypeCmd {
				continue
			}
			var cmd protocol.CmdMsg
			if err := json.Unmarshal(msg, &cmd); err != nil {
				continue
			}
			if err := s.validator.ValidateCmd(msg); err != nil {
				s.send(playerID, protocol.AckMsg{
					Type:            protocol.TypeAck,
					ProtocolVersion: protocol.Version,
					AckFor:          cmd.ID,
					OK:              false,
					Code:            protocol.ErrProtoBadRequest,
					Reason:          err.Error(),
				})
				continue
			}
			if cmd.ProtocolVersion != protocol.Version {
				continue
			}
			s.send(playerID, s.dispatch(playerID, cmd))
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (uuid.UUID, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return uuid.Nil, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return uuid.Nil, nil
	}
	if err := s.validator.ValidateHello(msg); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid HELLO"), time.Now().Add(time.Second))
		return uuid.Nil, nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return uuid.Nil, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return uuid.Nil, nil
	}
	playerID, err := uuid.Parse(hello.PlayerID)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad player_id"), time.Now().Add(time.Second))
		return uuid.Nil, nil
	}
	if hello.PlayerName == "" {
		hello.PlayerName = "shinobi"
	}

	p, ok := s.roster.Get(playerID)
	if !ok {
		p = *s.roster.Register(playerID, hello.PlayerName, s.assignVillage())
	} else {
		s.roster.Register(playerID, hello.PlayerName, p.Village)
		p, _ = s.roster.Get(playerID)
	}
	s.roster.Login(playerID)
	if s.claims != nil {
		s.claims.LoadSession(playerID, p.Rank())
	}
	pendingInvites := s.wars.HandleLogin(playerID)

	out := make(chan []byte, 16)
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		PlayerID:        playerID.String(),
		PlayerName:      p.Name,
		Village:         string(p.Village),
		Rank:            p.Rank().DisplayName(p.Village),
		Points:          p.Points,
		GracePeriodMs:   s.grace.Milliseconds(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		s.roster.Logout(playerID)
		return uuid.Nil, nil
	}

	s.mu.Lock()
	s.clients[playerID] = out
	s.mu.Unlock()
	if s.log != nil {
		s.log.Printf("ws: %s connected (%s, %s)", p.Name, p.Village, playerID)
	}

	if pendingInvites > 0 {
		s.send(playerID, protocol.EventMsg{
			Type:            protocol.TypeEvent,
			ProtocolVersion: protocol.Version,
			Event:           protocol.EventAllyInvited,
			Target:          playerID.String(),
			Detail:          strconv.Itoa(pendingInvites) + " pending war invites",
		})
	}
	return playerID, out
}

func (s *Server) dropClient(playerID uuid.UUID) {
	s.mu.Lock()
	delete(s.clients, playerID)
	s.mu.Unlock()
	s.roster.Logout(playerID)
	if s.claims != nil {
		s.claims.UnloadSession(playerID)
	}
}

func (s *Server) dispatch(playerID uuid.UUID, cmd protocol.CmdMsg) protocol.AckMsg {
	ack := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          cmd.ID,
	}
	fail := func(code, reason string) protocol.AckMsg {
		ack.OK = false
		ack.Code = code
		ack.Reason = reason
		return ack
	}

	switch cmd.Cmd {
	case protocol.CmdDeclareWar:
		target, err := uuid.Parse(cmd.Target)
		if err != nil {
			return fail(protocol.ErrBadRequest, "target is not a uuid")
		}
		if err := s.wars.Declare(playerID, target); err != nil {
			return fail(war.Code(err), err.Error())
		}
		ack.OK = true
		s.broadcast(protocol.EventMsg{
			Type:            protocol.TypeEvent,
			ProtocolVersion: protocol.Version,
			Event:           protocol.EventWarDeclared,
			Initiator:       playerID.String(),
			Target:          target.String(),
		})
		return ack

	case protocol.CmdEndWar:
		target, err := uuid.Parse(cmd.Target)
		if err != nil {
			return fail(protocol.ErrBadRequest, "target is not a uuid")
		}
		if err := s.wars.End(playerID, target); err != nil {
			return fail(war.Code(err), err.Error())
		}
		ack.OK = true
		s.broadcast(protocol.EventMsg{
			Type:            protocol.TypeEvent,
			ProtocolVersion: protocol.Version,
			Event:           protocol.EventPeaceRestored,
			Initiator:       playerID.String(),
			Target:          target.String(),
		})
		return ack

	case protocol.CmdWarStatus:
		scope := playerID
		if cmd.Target == "all" {
			scope = uuid.Nil
		} else if cmd.Target != "" {
			p, err := uuid.Parse(cmd.Target)
			if err != nil {
				return fail(protocol.ErrBadRequest, "target is not a uuid")
			}
			scope = p
		}
		ack.OK = true
		ack.Data = statusWire(s.wars.StatusOf(scope))
		return ack

	case protocol.CmdRequestBypass:
		target, err := uuid.Parse(cmd.Target)
		if err != nil {
			return fail(protocol.ErrBadRequest, "target is not a uuid")
		}
		st := s.wars.RequestBypass(playerID, target)
		switch st {
		case war.BypassNoSuchWar:
			return fail(protocol.ErrNoSuchWar, "no war with that player")
		case war.BypassGrantFailed:
			return fail(protocol.ErrGrantFailed, "both agreed but a Kage is unreachable, retry later")
		}
		ack.OK = true
		ack.Data = map[string]string{"status": st.String()}
		if st == war.BypassActivated {
			s.broadcast(protocol.EventMsg{
				Type:            protocol.TypeEvent,
				ProtocolVersion: protocol.Version,
				Event:           protocol.EventBypassActive,
				Initiator:       playerID.String(),
				Target:          target.String(),
			})
		}
		return ack

	case protocol.CmdInviteAlly:
		candidate, err := uuid.Parse(cmd.Target)
		if err != nil {
			return fail(protocol.ErrBadRequest, "target is not a uuid")
		}
		if !s.roster.Resolve(candidate) {
			return fail(protocol.ErrUnknownPlayer, "no such player")
		}
		n := s.wars.InviteAlly(playerID, candidate)
		ack.OK = true
		ack.Data = map[string]int{"invited_wars": n}
		if n > 0 {
			s.send(candidate, protocol.EventMsg{
				Type:            protocol.TypeEvent,
				ProtocolVersion: protocol.Version,
				Event:           protocol.EventAllyInvited,
				Initiator:       playerID.String(),
				Target:          candidate.String(),
			})
		}
		return ack

	case protocol.CmdOptIn:
		n := s.wars.OptIn(playerID)
		ack.OK = true
		ack.Data = map[string]int{"joined_wars": n}
		return ack
	}

	return fail(protocol.ErrProtoBadRequest, "unknown cmd "+cmd.Cmd)
}

// send queues a message for one connected player. Offline players and full
// queues drop silently; war state does not depend on delivery.
func (s *Server) send(playerID uuid.UUID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.mu.Lock()
	out, ok := s.clients[playerID]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func (s *Server) broadcast(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, out := range s.clients {
		select {
		case out <- b:
		default:
		}
	}
}

// assignVillage puts a brand-new player in the least populated village.
func (s *Server) assignVillage() village.ID {
	counts := map[village.ID]int{}
	for _, p := range s.roster.Players() {
		counts[p.Village]++
	}
	best := village.Leaf
	for _, v := range village.All() {
		if counts[v] < counts[best] {
			best = v
		}
	}
	return best
}

func statusWire(in []war.Status) []protocol.WarStatus {
	out := make([]protocol.WarStatus, 0, len(in))
	for _, st := range in {
		out = append(out, protocol.WarStatus{
			Initiator:        st.Initiator.String(),
			Target:           st.Target.String(),
			DeclaredAtMs:     st.DeclaredAt.UnixMilli(),
			GraceRemainingMs: st.GraceRemaining.Milliseconds(),
			BypassActive:     st.BypassActive,
			InitiatorAllies:  uuidStrings(st.InitiatorAllies),
			TargetAllies:     uuidStrings(st.TargetAllies),
			PendingInvites:   uuidStrings(st.PendingInvitees),
		})
	}
	return out
}

func uuidStrings(in []uuid.UUID) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, id := range in {
		out[i] = id.String()
	}
	return out
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
