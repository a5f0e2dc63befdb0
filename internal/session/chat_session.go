// Package session implements the per-connection chat session: the state
// machine that consumes client commands, talks to the room manager, and
// merges all joined rooms into the connection's outbound event stream.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Yengas/go-chat-server/internal/protocol"
	"github.com/Yengas/go-chat-server/internal/room_manager"
)

// ChatSession drives one client connection from login to close. It owns the
// handle table (room name to membership handle) and the merger; every held
// handle is returned to the room manager before the session ends, no matter
// how the session ends.
type ChatSession struct {
	id      string
	manager *room_manager.RoomManager
	reader  protocol.CommandReader
	writer  protocol.EventWriter
	closer  io.Closer
	log     *zap.Logger

	// Mutated only from Run's goroutine.
	username string
	handles  map[string]*room_manager.UserSessionHandle
	merger   *SessionMerger
}

// NewChatSession wires a session for one accepted connection. Run does the
// rest.
func NewChatSession(manager *room_manager.RoomManager, reader protocol.CommandReader, writer protocol.EventWriter, closer io.Closer) *ChatSession {
	id := uuid.NewString()
	log := zap.L().With(zap.String("session_id", id))

	return &ChatSession{
		id:      id,
		manager: manager,
		reader:  reader,
		writer:  writer,
		closer:  closer,
		log:     log,
		handles: make(map[string]*room_manager.UserSessionHandle),
		merger:  NewSessionMerger(log),
	}
}

// Run executes the session until the client quits, the transport fails, or
// ctx is cancelled. It always cleans up: every joined room is left exactly
// once, every subscription is released, and the connection is closed.
func (s *ChatSession) Run(ctx context.Context) error {
	defer s.close()

	cmds := make(chan protocol.Command)
	readErrs := make(chan error, 1)
	go s.pumpCommands(ctx, cmds, readErrs)

	if err := s.login(ctx, cmds, readErrs); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErrs:
			if errors.Is(err, io.EOF) {
				s.log.Debug("session.client_disconnected")
				return nil
			}
			s.log.Debug("session.transport_read_failed", zap.Error(err))
			return nil

		case cmd := <-cmds:
			if _, quit := cmd.(protocol.QuitCommand); quit {
				return nil
			}
			if err := s.handleCommand(cmd); err != nil {
				s.log.Debug("session.transport_write_failed", zap.Error(err))
				return nil
			}

		case ev := <-s.merger.Events():
			if err := s.writer.WriteEvent(ev); err != nil {
				s.log.Debug("session.transport_write_failed", zap.Error(err))
				return nil
			}
		}
	}
}

// pumpCommands reads the inbound stream and feeds Run's select loop. A read
// error (including EOF) ends the pump.
func (s *ChatSession) pumpCommands(ctx context.Context, cmds chan<- protocol.Command, readErrs chan<- error) {
	for {
		cmd, err := s.reader.ReadCommand()
		if err != nil {
			readErrs <- err
			return
		}
		select {
		case cmds <- cmd:
		case <-ctx.Done():
			return
		}
	}
}

// login performs the initial handshake: the first command must claim a
// non-empty username. The reply is LoginSuccessful followed by the room
// participation snapshot.
func (s *ChatSession) login(ctx context.Context, cmds <-chan protocol.Command, readErrs <-chan error) error {
	var cmd protocol.Command
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-readErrs:
		return fmt.Errorf("connection ended before login: %w", err)
	case cmd = <-cmds:
	}

	login, ok := cmd.(protocol.LoginCommand)
	if !ok {
		return fmt.Errorf("expected login command, got %T", cmd)
	}
	if login.Username == "" {
		return errors.New("login with empty username")
	}
	s.username = login.Username
	s.log = s.log.With(zap.String("username", s.username))

	if err := s.writer.WriteEvent(protocol.LoginSuccessfulEvent{
		SessionID: s.id,
		Username:  s.username,
	}); err != nil {
		return err
	}
	if err := s.writer.WriteEvent(protocol.RoomParticipationEvent{
		Rooms: s.manager.ListRooms(),
	}); err != nil {
		return err
	}

	s.log.Info("session.logged_in")
	return nil
}

// handleCommand applies one client command. Per-command failures are
// reported to the client and never end the session; only a transport write
// error is returned.
func (s *ChatSession) handleCommand(cmd protocol.Command) error {
	switch c := cmd.(type) {
	case protocol.JoinRoomCommand:
		return s.handleJoin(c)
	case protocol.LeaveRoomCommand:
		s.handleLeave(c)
		return nil
	case protocol.SendMessageCommand:
		return s.handleSendMessage(c)
	case protocol.LoginCommand:
		// Already logged in; repeated logins are ignored.
		return nil
	default:
		s.log.Warn("session.unhandled_command", zap.String("type", fmt.Sprintf("%T", cmd)))
		return nil
	}
}

func (s *ChatSession) handleJoin(cmd protocol.JoinRoomCommand) error {
	if _, joined := s.handles[cmd.Room]; joined {
		return nil
	}

	res, err := s.manager.JoinRoom(cmd.Room, s.id, s.username)
	switch {
	case errors.Is(err, room_manager.ErrUnknownRoom):
		return s.writer.WriteEvent(protocol.ErrorEvent{
			Kind:    protocol.ErrorKindUnknownRoom,
			Message: fmt.Sprintf("room %q does not exist", cmd.Room),
		})
	case errors.Is(err, room_manager.ErrUserNameTaken):
		return s.writer.WriteEvent(protocol.ErrorEvent{
			Kind:    protocol.ErrorKindUserNameTaken,
			Message: fmt.Sprintf("username %q is taken in room %q", s.username, cmd.Room),
		})
	case err != nil:
		s.log.Error("session.join_failed", zap.String("room", cmd.Room), zap.Error(err))
		return nil
	}

	s.handles[cmd.Room] = res.Handle
	s.merger.Add(cmd.Room, res.Subscription, protocol.RoomJoinedEvent{
		Room:  cmd.Room,
		Users: res.Roster,
	})
	return nil
}

func (s *ChatSession) handleLeave(cmd protocol.LeaveRoomCommand) {
	handle, joined := s.handles[cmd.Room]
	if !joined {
		return
	}
	delete(s.handles, cmd.Room)

	// Delivery must stop before UserLeft is published, so this session
	// never receives its own post-leave events.
	s.merger.Remove(cmd.Room)
	if err := s.manager.LeaveRoom(handle); err != nil {
		s.log.Error("session.leave_failed", zap.String("room", cmd.Room), zap.Error(err))
	}
}

func (s *ChatSession) handleSendMessage(cmd protocol.SendMessageCommand) error {
	handle, joined := s.handles[cmd.Room]
	if !joined {
		return s.writer.WriteEvent(protocol.ErrorEvent{
			Kind:    protocol.ErrorKindNotInRoom,
			Message: fmt.Sprintf("not in room %q", cmd.Room),
		})
	}

	if err := handle.SendMessage(cmd.Content); err != nil {
		s.log.Error("session.send_failed", zap.String("room", cmd.Room), zap.Error(err))
	}
	return nil
}

// close leaves every joined room, releases every subscription, drains the
// merger, and closes the connection.
func (s *ChatSession) close() {
	for room, handle := range s.handles {
		delete(s.handles, room)
		s.merger.Remove(room)
		if err := s.manager.LeaveRoom(handle); err != nil {
			s.log.Error("session.cleanup_leave_failed", zap.String("room", room), zap.Error(err))
		}
	}

	s.merger.Close()
	s.merger.DrainInto(s.writer.WriteEvent)

	if err := s.closer.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		s.log.Debug("session.close_failed", zap.Error(err))
	}
	s.log.Info("session.closed")
}
