package prologix

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/gpibgate/internal/logger"
	"github.com/marmos91/gpibgate/pkg/bridge"
	"github.com/marmos91/gpibgate/pkg/store/settings"
)

const writeTimeout = 5 * time.Second

// session is one connected client.
type session struct {
	server   *Adapter
	conn     net.Conn
	id       string
	settings settings.BusSettings
	inst     bridge.Instrument
}

func newSession(server *Adapter, conn net.Conn) *session {
	return &session{
		server: server,
		conn:   conn,
		id:     uuid.NewString()[:8],
	}
}

func (s *session) serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[%s] Panic in line server session: %v", s.id, r)
		}
		if s.inst != nil {
			s.inst.Release()
		}
		_ = s.conn.Close()
	}()

	logger.Debug("[%s] Line server client connected from %s", s.id, s.conn.RemoteAddr())

	inst := s.server.getInstrument()
	if inst == nil || !inst.Claim() {
		s.reply("Error: bus not available")
		logger.Warn("[%s] Line server client %s refused: bus not available", s.id, s.conn.RemoteAddr())
		return
	}
	s.inst = inst

	s.settings = s.loadSettings(ctx)

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 256), s.server.config.MaxLineLength)

	for {
		var deadline time.Time
		if s.server.config.IdleTimeout > 0 {
			deadline = time.Now().Add(s.server.config.IdleTimeout)
		}
		if err := s.conn.SetReadDeadline(deadline); err != nil {
			return
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Debug("[%s] Line server session ended: %v", s.id, err)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		if !s.handleLine(ctx, scanner.Text()) {
			return
		}
	}
}

// loadSettings returns the saved settings of the configured profile, or
// the defaults.
func (s *session) loadSettings(ctx context.Context) settings.BusSettings {
	saved, err := s.server.store.Get(ctx, s.server.config.Profile)
	if err != nil {
		if !errors.Is(err, settings.ErrNotFound) {
			logger.Warn("[%s] Loading settings %q: %v", s.id, s.server.config.Profile, err)
		}
		return settings.Defaults()
	}
	return saved
}

// handleLine runs one input line and reports whether the session goes on.
func (s *session) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return true
	}

	if strings.HasPrefix(line, "++") {
		return s.handleCommand(ctx, line[2:])
	}

	if err := s.write(ctx, line); err != nil {
		return s.reply("Error: %v", err)
	}
	if s.settings.AutoRead && strings.HasSuffix(strings.TrimSpace(line), "?") {
		return s.readBack(ctx)
	}
	return true
}

func (s *session) handleCommand(ctx context.Context, cmdline string) bool {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return s.reply("Unrecognized command")
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "addr":
		if len(args) == 0 {
			return s.reply("%d", s.settings.Address)
		}
		return s.setInt(args[0], func(v int) error {
			next := s.settings
			next.Address = v
			if err := next.Validate(); err != nil {
				return err
			}
			s.settings = next
			return nil
		})

	case "auto":
		if len(args) == 0 {
			return s.reply("%d", boolToInt(s.settings.AutoRead))
		}
		return s.setInt(args[0], func(v int) error {
			if v != 0 && v != 1 {
				return fmt.Errorf("auto must be 0 or 1")
			}
			s.settings.AutoRead = v == 1
			return nil
		})

	case "eos":
		if len(args) == 0 {
			return s.reply("%d", s.settings.EOS)
		}
		return s.setInt(args[0], func(v int) error {
			next := s.settings
			next.EOS = v
			if err := next.Validate(); err != nil {
				return err
			}
			s.settings = next
			return nil
		})

	case "read":
		return s.readBack(ctx)

	case "ver":
		return s.reply("%s", s.server.config.Version)

	case "savecfg":
		if err := s.server.store.Put(ctx, s.server.config.Profile, s.settings); err != nil {
			return s.reply("Error: %v", err)
		}
		logger.Info("[%s] Saved line server settings %q: %+v", s.id, s.server.config.Profile, s.settings)
		return true

	case "rst":
		s.settings = s.loadSettings(ctx)
		return true

	default:
		return s.reply("Unrecognized command")
	}
}

func (s *session) setInt(arg string, apply func(int) error) bool {
	v, err := strconv.Atoi(arg)
	if err != nil {
		return s.reply("Error: invalid number %q", arg)
	}
	if err := apply(v); err != nil {
		return s.reply("Error: %v", err)
	}
	return true
}

func (s *session) write(ctx context.Context, line string) error {
	ioCtx, cancel := context.WithTimeout(ctx, s.server.config.IOTimeout)
	defer cancel()

	data := append([]byte(line), s.settings.Terminator()...)
	return s.inst.Write(ioCtx, s.settings.Address, data)
}

// readBack reads from the current address and forwards the response.
func (s *session) readBack(ctx context.Context) bool {
	ioCtx, cancel := context.WithTimeout(ctx, s.server.config.IOTimeout)
	defer cancel()

	data, err := s.inst.Read(ioCtx, s.settings.Address, s.server.config.MaxReadSize)
	if err != nil {
		return s.reply("Error: %v", err)
	}
	return s.reply("%s", strings.TrimRight(string(data), "\r\n"))
}

// reply writes one LF-terminated line and reports whether the write worked.
func (s *session) reply(format string, args ...any) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return false
	}
	if _, err := fmt.Fprintf(s.conn, format+"\n", args...); err != nil {
		logger.Debug("[%s] Line server write failed: %v", s.id, err)
		return false
	}
	return true
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
