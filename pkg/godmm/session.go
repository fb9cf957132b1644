// Этот файл содержит VISA-сессию: обмен SCPI-командами поверх канала связи.
package godmm

import (
	"bufio"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/momentics/godmm/internal/util"
)

const defaultTimeout = 10 * time.Second

// Session реализует протокол запрос/ответ поверх VISA-ресурса.
// Все команды и ответы терминируются переводом строки.
type Session struct {
	port    util.PortInterface
	reader  *bufio.Reader
	timeout time.Duration
}

func NewSession(port util.PortInterface) *Session {
	s := &Session{
		port:    port,
		reader:  bufio.NewReader(port),
		timeout: defaultTimeout,
	}
	s.port.SetReadTimeout(s.timeout)
	return s
}

// Write отправляет команду без чтения ответа.
func (s *Session) Write(cmd string) error {
	if _, err := s.port.Write([]byte(cmd + "\n")); err != nil {
		return errors.Wrapf(err, "ошибка отправки команды %q", cmd)
	}
	return nil
}

// Query отправляет запрос и читает одну строку ответа.
func (s *Session) Query(cmd string) (string, error) {
	if err := s.Write(cmd); err != nil {
		return "", err
	}
	response, err := s.reader.ReadString('\n')
	if err != nil {
		return "", errors.Wrapf(err, "не получен ответ на запрос %q", cmd)
	}
	return strings.TrimRight(response, "\r\n"), nil
}

// SystemError запрашивает регистр ошибок прибора.
func (s *Session) SystemError() (string, error) {
	return s.Query("SYST:ERR?")
}

// ExtendTimeout увеличивает тайм-аут чтения на величину d.
// Используется для медленных режимов измерения (AC).
func (s *Session) ExtendTimeout(d time.Duration) {
	s.timeout += d
	s.port.SetReadTimeout(s.timeout)
}

func (s *Session) Close() error {
	return s.port.Close()
}
