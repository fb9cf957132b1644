// Package util содержит вспомогательные утилиты, не являющиеся частью публичного API.
package util

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// PortInterface определяет интерфейс канала связи с VISA-ресурсом.
// Это позволяет нам использовать реальный порт в production и мок-объект в тестах.
type PortInterface interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error
	SetReadTimeout(t time.Duration) error
}

// realSerialPort - это обертка над реальной реализацией последовательного порта.
type realSerialPort struct {
	port serial.Port
}

func (r *realSerialPort) Read(p []byte) (n int, err error)    { return r.port.Read(p) }
func (r *realSerialPort) Write(p []byte) (n int, err error)   { return r.port.Write(p) }
func (r *realSerialPort) Close() error                        { return r.port.Close() }
func (r *realSerialPort) SetReadTimeout(t time.Duration) error { return r.port.SetReadTimeout(t) }

// realTCPPort - обертка над TCP-сокетом VISA-ресурса (TCPIP::<host>::<port>::SOCKET).
// Тайм-аут чтения реализован через deadline, выставляемый перед каждым Read.
type realTCPPort struct {
	conn    net.Conn
	timeout time.Duration
}

func (r *realTCPPort) Read(p []byte) (n int, err error) {
	if r.timeout > 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
			return 0, err
		}
	} else {
		if err := r.conn.SetReadDeadline(time.Time{}); err != nil {
			return 0, err
		}
	}
	return r.conn.Read(p)
}

func (r *realTCPPort) Write(p []byte) (n int, err error) { return r.conn.Write(p) }
func (r *realTCPPort) Close() error                      { return r.conn.Close() }

func (r *realTCPPort) SetReadTimeout(t time.Duration) error {
	r.timeout = t
	return nil
}

// OpenResource открывает канал связи по имени VISA-ресурса.
// Поддерживаются ресурсы вида:
//
//	TCPIP::192.168.40.41::1394::SOCKET  - сырой TCP-сокет прибора
//	ASRL3::INSTR                        - последовательный порт COM3
//	ASRL/dev/ttyUSB0::INSTR             - последовательный порт по пути устройства
func OpenResource(rsrcName string) (PortInterface, error) {
	parts := strings.Split(rsrcName, "::")
	head := strings.ToUpper(parts[0])

	switch {
	case strings.HasPrefix(head, "TCPIP"):
		if len(parts) < 3 || strings.ToUpper(parts[len(parts)-1]) != "SOCKET" {
			return nil, fmt.Errorf("ресурс %q не является TCPIP SOCKET ресурсом", rsrcName)
		}
		addr := net.JoinHostPort(parts[1], parts[2])
		conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err != nil {
			return nil, errors.Wrapf(err, "ошибка подключения к ресурсу %s", rsrcName)
		}
		return &realTCPPort{conn: conn}, nil

	case strings.HasPrefix(head, "ASRL"):
		path := strings.TrimPrefix(parts[0], "ASRL")
		if !strings.Contains(path, "/") {
			// Числовой индекс ASRL соответствует COM-порту.
			path = "COM" + path
		}
		mode := &serial.Mode{BaudRate: 9600}
		port, err := serial.Open(path, mode)
		if err != nil {
			return nil, errors.Wrapf(err, "ошибка открытия порта %s", path)
		}
		return &realSerialPort{port: port}, nil

	default:
		return nil, fmt.Errorf("не поддерживаемый тип VISA-ресурса: %q", rsrcName)
	}
}
