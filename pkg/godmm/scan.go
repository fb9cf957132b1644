// Этот файл содержит контроллер сканирования: автомат состояний,
// выбирающий источник триггера, число выборок и режим непрерывной
// инициации в зависимости от запрошенного режима измерения.
package godmm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMode возвращается при запросе нераспознанного режима измерения.
// Безопасного действия по умолчанию нет, поэтому ошибка жесткая.
var ErrUnknownMode = errors.New("запрошенный режим измерения не распознан")

// AcquisitionState - состояние автомата сканирования.
type AcquisitionState int

const (
	// StateSingleFunction - одна функция измерения глобально, без
	// адресации каналов (передняя панель).
	StateSingleFunction AcquisitionState = iota
	// StateSingleModeSubset - задняя панель, активны каналы одного режима.
	StateSingleModeSubset
	// StateFullScanList - задняя панель, полный список сканирования.
	StateFullScanList
)

// ScanController управляет активным режимом прибора. Все команды, кроме
// проверки регистра ошибок при начальной конфигурации, отправляются без
// контроля ответа.
type ScanController struct {
	sess *Session
	plan *ScanPlan

	state           AcquisitionState
	singleSample    bool
	readingScanList bool
	currentMode     Mode
}

func NewScanController(sess *Session) *ScanController {
	return &ScanController{sess: sess, plan: newScanPlan()}
}

// SetPlan задает план сканирования, построенный последней конфигурацией.
func (c *ScanController) SetPlan(plan *ScanPlan) { c.plan = plan }

func (c *ScanController) State() AcquisitionState { return c.state }

// SingleSample сообщает, работает ли прибор в одновыборочной адресации
// (данные читаются одиночным FETCH? без инициации сканирования).
func (c *ScanController) SingleSample() bool { return c.singleSample }

// ReadingScanList сообщает, читается ли полный список сканирования.
func (c *ScanController) ReadingScanList() bool { return c.readingScanList }

// CurrentMode возвращает активный режим измерения; пустое значение
// означает полный список сканирования.
func (c *ScanController) CurrentMode() Mode { return c.currentMode }

// SetMode переключает прибор в запрошенный режим и возвращает адресную
// строку выбранных каналов, чтобы вызывающий мог сопоставить позиции
// результатов с номерами каналов. Режим без квалификатора "SCAN"
// применяется глобально (передняя панель) и адресной строки не имеет.
func (c *ScanController) SetMode(requested string) (string, error) {
	req := strings.ToUpper(strings.TrimSpace(requested))

	if !strings.Contains(req, "SCAN") {
		return "", c.setFrontMode(req)
	}

	// Задняя панель: буфер очищается, непрерывная инициация отключается.
	if err := c.sess.Write("TRAC:CLE"); err != nil {
		return "", err
	}
	if err := c.sess.Write("INIT:CONT OFF"); err != nil {
		return "", err
	}

	target := strings.TrimPrefix(req, "SCAN_")
	if target == "LIST" || target == "SCAN_LIST" {
		return c.setFullScanList()
	}
	return c.setModeSubset(target)
}

func (c *ScanController) setFrontMode(req string) error {
	mode, ok := ParseMode(req)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMode, req)
	}
	if err := c.sess.Write("INIT:CONT ON"); err != nil {
		return err
	}
	c.state = StateSingleFunction
	c.singleSample = true
	c.readingScanList = false
	c.currentMode = mode
	return c.sess.Write(fmt.Sprintf("FUNC '%s'", mode))
}

func (c *ScanController) setFullScanList() (string, error) {
	channels := c.plan.FullAddress()
	cmds := []string{
		"TRIG:COUN 1",
		"TRIG:SOUR BUS",
		fmt.Sprintf("SAMP:COUN %d", c.plan.SampleCount()),
		"ROUT:SCAN:LSEL NONE",
		"ROUT:SCAN " + channels,
		"ROUT:SCAN:TSO IMM",
		"ROUT:SCAN:LSEL INT",
	}
	for _, cmd := range cmds {
		if err := c.sess.Write(cmd); err != nil {
			return "", err
		}
	}
	c.state = StateFullScanList
	c.singleSample = false
	c.readingScanList = true
	c.currentMode = ""
	return channels, nil
}

func (c *ScanController) setModeSubset(target string) (string, error) {
	mode, ok := ParseMode(target)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, target)
	}
	ids := c.plan.Modes[mode]
	if len(ids) == 0 {
		return "", fmt.Errorf("в режиме %s нет настроенных каналов", mode)
	}

	channels := c.plan.Address(mode)
	if err := c.sess.Write("TRIG:COUN 1"); err != nil {
		return "", err
	}
	if err := c.sess.Write(fmt.Sprintf("SAMP:COUN %d", len(ids))); err != nil {
		return "", err
	}

	var cmds []string
	if len(ids) == 1 {
		// Единственный канал режима: замыкается одно реле, триггер
		// немедленный, чтение одиночное - как передняя панель, но с
		// адресацией канала.
		cmds = []string{
			"INIT:CONT ON",
			"TRIG:SOUR IMM",
			"ROUT:SCAN:LSEL NONE",
			"ROUT:CLOS " + channels,
			fmt.Sprintf("FUNC '%s'", mode),
		}
		c.singleSample = true
	} else {
		cmds = []string{
			"TRIG:SOUR BUS",
			"ROUT:SCAN:LSEL NONE",
			"ROUT:SCAN " + channels,
			"ROUT:SCAN:TSO IMM",
			"ROUT:SCAN:LSEL INT",
		}
		c.singleSample = false
	}
	for _, cmd := range cmds {
		if err := c.sess.Write(cmd); err != nil {
			return "", err
		}
	}
	c.state = StateSingleModeSubset
	c.readingScanList = false
	c.currentMode = mode
	return channels, nil
}
