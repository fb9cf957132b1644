// Package godmm предоставляет API для работы с мультиметрами-коммутаторами
// Keithley серии 27XX по протоколу SCPI поверх VISA-ресурса.
package godmm

import (
	"fmt"
	"sync"

	"github.com/momentics/godmm/internal/util"
)

// Acquisition - результат одного чтения данных прибора.
type Acquisition struct {
	Raw          string
	Measurements []float64
	Timestamps   []float64
}

// Driver определяет интерфейс, который должен реализовать драйвер прибора.
// Это центральный элемент паттерна "Мост", отделяющий абстракцию от реализации.
type Driver interface {
	Identification() string
	Configure() error
	SetMode(mode string) (string, error)
	Acquire() (Acquisition, error)
	Plan() *ScanPlan
	Config() *InstrumentConfig
	ReadingScanList() bool
	CurrentMode() Mode
	Warnings() []string
	Stop() error
	Close() error
}

// driverFactory опознает прибор по ответу на *IDN? и создает драйвер.
// Неподдерживаемая модель не является фатальной: драйвер продолжает
// работу в режиме "как есть" с предупреждением в журнале.
func driverFactory(sess *Session, reg *Registry, rsrcName string) (Driver, error) {
	d := NewK27Driver(sess, reg, rsrcName)
	if err := d.Init(); err != nil {
		return nil, fmt.Errorf("не удалось опознать устройство %s: %w", rsrcName, err)
	}
	return d, nil
}

// DMMPool управляет пулом приборов для многопоточного доступа.
type DMMPool struct {
	registry *Registry
	devices  map[string]*DMM
	mu       sync.RWMutex
}

func NewDMMPool(registry *Registry) *DMMPool {
	return &DMMPool{registry: registry, devices: make(map[string]*DMM)}
}

func (p *DMMPool) Get(rsrcName string) (*DMM, error) {
	p.mu.RLock()
	if dmm, exists := p.devices[rsrcName]; exists {
		p.mu.RUnlock()
		return dmm, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if dmm, exists := p.devices[rsrcName]; exists {
		return dmm, nil
	}

	port, err := util.OpenResource(rsrcName)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия ресурса %s: %w", rsrcName, err)
	}

	driver, err := driverFactory(NewSession(port), p.registry, rsrcName)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("ошибка фабрики драйверов для %s: %w", rsrcName, err)
	}

	newDMM := NewDMM(driver)
	p.devices[rsrcName] = newDMM
	return newDMM, nil
}

func (p *DMMPool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, dmm := range p.devices {
		dmm.Close()
	}
}
