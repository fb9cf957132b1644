package godmm

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

// ChannelGroup - результаты одной физической величины: подписи каналов
// и измеренные значения в том же порядке.
type ChannelGroup struct {
	Name   string    `json:"name"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// DataExport - сгруппированные по режимам результаты одного чтения.
type DataExport struct {
	Name       string         `json:"name"`
	Groups     []ChannelGroup `json:"groups"`
	Timestamps []float64      `json:"timestamps"`
}

// DMM - фасад над драйвером прибора. Обращения сериализуются мьютексом,
// сессия принадлежит фасаду до вызова Close.
type DMM struct {
	driver  Driver
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	address string
}

func NewDMM(driver Driver) *DMM {
	ctx, cancel := context.WithCancel(context.Background())
	return &DMM{driver: driver, ctx: ctx, cancel: cancel}
}

// Initialize настраивает прибор по загруженной конфигурации и
// возвращает строку идентификации. Для задней панели выполняется
// последовательность конфигурации каналов и включается полный список
// сканирования; для передней - режим по умолчанию.
func (d *DMM) Initialize() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.driver.Config().Panel == "REAR" {
		if err := d.driver.Configure(); err != nil {
			return "", err
		}
		address, err := d.driver.SetMode("SCAN_SCAN_LIST")
		if err != nil {
			return "", err
		}
		d.address = address
	} else {
		if _, err := d.driver.SetMode(string(ModeVoltDC)); err != nil {
			return "", err
		}
	}
	return d.driver.Identification(), nil
}

// ChangeMode переключает режим измерения. Для задней панели селектор
// дополняется квалификатором сканирования; допускается селектор
// SCAN_LIST для полного списка.
func (d *DMM) ChangeMode(selector string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.driver.Config().Panel == "REAR" {
		address, err := d.driver.SetMode("SCAN_" + selector)
		if err != nil {
			return err
		}
		d.address = address
		return nil
	}
	_, err := d.driver.SetMode(selector)
	return err
}

// Acquire выполняет одно чтение и группирует значения по режимам с
// подписями каналов.
func (d *DMM) Acquire() (DataExport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	acq, err := d.driver.Acquire()
	if err != nil {
		return DataExport{}, err
	}

	export := DataExport{Name: "keithley", Timestamps: acq.Timestamps}

	if !d.driver.ReadingScanList() {
		group := ChannelGroup{
			Name:   d.driver.CurrentMode().Label(),
			Values: acq.Measurements,
		}
		if d.driver.Config().Panel == "FRONT" {
			group.Labels = []string{"Front input"}
		} else {
			for _, id := range parseAddress(d.address) {
				group.Labels = append(group.Labels, "Channel "+strconv.Itoa(id))
			}
		}
		export.Groups = append(export.Groups, group)
		return export, nil
	}

	// Полный список сканирования: значения приходят в порядке списка,
	// группы собираются по распределению каналов из плана.
	plan := d.driver.Plan()
	valueByChannel := make(map[int]float64, len(acq.Measurements))
	for i, id := range parseAddress(plan.FullAddress()) {
		if i >= len(acq.Measurements) {
			break
		}
		valueByChannel[id] = acq.Measurements[i]
	}
	for _, mode := range AllModes {
		ids := plan.Modes[mode]
		if len(ids) == 0 {
			continue
		}
		group := ChannelGroup{Name: mode.Label()}
		for _, id := range ids {
			group.Labels = append(group.Labels, "Channel "+strconv.Itoa(id))
			group.Values = append(group.Values, valueByChannel[id])
		}
		export.Groups = append(export.Groups, group)
	}
	return export, nil
}

// AvailableModes возвращает режимы, доступные для подключенного модуля.
func (d *DMM) AvailableModes() []Mode {
	return d.driver.Config().AvailableModes()
}

// Warnings возвращает предупреждения последней конфигурации.
func (d *DMM) Warnings() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.driver.Warnings()
}

// Stop прерывает текущее сканирование.
func (d *DMM) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.driver.Stop()
}

func (d *DMM) Close() error {
	d.cancel()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.driver.Close()
}

// parseAddress разбирает адресную строку вида "(@3,5,7)" в номера каналов.
func parseAddress(address string) []int {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(address, "(@"), ")")
	if trimmed == "" {
		return nil
	}
	var ids []int
	for _, part := range strings.Split(trimmed, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
