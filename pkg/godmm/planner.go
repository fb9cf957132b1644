// Этот файл содержит планировщик каналов: построение плана сканирования
// и последовательности SCPI-команд настройки каждого канала.
package godmm

import (
	"fmt"
	"strconv"
	"strings"
)

// ScanPlan - производный план сканирования: распределение каналов по
// режимам измерения и полный список каналов для команды ROUT:SCAN.
// Все восемь режимов всегда присутствуют в Modes, возможно с пустым списком.
type ScanPlan struct {
	Modes       map[Mode][]int
	ChannelList string
}

func newScanPlan() *ScanPlan {
	plan := &ScanPlan{Modes: make(map[Mode][]int, len(AllModes))}
	for _, m := range AllModes {
		plan.Modes[m] = []int{}
	}
	return plan
}

func (p *ScanPlan) add(m Mode, id int) {
	p.Modes[m] = append(p.Modes[m], id)
	if p.ChannelList != "" {
		p.ChannelList += ","
	}
	p.ChannelList += strconv.Itoa(id)
}

// SampleCount возвращает число каналов в полном списке сканирования.
func (p *ScanPlan) SampleCount() int {
	if p.ChannelList == "" {
		return 0
	}
	return 1 + strings.Count(p.ChannelList, ",")
}

// Address возвращает адресную строку каналов режима m, например "(@3,5,7)".
func (p *ScanPlan) Address(m Mode) string {
	ids := p.Modes[m]
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return "(@" + strings.Join(parts, ",") + ")"
}

// FullAddress возвращает адресную строку полного списка сканирования.
func (p *ScanPlan) FullAddress() string {
	return "(@" + p.ChannelList + ")"
}

// ChannelPlanner строит план сканирования по записям конфигурации и
// порождает последовательность команд настройки каждого канала.
type ChannelPlanner struct{}

// BuildScanPlan проверяет записи каналов в порядке конфигурации и
// собирает план сканирования. Некорректные записи пропускаются с
// предупреждением и никогда не прерывают всю последовательность.
// План полностью замещается при каждом вызове.
func (ChannelPlanner) BuildScanPlan(raw []RawChannel) (*ScanPlan, []ChannelSpec) {
	plan := newScanPlan()
	specs := make([]ChannelSpec, 0, len(raw))

	for _, rc := range raw {
		spec, err := parseChannel(rc)
		if err != nil {
			log.Warn("канал пропущен", "channel", rc.ID, "reason", err)
			continue
		}
		plan.add(spec.Mode, spec.ID)
		specs = append(specs, spec)
	}
	return plan, specs
}

// parseChannel проверяет одну запись канала из конфигурационного файла.
func parseChannel(rc RawChannel) (ChannelSpec, error) {
	if !rc.IsTable {
		return ChannelSpec{}, fmt.Errorf("запись канала должна быть таблицей")
	}
	if len(rc.Fields) == 0 {
		return ChannelSpec{}, fmt.Errorf("запись канала пуста")
	}
	rawMode, ok := rc.Fields["mode"].(string)
	if !ok {
		return ChannelSpec{}, fmt.Errorf("отсутствует ключ 'mode'")
	}
	mode, ok := ParseMode(rawMode)
	if !ok {
		return ChannelSpec{}, fmt.Errorf("режим %q не распознан", rawMode)
	}

	spec := ChannelSpec{ID: rc.ID, Mode: mode}

	if v, ok := rc.Fields["range"]; ok {
		switch rng := v.(type) {
		case string:
			// В файлах конфигурации авто-диапазон задается словом "autorange".
			if strings.Contains(strings.ToLower(rng), "auto") {
				spec.Autorange = true
			}
		case float64:
			spec.Range = &rng
		case int64:
			f := float64(rng)
			spec.Range = &f
		}
	}
	if v, ok := rc.Fields["resolution"].(int64); ok {
		n := int(v)
		spec.Resolution = &n
	}
	switch v := rc.Fields["nplc"].(type) {
	case float64:
		spec.NPLC = &v
	case int64:
		f := float64(v)
		spec.NPLC = &f
	}

	if mode == ModeTemp {
		tran, _ := rc.Fields["transducer"].(string)
		sensorType, _ := rc.Fields["type"].(string)
		spec.SensorType = strings.ToUpper(sensorType)
		switch {
		case strings.Contains(strings.ToUpper(tran), "TC"):
			spec.Transducer = TransducerTC
			rj, _ := rc.Fields["ref_junction"].(string)
			spec.RefJunction = strings.ToUpper(rj)
		case strings.Contains(strings.ToUpper(tran), "THER"):
			spec.Transducer = TransducerTher
		case strings.Contains(strings.ToUpper(tran), "FRTD"):
			spec.Transducer = TransducerFRTD
		default:
			return ChannelSpec{}, fmt.Errorf("датчик температуры %q не распознан", tran)
		}
	}
	return spec, nil
}

// ProgramChannel порождает последовательность SCPI-команд настройки канала.
func (ChannelPlanner) ProgramChannel(ch ChannelSpec) []string {
	addr := fmt.Sprintf("(@%d)", ch.ID)
	cmds := []string{fmt.Sprintf("FUNC '%s',%s", ch.Mode, addr)}

	switch {
	case ch.Autorange:
		cmds = append(cmds, fmt.Sprintf("%s:RANG:AUTO ON", ch.Mode))
	case ch.Range != nil:
		cmds = append(cmds, fmt.Sprintf("%s:RANG %g", ch.Mode, *ch.Range))
	}
	if ch.Resolution != nil {
		cmds = append(cmds, fmt.Sprintf("%s:DIG %d", ch.Mode, *ch.Resolution))
	}
	if ch.NPLC != nil {
		cmds = append(cmds, fmt.Sprintf("%s:NPLC %g", ch.Mode, *ch.NPLC))
	}

	if ch.Mode == ModeTemp {
		cmds = append(cmds, fmt.Sprintf("TEMP:TRAN %s,%s", ch.Transducer, addr))
		switch ch.Transducer {
		case TransducerTC:
			cmds = append(cmds,
				fmt.Sprintf("TEMP:TC:TYPE %s,%s", ch.SensorType, addr),
				fmt.Sprintf("TEMP:RJUN:RSEL %s,%s", ch.RefJunction, addr))
		case TransducerTher:
			cmds = append(cmds, fmt.Sprintf("TEMP:THER:TYPE %s,%s", ch.SensorType, addr))
		case TransducerFRTD:
			cmds = append(cmds, fmt.Sprintf("TEMP:FRTD:TYPE %s,%s", ch.SensorType, addr))
		}
	}
	return cmds
}
