// Этот файл содержит модель конфигурации прибора: режимы измерения,
// описания каналов и реестр TOML-конфигураций коммутационных модулей.
package godmm

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/powerman/structlog"
)

var log = structlog.New()

// Mode - режим измерения канала (функция прибора в терминах SCPI).
type Mode string

const (
	ModeVoltDC Mode = "VOLT:DC"
	ModeVoltAC Mode = "VOLT:AC"
	ModeCurrDC Mode = "CURR:DC"
	ModeCurrAC Mode = "CURR:AC"
	ModeRes    Mode = "RES"
	ModeFres   Mode = "FRES"
	ModeFreq   Mode = "FREQ"
	ModeTemp   Mode = "TEMP"
)

// AllModes - восемь поддерживаемых режимов в каноническом порядке.
var AllModes = []Mode{
	ModeVoltDC, ModeVoltAC, ModeCurrDC, ModeCurrAC,
	ModeRes, ModeFres, ModeFreq, ModeTemp,
}

// ParseMode распознает режим измерения без учета регистра.
func ParseMode(s string) (Mode, bool) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllModes {
		if m == known {
			return m, true
		}
	}
	return "", false
}

// Label возвращает название физической величины, измеряемой в данном режиме.
func (m Mode) Label() string {
	switch m {
	case ModeVoltDC, ModeVoltAC:
		return "Voltage"
	case ModeCurrDC, ModeCurrAC:
		return "Current"
	case ModeRes, ModeFres:
		return "Resistance"
	case ModeFreq:
		return "Frequency"
	case ModeTemp:
		return "Temperature"
	}
	return string(m)
}

// IsAC сообщает, относится ли режим к медленным AC-измерениям.
func (m Mode) IsAC() bool { return m == ModeVoltAC || m == ModeCurrAC }

func (m Mode) isCurrent() bool { return m == ModeCurrDC || m == ModeCurrAC }

// Transducer - тип датчика температуры для режима TEMP.
type Transducer string

const (
	TransducerTC   Transducer = "TC"   // термопара
	TransducerTher Transducer = "THER" // термистор
	TransducerFRTD Transducer = "FRTD" // четырехпроводный термометр сопротивления
)

// ChannelSpec - проверенное описание одного физического канала.
type ChannelSpec struct {
	ID          int
	Mode        Mode
	Autorange   bool
	Range       *float64
	Resolution  *int
	NPLC        *float64
	Transducer  Transducer
	SensorType  string // подтип датчика (например "K" для термопары)
	RefJunction string // выбор опорного спая, только для термопар
}

// RawChannel - запись канала из конфигурационного файла до проверки.
// Некорректные записи сохраняются, чтобы планировщик мог их
// пропустить с предупреждением, не прерывая всю конфигурацию.
type RawChannel struct {
	ID     int
	Fields map[string]interface{}
	// IsTable=false, если запись канала не является таблицей TOML.
	IsTable bool
}

// InstrumentConfig описывает прибор и его коммутационный модуль.
type InstrumentConfig struct {
	ResourceName string
	Panel        string // FRONT или REAR
	ModuleID     int
	NonAmp       bool
	Channels     []RawChannel
}

// Модули без поддержки измерения тока.
var nonAmpModules = map[int]bool{
	7701: true, 7703: true, 7706: true, 7707: true, 7708: true, 7709: true,
}

// unknownModuleConfig - конфигурация-заглушка для нераспознанного
// коммутационного модуля: без каналов, с поддержкой всех режимов.
func unknownModuleConfig(rsrcName string) *InstrumentConfig {
	return &InstrumentConfig{
		ResourceName: rsrcName,
		Panel:        "FRONT",
		ModuleID:     0,
		NonAmp:       false,
	}
}

// AvailableModes возвращает режимы, доступные для выбора пользователем.
// Для модулей без токовых входов режимы CURR:DC и CURR:AC исключаются;
// для нераспознанного модуля токовые режимы также не предлагаются.
func (c *InstrumentConfig) AvailableModes() []Mode {
	modes := make([]Mode, 0, len(AllModes))
	for _, m := range AllModes {
		if (c.NonAmp || c.ModuleID == 0) && m.isCurrent() {
			continue
		}
		modes = append(modes, m)
	}
	return modes
}

type fileConfig struct {
	Instrument struct {
		RsrcName string `toml:"rsrc_name"`
		Panel    string `toml:"panel"`
	} `toml:"INSTRUMENT"`
	Module struct {
		ModuleName int `toml:"module_name"`
	} `toml:"MODULE"`
	Channels map[string]toml.Primitive `toml:"CHANNELS"`
}

// LoadConfig читает TOML-файл конфигурации одного модуля.
func LoadConfig(path string) (*InstrumentConfig, error) {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации %s: %w", path, err)
	}

	cfg := &InstrumentConfig{
		ResourceName: fc.Instrument.RsrcName,
		Panel:        strings.ToUpper(fc.Instrument.Panel),
		ModuleID:     fc.Module.ModuleName,
		NonAmp:       nonAmpModules[fc.Module.ModuleName],
	}

	// Таблицы TOML не сохраняют порядок следования, поэтому каналы
	// упорядочиваются по номеру - он совпадает с физическим порядком
	// реле модуля.
	keys := make([]string, 0, len(fc.Channels))
	for key := range fc.Channels {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})

	for _, key := range keys {
		id, err := strconv.Atoi(key)
		if err != nil {
			log.Warn("канал с нечисловым номером пропущен", "channel", key, "file", filepath.Base(path))
			continue
		}
		raw := RawChannel{ID: id}
		var fields map[string]interface{}
		if err := md.PrimitiveDecode(fc.Channels[key], &fields); err == nil {
			raw.Fields = fields
			raw.IsTable = true
		}
		cfg.Channels = append(cfg.Channels, raw)
	}
	return cfg, nil
}

// Registry - реестр конфигураций коммутационных модулей, построенный
// по файлам config_module*.toml в каталоге ресурсов.
type Registry struct {
	byModule   map[int]*InstrumentConfig
	byResource map[string]*InstrumentConfig
	resources  []string
}

// LoadRegistry находит и загружает все конфигурации модулей в каталоге dir.
func LoadRegistry(dir string) (*Registry, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "config_module*.toml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("в каталоге %s не найдено конфигураций модулей", dir)
	}
	sort.Strings(paths)

	r := &Registry{
		byModule:   make(map[int]*InstrumentConfig),
		byResource: make(map[string]*InstrumentConfig),
	}
	for _, path := range paths {
		cfg, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		r.byModule[cfg.ModuleID] = cfg
		r.byResource[cfg.ResourceName] = cfg
		r.resources = append(r.resources, cfg.ResourceName)
		log.Info("загружена конфигурация модуля",
			"module", cfg.ModuleID, "rsrc_name", cfg.ResourceName)
	}
	return r, nil
}

// ByModule возвращает конфигурацию по номеру модуля. Для нераспознанного
// модуля возвращается заглушка, чтобы частичная работа осталась возможной.
func (r *Registry) ByModule(id int, rsrcName string) *InstrumentConfig {
	if cfg, ok := r.byModule[id]; ok {
		return cfg
	}
	log.Warn("коммутационный модуль не поддерживается, загружена конфигурация-заглушка", "module", id)
	return unknownModuleConfig(rsrcName)
}

// ByResource возвращает конфигурацию по имени VISA-ресурса.
func (r *Registry) ByResource(rsrcName string) (*InstrumentConfig, bool) {
	cfg, ok := r.byResource[rsrcName]
	return cfg, ok
}

// Resources возвращает список имен ресурсов всех загруженных конфигураций.
func (r *Registry) Resources() []string { return r.resources }
