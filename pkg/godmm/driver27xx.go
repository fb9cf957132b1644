// Этот файл содержит реализацию драйвера для семейства Keithley 27XX
// (мультиметр с коммутатором, текстовый протокол SCPI).
package godmm

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Регистр ошибок прибора при отсутствии ошибок.
const noError = `0,"No error"`

// Дополнительный тайм-аут для медленных AC-измерений.
const acTimeoutExtension = 4000 * time.Millisecond

// K27Driver - драйвер одного прибора Keithley 27XX. Экземпляр владеет
// сессией монопольно: план сканирования, активный режим и накопленные
// предупреждения никогда не разделяются между сессиями.
type K27Driver struct {
	sess     *Session
	registry *Registry
	rsrcName string

	idn     string
	cfg     *InstrumentConfig
	planner ChannelPlanner
	ctrl    *ScanController
	plan    *ScanPlan

	warnings  []string
	closeOnce sync.Once
	closeErr  error
}

func NewK27Driver(sess *Session, registry *Registry, rsrcName string) *K27Driver {
	return &K27Driver{
		sess:     sess,
		registry: registry,
		rsrcName: rsrcName,
		cfg:      unknownModuleConfig(rsrcName),
		ctrl:     NewScanController(sess),
		plan:     newScanPlan(),
	}
}

// Init опрашивает прибор и подбирает конфигурацию коммутационного модуля.
// Неподдерживаемая модель или модуль - предупреждение, а не отказ:
// частичная работа остается возможной.
func (d *K27Driver) Init() error {
	idn, err := d.sess.Query("*IDN?")
	if err != nil {
		return err
	}
	d.idn = idn

	model := modelFromIDN(idn)
	if !strings.HasPrefix(model, "27") {
		log.Warn("модель прибора не поддерживается", "model", model, "idn", idn)
	}

	opt, err := d.sess.Query("*OPT?")
	if err != nil {
		return err
	}
	card, err := strconv.Atoi(strings.TrimSpace(strings.Split(opt, ",")[0]))
	if err != nil {
		log.Warn("ответ *OPT? не распознан", "opt", opt)
	}
	d.cfg = d.registry.ByModule(card, d.rsrcName)

	log.Info("прибор опознан", "idn", idn, "module", d.cfg.ModuleID, "non_amp", d.cfg.NonAmp)
	return nil
}

// modelFromIDN извлекает номер модели из ответа на *IDN?
// (например "KEITHLEY INSTRUMENTS INC.,MODEL 2701,1178370,A09").
func modelFromIDN(idn string) string {
	for _, field := range strings.Split(idn, ",") {
		field = strings.TrimSpace(field)
		if rest, ok := strings.CutPrefix(field, "MODEL "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

func (d *K27Driver) Identification() string { return d.idn }

func (d *K27Driver) Config() *InstrumentConfig { return d.cfg }

func (d *K27Driver) Plan() *ScanPlan { return d.plan }

func (d *K27Driver) ReadingScanList() bool { return d.ctrl.ReadingScanList() }

func (d *K27Driver) CurrentMode() Mode { return d.ctrl.CurrentMode() }

// Warnings возвращает предупреждения, накопленные при конфигурации
// (ненулевой регистр ошибок прибора не прерывает настройку, но
// сохраняется для последующего анализа вызывающим).
func (d *K27Driver) Warnings() []string {
	out := make([]string, len(d.warnings))
	copy(out, d.warnings)
	return out
}

// Configure программирует каждый канал из конфигурации и полностью
// замещает план сканирования. Ошибка настройки отдельного канала
// никогда не прерывает последовательность.
func (d *K27Driver) Configure() error {
	log.Info("начата последовательность конфигурации", "module", d.cfg.ModuleID)
	d.warnings = d.warnings[:0]

	if err := d.reset(); err != nil {
		return err
	}
	if err := d.sess.Write("TRAC:CLE"); err != nil {
		return err
	}

	plan, specs := d.planner.BuildScanPlan(d.cfg.Channels)
	for _, spec := range specs {
		for _, cmd := range d.planner.ProgramChannel(spec) {
			if err := d.sess.Write(cmd); err != nil {
				return err
			}
		}
		// AC-измерения устанавливаются заметно дольше.
		if spec.Mode.IsAC() {
			d.sess.ExtendTimeout(acTimeoutExtension)
		}

		current, err := d.sess.SystemError()
		if err != nil {
			return err
		}
		if current != noError {
			warning := fmt.Sprintf("канал %d: прибор сообщил об ошибке: %s", spec.ID, current)
			log.Warn(warning)
			d.warnings = append(d.warnings, warning)
		}
	}

	d.plan = plan
	d.ctrl.SetPlan(plan)
	log.Info("последовательность конфигурации завершена",
		"channels", plan.SampleCount(), "scan_list", plan.ChannelList)
	return nil
}

// reset очищает регистр событий и переводит прибор в одновыборочный
// режим измерения по умолчанию.
func (d *K27Driver) reset() error {
	if err := d.sess.Write("*CLS"); err != nil {
		return err
	}
	return d.sess.Write("*RST")
}

// SetMode переключает активный режим измерения и возвращает адресную
// строку выбранных каналов.
func (d *K27Driver) SetMode(mode string) (string, error) {
	return d.ctrl.SetMode(mode)
}

// Acquire выполняет одно чтение данных: для сканирования - инициация,
// программный триггер и выборка из буфера, для одиночного режима -
// только выборка.
func (d *K27Driver) Acquire() (Acquisition, error) {
	if !d.ctrl.SingleSample() {
		if err := d.sess.Write("INIT"); err != nil {
			return Acquisition{}, err
		}
		if err := d.sess.Write("*TRG"); err != nil {
			return Acquisition{}, err
		}
	}
	raw, err := d.sess.Query("FETCH?")
	if err != nil {
		return Acquisition{}, err
	}

	measurements, timestamps, err := ParseResponse(raw, d.ctrl.SingleSample())
	if err != nil {
		return Acquisition{}, err
	}
	return Acquisition{Raw: raw, Measurements: measurements, Timestamps: timestamps}, nil
}

// Stop прерывает сканирование, если оно выполняется. Начатое чтение
// не прерывается.
func (d *K27Driver) Stop() error {
	return d.sess.Write("ROUT:SCAN:LSEL NONE")
}

// Close размыкает все реле и освобождает сессию. Команда размыкания
// отправляется ровно один раз независимо от предшествующих ошибок,
// чтобы прибор гарантированно остался в безопасном состоянии.
func (d *K27Driver) Close() error {
	d.closeOnce.Do(func() {
		writeErr := d.sess.Write("ROUT:OPEN:ALL")
		closeErr := d.sess.Close()
		if writeErr != nil {
			d.closeErr = writeErr
			return
		}
		d.closeErr = closeErr
	})
	return d.closeErr
}
