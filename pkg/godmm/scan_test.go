package godmm

import (
	"errors"
	"reflect"
	"testing"
)

func newTestController() (*ScanController, *MockPort) {
	port := &MockPort{}
	ctrl := NewScanController(NewSession(port))
	var planner ChannelPlanner
	plan, _ := planner.BuildScanPlan(validChannels())
	ctrl.SetPlan(plan)
	return ctrl, port
}

// Последняя команда управления инициацией в рамках одного вызова
func lastInitCont(cmds []string) string {
	last := ""
	for _, c := range cmds {
		if c == "INIT:CONT ON" || c == "INIT:CONT OFF" {
			last = c
		}
	}
	return last
}

func TestSetMode_FullScanList(t *testing.T) {
	ctrl, port := newTestController()

	address, err := ctrl.SetMode("SCAN_LIST")
	if err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	if address != "(@101,102,103,104)" {
		t.Errorf("Expected full scan list address, got %q", address)
	}

	want := []string{
		"TRAC:CLE",
		"INIT:CONT OFF",
		"TRIG:COUN 1",
		"TRIG:SOUR BUS",
		"SAMP:COUN 4",
		"ROUT:SCAN:LSEL NONE",
		"ROUT:SCAN (@101,102,103,104)",
		"ROUT:SCAN:TSO IMM",
		"ROUT:SCAN:LSEL INT",
	}
	if !reflect.DeepEqual(port.Commands(), want) {
		t.Errorf("Expected %v, got %v", want, port.Commands())
	}
	if ctrl.State() != StateFullScanList || !ctrl.ReadingScanList() || ctrl.SingleSample() {
		t.Error("Controller must be in full scan list state")
	}
}

// После SCAN_LIST выбор режима возвращает только его каналы из
// последнего плана
func TestSetMode_SubsetAfterScanList(t *testing.T) {
	ctrl, port := newTestController()

	if _, err := ctrl.SetMode("SCAN_LIST"); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	port.ResetCommands()

	address, err := ctrl.SetMode("SCAN_VOLT:DC")
	if err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	if address != "(@101,102)" {
		t.Errorf("Expected VOLT:DC channels only, got %q", address)
	}

	cmds := port.Commands()
	// Два канала: шинный триггер и одноразовая инициация
	if countCommand(cmds, "TRIG:SOUR BUS") != 1 || countCommand(cmds, "TRIG:SOUR IMM") != 0 {
		t.Errorf("Expected bus trigger for multi-channel subset, got %v", cmds)
	}
	if lastInitCont(cmds) != "INIT:CONT OFF" {
		t.Errorf("Expected one-shot initiation, got %v", cmds)
	}
	if countCommand(cmds, "SAMP:COUN 2") != 1 {
		t.Errorf("Expected sample count 2, got %v", cmds)
	}
	if ctrl.State() != StateSingleModeSubset || ctrl.SingleSample() {
		t.Error("Controller must be in multi-channel subset state")
	}
}

// Единственный канал режима: немедленный триггер, непрерывная инициация,
// замыкание одного реле - взаимоисключающе с многоканальным вариантом
func TestSetMode_SingleChannelSubset(t *testing.T) {
	ctrl, port := newTestController()

	address, err := ctrl.SetMode("SCAN_FRES")
	if err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	if address != "(@104)" {
		t.Errorf("Expected single channel address, got %q", address)
	}

	cmds := port.Commands()
	if countCommand(cmds, "TRIG:SOUR IMM") != 1 || countCommand(cmds, "TRIG:SOUR BUS") != 0 {
		t.Errorf("Expected immediate trigger for single channel, got %v", cmds)
	}
	if lastInitCont(cmds) != "INIT:CONT ON" {
		t.Errorf("Expected continuous initiation, got %v", cmds)
	}
	if countCommand(cmds, "ROUT:CLOS (@104)") != 1 || countCommand(cmds, "FUNC 'FRES'") != 1 {
		t.Errorf("Expected relay close and function select, got %v", cmds)
	}
	if !ctrl.SingleSample() || ctrl.ReadingScanList() {
		t.Error("Controller must be in single sample addressing")
	}
}

// Передняя панель: функция применяется глобально, без адресации каналов
func TestSetMode_Front(t *testing.T) {
	ctrl, port := newTestController()

	address, err := ctrl.SetMode("VOLT:AC")
	if err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	if address != "" {
		t.Errorf("Front mode has no channel address, got %q", address)
	}

	want := []string{"INIT:CONT ON", "FUNC 'VOLT:AC'"}
	if !reflect.DeepEqual(port.Commands(), want) {
		t.Errorf("Expected %v, got %v", want, port.Commands())
	}
	if ctrl.State() != StateSingleFunction || !ctrl.SingleSample() {
		t.Error("Controller must be in single function state")
	}
	if ctrl.CurrentMode() != ModeVoltAC {
		t.Errorf("Expected current mode VOLT:AC, got %q", ctrl.CurrentMode())
	}
}

// Нераспознанный режим - жесткая ошибка конфигурации
func TestSetMode_Unknown(t *testing.T) {
	ctrl, _ := newTestController()

	if _, err := ctrl.SetMode("WATT"); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("Expected ErrUnknownMode, got %v", err)
	}
	if _, err := ctrl.SetMode("SCAN_WATT"); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("Expected ErrUnknownMode, got %v", err)
	}
}

func TestSetMode_EmptySubset(t *testing.T) {
	ctrl, _ := newTestController()

	// В плане нет каналов CURR:AC
	if _, err := ctrl.SetMode("SCAN_CURR:AC"); err == nil {
		t.Fatal("Expected error for mode without configured channels")
	}
}
