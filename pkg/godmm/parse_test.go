package godmm

import (
	"math"
	"testing"
)

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-12 {
			return false
		}
	}
	return true
}

// Тестирование разбора ответа полного списка сканирования
func TestParseResponse_ScanList(t *testing.T) {
	raw := "1.23456VDC,0.1SECS,1,2.34567VDC,0.2SECS,1"
	measurements, timestamps, err := ParseResponse(raw, false)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if !floatsEqual(measurements, []float64{1.23456, 2.34567}) {
		t.Errorf("Expected measurements [1.23456 2.34567], got %v", measurements)
	}
	if !floatsEqual(timestamps, []float64{0.1, 0.2}) {
		t.Errorf("Expected timestamps [0.1 0.2], got %v", timestamps)
	}
}

// В одновыборочном режиме метка времени не разбирается и обнуляется
func TestParseResponse_SingleSample(t *testing.T) {
	measurements, timestamps, err := ParseResponse("-5.0E-3ADC,9.9SECS,1", true)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if !floatsEqual(measurements, []float64{-0.005}) {
		t.Errorf("Expected measurements [-0.005], got %v", measurements)
	}
	if !floatsEqual(timestamps, []float64{0}) {
		t.Errorf("Expected timestamps [0], got %v", timestamps)
	}
}

// Единственное измерение без запятых разбирается так же
func TestParseResponse_SingleToken(t *testing.T) {
	measurements, _, err := ParseResponse("7.5OHM", true)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if !floatsEqual(measurements, []float64{7.5}) {
		t.Errorf("Expected measurements [7.5], got %v", measurements)
	}
}

func TestParseResponse_BadToken(t *testing.T) {
	if _, _, err := ParseResponse("GARBAGE,0.1SECS,1", false); err == nil {
		t.Fatal("Expected error for non-numeric token")
	}
}

// Суффикс единицы отсекается только с хвоста: знак, дробная часть и
// экспонента сохраняются
func TestStripUnitSuffix(t *testing.T) {
	cases := []struct {
		token, want string
	}{
		{"1.23456VDC", "1.23456"},
		{"9.9SECS", "9.9"},
		{"-5.0E-3ADC", "-5.0E-3"},
		{"+1.0E+2VDC", "+1.0E+2"},
		{"42S", "42"},
		{"1.0", "1.0"},
		{"GARBAGE", "GARBAGE"},
	}
	for _, c := range cases {
		if got := stripUnitSuffix(c.token); got != c.want {
			t.Errorf("stripUnitSuffix(%q) = %q, want %q", c.token, got, c.want)
		}
	}
}
