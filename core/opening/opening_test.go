package opening

import (
	"reflect"
	"testing"
)

// Labels observed in carrier support and rebate sheets.
func TestClassifyCorpus(t *testing.T) {
	tests := []struct {
		label string
		want  []Type
	}{
		{"010", []Type{NewLine}},
		{"신규", []Type{NewLine}},
		{"010 신규", []Type{NewLine}},
		{"MNP", []Type{PortIn}},
		{"mnp", []Type{PortIn}},
		{"번호이동", []Type{PortIn}},
		{"번호 이동", []Type{PortIn}},
		{"기변", []Type{DeviceChange}},
		{"기기변경", []Type{DeviceChange}},
		{"기기 변경", []Type{DeviceChange}},
		{"010/기변", []Type{NewLine, DeviceChange}},
		{"신규+기기변경", []Type{NewLine, DeviceChange}},
		{"010/MNP", []Type{NewLine, PortIn}},
		{"전유형", []Type{NewLine, PortIn, DeviceChange}},
		{"전체", []Type{NewLine, PortIn, DeviceChange}},
		{"모두", []Type{NewLine, PortIn, DeviceChange}},
		{"전유형(MNP 포함)", []Type{NewLine, PortIn, DeviceChange}},
		{"", []Type{NewLine}},
		{"기타", []Type{NewLine}},
		{"  ", []Type{NewLine}},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got := Classify(tt.label).Types()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Classify(%q) = %v, want %v", tt.label, got, tt.want)
			}
		})
	}
}

func TestClassifyIsCaseAndWhitespaceInsensitive(t *testing.T) {
	if Classify(" M N P ") != Classify("mnp") {
		t.Error("expected whitespace and case to be ignored")
	}
}

func TestSetCollapse(t *testing.T) {
	tests := []struct {
		label string
		want  Type
	}{
		{"010", NewLine},
		{"MNP", PortIn},
		{"기변", DeviceChange},
		{"010/기변", CombinedNewOrChange},
		{"전유형", AllTypes},
		{"010/MNP", NewLine},
	}
	for _, tt := range tests {
		if got := Classify(tt.label).Type(); got != tt.want {
			t.Errorf("Classify(%q).Type() = %v, want %v", tt.label, got, tt.want)
		}
	}
}

func TestSetPredicates(t *testing.T) {
	combined := Classify("010/기변")
	if !combined.Combined() {
		t.Error("010/기변 must be combined")
	}
	if combined.IsAll() {
		t.Error("combined label must not be blanket")
	}
	if !IsAllTypes("전체") {
		t.Error("전체 must be blanket")
	}
	if IsAllTypes("MNP") {
		t.Error("MNP must not be blanket")
	}
	if SetOf(AllTypes) != All {
		t.Error("SetOf(AllTypes) must expand to all concrete types")
	}
	if got := SetOf(CombinedNewOrChange).String(); got != "NewLine+DeviceChange" {
		t.Errorf("SetOf(Combined).String() = %q", got)
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want Type
	}{
		{"PortIn", PortIn},
		{"portin", PortIn},
		{"NewLine", NewLine},
		{"devicechange", DeviceChange},
		{"AllTypes", AllTypes},
		{"번호이동", PortIn},
		{"010/기변", CombinedNewOrChange},
	}
	for _, tt := range tests {
		got, ok := ParseType(tt.in)
		if !ok || got != tt.want {
			t.Errorf("ParseType(%q) = %v,%v want %v", tt.in, got, ok, tt.want)
		}
	}
	for _, in := range []string{" ", "garbage", "출고가", "금액"} {
		if got, ok := ParseType(in); ok {
			t.Errorf("ParseType(%q) = %v, want no match", in, got)
		}
	}
}

func TestRecognize(t *testing.T) {
	tests := []struct {
		label string
		want  Set
		ok    bool
	}{
		{"신규", setNewLine, true},
		{"MNP", setPortIn, true},
		{"010/기변", setNewLine | setDeviceChange, true},
		{"전유형", All, true},
		{"출고가", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := Recognize(tt.label)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Recognize(%q) = %v,%v want %v,%v", tt.label, got, ok, tt.want, tt.ok)
		}
	}
	if Classify("출고가") != setNewLine {
		t.Error("Classify must keep the NewLine fallback")
	}
}

func TestExpand(t *testing.T) {
	if got := AllTypes.Expand(); !reflect.DeepEqual(got, Concrete) {
		t.Errorf("AllTypes.Expand() = %v", got)
	}
	if got := CombinedNewOrChange.Expand(); !reflect.DeepEqual(got, []Type{NewLine, DeviceChange}) {
		t.Errorf("Combined.Expand() = %v", got)
	}
}
