package hostlink

import (
	"fmt"
	"strings"
)

type Area uint
type Addressing uint

const (
	CIO                Area = 1
	LR                 Area = 2
	HR                 Area = 3
	TimerCounterPV     Area = 4
	TimerCounterStatus Area = 5
	DM                 Area = 6
	AuxiliaryArea      Area = 7
	ExtendedMemory     Area = 8

	WORD_ADDRESSING Addressing = 0
	BIT_ADDRESSING  Addressing = 1

	// EM banks 0 through C
	maxBank uint8 = 12

	// largest count the 4-digit word count field can carry
	maxWordCountField uint16 = 9999
)

type areaInfo struct {
	name        string
	readHeader  string
	writeHeader string
	maxAddress  uint16
	maxQuantity uint16
	addressing  Addressing
	banked      bool
}

var areaTable = map[Area]areaInfo{
	CIO:                {"CIO", "RR", "WR", 6143, 6144, WORD_ADDRESSING, false},
	LR:                 {"LR", "RL", "WL", 199, 200, WORD_ADDRESSING, false},
	HR:                 {"HR", "RH", "WH", 511, 512, WORD_ADDRESSING, false},
	TimerCounterPV:     {"TC PV", "RC", "WC", 4095, 4096, WORD_ADDRESSING, false},
	TimerCounterStatus: {"TC status", "RG", "WG", 4095, 4096, BIT_ADDRESSING, false},
	DM:                 {"DM", "RD", "WD", 9999, maxWordCountField, WORD_ADDRESSING, false},
	AuxiliaryArea:      {"AR", "RJ", "WJ", 959, 960, WORD_ADDRESSING, false},
	ExtendedMemory:     {"EM", "RE", "WE", 9999, maxWordCountField, WORD_ADDRESSING, true},
}

// String returns the area's conventional name.
func (a Area) String() string {
	if ai, ok := areaTable[a]; ok {
		return ai.name
	}

	return fmt.Sprintf("area(%d)", uint(a))
}

// MaxAddress returns the highest valid beginning word for the area.
func (a Area) MaxAddress() (addr uint16, err error) {
	var ai areaInfo

	ai, err = resolveArea(a)
	if err == nil {
		addr = ai.maxAddress
	}

	return
}

// MaxQuantity returns the largest word count a single command may cover.
func (a Area) MaxQuantity() (qty uint16, err error) {
	var ai areaInfo

	ai, err = resolveArea(a)
	if err == nil {
		qty = ai.maxQuantity
	}

	return
}

// ParseArea maps a conventional area name (as printed by String(), e.g.
// "DM" or "TC PV") back to its Area. Case and spaces are ignored, so "dm"
// and "tcpv" are accepted as well.
func ParseArea(name string) (a Area, err error) {
	var key = strings.ReplaceAll(name, " ", "")

	for area, ai := range areaTable {
		if strings.EqualFold(strings.ReplaceAll(ai.name, " ", ""), key) {
			a = area
			return
		}
	}

	err = fmt.Errorf("%w: %q", ErrUnknownArea, name)

	return
}

// Looks up the headers and bounds of an area.
func resolveArea(a Area) (ai areaInfo, err error) {
	var ok bool

	ai, ok = areaTable[a]
	if !ok {
		err = fmt.Errorf("%w: %d", ErrUnknownArea, uint(a))
	}

	return
}

// Returns how many ASCII characters encode one item of the area.
func (ai areaInfo) charsPerItem() (n int) {
	switch ai.addressing {
	case BIT_ADDRESSING:
		n = 1
	default:
		n = 4
	}

	return
}
