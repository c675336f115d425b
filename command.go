package hostlink

// Command is one logical Host Link request, addressed to one unit and one
// memory area. Commands are immutable once built: use NewAreaRead() or
// NewAreaWrite() to create them.
type Command interface {
	UnitNo() uint8
	Area() Area
	Bank() uint8
	BeginningWord() uint16
	// frames renders the command into its physical frame sequence.
	frames() (FrameSequence, error)
	// header returns the command header expected back in the response.
	header() string
}

// AreaRead reads WordCount consecutive items starting at BeginningWord.
type AreaRead struct {
	unitNo        uint8
	area          Area
	bank          uint8
	beginningWord uint16
	wordCount     uint16
}

// AreaWrite writes Values to consecutive items starting at BeginningWord.
type AreaWrite struct {
	unitNo        uint8
	area          Area
	bank          uint8
	beginningWord uint16
	values        []uint16
}

// NewAreaRead builds an area read command.
// bank is only meaningful for ExtendedMemory and must be 0 for other areas.
func NewAreaRead(unitNo uint8, area Area, bank uint8, beginningWord uint16, wordCount uint16) (ar *AreaRead, err error) {
	err = validateCommand(unitNo, area, bank, beginningWord, int(wordCount))
	if err != nil {
		return
	}

	ar = &AreaRead{
		unitNo:        unitNo,
		area:          area,
		bank:          bank,
		beginningWord: beginningWord,
		wordCount:     wordCount,
	}

	return
}

// NewAreaWrite builds an area write command. values is copied.
func NewAreaWrite(unitNo uint8, area Area, bank uint8, beginningWord uint16, values []uint16) (aw *AreaWrite, err error) {
	var ai areaInfo

	err = validateCommand(unitNo, area, bank, beginningWord, len(values))
	if err != nil {
		return
	}

	// bit areas only take 0 or 1 per item
	ai, _ = resolveArea(area)
	if ai.addressing == BIT_ADDRESSING {
		for _, v := range values {
			err = checkRange("flag value", int(v), 0, 1)
			if err != nil {
				return
			}
		}
	}

	aw = &AreaWrite{
		unitNo:        unitNo,
		area:          area,
		bank:          bank,
		beginningWord: beginningWord,
		values:        append([]uint16(nil), values...),
	}

	return
}

func (ar *AreaRead) UnitNo() uint8         { return ar.unitNo }
func (ar *AreaRead) Area() Area            { return ar.area }
func (ar *AreaRead) Bank() uint8           { return ar.bank }
func (ar *AreaRead) BeginningWord() uint16 { return ar.beginningWord }
func (ar *AreaRead) WordCount() uint16     { return ar.wordCount }

func (ar *AreaRead) frames() (fs FrameSequence, err error) {
	var f Frame

	f, err = encodeAreaRead(ar)
	if err != nil {
		return
	}
	fs = FrameSequence{f}

	return
}

func (ar *AreaRead) header() (h string) {
	var ai areaInfo

	ai, _ = resolveArea(ar.area)
	h = ai.readHeader

	return
}

func (aw *AreaWrite) UnitNo() uint8         { return aw.unitNo }
func (aw *AreaWrite) Area() Area            { return aw.area }
func (aw *AreaWrite) Bank() uint8           { return aw.bank }
func (aw *AreaWrite) BeginningWord() uint16 { return aw.beginningWord }

// Values returns a copy of the values to be written.
func (aw *AreaWrite) Values() []uint16 {
	return append([]uint16(nil), aw.values...)
}

func (aw *AreaWrite) frames() (FrameSequence, error) {
	return encodeAreaWrite(aw)
}

func (aw *AreaWrite) header() (h string) {
	var ai areaInfo

	ai, _ = resolveArea(aw.area)
	h = ai.writeHeader

	return
}

// Checks the addressing fields shared by reads and writes against the
// area's bounds. Both bounds are inclusive.
func validateCommand(unitNo uint8, area Area, bank uint8, beginningWord uint16, quantity int) (err error) {
	var ai areaInfo

	ai, err = resolveArea(area)
	if err != nil {
		return
	}

	err = checkRange("unit number", int(unitNo), 0, int(maxUnitNo))
	if err != nil {
		return
	}

	if ai.banked {
		err = checkRange("bank", int(bank), 0, int(maxBank))
	} else {
		err = checkRange("bank", int(bank), 0, 0)
	}
	if err != nil {
		return
	}

	err = checkRange("beginning word", int(beginningWord), 0, int(ai.maxAddress))
	if err != nil {
		return
	}

	err = checkRange("word count", quantity, 1, int(ai.maxQuantity))

	return
}
