// Package dmnt implements the cheat virtual machine: a small interpreter
// over 32-bit opcodes that patches guest memory through a callback
// interface. The VM never touches memory directly, so it can run against
// the real guest, a recording, or a test double.
package dmnt

import "log"

// MaxProgramSize is the opcode-count cap enforced at load time.
const MaxProgramSize = 1024

// NumRegisters is the size of the dynamic register file.
const NumRegisters = 16

// NumStaticRegisters is the size of the static register file shared
// between cheat executions.
const NumStaticRegisters = 0x100

// Callbacks is the VM's only window to the outside world.
type Callbacks interface {
	// MemoryRead fills buf from guest memory.
	MemoryRead(addr uint64, buf []byte)

	// MemoryWrite stores data to guest memory.
	MemoryWrite(addr uint64, data []byte)

	// HidKeysDown returns the currently held button mask.
	HidKeysDown() uint64

	// DebugLog emits one logged value.
	DebugLog(logID uint8, value uint64)

	// CommandLog emits interpreter diagnostics.
	CommandLog(msg string)
}

// Metadata locates the cheat's address bases in the guest process.
type Metadata struct {
	MainNSOBase uint64
	MainNSOSize uint64
	HeapBase    uint64
	HeapSize    uint64
}

// Memory base selectors.
const (
	memMainNSO = 0
	memHeap    = 1
)

// Condition codes for the comparison opcodes.
const (
	condGT = 1
	condGE = 2
	condLT = 3
	condLE = 4
	condEQ = 5
	condNE = 6
)

// Arithmetic operations for classes 7 and 9.
const (
	opAdd  = 0
	opSub  = 1
	opMul  = 2
	opShl  = 3
	opShr  = 4
	opAnd  = 5
	opOr   = 6
	opNot  = 7
	opXor  = 8
	opNone = 9
)

// Opcode classes. The 0xC and 0xF top nibbles escape into wider opcodes.
const (
	classStoreStatic        = 0x0
	classBeginConditional   = 0x1
	classEndConditional     = 0x2
	classControlLoop        = 0x3
	classLoadRegisterStatic = 0x4
	classLoadRegisterMemory = 0x5
	classStoreStaticToAddr  = 0x6
	classArithmeticStatic   = 0x7
	classBeginKeypressCond  = 0x8
	classArithmeticRegister = 0x9
	classStoreRegToAddr     = 0xA

	classExtBeginRegisterCond = 0xC0
	classExtSaveRestore       = 0xC1
	classExtSaveRestoreMask   = 0xC2
	classExtStaticRegister    = 0xC3

	classDoubleExtDebugLog = 0xFFF
)

// VM interprets one loaded cheat program.
type VM struct {
	callbacks Callbacks

	program    []uint32
	numOpcodes int

	pc              int
	registers       [NumRegisters]uint64
	savedValues     [NumRegisters]uint64
	staticRegisters [NumStaticRegisters]uint64
	loopTops        [NumRegisters]int
	conditionDepth  int
	carryFlag       bool

	metadata Metadata
	running  bool
}

// NewVM creates a VM that reports side effects through the callbacks.
func NewVM(callbacks Callbacks) *VM {
	return &VM{callbacks: callbacks}
}

// LoadProgram installs a cheat program. It reports false when the program
// is empty or exceeds the opcode cap.
func (vm *VM) LoadProgram(program []uint32) bool {
	if len(program) == 0 || len(program) > MaxProgramSize {
		log.Printf("error: cheat program of %d opcodes rejected", len(program))
		return false
	}

	vm.program = make([]uint32, len(program))
	copy(vm.program, program)
	vm.numOpcodes = len(program)
	return true
}

// Registers returns a snapshot of the dynamic register file.
func (vm *VM) Registers() [NumRegisters]uint64 {
	return vm.registers
}

// CarryFlag reads the arithmetic carry flag. It resets with the rest of
// the dynamic state on each Execute call.
func (vm *VM) CarryFlag() bool {
	return vm.carryFlag
}

// StaticRegister reads one static register. Static registers survive
// across Execute calls.
func (vm *VM) StaticRegister(i int) uint64 {
	return vm.staticRegisters[i&0xFF]
}

// Execute resets the dynamic state and runs the program to completion.
func (vm *VM) Execute(metadata Metadata) {
	vm.metadata = metadata
	vm.pc = 0
	vm.conditionDepth = 0
	vm.registers = [NumRegisters]uint64{}
	vm.savedValues = [NumRegisters]uint64{}
	vm.loopTops = [NumRegisters]int{}
	vm.carryFlag = false
	vm.running = true

	for vm.running && vm.pc < vm.numOpcodes {
		if !vm.Step() {
			break
		}
	}
}

// Step decodes and executes the opcode at the program counter. It reports
// whether execution should continue.
func (vm *VM) Step() bool {
	word := vm.program[vm.pc]

	switch class(word) {
	case classStoreStatic:
		return vm.storeStatic(word)
	case classBeginConditional:
		return vm.beginConditional(word)
	case classEndConditional:
		vm.conditionDepth--
		if vm.conditionDepth < 0 {
			vm.terminate("unmatched conditional end")
			return false
		}
		vm.pc++
		return true
	case classControlLoop:
		return vm.controlLoop(word)
	case classLoadRegisterStatic:
		return vm.loadRegisterStatic(word)
	case classLoadRegisterMemory:
		return vm.loadRegisterMemory(word)
	case classStoreStaticToAddr:
		return vm.storeStaticToAddress(word)
	case classArithmeticStatic:
		return vm.arithmeticStatic(word)
	case classBeginKeypressCond:
		return vm.beginKeypressConditional(word)
	case classArithmeticRegister:
		return vm.arithmeticRegister(word)
	case classStoreRegToAddr:
		return vm.storeRegisterToAddress(word)
	case classExtBeginRegisterCond:
		return vm.beginRegisterConditional(word)
	case classExtSaveRestore:
		return vm.saveRestoreRegister(word)
	case classExtSaveRestoreMask:
		return vm.saveRestoreRegisterMask(word)
	case classExtStaticRegister:
		return vm.staticRegisterOp(word)
	case classDoubleExtDebugLog:
		return vm.debugLog(word)
	}

	vm.terminate("unrecognized opcode")
	return false
}

// class widens the top nibble through the 0xC and 0xF escapes.
func class(word uint32) uint32 {
	c := word >> 28
	if c == 0xC {
		return word >> 24
	}
	if c == 0xF {
		return word >> 20
	}
	return c
}

func (vm *VM) terminate(reason string) {
	log.Printf("error: cheat terminated at opcode %d: %s", vm.pc, reason)
	vm.callbacks.CommandLog(reason)
	vm.running = false
}

// fetch consumes one additional program word.
func (vm *VM) fetch() (uint32, bool) {
	vm.pc++
	if vm.pc >= vm.numOpcodes {
		vm.terminate("truncated opcode")
		return 0, false
	}
	return vm.program[vm.pc], true
}

// fetchValue consumes a value of the given width: two words for 8-byte
// operands, one word otherwise.
func (vm *VM) fetchValue(width uint32) (uint64, bool) {
	hi, ok := vm.fetch()
	if !ok {
		return 0, false
	}
	if width != 8 {
		return uint64(hi), true
	}

	lo, ok := vm.fetch()
	if !ok {
		return 0, false
	}
	return uint64(hi)<<32 | uint64(lo), true
}

func (vm *VM) base(memType uint32) (uint64, bool) {
	switch memType {
	case memMainNSO:
		return vm.metadata.MainNSOBase, true
	case memHeap:
		return vm.metadata.HeapBase, true
	}
	vm.terminate("bad memory base selector")
	return 0, false
}

func (vm *VM) readMemory(addr uint64, width uint32) uint64 {
	var buf [8]byte
	vm.callbacks.MemoryRead(addr, buf[:width])

	var v uint64
	for i := uint32(0); i < width; i++ {
		v |= uint64(buf[i]) << (8 * i)
	}
	return v
}

func (vm *VM) writeMemory(addr, value uint64, width uint32) {
	var buf [8]byte
	for i := uint32(0); i < width; i++ {
		buf[i] = byte(value >> (8 * i))
	}
	vm.callbacks.MemoryWrite(addr, buf[:width])
}

func validWidth(w uint32) bool {
	return w == 1 || w == 2 || w == 4 || w == 8
}

func truncate(v uint64, width uint32) uint64 {
	if width >= 8 {
		return v
	}
	return v & (uint64(1)<<(8*width) - 1)
}

// storeStatic: class 0. Word layout, high nibble to low:
// class, addr(16), offset register, memory base, width.
// The value follows in one word, or two when the width is 8.
func (vm *VM) storeStatic(word uint32) bool {
	addr := uint64(word >> 12 & 0xFFFF)
	reg := word >> 8 & 0xF
	memType := word >> 4 & 0xF
	width := word & 0xF

	if !validWidth(width) {
		vm.terminate("bad store width")
		return false
	}

	base, ok := vm.base(memType)
	if !ok {
		return false
	}

	value, ok := vm.fetchValue(width)
	if !ok {
		return false
	}

	vm.writeMemory(base+addr+vm.registers[reg], value, width)
	vm.pc++
	return true
}

// beginConditional: class 1. Layout: class, addr(16), condition, memory
// base, width; compare value follows.
func (vm *VM) beginConditional(word uint32) bool {
	addr := uint64(word >> 12 & 0xFFFF)
	cond := word >> 8 & 0xF
	memType := word >> 4 & 0xF
	width := word & 0xF

	if !validWidth(width) {
		vm.terminate("bad conditional width")
		return false
	}

	base, ok := vm.base(memType)
	if !ok {
		return false
	}

	start := vm.pc
	value, ok := vm.fetchValue(width)
	if !ok {
		return false
	}

	lhs := vm.readMemory(base+addr, width)
	vm.enterConditional(compare(cond, lhs, truncate(value, width)), start)
	return vm.running
}

// beginKeypressConditional: class 8. The low 28 bits are the key mask.
func (vm *VM) beginKeypressConditional(word uint32) bool {
	mask := uint64(word & 0x0FFF_FFFF)
	vm.enterConditional(vm.callbacks.HidKeysDown()&mask != 0, vm.pc)
	return vm.running
}

// beginRegisterConditional: class C0. Layout: 0xC0, condition, source
// register, operand selector, operand nibble, memory base, width.
// Selector 0 compares against memory at base+offset (offset word
// follows), 1 against memory at register+offset, 2 against an immediate,
// 3 against another register.
func (vm *VM) beginRegisterConditional(word uint32) bool {
	cond := word >> 20 & 0xF
	srcReg := word >> 16 & 0xF
	selector := word >> 12 & 0xF
	operand := word >> 8 & 0xF
	memType := word >> 4 & 0xF
	width := word & 0xF

	if !validWidth(width) {
		vm.terminate("bad conditional width")
		return false
	}

	lhs := truncate(vm.registers[srcReg], width)
	start := vm.pc

	var rhs uint64
	switch selector {
	case 0:
		base, ok := vm.base(memType)
		if !ok {
			return false
		}
		offset, ok := vm.fetch()
		if !ok {
			return false
		}
		rhs = vm.readMemory(base+uint64(offset), width)
	case 1:
		offset, ok := vm.fetch()
		if !ok {
			return false
		}
		rhs = vm.readMemory(vm.registers[operand]+uint64(offset), width)
	case 2:
		value, ok := vm.fetchValue(width)
		if !ok {
			return false
		}
		rhs = truncate(value, width)
	case 3:
		rhs = truncate(vm.registers[operand], width)
	default:
		vm.terminate("bad conditional operand selector")
		return false
	}

	vm.enterConditional(compare(cond, lhs, rhs), start)
	return vm.running
}

func compare(cond uint32, lhs, rhs uint64) bool {
	switch cond {
	case condGT:
		return lhs > rhs
	case condGE:
		return lhs >= rhs
	case condLT:
		return lhs < rhs
	case condLE:
		return lhs <= rhs
	case condEQ:
		return lhs == rhs
	case condNE:
		return lhs != rhs
	}
	return false
}

// enterConditional either descends into the block or skips to its
// matching end. start is the index of the conditional's first word.
func (vm *VM) enterConditional(taken bool, start int) {
	if taken {
		vm.conditionDepth++
		vm.pc++
		return
	}
	vm.skipConditionalBlock(start)
}

// skipConditionalBlock advances the program counter past the matching
// EndConditional, honoring nesting.
func (vm *VM) skipConditionalBlock(start int) {
	depth := 1
	vm.pc = start + vm.opcodeLength(vm.program[start])

	for vm.pc < vm.numOpcodes {
		word := vm.program[vm.pc]

		switch class(word) {
		case classBeginConditional, classBeginKeypressCond,
			classExtBeginRegisterCond:
			depth++
		case classEndConditional:
			depth--
			if depth == 0 {
				vm.pc++
				return
			}
		}

		vm.pc += vm.opcodeLength(word)
	}

	vm.terminate("conditional without end")
}

// opcodeLength returns the total word count of the opcode starting with
// word, so skipping can stride whole instructions.
func (vm *VM) opcodeLength(word uint32) int {
	valueWords := func(width uint32) int {
		if width == 8 {
			return 2
		}
		return 1
	}

	switch class(word) {
	case classStoreStatic, classBeginConditional:
		return 1 + valueWords(word&0xF)
	case classControlLoop:
		if word>>24&0xF == 0 {
			return 2
		}
		return 1
	case classLoadRegisterStatic:
		return 3
	case classLoadRegisterMemory:
		return 1
	case classStoreStaticToAddr:
		return 3
	case classArithmeticStatic:
		return 2
	case classArithmeticRegister:
		if word>>8&1 != 0 {
			return 3
		}
		return 1
	case classStoreRegToAddr:
		if word>>12&0xF == 2 {
			return 2
		}
		return 1
	case classExtBeginRegisterCond:
		switch word >> 12 & 0xF {
		case 0, 1:
			return 2
		case 2:
			return 1 + valueWords(word & 0xF)
		default:
			return 1
		}
	}

	return 1
}

// controlLoop: class 3. Bit 24 selects end-of-loop; a begin consumes one
// count word and remembers the loop top for its register.
func (vm *VM) controlLoop(word uint32) bool {
	isEnd := word>>24&0xF != 0
	reg := word >> 16 & 0xF

	if !isEnd {
		count, ok := vm.fetch()
		if !ok {
			return false
		}
		vm.registers[reg] = uint64(count)
		vm.pc++
		vm.loopTops[reg] = vm.pc
		return true
	}

	vm.registers[reg]--
	if vm.registers[reg] != 0 {
		vm.pc = vm.loopTops[reg]
	} else {
		vm.pc++
	}
	return true
}

// loadRegisterStatic: class 4. The 64-bit immediate follows in two words.
func (vm *VM) loadRegisterStatic(word uint32) bool {
	reg := word >> 20 & 0xF

	value, ok := vm.fetchValue(8)
	if !ok {
		return false
	}

	vm.registers[reg] = value
	vm.pc++
	return true
}

// loadRegisterMemory: class 5. Layout: class, addr(16), register, memory
// base, width. A base selector of 2 dereferences the register itself plus
// the address as offset.
func (vm *VM) loadRegisterMemory(word uint32) bool {
	addr := uint64(word >> 12 & 0xFFFF)
	reg := word >> 8 & 0xF
	memType := word >> 4 & 0xF
	width := word & 0xF

	if !validWidth(width) {
		vm.terminate("bad load width")
		return false
	}

	var src uint64
	if memType == 2 {
		src = vm.registers[reg] + addr
	} else {
		base, ok := vm.base(memType)
		if !ok {
			return false
		}
		src = base + addr
	}

	vm.registers[reg] = vm.readMemory(src, width)
	vm.pc++
	return true
}

// storeStaticToAddress: class 6. Stores a 64-bit immediate through the
// pointer in a register. Layout: class, 0(12), offset register, flags,
// pointer register, width; bit 8 post-increments the pointer, bit 9 adds
// the offset register.
func (vm *VM) storeStaticToAddress(word uint32) bool {
	offReg := word >> 12 & 0xF
	increment := word>>8&1 != 0
	addOffReg := word>>9&1 != 0
	reg := word >> 4 & 0xF
	width := word & 0xF

	if !validWidth(width) {
		vm.terminate("bad store width")
		return false
	}

	value, ok := vm.fetchValue(8)
	if !ok {
		return false
	}

	addr := vm.registers[reg]
	if addOffReg {
		addr += vm.registers[offReg]
	}

	vm.writeMemory(addr, truncate(value, width), width)

	if increment {
		vm.registers[reg] += uint64(width)
	}
	vm.pc++
	return true
}

// arithmeticStatic: class 7. Layout: class, op, register, 0(16), width;
// one operand word follows.
func (vm *VM) arithmeticStatic(word uint32) bool {
	op := word >> 24 & 0xF
	reg := word >> 20 & 0xF
	width := word & 0xF

	if !validWidth(width) {
		vm.terminate("bad arithmetic width")
		return false
	}

	operand, ok := vm.fetch()
	if !ok {
		return false
	}

	result, ok := arithmetic(op, vm.registers[reg], uint64(operand))
	if !ok {
		vm.terminate("bad arithmetic op")
		return false
	}

	vm.registers[reg] = truncate(result, width)
	vm.pc++
	return true
}

// arithmeticRegister: class 9. Layout: class, op, dest, src1, src2, flags,
// width; bit 8 selects an immediate second operand in the next two words.
func (vm *VM) arithmeticRegister(word uint32) bool {
	op := word >> 24 & 0xF
	dest := word >> 20 & 0xF
	src1 := word >> 16 & 0xF
	src2 := word >> 12 & 0xF
	useImm := word>>8&1 != 0
	width := word & 0xF

	if !validWidth(width) {
		vm.terminate("bad arithmetic width")
		return false
	}

	rhs := vm.registers[src2]
	if useImm {
		v, ok := vm.fetchValue(8)
		if !ok {
			return false
		}
		rhs = v
	}

	result, ok := arithmetic(op, vm.registers[src1], rhs)
	if !ok {
		vm.terminate("bad arithmetic op")
		return false
	}

	vm.registers[dest] = truncate(result, width)
	vm.pc++
	return true
}

func arithmetic(op uint32, lhs, rhs uint64) (uint64, bool) {
	switch op {
	case opAdd:
		return lhs + rhs, true
	case opSub:
		return lhs - rhs, true
	case opMul:
		return lhs * rhs, true
	case opShl:
		return lhs << (rhs & 63), true
	case opShr:
		return lhs >> (rhs & 63), true
	case opAnd:
		return lhs & rhs, true
	case opOr:
		return lhs | rhs, true
	case opNot:
		return ^lhs, true
	case opXor:
		return lhs ^ rhs, true
	case opNone:
		return lhs, true
	}
	return 0, false
}

// storeRegisterToAddress: class A. Layout: class, source register, pointer
// register, increment flag, offset mode, offset operand, 0, width. Offset
// mode 0 stores at the pointer, 1 adds an offset register, 2 adds an
// immediate from the next word.
func (vm *VM) storeRegisterToAddress(word uint32) bool {
	srcReg := word >> 24 & 0xF
	ptrReg := word >> 20 & 0xF
	increment := word>>16&1 != 0
	offMode := word >> 12 & 0xF
	operand := word >> 8 & 0xF
	width := word & 0xF

	if !validWidth(width) {
		vm.terminate("bad store width")
		return false
	}

	addr := vm.registers[ptrReg]
	switch offMode {
	case 0:
	case 1:
		addr += vm.registers[operand]
	case 2:
		offset, ok := vm.fetch()
		if !ok {
			return false
		}
		addr += uint64(offset)
	default:
		vm.terminate("bad offset mode")
		return false
	}

	vm.writeMemory(addr, truncate(vm.registers[srcReg], width), width)

	if increment {
		vm.registers[ptrReg] += uint64(width)
	}
	vm.pc++
	return true
}

// Save-restore operations for classes C1 and C2.
const (
	srRestore    = 0
	srSave       = 1
	srClearSaved = 2
	srClearReg   = 3
)

// saveRestoreRegister: class C1. Layout: 0xC1, 0, destination index, 0,
// source index, operation, 0.
func (vm *VM) saveRestoreRegister(word uint32) bool {
	dst := word >> 16 & 0xF
	src := word >> 8 & 0xF
	op := word >> 4 & 0xF

	switch op {
	case srRestore:
		vm.registers[dst] = vm.savedValues[src]
	case srSave:
		vm.savedValues[dst] = vm.registers[src]
	case srClearSaved:
		vm.savedValues[dst] = 0
	case srClearReg:
		vm.registers[dst] = 0
	default:
		vm.terminate("bad save-restore op")
		return false
	}

	vm.pc++
	return true
}

// saveRestoreRegisterMask: class C2. Layout: 0xC2, operation, 0(4), mask
// over the 16 registers.
func (vm *VM) saveRestoreRegisterMask(word uint32) bool {
	op := word >> 20 & 0xF
	mask := word & 0xFFFF

	for i := 0; i < NumRegisters; i++ {
		if mask>>i&1 == 0 {
			continue
		}

		switch op {
		case srRestore:
			vm.registers[i] = vm.savedValues[i]
		case srSave:
			vm.savedValues[i] = vm.registers[i]
		case srClearSaved:
			vm.savedValues[i] = 0
		case srClearReg:
			vm.registers[i] = 0
		default:
			vm.terminate("bad save-restore op")
			return false
		}
	}

	vm.pc++
	return true
}

// staticRegisterOp: class C3. Layout: 0xC3, 0(8), dynamic register, static
// register index, write flag in bit 0. Reading copies static to dynamic,
// writing copies dynamic to static.
func (vm *VM) staticRegisterOp(word uint32) bool {
	reg := word >> 12 & 0xF
	idx := word >> 4 & 0xFF
	write := word&1 != 0

	if write {
		vm.staticRegisters[idx] = vm.registers[reg]
	} else {
		vm.registers[reg] = vm.staticRegisters[idx]
	}

	vm.pc++
	return true
}

// debugLog: class FFF. Layout: 0xFFF, 0, log id, register.
func (vm *VM) debugLog(word uint32) bool {
	logID := uint8(word >> 12 & 0xF)
	reg := word >> 8 & 0xF

	vm.callbacks.DebugLog(logID, vm.registers[reg])
	vm.pc++
	return true
}
