//go:build unicorn

package emu

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/fwtrace/internal/utils"
	"github.com/blacktop/fwtrace/pkg/trace"
	"github.com/blacktop/go-macho/types"
	"github.com/pkg/errors"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

// returnAddress is the initial LR, returning from the entry point ends the run
const returnAddress = 0xfffffffe

var ucRegisters = [trace.NumRegisters]int{
	uc.ARM_REG_R0, uc.ARM_REG_R1, uc.ARM_REG_R2, uc.ARM_REG_R3,
	uc.ARM_REG_R4, uc.ARM_REG_R5, uc.ARM_REG_R6, uc.ARM_REG_R7,
	uc.ARM_REG_R8, uc.ARM_REG_R9, uc.ARM_REG_R10, uc.ARM_REG_R11,
	uc.ARM_REG_R12, uc.ARM_REG_SP, uc.ARM_REG_LR, uc.ARM_REG_PC,
	uc.ARM_REG_XPSR,
}

// Config is a emulation configuration object
type Config struct {
	// MaxInstructions stops a run after that many instructions, 0 is unlimited
	MaxInstructions uint64
	// Timeout stops a run after that much wall time, 0 is unlimited
	Timeout time.Duration
	// Verbose prints every instruction and the machine state on crashes
	Verbose bool
}

// Emulation is a Cortex-M emulation of one firmware
type Emulation struct {
	mu   uc.Unicorn
	fw   *Firmware
	conf *Config

	tracer *trace.Tracer
	dec    trace.Decoder

	stops    map[uint32]trace.StopReason
	boot     map[trace.Register]uint32
	snapshot map[*Region][]byte
	mem      *MemMap
	regIDs   []int

	// per run
	input   *Input
	count   uint64
	pc      uint32
	reason  trace.StopReason
	stopped bool
	err     error
	prev    *trace.Registers
}

// NewEmulation creates a new emulation instance with the firmware mapped and
// loaded, ready for Run
func NewEmulation(fw *Firmware, conf *Config) (*Emulation, error) {
	var err error

	if conf == nil {
		conf = &Config{}
	}
	e := &Emulation{
		fw:       fw,
		conf:     conf,
		stops:    fw.Stops(),
		snapshot: make(map[*Region][]byte),
		mem:      NewFirmwareMemMap(fw),
		regIDs:   ucRegisters[:],
	}

	e.mu, err = uc.NewUnicorn(uc.ARCH_ARM, uc.MODE_THUMB|uc.MODE_MCLASS)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create new unicorn instance")
	}
	if err := e.mu.SetCPUModel(uc.CPU_ARM_CORTEX_M4); err != nil {
		e.mu.Close()
		return nil, errors.Wrap(err, "failed to set cpu model to CORTEX_M4")
	}
	if err := e.load(); err != nil {
		e.mu.Close()
		return nil, err
	}
	if err := e.setupHooks(); err != nil {
		e.mu.Close()
		return nil, err
	}

	return e, nil
}

func (e *Emulation) Close() error {
	return e.mu.Close()
}

// SetTracer attaches the tracer fed by every following run
func (e *Emulation) SetTracer(t *trace.Tracer) {
	e.tracer = t
}

// SetDecoder enables instruction printing in verbose mode
func (e *Emulation) SetDecoder(dec trace.Decoder) {
	e.dec = dec
}

func (e *Emulation) load() error {
	for _, p := range e.mem.Pages {
		if err := e.mu.MemMapProt(p.Addr, p.Size, p.Prot); err != nil {
			return errors.Wrapf(err, "failed to memmap %#08x-%#08x", p.Addr, p.End())
		}
	}

	image, err := os.ReadFile(e.fw.Image)
	if err != nil {
		return errors.Wrap(err, "failed to read firmware image")
	}
	if err := e.mu.MemWrite(uint64(e.fw.Base), image); err != nil {
		return errors.Wrapf(err, "failed to write firmware image at %#08x", e.fw.Base)
	}
	for _, r := range e.fw.Regions {
		if r.File == "" {
			continue
		}
		data, err := os.ReadFile(r.File)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s content", r.Name)
		}
		if len(data) > int(r.Size) {
			data = data[:r.Size]
		}
		if err := e.mu.MemWrite(uint64(r.Base), data); err != nil {
			return errors.Wrapf(err, "failed to write %s content at %#08x", r.Name, r.Base)
		}
	}

	sp, entry, err := e.fw.Boot(image)
	if err != nil {
		return err
	}
	if e.boot, err = e.fw.RegisterValues(); err != nil {
		return err
	}
	if _, ok := e.boot[trace.SP]; !ok {
		e.boot[trace.SP] = sp
	}
	if _, ok := e.boot[trace.PC]; !ok {
		e.boot[trace.PC] = entry
	}
	if _, ok := e.boot[trace.LR]; !ok {
		e.boot[trace.LR] = returnAddress | 1
	}
	if _, ok := e.boot[trace.XPSR]; !ok {
		e.boot[trace.XPSR] = 1 << 24
	}

	// writable memory is restored before every run
	for i := range e.fw.Regions {
		r := &e.fw.Regions[i]
		if r.MMIO || r.readOnly() {
			continue
		}
		data, err := e.mu.MemRead(uint64(r.Base), uint64(r.Size))
		if err != nil {
			return errors.Wrapf(err, "failed to snapshot %s", r.Name)
		}
		e.snapshot[r] = data
	}

	log.WithFields(log.Fields{
		"image": e.fw.Image,
		"entry": fmt.Sprintf("%#08x", e.boot[trace.PC]),
		"sp":    fmt.Sprintf("%#08x", e.boot[trace.SP]),
	}).Debug("firmware loaded")

	return nil
}

// setupHooks adds all the unicorn hooks
func (e *Emulation) setupHooks() error {
	//*************
	//* HOOK_CODE *
	//*************
	if _, err := e.mu.HookAdd(uc.HOOK_CODE, func(mu uc.Unicorn, addr uint64, size uint32) {
		if e.stopped {
			return
		}
		e.pc = uint32(addr)
		if e.conf.Verbose {
			e.printInstruction(e.pc, size)
		}
		if e.tracer != nil {
			if err := e.tracer.OnInstruction(e.pc); err != nil {
				e.fail(err)
				return
			}
		}
		if reason, ok := e.stops[e.pc]; ok {
			e.stop(reason)
			return
		}
		e.count++
		if e.conf.MaxInstructions > 0 && e.count >= e.conf.MaxInstructions {
			e.stop(trace.StopInstructionLimit)
		}
	}, 1, 0); err != nil {
		return errors.Wrap(err, "failed to register code hook")
	}
	//*******************************
	//* HOOK_MEM_READ (mmio only)   *
	//*******************************
	for i := range e.fw.Regions {
		r := &e.fw.Regions[i]
		if !r.MMIO {
			continue
		}
		if _, err := e.mu.HookAdd(uc.HOOK_MEM_READ, func(mu uc.Unicorn, access int, addr64 uint64, size int, value int64) {
			e.onMMIORead(r, uint32(addr64), size)
		}, uint64(r.Base), r.End()-1); err != nil {
			return errors.Wrapf(err, "failed to register mmio hook for %s", r.Name)
		}
	}
	//******************
	//* HOOK_MEM_WRITE *
	//******************
	if _, err := e.mu.HookAdd(uc.HOOK_MEM_WRITE, func(mu uc.Unicorn, access int, addr64 uint64, size int, value int64) {
		if e.tracer == nil || e.stopped {
			return
		}
		addr := uint32(addr64)
		mt := trace.MemoryRAM
		if r := e.fw.Region(addr); r != nil {
			mt = r.MemoryType()
		}
		if err := e.tracer.OnMemoryAccess(mt, trace.AccessWrite, e.pc, addr, uint64(value), size); err != nil {
			e.fail(err)
		}
	}, 1, 0); err != nil {
		return errors.Wrap(err, "failed to register write hook")
	}
	//***********************************************************************
	//* HOOK_MEM_READ_INVALID|HOOK_MEM_WRITE_INVALID|HOOK_MEM_FETCH_INVALID *
	//***********************************************************************
	if _, err := e.mu.HookAdd(uc.HOOK_MEM_READ_INVALID|uc.HOOK_MEM_WRITE_INVALID|uc.HOOK_MEM_FETCH_INVALID,
		func(mu uc.Unicorn, access int, addr uint64, size int, value int64) bool {
			var reason trace.StopReason
			switch access {
			case uc.MEM_READ_UNMAPPED, uc.MEM_READ_PROT:
				reason = trace.StopInvalidRead
			case uc.MEM_WRITE_UNMAPPED:
				reason = trace.StopInvalidWrite
			case uc.MEM_WRITE_PROT:
				reason = trace.StopProtectedWrite
			case uc.MEM_FETCH_UNMAPPED:
				if addr&^1 == returnAddress {
					// returned from the entry point
					e.stop(trace.StopExit)
					return false
				}
				reason = trace.StopInvalidFetch
			case uc.MEM_FETCH_PROT:
				reason = trace.StopNonExecutableFetch
			default:
				reason = trace.StopOther
			}
			log.WithFields(log.Fields{
				"pc":     fmt.Sprintf("%#08x", e.pc),
				"addr":   fmt.Sprintf("%#08x", addr),
				"size":   size,
				"reason": reason.String(),
			}).Debug("invalid memory access")
			e.stop(reason)
			return false
		}, 1, 0); err != nil {
		return errors.Wrap(err, "failed to register mem invalid read/write/fetch hook")
	}
	//*************
	//* HOOK_INTR *
	//*************
	if _, err := e.mu.HookAdd(uc.HOOK_INTR, func(mu uc.Unicorn, intno uint32) {
		intr := interrupt(intno)
		if e.conf.Verbose {
			fmt.Println(colorHook("[INTERRUPT]") + colorInterrupt(" %s", intr))
		}
		if reason, stop := intr.stopReason(); stop {
			e.stop(reason)
		}
	}, 1, 0); err != nil {
		return errors.Wrap(err, "failed to register interrupt hook")
	}

	return nil
}

func (e *Emulation) onMMIORead(r *Region, addr uint32, size int) {
	if e.stopped {
		return
	}
	val, ok := e.input.Next(size)
	if !ok {
		e.stop(trace.StopEndOfInput)
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, val)
	if err := e.mu.MemWrite(uint64(addr), buf[:size]); err != nil {
		e.fail(errors.Wrapf(err, "failed to serve %s read at %#08x", r.Name, addr))
		return
	}
	if e.tracer != nil {
		if err := e.tracer.OnMemoryAccess(trace.MemoryMMIO, trace.AccessRead, e.pc, addr, val, size); err != nil {
			e.fail(err)
		}
	}
}

// stop ends the run with reason, the first reason wins
func (e *Emulation) stop(reason trace.StopReason) {
	if e.stopped {
		return
	}
	e.stopped = true
	e.reason = reason
	if err := e.mu.Stop(); err != nil {
		log.WithError(err).Error("failed to stop emulation")
	}
}

func (e *Emulation) fail(err error) {
	if e.err == nil {
		e.err = err
	}
	e.stop(trace.StopOther)
}

// reset restores the boot state of registers and writable memory
func (e *Emulation) reset(input []byte) error {
	e.input = NewInput(input)
	e.count = 0
	e.pc = e.boot[trace.PC]
	e.reason = trace.StopOther
	e.stopped = false
	e.err = nil
	e.prev = nil

	for r, data := range e.snapshot {
		if err := e.mu.MemWrite(uint64(r.Base), data); err != nil {
			return errors.Wrapf(err, "failed to restore %s", r.Name)
		}
	}
	for i, id := range ucRegisters {
		if err := e.mu.RegWrite(id, uint64(e.boot[trace.Register(i)])); err != nil {
			return errors.Wrapf(err, "failed to set %s register", trace.Register(i))
		}
	}
	return nil
}

// Run executes the firmware from its boot state, serving MMIO reads from
// input, and hands the classified stop reason to the tracer. A returned error
// means the run was aborted and no trace was written.
func (e *Emulation) Run(input []byte) (trace.StopReason, error) {
	if err := e.reset(input); err != nil {
		return trace.StopOther, err
	}

	opts := &uc.UcOptions{Timeout: uint64(e.conf.Timeout / time.Microsecond)}
	start := time.Now()
	err := e.mu.StartWithOptions(uint64(e.boot[trace.PC])|1, returnAddress, opts)

	reason := e.reason
	if !e.stopped {
		switch {
		case err != nil:
			log.WithError(err).Debugf("emulation stopped at %#08x", e.pc)
			reason = trace.StopOther
		case e.conf.Timeout > 0 && time.Since(start) >= e.conf.Timeout:
			reason = trace.StopTimeout
		default:
			reason = trace.StopExit
		}
	}

	if e.err != nil {
		if e.tracer != nil {
			e.tracer.Abort()
		}
		return reason, e.err
	}

	if reason.IsCrash() && e.conf.Verbose {
		e.dumpState()
	}

	log.WithFields(log.Fields{
		"reason":       reason.String(),
		"instructions": e.count,
		"input":        e.input.Consumed(),
	}).Debug("run finished")

	if e.tracer != nil {
		e.tracer.SetInputSize(len(input), e.input.Consumed())
		if err := e.tracer.PostRun(reason, 0); err != nil {
			return reason, err
		}
	}
	return reason, nil
}

// ReadRegisters implements trace.RegisterReader
func (e *Emulation) ReadRegisters() (trace.Registers, error) {
	var regs trace.Registers
	vals, err := e.mu.RegReadBatch(e.regIDs)
	if err != nil {
		return regs, err
	}
	for i, v := range vals {
		regs[i] = uint32(v)
	}
	return regs, nil
}

// Regions implements trace.MemoryMap. Only executable regions carry their
// current content.
func (e *Emulation) Regions() []trace.Region {
	regions := make([]trace.Region, 0, len(e.fw.Regions))
	for i := range e.fw.Regions {
		r := &e.fw.Regions[i]
		tr := trace.Region{
			Name:       r.Name,
			Start:      r.Base,
			Length:     r.Size,
			ReadOnly:   r.readOnly(),
			Executable: r.executable(),
			MMIO:       r.MMIO,
		}
		if tr.Executable {
			data, err := e.mu.MemRead(uint64(r.Base), uint64(r.Size))
			if err != nil {
				log.WithError(err).Warnf("failed to read %s", r.Name)
			} else {
				tr.Data = data
			}
		}
		regions = append(regions, tr)
	}
	return regions
}

func (e *Emulation) printInstruction(pc uint32, size uint32) {
	code, err := e.mu.MemRead(uint64(pc), uint64(size))
	if err != nil {
		log.WithError(err).Debugf("failed to read instruction at %#08x", pc)
		return
	}
	var insn *trace.Instruction
	if e.dec != nil {
		insn, _ = e.dec.Decode(pc, code)
	}
	if regs, err := e.ReadRegisters(); err == nil {
		if e.prev != nil {
			fmt.Print(registerDump(regs, e.prev))
		}
		e.prev = &regs
	}
	fmt.Println(disassemble(pc, code, insn))
}

func (e *Emulation) dumpState() {
	regs, err := e.ReadRegisters()
	if err != nil {
		log.WithError(err).Error("failed to read registers")
		return
	}
	fmt.Print(registerDump(regs, nil))
	fmt.Println(colorHook("\n[MEM_REGIONS]"))
	if err := e.DumpMemRegions(); err != nil {
		log.WithError(err).Error("failed to list memory regions")
	}
	fmt.Println(colorHook("\n[STACK]"))
	if err := e.DumpMem(regs[trace.SP], 0x40); err != nil {
		log.WithError(err).Error("failed to dump stack")
	}
}

// DumpMem prints a hexdump of emulated memory
func (e *Emulation) DumpMem(addr uint32, size uint32) error {
	dat, err := e.mu.MemRead(uint64(addr), uint64(size))
	if err != nil {
		return err
	}
	fmt.Print(utils.HexDump(dat, addr))
	return nil
}

// DumpMemRegions prints emulation memory regions
func (e *Emulation) DumpMemRegions() error {
	memRegs, err := e.mu.MemRegions()
	if err != nil {
		return err
	}
	for _, mr := range memRegs {
		name := "?"
		if r := e.fw.Region(uint32(mr.Begin)); r != nil {
			name = r.Name
		}
		fmt.Print(
			colorHook("    begin: ") + colorDetails("%#09x", mr.Begin) +
				colorHook(", end: ") + colorDetails("%#09x", mr.End) +
				colorHook(", prot: ") + colorDetails("%s", types.VmProtection(mr.Prot)) +
				colorHook(", region: ") + colorDetails("%s\n", name),
		)
	}
	return nil
}
