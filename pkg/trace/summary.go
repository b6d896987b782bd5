package trace

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

const (
	// SummaryVersion is bumped whenever the summary layout changes
	SummaryVersion = 2

	SummarySuffix  = "-summary.bin"
	FullSuffix     = "-full.bin"
	AddressMapName = "address-map.yml"
	CrashesDir     = "crashes"
	NonCrashesDir  = "non_crashes"
)

var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

// SummaryInstruction is the serialized form of an InstructionRecord. The
// register maps only hold observed slots.
type SummaryInstruction struct {
	Address   uint32
	Count     uint64
	Mnemonic  string
	Min       map[string]uint32
	Max       map[string]uint32
	Last      map[string]uint32
	Successor uint32
	Memory    *MemoryAccessSummary
}

// SummaryEdge is the serialized form of an EdgeRecord
type SummaryEdge struct {
	From  uint32
	To    uint32
	Count uint64
	Kind  EdgeKind
}

// Summary is the aggregated trace of one run
type Summary struct {
	Version      int
	RunID        uint64
	Label        string
	StopReason   StopReason
	Bugs         BugFlags
	Crash        bool
	FirstAddress uint32
	LastAddress  uint32
	ImageBase    uint32
	Steps        uint64
	Input        InputSize
	Instructions []SummaryInstruction
	Edges        []SummaryEdge
}

// Instruction looks up a serialized instruction by address
func (s *Summary) Instruction(addr uint32) (*SummaryInstruction, bool) {
	i := sort.Search(len(s.Instructions), func(i int) bool {
		return s.Instructions[i].Address >= addr
	})
	if i < len(s.Instructions) && s.Instructions[i].Address == addr {
		return &s.Instructions[i], true
	}
	return nil, false
}

// FullTrace is the replay sequence of one run
type FullTrace struct {
	RunID uint64
	Label string
	Steps []Step
}

// AddressMapRegion is one writable region in the address map
type AddressMapRegion struct {
	Name   string `yaml:"name"`
	Start  uint32 `yaml:"start"`
	Length uint32 `yaml:"length"`
}

// AddressMap describes the writable memory of the target
type AddressMap struct {
	ImageBase uint32             `yaml:"image_base"`
	Regions   []AddressMapRegion `yaml:"regions"`
}

// LoadSummary reads a summary trace written by PostRun
func LoadSummary(path string) (*Summary, error) {
	var s Summary
	if err := readArtifact(path, &s); err != nil {
		return nil, err
	}
	if s.Version != SummaryVersion {
		return nil, errors.Wrapf(ErrBadTraceFile, "%s: summary version %d (want %d)", path, s.Version, SummaryVersion)
	}
	return &s, nil
}

// LoadFullTrace reads a full trace written by PostRun
func LoadFullTrace(path string) (*FullTrace, error) {
	var ft FullTrace
	if err := readArtifact(path, &ft); err != nil {
		return nil, err
	}
	return &ft, nil
}

// SummaryFiles lists the summary traces below a traces directory, split into
// crashing and non-crashing runs
func SummaryFiles(dir string) (crashes, nonCrashes []string, err error) {
	crashes, err = filepath.Glob(filepath.Join(dir, CrashesDir, "*"+SummarySuffix))
	if err != nil {
		return nil, nil, err
	}
	nonCrashes, err = filepath.Glob(filepath.Join(dir, NonCrashesDir, "*"+SummarySuffix))
	if err != nil {
		return nil, nil, err
	}
	sort.Strings(crashes)
	sort.Strings(nonCrashes)
	return crashes, nonCrashes, nil
}

// FullTracePath returns the full trace belonging to a summary trace
func FullTracePath(summaryPath string) string {
	return strings.TrimSuffix(summaryPath, SummarySuffix) + FullSuffix
}

func readArtifact(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if magic, err := br.Peek(len(xzMagic)); err == nil && bytes.Equal(magic, xzMagic) {
		xr, err := xz.NewReader(br)
		if err != nil {
			return errors.Wrapf(ErrBadTraceFile, "%s: %v", path, err)
		}
		r = xr
	}

	if err := gob.NewDecoder(r).Decode(v); err != nil {
		return errors.Wrapf(ErrBadTraceFile, "%s: %v", path, err)
	}
	return nil
}

func writeArtifact(path string, v any, compress bool) (err error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var xw *xz.Writer
	if compress {
		if xw, err = xz.NewWriter(bw); err != nil {
			return errors.Wrap(err, "failed to create xz writer")
		}
		w = xw
	}

	if err = gob.NewEncoder(w).Encode(v); err != nil {
		return errors.Wrapf(err, "failed to encode %s", filepath.Base(path))
	}
	if xw != nil {
		if err = xw.Close(); err != nil {
			return err
		}
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
