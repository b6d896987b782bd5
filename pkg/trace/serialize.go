package trace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9._#-]+`)

// PostRun finalizes the current run: it writes the address map (first run
// only), the summary and the full trace, then resets the tracer for the next
// run. The tracer is reset even when writing fails.
func (t *Tracer) PostRun(reason StopReason, bugs BugFlags) error {
	t.flush()
	defer t.reset()

	if t.opts.Output == "" {
		return nil
	}

	if !t.wroteAddrMap {
		if err := t.writeAddressMap(); err != nil {
			return err
		}
		t.wroteAddrMap = true
	}

	sum := t.Summary(reason, bugs)
	dir := filepath.Join(t.opts.Output, NonCrashesDir)
	if sum.Crash {
		dir = filepath.Join(t.opts.Output, CrashesDir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create trace directory %s", dir)
	}

	token := t.runToken()
	summaryPath := filepath.Join(dir, token+SummarySuffix)
	if err := writeArtifact(summaryPath, sum, t.opts.Compress); err != nil {
		return errors.Wrapf(err, "failed to write summary trace %s", summaryPath)
	}

	fullPath := filepath.Join(dir, token+FullSuffix)
	full := &FullTrace{RunID: t.runs, Label: t.label, Steps: t.replay}
	if err := writeArtifact(fullPath, full, t.opts.Compress); err != nil {
		return errors.Wrapf(err, "failed to write full trace %s", fullPath)
	}

	log.WithFields(log.Fields{
		"run":          t.runs,
		"reason":       reason.String(),
		"crash":        sum.Crash,
		"instructions": len(sum.Instructions),
		"edges":        len(sum.Edges),
		"steps":        sum.Steps,
	}).Debugf("wrote trace %s", summaryPath)

	return nil
}

// Abort drops the current run without writing anything, e.g. after
// OnInstruction failed
func (t *Tracer) Abort() {
	log.WithField("run", t.runs).Debug("trace run aborted")
	t.reset()
}

// Summary converts the accumulated state of the current run into its
// serializable form
func (t *Tracer) Summary(reason StopReason, bugs BugFlags) *Summary {
	sum := &Summary{
		Version:      SummaryVersion,
		RunID:        t.runs,
		Label:        t.label,
		StopReason:   reason,
		Bugs:         bugs,
		Crash:        reason.IsCrash() || bugs != 0,
		FirstAddress: t.firstAddr,
		LastAddress:  t.lastAddr,
		ImageBase:    t.opts.ImageBase,
		Steps:        uint64(len(t.replay)),
		Input:        t.input,
		Instructions: make([]SummaryInstruction, 0, len(t.instructions)),
		Edges:        make([]SummaryEdge, 0, len(t.edges)),
	}

	for _, rec := range t.instructions {
		si := SummaryInstruction{
			Address:   rec.Address,
			Count:     rec.Count,
			Mnemonic:  rec.Mnemonic,
			Min:       rec.Min.Sparse(),
			Max:       rec.Max.Sparse(),
			Last:      rec.Last.Sparse(),
			Successor: rec.Successor,
		}
		if rec.Memory != nil {
			m := *rec.Memory
			si.Memory = &m
		}
		sum.Instructions = append(sum.Instructions, si)
	}
	sort.Slice(sum.Instructions, func(i, j int) bool {
		return sum.Instructions[i].Address < sum.Instructions[j].Address
	})

	for e, er := range t.edges {
		sum.Edges = append(sum.Edges, SummaryEdge{From: e.From, To: e.To, Count: er.Count, Kind: er.Kind})
	}
	sort.Slice(sum.Edges, func(i, j int) bool {
		if sum.Edges[i].From != sum.Edges[j].From {
			return sum.Edges[i].From < sum.Edges[j].From
		}
		return sum.Edges[i].To < sum.Edges[j].To
	})

	return sum
}

func (t *Tracer) writeAddressMap() error {
	am := AddressMap{ImageBase: t.opts.ImageBase}
	if t.mem != nil {
		for _, r := range t.mem.Regions() {
			if r.ReadOnly {
				continue
			}
			am.Regions = append(am.Regions, AddressMapRegion{Name: r.Name, Start: r.Start, Length: r.Size()})
		}
	}
	sort.Slice(am.Regions, func(i, j int) bool { return am.Regions[i].Start < am.Regions[j].Start })

	if err := os.MkdirAll(t.opts.Output, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create trace directory %s", t.opts.Output)
	}
	data, err := yaml.Marshal(&am)
	if err != nil {
		return errors.Wrap(err, "failed to marshal address map")
	}
	// tracers of parallel workers share the output directory
	path := filepath.Join(t.opts.Output, AddressMapName)
	f, err := os.CreateTemp(t.opts.Output, AddressMapName+".*")
	if err != nil {
		return errors.Wrap(err, "failed to create address map")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return errors.Wrapf(err, "failed to write address map %s", path)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	if err := os.Chmod(f.Name(), 0o644); err != nil {
		os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), path)
}

// LoadAddressMap reads an address map written by the first PostRun
func LoadAddressMap(path string) (*AddressMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var am AddressMap
	if err := yaml.Unmarshal(data, &am); err != nil {
		return nil, errors.Wrapf(err, "failed to parse address map %s", path)
	}
	return &am, nil
}

func (t *Tracer) runToken() string {
	label := t.label
	if label == "" {
		label = fmt.Sprintf("run%d", t.runs)
	}
	return unsafeLabel.ReplaceAllString(label, "_") + "-" + uuid.NewString()
}
