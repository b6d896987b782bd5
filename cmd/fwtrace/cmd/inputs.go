/*
Copyright © 2024 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/blacktop/fwtrace/pkg/trace"
	"github.com/twmb/murmur3"
)

// collectInputs lists the fuzz inputs of a corpus directory. A corpus with
// crashes/ or non_crashes/ subdirectories is read from those, anything else
// is taken as a flat directory of inputs.
func collectInputs(dir string) ([]string, error) {
	var dirs []string
	for _, sub := range []string{trace.CrashesDir, trace.NonCrashesDir} {
		if fi, err := os.Stat(filepath.Join(dir, sub)); err == nil && fi.IsDir() {
			dirs = append(dirs, filepath.Join(dir, sub))
		}
	}
	if len(dirs) == 0 {
		dirs = []string{dir}
	}

	var inputs []string
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err != nil {
			return nil, err
		}
		for _, ent := range entries {
			if !ent.Type().IsRegular() || ent.Name()[0] == '.' {
				continue
			}
			inputs = append(inputs, filepath.Join(d, ent.Name()))
		}
	}
	sort.Strings(inputs)
	return inputs, nil
}

// dedupInputs drops inputs whose content was already seen, the first path in
// order is kept
func dedupInputs(paths []string) (unique []string, dups int, err error) {
	seen := make(map[uint64]struct{}, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, 0, err
		}
		h := murmur3.Sum64(data)
		if _, ok := seen[h]; ok {
			dups++
			continue
		}
		seen[h] = struct{}{}
		unique = append(unique, path)
	}
	return unique, dups, nil
}
