//go:build linux

/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	perf "github.com/hodgesds/perf-utils"
)

// countInstructions runs fn under a hardware instruction counter on the
// calling thread. ok is false when the counter cannot be opened, in which
// case fn runs uncounted.
func countInstructions(fn func() error) (count uint64, ok bool, err error) {
	var (
		ran bool
	)
	pv, perfErr := perf.CPUInstructions(func() error {
		ran = true
		err = fn()
		return err
	})
	switch {
	case !ran:
		err = fn()
		return
	case err != nil:
		return
	case perfErr != nil:
		return
	}
	return pv.Value, true, nil
}
